// Package limits provides the acceptor's connection-admission controls:
// per-IP/global connection-rate limiting and a CPU-based resource guard.
// Adapted from the teacher's internal/shared/limits package, with the
// Prometheus metric calls removed (metrics/telemetry is an explicit spec
// Non-goal) and rewired to gate raw TCP accepts instead of WebSocket
// upgrades.
package limits

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ConnectionRateLimiterConfig configures NewConnectionRateLimiter.
type ConnectionRateLimiterConfig struct {
	IPBurst int
	IPRate  float64
	IPTTL   time.Duration

	GlobalBurst int
	GlobalRate  float64

	Logger zerolog.Logger
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ConnectionRateLimiter provides DoS protection via a two-level token
// bucket: per source IP and system-wide.
type ConnectionRateLimiter struct {
	mu       sync.Mutex
	ips      map[string]*ipEntry
	ipBurst  int
	ipRate   float64
	ipTTL    time.Duration

	global *rate.Limiter

	logger  zerolog.Logger
	stop    chan struct{}
}

// NewConnectionRateLimiter builds a limiter with sane defaults for any zero field.
func NewConnectionRateLimiter(cfg ConnectionRateLimiterConfig) *ConnectionRateLimiter {
	if cfg.IPBurst == 0 {
		cfg.IPBurst = 10
	}
	if cfg.IPRate == 0 {
		cfg.IPRate = 1.0
	}
	if cfg.IPTTL == 0 {
		cfg.IPTTL = 5 * time.Minute
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 300
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = 50.0
	}

	crl := &ConnectionRateLimiter{
		ips:     make(map[string]*ipEntry),
		ipBurst: cfg.IPBurst,
		ipRate:  cfg.IPRate,
		ipTTL:   cfg.IPTTL,
		global:  rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		logger:  cfg.Logger.With().Str("subsystem", "connection_rate_limiter").Logger(),
		stop:    make(chan struct{}),
	}
	go crl.cleanupLoop()
	return crl
}

// Allow reports whether a new connection from ip should be admitted.
func (crl *ConnectionRateLimiter) Allow(ip string) bool {
	if !crl.global.Allow() {
		crl.logger.Debug().Str("ip", ip).Msg("connection rejected: global rate limit exceeded")
		return false
	}
	if !crl.ipLimiter(ip).Allow() {
		crl.logger.Debug().Str("ip", ip).Msg("connection rejected: per-IP rate limit exceeded")
		return false
	}
	return true
}

func (crl *ConnectionRateLimiter) ipLimiter(ip string) *rate.Limiter {
	crl.mu.Lock()
	defer crl.mu.Unlock()
	entry, ok := crl.ips[ip]
	if ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}
	entry = &ipEntry{limiter: rate.NewLimiter(rate.Limit(crl.ipRate), crl.ipBurst), lastAccess: time.Now()}
	crl.ips[ip] = entry
	return entry.limiter
}

func (crl *ConnectionRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			crl.cleanup()
		case <-crl.stop:
			return
		}
	}
}

func (crl *ConnectionRateLimiter) cleanup() {
	crl.mu.Lock()
	defer crl.mu.Unlock()
	now := time.Now()
	for ip, entry := range crl.ips {
		if now.Sub(entry.lastAccess) > crl.ipTTL {
			delete(crl.ips, ip)
		}
	}
}

// Stop ends the limiter's cleanup goroutine.
func (crl *ConnectionRateLimiter) Stop() { close(crl.stop) }
