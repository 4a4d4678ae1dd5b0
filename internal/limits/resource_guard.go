package limits

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// ResourceGuardConfig is the static configuration a ResourceGuard enforces.
// Adapted from the teacher's types.ServerConfig resource fields, trimmed to
// what this broker actually needs (no Kafka/broadcast rate fields — see
// DESIGN.md for the dropped Kafka-consumer-pool rationale).
type ResourceGuardConfig struct {
	MaxGoroutines      int
	CPUPauseThreshold  float64 // percent; the background sampler logs a warning above this
	CPURejectThreshold float64 // percent; acceptor logs+continues above this (spec never mandates rejecting)
}

// ResourceGuard samples host CPU usage and goroutine count, exposing a
// cheap, non-blocking check the acceptor and shards can consult to log
// backpressure warnings. Grounded on the teacher's
// internal/shared/limits/resource_guard.go shape, simplified to drop the
// cgroup-aware CPU monitor (no container-limit awareness needed here) in
// favor of gopsutil's host CPU percent directly.
type ResourceGuard struct {
	config ResourceGuardConfig
	logger zerolog.Logger

	currentCPU atomic.Value // float64

	stop chan struct{}
}

// NewResourceGuard builds a guard and starts its background sampler at interval.
func NewResourceGuard(config ResourceGuardConfig, logger zerolog.Logger, interval time.Duration) *ResourceGuard {
	rg := &ResourceGuard{
		config: config,
		logger: logger.With().Str("subsystem", "resource_guard").Logger(),
		stop:   make(chan struct{}),
	}
	rg.currentCPU.Store(0.0)
	go rg.sampleLoop(interval)
	return rg
}

func (rg *ResourceGuard) sampleLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rg.sample()
		case <-rg.stop:
			return
		}
	}
}

func (rg *ResourceGuard) sample() {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return
	}
	rg.currentCPU.Store(percents[0])

	current := percents[0]
	if current > rg.config.CPUPauseThreshold {
		rg.logger.Warn().Float64("cpu_percent", current).Msg("CPU above pause threshold")
	}
}

// ShouldWarn reports whether the acceptor should log backpressure before
// accepting another burst of connections; spec never mandates rejecting
// connections under CPU pressure, so this is advisory-only (see DESIGN.md:
// resource guard is advisory-only).
func (rg *ResourceGuard) ShouldWarn() (warn bool, cpuPercent float64) {
	cpuPercent = rg.currentCPU.Load().(float64)
	if cpuPercent > rg.config.CPURejectThreshold {
		return true, cpuPercent
	}
	if rg.config.MaxGoroutines > 0 && rg.GoroutineCount() > rg.config.MaxGoroutines {
		return true, cpuPercent
	}
	return false, cpuPercent
}

// GoroutineCount reports the current live goroutine count for logging.
func (rg *ResourceGuard) GoroutineCount() int { return runtime.NumGoroutine() }

// Stop ends the background sampler.
func (rg *ResourceGuard) Stop() { close(rg.stop) }
