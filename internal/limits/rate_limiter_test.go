package limits

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConnectionRateLimiterAllowsWithinBurst(t *testing.T) {
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{
		IPBurst: 3, IPRate: 0.001, GlobalBurst: 100, GlobalRate: 1000, Logger: zerolog.Nop(),
	})
	defer crl.Stop()

	for i := 0; i < 3; i++ {
		if !crl.Allow("1.2.3.4") {
			t.Fatalf("expected request %d within burst to be allowed", i)
		}
	}
	if crl.Allow("1.2.3.4") {
		t.Fatal("expected 4th request past the per-IP burst to be rejected")
	}
}

func TestConnectionRateLimiterTracksIPsIndependently(t *testing.T) {
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{
		IPBurst: 1, IPRate: 0.001, GlobalBurst: 100, GlobalRate: 1000, Logger: zerolog.Nop(),
	})
	defer crl.Stop()

	if !crl.Allow("10.0.0.1") || !crl.Allow("10.0.0.2") {
		t.Fatal("expected distinct IPs to have independent buckets")
	}
	if crl.Allow("10.0.0.1") {
		t.Fatal("expected second request from the same IP to exceed its burst")
	}
}

func TestConnectionRateLimiterEnforcesGlobalCap(t *testing.T) {
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{
		IPBurst: 100, IPRate: 1000, GlobalBurst: 2, GlobalRate: 0.001, Logger: zerolog.Nop(),
	})
	defer crl.Stop()

	if !crl.Allow("a") || !crl.Allow("b") {
		t.Fatal("expected first two requests within the global burst to be allowed")
	}
	if crl.Allow("c") {
		t.Fatal("expected a request past the global burst to be rejected regardless of source IP")
	}
}

func TestCleanupRemovesStaleIPEntries(t *testing.T) {
	crl := NewConnectionRateLimiter(ConnectionRateLimiterConfig{
		IPBurst: 1, IPRate: 1, IPTTL: time.Millisecond, GlobalBurst: 100, GlobalRate: 1000, Logger: zerolog.Nop(),
	})
	defer crl.Stop()

	crl.Allow("1.1.1.1")
	time.Sleep(2 * time.Millisecond)
	crl.cleanup()

	crl.mu.Lock()
	_, stillPresent := crl.ips["1.1.1.1"]
	crl.mu.Unlock()
	if stillPresent {
		t.Fatal("expected stale IP entry to be cleaned up past its TTL")
	}
}
