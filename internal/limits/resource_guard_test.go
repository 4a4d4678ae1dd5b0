package limits

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestShouldWarnFlagsHighCPU(t *testing.T) {
	rg := &ResourceGuard{config: ResourceGuardConfig{CPURejectThreshold: 90}, logger: zerolog.Nop()}
	rg.currentCPU.Store(95.0)

	warn, cpu := rg.ShouldWarn()
	if !warn || cpu != 95.0 {
		t.Fatalf("expected warn=true cpu=95, got warn=%v cpu=%v", warn, cpu)
	}
}

func TestShouldWarnFalseUnderThresholds(t *testing.T) {
	rg := &ResourceGuard{config: ResourceGuardConfig{CPURejectThreshold: 90}, logger: zerolog.Nop()}
	rg.currentCPU.Store(10.0)

	if warn, _ := rg.ShouldWarn(); warn {
		t.Fatal("expected no warning under thresholds")
	}
}

func TestShouldWarnFlagsExcessGoroutines(t *testing.T) {
	rg := &ResourceGuard{
		config: ResourceGuardConfig{CPURejectThreshold: 100, MaxGoroutines: 1},
		logger: zerolog.Nop(),
	}
	rg.currentCPU.Store(0.0)

	warn, _ := rg.ShouldWarn()
	if !warn {
		t.Fatal("expected warning when live goroutine count exceeds MaxGoroutines=1")
	}
}
