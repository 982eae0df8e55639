package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	t.Setenv(OverrideEnv, "")

	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		want       int
	}{
		{"CPU-bound", 1.0, 0, available},
		{"I/O-bound", 2.0, 0, available * 2},
		{"limit lower than computed", 2.0, 1, 1},
		{"limit higher than computed", 1.0, available + 10, available},
		{"tiny multiplier floors at one", 0.0001, 0, 1},
		{"zero multiplier floors at one", 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.multiplier, tt.limit); got != tt.want {
				t.Errorf("Count(%v, %d) = %d, want %d", tt.multiplier, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCountOverride(t *testing.T) {
	tests := []struct {
		name     string
		override string
		limit    int
		want     int
	}{
		{"valid override", "3", 0, 3},
		{"override capped by limit", "12", 5, 5},
		{"override below limit", "2", 5, 2},
		{"invalid override ignored", "lots", 0, runtime.GOMAXPROCS(0)},
		{"zero override ignored", "0", 0, runtime.GOMAXPROCS(0)},
		{"negative override ignored", "-4", 0, runtime.GOMAXPROCS(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(OverrideEnv, tt.override)
			if got := Count(1.0, tt.limit); got != tt.want {
				t.Errorf("Count() with %s=%q = %d, want %d", OverrideEnv, tt.override, got, tt.want)
			}
		})
	}
}

func TestForCPUAndForIO(t *testing.T) {
	t.Setenv(OverrideEnv, "")

	available := runtime.GOMAXPROCS(0)
	if got := ForCPU(0); got != available {
		t.Errorf("ForCPU(0) = %d, want %d", got, available)
	}
	if got := ForIO(0); got != available*2 {
		t.Errorf("ForIO(0) = %d, want %d", got, available*2)
	}
	if got := ForCPU(1); got != 1 {
		t.Errorf("ForCPU(1) = %d, want 1", got)
	}
}
