package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the variable that pins the worker count.
const OverrideEnv = "PROCESSOR_WORKERS"

// Count returns the number of concurrent workers for a task type. It is
// based on GOMAXPROCS, which follows the container CPU limit.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks such as ffmpeg encodes
//   - 2.0 for I/O-bound tasks such as archive uploads
//
// limit caps the result; 0 means no cap. A positive PROCESSOR_WORKERS
// value replaces the computed count but is still capped.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return capAt(count, limit)
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	return capAt(workers, limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns the worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns the worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}
