package paramengine

import "time"

// estimatedSequentialMsPerHandler is the fixed per-handler baseline the
// performance-improvement percentage is measured against. It is not a
// measurement of any real sequential code path — there is none, since
// handlers never actually ran one after another — so the resulting
// percentage is informational telemetry only, never a scheduling input.
const estimatedSequentialMsPerHandler = 1000.0

// performanceImprovementPercent implements the formula from spec §4.3:
//
//	estimated_sequential_ms = parameter_count * 1000
//	improvement = (estimated_sequential_ms - actual_parallel_ms) / estimated_sequential_ms * 100
//
// clamped to [0, 500].
func performanceImprovementPercent(parameterCount int, actual time.Duration) float64 {
	if parameterCount <= 0 {
		return 0
	}
	estimatedSequentialMs := float64(parameterCount) * estimatedSequentialMsPerHandler
	actualMs := float64(actual.Milliseconds())
	if actualMs <= 0 {
		actualMs = 1
	}
	improvement := (estimatedSequentialMs - actualMs) / estimatedSequentialMs * 100

	if improvement < 0 {
		return 0
	}
	if improvement > 500 {
		return 500
	}
	return improvement
}
