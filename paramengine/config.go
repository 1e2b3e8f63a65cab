package paramengine

import (
	"runtime"
	"time"
)

// ResultAggregationMode controls how branch results are folded into the
// enhanced payload. "simple" keeps only the latest result; "enhanced"
// (the default) produces the full ParameterExecutionDetails per branch;
// "stream" additionally republishes each branch result as it arrives
// instead of waiting for the full fan-out to settle.
type ResultAggregationMode string

const (
	AggregationSimple   ResultAggregationMode = "simple"
	AggregationEnhanced ResultAggregationMode = "enhanced"
	AggregationStream   ResultAggregationMode = "stream"
)

// Config is the process-wide ParallelParameterConfiguration from spec §6.
type Config struct {
	// MaxConcurrent bounds the number of branches in flight at once.
	// Defaults to 2x logical cores.
	MaxConcurrent int `json:"maxConcurrent" yaml:"maxConcurrent" env:"PARAM_MAX_CONCURRENT"`

	// ParameterTimeout bounds how long a branch waits for its result
	// before completing with a timeout failure. Default 30s.
	ParameterTimeout time.Duration `json:"parameterTimeoutMs" yaml:"parameterTimeoutMs" env:"PARAM_TIMEOUT_MS"`

	// ConsciousnessContextPreservation carries every field of the original
	// payload, the handlers map included, into every branch's sub-payload; true by
	// default, matching the source system's context-preservation default.
	ConsciousnessContextPreservation bool `json:"consciousnessContextPreservation" yaml:"consciousnessContextPreservation" env:"PARAM_PRESERVE_CONTEXT"`

	// StreamProcessingEnabled allows AggregationStream mode to be selected.
	StreamProcessingEnabled bool `json:"streamProcessingEnabled" yaml:"streamProcessingEnabled" env:"PARAM_STREAM_ENABLED"`

	// ResultAggregationMode selects the aggregation strategy.
	ResultAggregationMode ResultAggregationMode `json:"resultAggregationMode" yaml:"resultAggregationMode" env:"PARAM_AGGREGATION_MODE"`

	// PerformanceMonitoringEnabled toggles the (purely informational)
	// performance-improvement telemetry described in spec §4.3.
	PerformanceMonitoringEnabled bool `json:"performanceMonitoringEnabled" yaml:"performanceMonitoringEnabled" env:"PARAM_PERF_MONITORING"`
}

// DefaultConfig matches spec §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:                    2 * runtime.NumCPU(),
		ParameterTimeout:                 30 * time.Second,
		ConsciousnessContextPreservation: true,
		StreamProcessingEnabled:          false,
		ResultAggregationMode:            AggregationEnhanced,
		PerformanceMonitoringEnabled:     true,
	}
}

// ValidateConfig checks the configuration for internal consistency,
// matching the teacher's ValidateConfig-per-struct convention.
func (c Config) ValidateConfig() error {
	if c.MaxConcurrent <= 0 {
		return ErrInvalidMaxConcurrent
	}
	if c.ParameterTimeout <= 0 {
		return ErrInvalidTimeout
	}
	switch c.ResultAggregationMode {
	case AggregationSimple, AggregationEnhanced, AggregationStream, "":
	default:
		return ErrInvalidAggregationMode
	}
	if c.ResultAggregationMode == AggregationStream && !c.StreamProcessingEnabled {
		return ErrStreamModeDisabled
	}
	return nil
}
