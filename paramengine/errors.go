package paramengine

import "errors"

var (
	// ErrValidation covers malformed handler-parameter maps: duplicate
	// parameter names, empty handler topics, or an unrecognized payload
	// shape. Wrapped with more detail at each call site.
	ErrValidation = errors.New("paramengine: validation failed")

	ErrInvalidMaxConcurrent   = errors.New("paramengine: maxConcurrent must be > 0")
	ErrInvalidTimeout         = errors.New("paramengine: parameterTimeout must be > 0")
	ErrInvalidAggregationMode = errors.New("paramengine: unknown result aggregation mode")
	ErrStreamModeDisabled     = errors.New("paramengine: stream aggregation mode requires streamProcessingEnabled")
)
