package topicrouter

import "errors"

// Static errors for the topic router, mirroring the teacher's per-package
// sentinel-error block convention.
var (
	ErrHandlerNil         = errors.New("topicrouter: handler cannot be nil")
	ErrSubscriptionNotFound = errors.New("topicrouter: subscription not found")
)
