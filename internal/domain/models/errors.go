package models

import "errors"

var (
	// ErrDataUnavailable marks a failed or malformed collaborator read. The tick aborts.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrStalePrice marks a price older than the freshness bound.
	ErrStalePrice = errors.New("stale price")
	// ErrSanityCheck marks live and reference prices diverging beyond the ceiling.
	ErrSanityCheck = errors.New("sanity check failed")
	// ErrInvalidReference marks a missing or non-positive window reference price.
	ErrInvalidReference = errors.New("invalid reference price")
	// ErrExecution marks a failed submit or cancel call.
	ErrExecution = errors.New("execution failed")
	ErrNotFound  = errors.New("not found")
)
