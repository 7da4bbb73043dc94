package session

import "errors"

// Lifecycle misuse errors. All are local, synchronous, and deterministic;
// callers should treat them as programming errors, not transient conditions.
var (
	ErrSessionInactive = errors.New("session is not active")
	ErrAlreadyEnded    = errors.New("session already ended")
	ErrDuplicateTask   = errors.New("duplicate task id")
	ErrUnknownTask     = errors.New("unknown task id")
	ErrInvalidMetrics  = errors.New("invalid hierarchy metrics")
)
