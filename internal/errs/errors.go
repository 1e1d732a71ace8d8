package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound  = errors.New("not_found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid")
	// ErrValidation marks a reading that would break the monotonic chain (HTTP 422).
	// No mutation has been performed when it is returned.
	ErrValidation = errors.New("validation_error")
	// ErrMissingField is returned before any storage access when a required input is absent.
	ErrMissingField = errors.New("missing_field")
	// ErrLockUnavailable means the timeline lock could not be obtained in time.
	ErrLockUnavailable = errors.New("lock_unavailable")
)
