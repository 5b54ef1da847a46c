package apperrors

import "errors"

// ErrNotFound indicates that a requested resource could not be found,
// or is not visible within the caller's team scope.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrConflict indicates that a state transition was attempted from an
// unexpected prior state. The caller lost a race (or repeated an action) and
// should re-read before deciding whether to retry.
var ErrConflict = errors.New("state conflict")

// ErrTransient indicates a backing-store I/O failure that is safe to retry.
var ErrTransient = errors.New("transient store error")

// IsTransient reports whether err should be retried by the batch retry policy.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
