package bikes

import "errors"

var (
	// ErrValidation marks a malformed row or field. The offending unit is
	// skipped; the cycle continues.
	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable marks a backing store that cannot be reached.
	// The current unit of work is abandoned and retried on the next
	// scheduled tick.
	ErrStoreUnavailable = errors.New("store unavailable")
)
