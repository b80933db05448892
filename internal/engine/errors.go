package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: organization, service, or staff does not exist or does not
	// belong to the org. Never retried.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the chosen slot is no longer free. The caller should
	// re-fetch availability and retry with a fresh slot; the engine never
	// auto-retries with a different time.
	ErrConflict = errors.New("slot no longer available")
	// ErrStoreUnavailable: a transient store failure survived the bounded
	// retry budget. Surfaced to adapters as a 5xx equivalent.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError is a malformed request: bad time range, non-positive
// duration, missing customer contact. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
