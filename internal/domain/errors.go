package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers wrap these with fmt.Errorf("...: %w", ...)
// and classify with errors.Is.
var (
	// ErrValidation marks malformed input, e.g. a missing or non-numeric
	// required application field. Retrying will not help.
	ErrValidation = errors.New("validation error")

	// ErrUnknownEntity marks a customer id absent from the graph store.
	// Feature extraction handles this by returning a zero vector with an
	// explicit unknown flag; other callers may surface it directly.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrComputation marks a failed centrality or modularity computation
	// on a malformed graph. Possibly transient.
	ErrComputation = errors.New("computation error")

	// ErrModelUnavailable marks scoring requested before any model has
	// ever been trained.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrNotFound marks a missing persisted record.
	ErrNotFound = errors.New("record not found")

	// ErrConfiguration marks inconsistent configuration surfaced before
	// work starts, e.g. training samples with disjoint feature key sets.
	ErrConfiguration = errors.New("configuration error")
)

// Retryable reports whether the failure is transient and worth retrying.
// Validation, unknown-entity and configuration failures are permanent.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrUnknownEntity),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

// ValidationErrorf wraps ErrValidation with a formatted message.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
