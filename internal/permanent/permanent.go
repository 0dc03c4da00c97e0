package permanent

import (
	"errors"
	"fmt"
)

// Reason classifies why an event can never be applied.
type Reason string

const (
	// ReasonReplayed marks an event whose ID was already applied.
	ReasonReplayed Reason = "replayed"
	// ReasonInvalid marks an event the recorder refused on content.
	ReasonInvalid Reason = "invalid"
)

// Error is an ingest rejection that retrying cannot fix.
// Params: rejection reason and wrapped root cause.
// Returns: error carrying the reason for transports to map.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("event rejected (%s)", e.Reason)
	}
	return fmt.Sprintf("event rejected (%s): %s", e.Reason, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Mark wraps err as a permanent rejection.
// Params: rejection reason and source error.
// Returns: wrapped error, or nil for nil err.
func Mark(reason Reason, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Reason: reason, Err: err}
}

// Is reports whether err carries a permanent rejection anywhere in its chain.
func Is(err error) bool {
	_, ok := ReasonOf(err)
	return ok
}

// ReasonOf extracts the rejection reason.
// Params: candidate error.
// Returns: reason and true when err is a permanent rejection.
func ReasonOf(err error) (Reason, bool) {
	var rejected *Error
	if !errors.As(err, &rejected) {
		return "", false
	}
	return rejected.Reason, true
}
