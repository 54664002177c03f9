// Package apperr defines the error taxonomy shared across Galdr components.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrStorage    = errors.New("storage unavailable")
)

// SynthesisError describes a failed speech-synthesis attempt. Permanent
// failures are terminal for the note; transient ones may be retried.
type SynthesisError struct {
	Reason    string
	Permanent bool
	Err       error
}

func (e *SynthesisError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("synthesis (%s): %s: %v", kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("synthesis (%s): %s", kind, e.Reason)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable synthesis failure.
func Transient(reason string, err error) *SynthesisError {
	return &SynthesisError{Reason: reason, Err: err}
}

// Permanent wraps err as a terminal synthesis failure.
func Permanent(reason string, err error) *SynthesisError {
	return &SynthesisError{Reason: reason, Permanent: true, Err: err}
}

// IsPermanentSynthesis reports whether err is a terminal synthesis failure.
func IsPermanentSynthesis(err error) bool {
	var se *SynthesisError
	return errors.As(err, &se) && se.Permanent
}

// SynthesisReason returns the diagnostic reason of a synthesis failure,
// or a generic fallback for other errors.
func SynthesisReason(err error) string {
	var se *SynthesisError
	if errors.As(err, &se) {
		return se.Reason
	}
	return "synthesis failed"
}
