package iframe

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFoundWithinDeadline is returned when the iframe or element did
	// not appear before the configured timeout elapsed.
	ErrNotFoundWithinDeadline = errors.New("not found within deadline")

	// ErrElementTypeMismatch is returned when a write is requested on an
	// element that is not a form control, or typing on one that cannot take
	// keyboard input.
	ErrElementTypeMismatch = errors.New("element type mismatch")
)

// ResolveError provides detailed context for a failed resolution.
type ResolveError struct {
	Operation string
	Iframe    string
	Element   string
	Attempts  int
	Cause     error
}

func (e *ResolveError) Error() string {
	target := e.Iframe
	if e.Element != "" {
		target = fmt.Sprintf("%s > %s", e.Iframe, e.Element)
	}
	return fmt.Sprintf("%s(%s) failed after %d attempt(s): %v", e.Operation, target, e.Attempts, e.Cause)
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}
