package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrGeneration matches every provider-side failure.
	ErrGeneration = errors.New("generation failed")
	// ErrTimeout is returned when a poll loop runs out of attempts. It does not
	// match ErrGeneration.
	ErrTimeout = errors.New("generation timed out")
	// ErrUnrecognizedResponseShape marks a completed task whose output fits none
	// of the known layouts.
	ErrUnrecognizedResponseShape = errors.New("unrecognized response shape")
)

// Error wraps a failure reported by, or while talking to, one provider.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrGeneration }

func failure(provider string, format string, args ...any) error {
	return &Error{Provider: provider, Err: fmt.Errorf(format, args...)}
}

func timeout(provider, taskID string, attempts int) error {
	return fmt.Errorf("%s task %s after %d attempts: %w", provider, taskID, attempts, ErrTimeout)
}
