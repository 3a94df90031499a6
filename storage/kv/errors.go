package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable indicates that the store could not be reached
	// or did not answer in time. Callers decide whether to retry.
	ErrUnavailable = errors.New("kv store unavailable")
	// ErrClosed indicates that the client was closed
	ErrClosed = errors.New("kv client was closed")
	// ErrWrongType indicates a command against a key holding
	// another kind of value
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")
	// ErrNotInteger indicates that BumpMax found a non-integer value
	ErrNotInteger = errors.New("value is not an integer")
)

// UnavailableError wraps the failure that made
// the store unavailable for a command
type UnavailableError struct {
	Command string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrUnavailable, e.Command, e.Err)
}

// Unwrap returns the underlying failure
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is makes every UnavailableError match ErrUnavailable
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable wraps err in an UnavailableError unless it is nil or
// already a data error (ErrWrongType, ErrNotInteger) that says
// nothing about the health of the store.
func Unavailable(command string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrWrongType), errors.Is(err, ErrNotInteger), errors.Is(err, ErrUnavailable):
		return err
	}

	return &UnavailableError{Command: command, Err: err}
}

// ContextErr returns an UnavailableError if ctx is already done.
func ContextErr(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return &UnavailableError{Command: command, Err: err}
	}

	return nil
}
