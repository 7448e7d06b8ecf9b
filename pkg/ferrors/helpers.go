package ferrors

import (
	"errors"
	"fmt"
)

// Wrap attaches context to err while preserving it for errors.Is/As. Returns
// nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Internal wraps err as an InternalError tagged with the failing operation.
// Returns nil if err is nil.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InternalError{Op: op, Cause: err}
}

// As is a convenience re-export of errors.As so callers only need this
// package's import for the common case of recovering a typed error kind.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is re-exports errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
