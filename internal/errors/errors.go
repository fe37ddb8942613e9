package errors

import (
	"errors"
	"fmt"
)

// Common error values shared by the store, auth and verification packages.
var (
	// Storage outcomes
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("storage unavailable")

	// Credential outcomes
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAttemptsExceeded   = errors.New("attempts exceeded")
	ErrRateLimited        = errors.New("rate limited")

	// Operator mistakes, surfaced at startup or first use
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Unavailable marks err as a backend failure. The caller may retry.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Config returns a configuration error with the given description.
func Config(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err came from a backend failure rather than a
// rejected request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
