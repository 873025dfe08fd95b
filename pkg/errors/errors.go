package errors

import (
	"errors"
	"fmt"
)

// Process exit statuses returned by ExitCode.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitCanceled = 130
)

var (
	ErrMalformedLine      = errors.New("malformed line")
	ErrInvalidEncoding    = errors.New("invalid utf-8 encoding")
	ErrIO                 = errors.New("i/o error")
	ErrUsage              = errors.New("usage error")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrUnsortedCollection = errors.New("collection ids are not sorted")
	ErrUnmatchedIDs       = errors.New("target ids not found in collection")
	ErrCanceled           = errors.New("build canceled")
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, exitCode int, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCode,
	}
}

func Newf(sentinel error, exitCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCode,
	}
}

// IOf wraps cause as an ErrIO failure that names the offending path.
func IOf(path string, cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, fmt.Sprintf(format, args...), path, cause)
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}

	switch {
	case errors.Is(err, ErrUsage), errors.Is(err, ErrInvalidConfig):
		return ExitUsage
	case errors.Is(err, ErrCanceled):
		return ExitCanceled
	default:
		return ExitFailure
	}
}
