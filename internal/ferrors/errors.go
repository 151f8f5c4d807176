package ferrors

import (
	"errors"
	"fmt"
)

// Error taxonomy for metric sources. None of these ever reach an HTTP
// client; probes translate them into unavailable or error-shaped records.
var (
	// ErrSourceUnavailable means a tool or sensor path does not exist on
	// this platform, or the tool exited non-zero.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrToolMissing means the executable could not be found. It is the only
	// error that opens a command's circuit breaker.
	ErrToolMissing = fmt.Errorf("tool not found: %w", ErrSourceUnavailable)

	// ErrSourceTimeout means an external command exceeded its deadline.
	ErrSourceTimeout = errors.New("source timed out")

	// ErrParseFailure means tool output did not match the expected format.
	ErrParseFailure = errors.New("unexpected source output")

	// ErrCircuitOpen is returned while a breaker refuses calls.
	ErrCircuitOpen = fmt.Errorf("circuit breaker open: %w", ErrSourceUnavailable)
)

// Wrap wraps an error with a message
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// New creates a new error
func New(msg string) error {
	return errors.New(msg)
}

// Is checks if an error matches a target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As extracts an error of a specific type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsUnavailable reports whether err means the source cannot be read at all
// (missing, timed out or unparsable), as opposed to an internal failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrSourceTimeout) ||
		errors.Is(err, ErrParseFailure)
}
