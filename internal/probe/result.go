package probe

import "benchd.sh/internal/ferrors"

// Outcome classifies a probe result
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeUnavailable
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Result carries exactly one of a value, an unavailability reason or an
// error message.
type Result[T any] struct {
	value   T
	outcome Outcome
	reason  string
}

// OK wraps a successful reading
func OK[T any](v T) Result[T] {
	return Result[T]{value: v, outcome: OutcomeOK}
}

// Unavailable records that the source does not exist, timed out or produced
// output that could not be parsed.
func Unavailable[T any](reason string) Result[T] {
	return Result[T]{outcome: OutcomeUnavailable, reason: reason}
}

// Failed records an unexpected failure of an OS facility
func Failed[T any](err error) Result[T] {
	return Result[T]{outcome: OutcomeError, reason: err.Error()}
}

// FromError classifies err into Unavailable or Failed
func FromError[T any](err error) Result[T] {
	if ferrors.IsUnavailable(err) {
		return Unavailable[T](err.Error())
	}
	return Failed[T](err)
}

// Value returns the reading and whether there is one
func (r Result[T]) Value() (T, bool) {
	return r.value, r.outcome == OutcomeOK
}

func (r Result[T]) Outcome() Outcome {
	return r.outcome
}

// Reason is the unavailability reason or error message, empty on success
func (r Result[T]) Reason() string {
	return r.reason
}
