package services

import (
	"errors"
)

// Kind classifies todo service failures.
type Kind int

const (
	KindStore Kind = iota + 1
	KindNotFound
	KindUnacknowledged
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindStore:
		return "store"
	case KindNotFound:
		return "not_found"
	case KindUnacknowledged:
		return "unacknowledged"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is returned by TodoService. Message is safe to show to clients; the
// underlying cause is only reachable through Unwrap.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 when err is not a service error.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return 0
}

// IsNotFound reports whether err means the todo does not exist for the session.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
