// Package apperr classifies failures the chat client converts into local state.
package apperr

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.Method".
type Op string

// Kind categorizes a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindFetch covers history, conversation list and client list fetches.
	KindFetch
	// KindSend covers message round-trips, with or without attachments.
	KindSend
	// KindMutation covers rename, delete and create.
	KindMutation
	// KindAuth covers identity provider failures.
	KindAuth
	// KindInvalid covers input rejected before any network call.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch failure"
	case KindSend:
		return "send failure"
	case KindMutation:
		return "mutation failure"
	case KindAuth:
		return "auth unavailable"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown error"
	}
}

// Error is a classified failure.
type Error struct {
	Op   Op
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error.
func E(op Op, kind Kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Fetch wraps err as a fetch failure.
func Fetch(op Op, err error) error { return E(op, KindFetch, err) }

// Send wraps err as a send failure.
func Send(op Op, err error) error { return E(op, KindSend, err) }

// Mutation wraps err as a mutation failure.
func Mutation(op Op, err error) error { return E(op, KindMutation, err) }

// Auth wraps err as an auth failure.
func Auth(op Op, err error) error { return E(op, KindAuth, err) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
