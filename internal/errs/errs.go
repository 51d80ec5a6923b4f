package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping
type Kind string

const (
	KindInvalid      Kind = "invalid"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindRateLimited  Kind = "rate_limited"
	KindBusy         Kind = "busy"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Error is a kinded error carrying a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Err     error
	// RetryAfter is the wait in whole seconds a throttled caller should observe; 0 when unknown
	RetryAfter int
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a kinded error
func E(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Wrap adds context and preserves the error chain (errors.Is/As works).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context and preserves the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// KindOf returns the kind of the first *Error in the chain, KindInternal otherwise
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the user-facing message of the first *Error in the chain,
// falling back to err.Error() so unexpected failures stay diagnosable.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// RetryAfterSeconds returns the retry hint of the first *Error in the chain
func RetryAfterSeconds(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
