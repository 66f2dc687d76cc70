// Package bferr defines the engine's error taxonomy.
//
// Every public operation returns one of these kinds, wrapped with the
// operation and bundle context that produced it. Internal helpers
// propagate errors unchanged; public verbs add exactly one layer of
// context, mirroring the propagation policy in spec.md section 7.
package bferr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind int

const (
	// Unexpected is the zero value; never returned deliberately.
	Unexpected Kind = iota
	InvalidArgument
	NotFound
	AlreadyExists
	IO
	ShortRead
	CorruptFormat
	Tampered
	AccessDenied
	AlreadyRunning
	Busy
	Timeout
	UserExit
	Cancelled
	TypeMismatch
	BuiltinReadonly
	RebootRequired
	RebootInitiated
	ChildFailed
	NotImplemented
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case IO:
		return "io"
	case ShortRead:
		return "short_read"
	case CorruptFormat:
		return "corrupt_format"
	case Tampered:
		return "tampered"
	case AccessDenied:
		return "access_denied"
	case AlreadyRunning:
		return "already_running"
	case Busy:
		return "busy"
	case Timeout:
		return "timeout"
	case UserExit:
		return "user_exit"
	case Cancelled:
		return "cancelled"
	case TypeMismatch:
		return "type_mismatch"
	case BuiltinReadonly:
		return "builtin_readonly"
	case RebootRequired:
		return "reboot_required"
	case RebootInitiated:
		return "reboot_initiated"
	case ChildFailed:
		return "child_failed"
	case NotImplemented:
		return "not_implemented"
	default:
		return "unexpected"
	}
}

// Error is the engine's typed error carrying operation and bundle context.
type Error struct {
	Kind   Kind
	Op     string // public-verb operation name, e.g. "plan", "apply"
	Bundle string // bundle or package id the operation concerned, if any
	Err    error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Bundle != "" {
		msg = msg + " (" + e.Bundle + ")"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an *Error wrapping err, or returns nil if err is nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithBundle attaches bundle context and returns the receiver for chaining.
func (e *Error) WithBundle(bundle string) *Error {
	e.Bundle = bundle
	return e
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// IsTerminalSuccess reports whether err carries one of the four kinds that
// the engine treats as terminal successes rather than failures requiring
// rollback: user_exit, cancelled, and the two reboot kinds (spec.md section 7).
func IsTerminalSuccess(err error) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	switch be.Kind {
	case UserExit, Cancelled, RebootRequired, RebootInitiated:
		return true
	default:
		return false
	}
}
