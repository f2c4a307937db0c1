// Package agenterr defines the structured error type and error taxonomy
// shared by every component in this repository: framing, channel,
// breakpoint manager, native control, process model, and session
// dispatch. It lives under internal so that packages below the root
// (which itself depends on them) can return and inspect these errors
// without an import cycle; the root package re-exports the public names.
package agenterr

import (
	"errors"
	"fmt"
	"syscall"
)

// Code is the high-level error taxonomy a delegate method can return. It is
// independent of any particular OS errno and is what gets encoded onto the
// wire as an E<hh> reply.
type Code string

const (
	Success         Code = "success"
	Unknown         Code = "unknown"
	Unsupported     Code = "unsupported"
	NotFound        Code = "not found"
	AlreadyExist    Code = "already exists"
	Busy            Code = "busy"
	InvalidArgument Code = "invalid argument"
	InvalidHandle   Code = "invalid handle"
	InvalidAddress  Code = "invalid address"
	NoPermission    Code = "no permission"
	NoMemory        Code = "no memory"
	ProcessNotFound Code = "process not found"
)

// wireErrno is the byte value a Code is encoded as in an E<hh> reply.
// The exact numbering is internal to this agent; a debugger only ever
// inspects it as an opaque nonzero value except for the handful of codes
// gdb itself treats specially.
var wireErrno = map[Code]uint8{
	Success:         0,
	Unknown:         1,
	Unsupported:     2,
	NotFound:        3,
	AlreadyExist:    4,
	Busy:            5,
	InvalidArgument: 6,
	InvalidHandle:   7,
	InvalidAddress:  8,
	NoPermission:    9,
	NoMemory:        10,
	ProcessNotFound: 11,
}

// WireErrno returns the byte this code is reported as in an E<hh> reply.
func WireErrno(c Code) uint8 {
	if v, ok := wireErrno[c]; ok {
		return v
	}
	return wireErrno[Unknown]
}

// Error is the structured error type returned by every component in this
// repository.
type Error struct {
	Op    string        // operation that failed, e.g. "readMemory", "vCont"
	Code  Code          // high-level category
	Errno syscall.Errno // originating errno, 0 if not applicable
	Msg   string        // human-readable message
	Inner error         // wrapped error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op == "" {
		return fmt.Sprintf("agent: %s", msg)
	}
	if e.Errno != 0 {
		return fmt.Sprintf("agent: %s: %s (errno=%d)", e.Op, msg, e.Errno)
	}
	return fmt.Sprintf("agent: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// New builds a structured error from an operation name, category and
// message.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// Wrap wraps inner with operation context, translating a raw errno into
// the agent's taxonomy when possible.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ae, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: ae.Code, Errno: ae.Errno, Msg: ae.Msg, Inner: ae.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: MapErrno(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: Unknown, Msg: inner.Error(), Inner: inner}
}

// MapErrno translates a native errno to the agent's error taxonomy, per
// the translation table in the error-handling design.
func MapErrno(errno syscall.Errno) Code {
	switch errno {
	case syscall.EBUSY:
		return Busy
	case syscall.ESRCH:
		return ProcessNotFound
	case syscall.EFAULT, syscall.EIO:
		return InvalidAddress
	case syscall.EPERM:
		return NoPermission
	default:
		return InvalidArgument
	}
}

// IsCode reports whether err is an *Error carrying the given code.
func IsCode(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// IsErrno reports whether err is an *Error carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Errno == errno
	}
	return false
}
