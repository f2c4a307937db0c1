package agent

import (
	"syscall"

	"github.com/debugstub/ds2agent/internal/agenterr"
)

// Code is the high-level error taxonomy a delegate method can return. It is
// independent of any particular OS errno and is what gets encoded onto the
// wire as an E<hh> reply. See internal/agenterr for the canonical
// definition shared with every internal package.
type Code = agenterr.Code

const (
	Success         = agenterr.Success
	Unknown         = agenterr.Unknown
	Unsupported     = agenterr.Unsupported
	NotFound        = agenterr.NotFound
	AlreadyExist    = agenterr.AlreadyExist
	Busy            = agenterr.Busy
	InvalidArgument = agenterr.InvalidArgument
	InvalidHandle   = agenterr.InvalidHandle
	InvalidAddress  = agenterr.InvalidAddress
	NoPermission    = agenterr.NoPermission
	NoMemory        = agenterr.NoMemory
	ProcessNotFound = agenterr.ProcessNotFound
)

// Error is the structured error type returned by every component in this
// repository: framing, channel, breakpoint manager, native control,
// process model, and session dispatch.
type Error = agenterr.Error

// WireErrno returns the byte this code is reported as in an E<hh> reply.
func WireErrno(c Code) uint8 { return agenterr.WireErrno(c) }

// NewError builds a structured error from an operation name, category and
// message.
func NewError(op string, code Code, msg string) *Error {
	return agenterr.New(op, code, msg)
}

// WrapError wraps inner with operation context, translating a raw errno
// into the agent's taxonomy when possible.
func WrapError(op string, inner error) *Error {
	return agenterr.Wrap(op, inner)
}

// IsCode reports whether err is an *Error carrying the given code.
func IsCode(err error, code Code) bool { return agenterr.IsCode(err, code) }

// IsErrno reports whether err is an *Error carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool { return agenterr.IsErrno(err, errno) }
