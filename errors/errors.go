// Package errors defines the small set of POSIX-style errno codes the
// storage core and its host adapter report. Every mutating operation in
// this module returns one of these, never a bare Go error, so that
// callers at the FUSE boundary can translate failures mechanically.
package errors

import (
	"fmt"
	"syscall"
)

// DriverError wraps a syscall.Errno with an optional, more specific
// message. The zero value is not usable; construct with NewDriverError
// or NewDriverErrorWithMessage.
type DriverError struct {
	ErrnoCode syscall.Errno
	message   string
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.ErrnoCode.Error()
}

// Errno returns the underlying errno code.
func (e *DriverError) Errno() syscall.Errno {
	return e.ErrnoCode
}

// NewDriverError creates a DriverError with a default message derived
// from the errno code itself.
func NewDriverError(errnoCode syscall.Errno) *DriverError {
	return &DriverError{ErrnoCode: errnoCode, message: errnoCode.Error()}
}

// NewDriverErrorWithMessage creates a DriverError from an errno code with
// a caller-supplied, more specific message.
func NewDriverErrorWithMessage(errnoCode syscall.Errno, message string) *DriverError {
	return &DriverError{
		ErrnoCode: errnoCode,
		message:   fmt.Sprintf("%s: %s", errnoCode.Error(), message),
	}
}

// Errno extracts the syscall.Errno carried by err, if any, defaulting to
// EIO for errors this package didn't produce. Used at the host-callback
// boundary, where the negative-int/errno convention of spec §7 has to
// become a concrete number.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if de, ok := err.(*DriverError); ok {
		return de.ErrnoCode
	}
	return syscall.EIO
}

// Shorthand constructors for the taxonomy in spec §7. Each corresponds to
// a standard errno value; constructing through these instead of raw
// NewDriverError(syscall.EFOO) keeps call sites terse and greppable.
func Invalid(msg string) *DriverError     { return withOptionalMessage(syscall.EINVAL, msg) }
func NotFound(msg string) *DriverError    { return withOptionalMessage(syscall.ENOENT, msg) }
func NotDir(msg string) *DriverError      { return withOptionalMessage(syscall.ENOTDIR, msg) }
func IsDir(msg string) *DriverError       { return withOptionalMessage(syscall.EISDIR, msg) }
func Exists(msg string) *DriverError      { return withOptionalMessage(syscall.EEXIST, msg) }
func NoSpace(msg string) *DriverError     { return withOptionalMessage(syscall.ENOSPC, msg) }
func NotEmpty(msg string) *DriverError    { return withOptionalMessage(syscall.ENOTEMPTY, msg) }
func AccessDenied(msg string) *DriverError { return withOptionalMessage(syscall.EACCES, msg) }
func NoMemory(msg string) *DriverError    { return withOptionalMessage(syscall.ENOMEM, msg) }
func IOError(msg string) *DriverError     { return withOptionalMessage(syscall.EIO, msg) }

func withOptionalMessage(errnoCode syscall.Errno, msg string) *DriverError {
	if msg == "" {
		return NewDriverError(errnoCode)
	}
	return NewDriverErrorWithMessage(errnoCode, msg)
}
