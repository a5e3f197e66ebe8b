// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Unknown is the kind of errors not produced by this package.
	Unknown Kind = iota
	ClaimConflict
	DispatchFailure
	MalformedInput
	TransportFailure
	ArchiveCorruption
)

// String returns the snake_case name used in log records.
func (k Kind) String() string {
	switch k {
	case ClaimConflict:
		return "claim_conflict"
	case DispatchFailure:
		return "dispatch_failure"
	case MalformedInput:
		return "malformed_input"
	case TransportFailure:
		return "transport_failure"
	case ArchiveCorruption:
		return "archive_corruption"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrClaimConflict     = &Error{Kind: ClaimConflict}
	ErrDispatchFailure   = &Error{Kind: DispatchFailure}
	ErrMalformedInput    = &Error{Kind: MalformedInput}
	ErrTransportFailure  = &Error{Kind: TransportFailure}
	ErrArchiveCorruption = &Error{Kind: ArchiveCorruption}
)

// Error is a classified relay failure.
type Error struct {
	Kind Kind

	// Op names the operation that failed ("send", "claim", "patch").
	Op string

	// Path is the file or URL involved, when there is one.
	Path string

	// Err is the underlying cause.
	Err error

	// Notified is set on attachment failures after the fallback text
	// notification reached the recipient.
	Notified bool
}

func (e *Error) Error() string {
	message := e.Kind.String()
	if e.Op != "" {
		message = e.Op + ": " + message
	}
	if e.Path != "" {
		message += " (" + e.Path + ")"
	}
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work
// with errors.Is regardless of Op, Path and cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Claim returns a ClaimConflict error for the lock at path.
func Claim(path string, err error) *Error {
	return newError(ClaimConflict, "claim", path, err)
}

// Dispatch returns a DispatchFailure error.
func Dispatch(op string, err error) *Error {
	return newError(DispatchFailure, op, "", err)
}

// Malformed returns a MalformedInput error. The format arguments
// describe what was wrong with the input.
func Malformed(op, path, format string, args ...any) *Error {
	return newError(MalformedInput, op, path, fmt.Errorf(format, args...))
}

// Transport returns a TransportFailure error for url.
func Transport(op, url string, err error) *Error {
	return newError(TransportFailure, op, url, err)
}

// Archive returns an ArchiveCorruption error for the archive at path.
func Archive(op, path string, err error) *Error {
	return newError(ArchiveCorruption, op, path, err)
}

// KindOf returns the kind of the first *Error in err's chain, or
// Unknown. A joined error reports the first classified member.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return Unknown
}

// Escalate reports whether err should abort the current relay cycle
// rather than be logged and skipped. Transport and archive failures
// affect every entry that follows; unclassified errors (filesystem
// errors on the queue root) also escalate. Claim conflicts, malformed
// entries and dispatch failures stay local to one entry.
func Escalate(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case ClaimConflict, MalformedInput, DispatchFailure:
		return false
	default:
		return true
	}
}
