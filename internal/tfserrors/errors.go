// Package tfserrors defines the error vocabulary shared by every TFS
// component. Each kind is a sentinel; call sites wrap it with
// github.com/pkg/errors so a stack trace survives up to the log line that
// reports it, per spec.md's "backtrace-wrapped errors" note.
package tfserrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for logging severity and errno mapping. It does
// not carry call-site detail; that lives in the wrapping message.
type Kind int

const (
	_ Kind = iota
	NotFound
	Collision
	InvalidInode
	UnknownTag
	InvalidName
	ChecksumError
	DecodeError
	EncodeError
	IoError
	Overflow
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Collision:
		return "Collision"
	case InvalidInode:
		return "InvalidInode"
	case UnknownTag:
		return "UnknownTag"
	case InvalidName:
		return "InvalidName"
	case ChecksumError:
		return "ChecksumError"
	case DecodeError:
		return "DecodeError"
	case EncodeError:
		return "EncodeError"
	case IoError:
		return "IoError"
	case Overflow:
		return "Overflow"
	case Unsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// tfsError pairs a Kind with a message. It implements error and is always
// produced already wrapped with a stack via New/Wrap below.
type tfsError struct {
	kind Kind
	msg  string
}

func (e *tfsError) Error() string { return fmt.Sprintf("%s: %s", e.kind, e.msg) }

// New creates a fresh error of the given kind, with a captured stack trace.
func New(kind Kind, msg string) error {
	return errors.WithStack(&tfsError{kind: kind, msg: msg})
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches kind and a captured stack trace to an existing error,
// preserving its message as context.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&tfsError{kind: kind, msg: fmt.Sprintf("%s: %v", msg, err)})
}

// KindOf extracts the Kind carried by err, if any was attached via New/Wrap
// in this package. Errors from elsewhere report Kind 0 (the zero value,
// which String renders as "Unknown").
func KindOf(err error) (Kind, bool) {
	var te *tfsError
	if errors.As(err, &te) {
		return te.kind, true
	}
	return 0, false
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
