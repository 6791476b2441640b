// Package errs defines the error kinds shared by every layer of the
// archive: container framing, the ZPAQL VM, the predictor, the coder,
// the crypto envelope, and the journaling layer. A *Error carries a
// Kind so callers can branch the way spec section 7 requires
// (BadKey terminal, ChecksumMismatch per-path, and so on) without
// string-matching.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the error classes named in the design's error
// handling section.
type Kind byte

const (
	_ Kind = iota
	Truncated
	BadMagic
	BadHeader
	VmRuntime
	CoderRange
	ChecksumMismatch
	BadKey
	BadVersion
	UnknownMethod
	IO
)

func (k Kind) String() string {
	switch k {
	case Truncated:
		return "truncated"
	case BadMagic:
		return "bad magic"
	case BadHeader:
		return "bad header"
	case VmRuntime:
		return "vm runtime"
	case CoderRange:
		return "coder range"
	case ChecksumMismatch:
		return "checksum mismatch"
	case BadKey:
		return "bad key"
	case BadVersion:
		return "bad version"
	case UnknownMethod:
		return "unknown method"
	case IO:
		return "io"
	default:
		return fmt.Sprintf("errs.Kind(%d)", byte(k))
	}
}

// Error is the concrete error type returned across package
// boundaries. The wrapped cause, if any, is reachable through the
// Unwrap method (errors.Unwrap, errors.Is, errors.As); *Error has no
// Cause() method, so errors.Cause from github.com/pkg/errors stops at it.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, context string, args ...interface{}) *Error {
	return &Error{Kind: kind, Context: fmt.Sprintf(context, args...)}
}

// Wrap builds an *Error around an existing cause, unless cause is
// nil, in which case Wrap returns nil (so callers can write
// `return errs.Wrap(Truncated, "...", err)` unconditionally inside a
// deferred error-mapping helper).
func Wrap(kind Kind, context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Context: context, Cause: errors.WithStack(cause)}
}

// Is reports whether err is an *Error of the given kind, looking
// through wrapped causes.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		cause := errors.Unwrap(err)
		if cause == err {
			break
		}
		err = cause
	}
	return false
}
