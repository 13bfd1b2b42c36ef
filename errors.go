package sombra

import (
	"errors"
	"fmt"

	"github.com/sombradb/sombra/internal/pager"
)

// Kind classifies an Error the way spec.md §7 categorizes failures, so
// callers can branch on errors.As without parsing messages.
type Kind int

const (
	// KindNotFound: a row that must exist does not (absent or tombstoned id).
	KindNotFound Kind = iota + 1
	// KindInvalid: caller input violates a contract (too many labels,
	// duplicate property id, NaN in an indexed float, oversized value).
	KindInvalid
	// KindCorruption: on-disk state violates an invariant. Fatal for the
	// affected transaction — the guard that produced it must be dropped.
	KindCorruption
	// KindIO: propagated from the pager (disk, WAL, fsync errors).
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindCorruption:
		return "corruption"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every exported Graph operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sombra: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("sombra: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func notFoundf(op, format string, args ...any) *Error {
	return newErr(op, KindNotFound, fmt.Errorf(format, args...))
}

func invalidf(op, format string, args ...any) *Error {
	return newErr(op, KindInvalid, fmt.Errorf(format, args...))
}

// wrapErr classifies an error coming out of the internal packages into a
// *Error, preserving KindCorruption/KindIO distinctions the pager already
// makes and defaulting everything else to KindIO since it almost always
// originates from a file-backed operation.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	var ce *pager.CorruptionError
	if errors.As(err, &ce) {
		return newErr(op, KindCorruption, err)
	}
	return newErr(op, KindIO, err)
}

// IsNotFound reports whether err (or a wrapped cause) is a KindNotFound Error.
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsInvalid reports whether err (or a wrapped cause) is a KindInvalid Error.
func IsInvalid(err error) bool { return hasKind(err, KindInvalid) }

// IsCorruption reports whether err (or a wrapped cause) is a KindCorruption Error.
func IsCorruption(err error) bool { return hasKind(err, KindCorruption) }

func hasKind(err error, k Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == k
	}
	return false
}

var (
	// ErrClosed is returned by any Graph operation called after Close.
	ErrClosed = newErr("graph", KindInvalid, errors.New("graph is closed"))
)
