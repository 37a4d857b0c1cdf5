// Package herr defines Hoard's error taxonomy: a small set of error Kinds
// that callers can branch on with errors.Is/errors.As, distinguishing fatal
// conditions (which close the owning component) from recoverable ones
// (which do not).
package herr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation purposes. See spec.md §7.
type Kind int

const (
	// IO covers read/write/force (fsync) failures on the backing file.
	IO Kind = iota
	// NoSpace covers a backing device reporting it is full.
	NoSpace
	// BackendLimit covers a hard cap (e.g. a file-size ceiling) being hit.
	BackendLimit
	// NotFound covers a file expected to exist at open time being absent.
	NotFound
	// Format covers malformed on-disk structure: bad magic, bad lengths,
	// overflow.
	Format
	// NotDecodable covers an unknown encoding tag or a codec failure on an
	// otherwise well-formed record. Recoverable: the component stays open.
	NotDecodable
	// AlgorithmMissing covers the host lacking a required hash primitive.
	AlgorithmMissing
	// MissingBlock covers a superblock or leaf referenced by digest that
	// cannot be found in the underlying store.
	MissingBlock
	// IllegalState covers programmer error: operating on a closed or
	// read-only component, or exceeding a fixed size limit. Never
	// recovered.
	IllegalState
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case NoSpace:
		return "no-space"
	case BackendLimit:
		return "backend-limit"
	case NotFound:
		return "not-found"
	case Format:
		return "format"
	case NotDecodable:
		return "not-decodable"
	case AlgorithmMissing:
		return "algorithm-missing"
	case MissingBlock:
		return "missing-block"
	case IllegalState:
		return "illegal-state"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error. Recoverable reports whether the owning
// component should remain usable after surfacing this error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hoard: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("hoard: %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether errors of this kind leave the owning
// component usable (NotDecodable is the only such kind today).
func (e *Error) Recoverable() bool {
	return e.Kind == NotDecodable
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an *Error wrapping an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Recoverable reports whether err is a *Error whose Kind leaves the owning
// component usable (currently just NotDecodable).
func Recoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable()
	}
	return false
}
