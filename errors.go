package epsilon

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// Read failures fall in one of four categories. Each error returned by a
// deserializer is marked with exactly one of these sentinels.
var (
	ErrSchemaMismatch = errors.New("epsilon: schema mismatch")
	ErrTruncatedInput = errors.New("epsilon: truncated input")
	ErrAlignment      = errors.New("epsilon: misaligned buffer")
	ErrIO             = errors.New("epsilon: io failure")
)

// Program errors: the types or values handed to the engine are wrong.
var (
	ErrUnsupportedType = errors.New("epsilon: unsupported type")
	ErrResultType      = errors.New("epsilon: result type is not the projection of the deserialized type")
	ErrInvalidValue    = errors.New("epsilon: invalid value")
	ErrIteratorLength  = errors.New("epsilon: iterator length mismatch")
	ErrCapsuleClosed   = errors.New("epsilon: capsule closed")
)

// Category names the class of a read failure.
type Category int

const (
	CategoryOther Category = iota
	CategorySchemaMismatch
	CategoryTruncatedInput
	CategoryAlignment
	CategoryIO
)

var categoryName = map[Category]string{
	CategoryOther:          "other",
	CategorySchemaMismatch: "schema_mismatch",
	CategoryTruncatedInput: "truncated_input",
	CategoryAlignment:      "alignment",
	CategoryIO:             "io",
}

func (c Category) String() string {
	return categoryName[c]
}

// CategoryOf reports which read category err belongs to.
func CategoryOf(err error) Category {
	switch {
	case err == nil:
		return CategoryOther
	case errors.Is(err, ErrSchemaMismatch):
		return CategorySchemaMismatch
	case errors.Is(err, ErrTruncatedInput):
		return CategoryTruncatedInput
	case errors.Is(err, ErrAlignment):
		return CategoryAlignment
	case errors.Is(err, ErrIO):
		return CategoryIO
	default:
		return CategoryOther
	}
}

// MismatchError describes a fingerprint that differs from the expected one.
type MismatchError struct {
	Fingerprint string // "shape" or "alignment"
	Type        string
	Expected    uint64
	Found       uint64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s fingerprint mismatch for %s: expected %#016x, found %#016x",
		e.Fingerprint, e.Type, e.Expected, e.Found)
}

// IteratorLengthError is returned when a SeqIter yields a different number of
// items than it declared.
type IteratorLengthError struct {
	Expected int
	Actual   int
}

func (e *IteratorLengthError) Error() string {
	return fmt.Sprintf("iterator declared %d items but produced %d", e.Expected, e.Actual)
}

func mismatchErr(which, typ string, expected, found uint64) error {
	return errors.Mark(&MismatchError{Fingerprint: which, Type: typ, Expected: expected, Found: found}, ErrSchemaMismatch)
}

func truncatedErr(need, have int) error {
	return errors.Mark(errors.Newf("need %d bytes, %d available", need, have), ErrTruncatedInput)
}

func alignmentErr(typ string, addr, align uintptr) error {
	return errors.Mark(errors.Newf("%s needs %d-byte alignment, buffer at %#x", typ, align, addr), ErrAlignment)
}

func unsupportedErr(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupportedType)
}

func resultTypeErr(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrResultType)
}

// readErr classifies an error from an io.Reader. Short reads become
// ErrTruncatedInput, anything else is marked ErrIO and keeps its cause.
func readErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Mark(errors.Wrap(err, "read"), ErrTruncatedInput)
	}
	return errors.Mark(errors.Wrap(err, "read"), ErrIO)
}

func writeErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, "write"), ErrIO)
}
