// Package epsilon is a binary serialization engine for large, mostly
// immutable data. Values are written once with Serialize and read back
// either fully (DeserializeFull, which copies everything) or with ε-copy
// reconstruction (DeserializeEps), which returns pointers and slices into
// the source buffer wherever the data is zero-copy.
//
// A stream is a 16-byte header (shape and alignment fingerprints of the
// written type) followed by the payload. Readers recompute both
// fingerprints for the type they expect, so a writer and reader that
// disagree on field names, field order, copy classification or memory
// layout fail with ErrSchemaMismatch before any byte is reinterpreted.
//
// Zero-copy structs embed ZeroCopy. Fields of a deep-copy struct tagged
// `eps:"param"` are read with ε-copy; all other fields are copied:
//
//	type Outer[A any] struct {
//		Data A `eps:"param"`
//	}
//
//	v, err := epsilon.DeserializeEps[Outer[[][]uint32], Outer[[][]uint32]](nil, buf)
//	// v.Data[i] aliases buf
package epsilon

import (
	"bytes"
	"io"
	"reflect"
)

// Serialize writes the header and payload of v to w and returns the number
// of bytes written.
//
// Zero-copy values are dumped from memory as they are, so v must be a valid
// inhabitant of T: a zero-copy struct filled through unsafe code with
// invalid bit patterns (a bool that is neither 0 nor 1, say) is written
// unchecked and will read back the same way.
func Serialize[T any](e *Engine, w io.Writer, v T) (int, error) {
	wr := &writer{w: w}
	err := serialize(orDefault(e), wr, &v)
	return wr.pos, err
}

// SerializeWithSchema is Serialize that also records where each value
// landed in the stream.
func SerializeWithSchema[T any](e *Engine, w io.Writer, v T) (int, *Schema, error) {
	wr := &writer{w: w, schema: &Schema{}}
	err := serialize(orDefault(e), wr, &v)
	return wr.pos, wr.schema, err
}

func serialize[T any](e *Engine, wr *writer, v *T) error {
	d, err := e.describe(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	shape, align := d.fingerprints()
	var hdr [HeaderSize]byte
	encodeHeader(hdr[:], Header{Shape: shape, Align: align})
	if err := wr.write(hdr[:]); err != nil {
		return err
	}
	if wr.schema != nil {
		wr.path = append(wr.path[:0], "ROOT")
	}
	return wr.value(d, reflect.ValueOf(v).Elem())
}

// Marshal is Serialize into a fresh byte slice using the default engine.
func Marshal[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Serialize(nil, &buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeFull reads a value of type D from r, copying every byte into
// memory owned by the result.
func DeserializeFull[D any](e *Engine, r io.Reader) (D, error) {
	e = orDefault(e)
	var out D
	d, err := e.describe(reflect.TypeFor[D]())
	if err != nil {
		return out, err
	}
	if d.writeOnly {
		return out, unsupportedErr("%s is write-only; read it back as a slice", d.typ)
	}
	src := &streamSource{r: r}
	var hdr [HeaderSize]byte
	if err := src.read(hdr[:]); err != nil {
		return out, err
	}
	h, _ := ParseHeader(hdr[:])
	if err := e.verify(d, h); err != nil {
		return out, err
	}
	fr := fullReader{src: src, maxPrealloc: e.opts.MaxPrealloc}
	if err := fr.value(d, reflect.ValueOf(&out).Elem()); err != nil {
		var zero D
		return zero, err
	}
	return out, nil
}

// UnmarshalFull is DeserializeFull from a byte slice using the default
// engine.
func UnmarshalFull[D any](data []byte) (D, error) {
	return DeserializeFull[D](nil, bytes.NewReader(data))
}

// DeserializeEps reads a value serialized as D from data and returns it as
// R, which must be the result type of D: zero-copy structs and arrays
// become pointers into data, slices of zero-copy elements alias data,
// strings alias data, and scalars are copied. Any other R fails with
// ErrResultType before data is touched.
//
// The result borrows data. Keep data alive and unmodified for as long as
// the result is in use, or use a Capsule.
//
// Zero-copy nodes must sit at addresses aligned for their type. Buffers
// from zc.NewBuffer, memory maps and ReadAligned always are; a slice at an
// arbitrary offset may fail with ErrAlignment, in which case
// DeserializeFull still works.
func DeserializeEps[D, R any](e *Engine, data []byte) (R, error) {
	e = orDefault(e)
	var out R
	d, err := e.describe(reflect.TypeFor[D]())
	if err != nil {
		return out, err
	}
	p, err := e.project(d, reflect.TypeFor[R]())
	if err != nil {
		return out, err
	}
	h, err := ParseHeader(data)
	if err != nil {
		return out, err
	}
	if err := e.verify(d, h); err != nil {
		return out, err
	}
	src := &spanSource{data: data, off: HeaderSize}
	er := epsReader{src: src, full: fullReader{src: src, maxPrealloc: e.opts.MaxPrealloc}}
	if err := er.value(d, p, reflect.ValueOf(&out).Elem()); err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

// Check classifies T and reports why it cannot be serialized, if it
// cannot.
func Check[T any](e *Engine) error {
	_, err := orDefault(e).describe(reflect.TypeFor[T]())
	return err
}

// MustRegister classifies T with the default engine and panics if T is not
// serializable. Call it from a package-level var or init so bad types are
// rejected at startup:
//
//	var _ = epsilon.MustRegister[Index]()
func MustRegister[T any]() struct{} {
	if err := Check[T](nil); err != nil {
		panic(err)
	}
	return struct{}{}
}

// Fingerprints returns the shape and alignment fingerprints written in the
// header of every stream of T.
func Fingerprints[T any](e *Engine) (shape, align uint64, err error) {
	d, err := orDefault(e).describe(reflect.TypeFor[T]())
	if err != nil {
		return 0, 0, err
	}
	shape, align = d.fingerprints()
	return shape, align, nil
}

// TypeInfo summarizes how a type is serialized.
type TypeInfo struct {
	Name   string
	Class  Class
	Kind   Kind
	OnWire string
	Result string
	Shape  uint64
	Align  uint64
}

// Describe reports the classification, on-wire form, result type and
// fingerprints of T.
func Describe[T any](e *Engine) (TypeInfo, error) {
	d, err := orDefault(e).describe(reflect.TypeFor[T]())
	if err != nil {
		return TypeInfo{}, err
	}
	shape, align := d.fingerprints()
	return TypeInfo{
		Name:   d.typ.String(),
		Class:  d.class,
		Kind:   d.kind,
		OnWire: onWire(d, map[*descriptor]bool{}),
		Result: resultOf(d, map[*descriptor]bool{}),
		Shape:  shape,
		Align:  align,
	}, nil
}
