package epsilon

import (
	"io"
	"reflect"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/epsilon/internal/common"
)

// chunkElems bounds the scratch copy used to clear padding in large
// zero-copy sequences.
const chunkElems = 4096

// A pointer is written as one tag byte, followed by the pointee unless the
// pointer is nil.
var (
	tagNone = [1]byte{0}
	tagSome = [1]byte{1}
)

type writer struct {
	w       io.Writer
	pos     int
	scratch []byte
	lenBuf  [8]byte

	schema *Schema
	path   []string
}

func (w *writer) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	n, err := w.w.Write(b)
	w.pos += n
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	return writeErr(err)
}

func (w *writer) writeLen(n int) error {
	common.PutLen(w.lenBuf[:], uint64(n))
	return w.write(w.lenBuf[:])
}

// pad writes zero bytes up to the next multiple of align, measured from
// the start of the stream.
func (w *writer) pad(align uintptr) error {
	n := common.PadAlignTo(w.pos, align)
	if n == 0 {
		return nil
	}
	if w.schema != nil {
		w.schema.Rows = append(w.schema.Rows, SchemaRow{
			Field: "PADDING", Type: "u8", Offset: w.pos, Size: n, Align: 1,
		})
	}
	return w.write(common.Zeros[:n])
}

// value writes v, whose type is d.typ. v must be addressable.
func (w *writer) value(d *descriptor, v reflect.Value) error {
	if w.schema == nil {
		return w.encode(d, v)
	}
	row := len(w.schema.Rows)
	w.schema.Rows = append(w.schema.Rows, SchemaRow{
		Field:  strings.Join(w.path, "."),
		Type:   d.typ.String(),
		Offset: w.pos,
		Align:  int(max(d.align, 1)),
	})
	err := w.encode(d, v)
	w.schema.Rows[row].Size = w.pos - w.schema.Rows[row].Offset
	return err
}

func (w *writer) encode(d *descriptor, v reflect.Value) error {
	switch d.kind {
	case KindScalar:
		return w.write(common.BytesOf(v.Addr().UnsafePointer(), d.size))
	case KindPhantom:
		return nil
	case KindString:
		s := v.String()
		if err := w.writeLen(len(s)); err != nil {
			return err
		}
		return w.write(unsafe.Slice(unsafe.StringData(s), len(s)))
	case KindSeq:
		n := v.Len()
		if err := w.writeLen(n); err != nil {
			return err
		}
		if d.elem.class == ClassZero {
			return w.zeroRun(d.elem, v.UnsafePointer(), n)
		}
		for i := 0; i < n; i++ {
			if err := w.child("[]", d.elem, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case KindIter:
		return w.iter(d, v)
	case KindPointer:
		if v.IsNil() {
			return w.write(tagNone[:])
		}
		if err := w.write(tagSome[:]); err != nil {
			return err
		}
		return w.encode(d.elem, v.Elem())
	case KindArray:
		if d.class == ClassZero {
			return w.zeroRun(d, v.Addr().UnsafePointer(), 1)
		}
		for i := 0; i < d.length; i++ {
			if err := w.child("[]", d.elem, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case KindStruct:
		if d.class == ClassZero {
			return w.zeroRun(d, v.Addr().UnsafePointer(), 1)
		}
		for _, f := range d.fields {
			if err := w.child(f.name, f.desc, v.Field(f.index)); err != nil {
				return err
			}
		}
		return nil
	}
	return unsupportedErr("cannot serialize %s", d.typ)
}

func (w *writer) child(name string, d *descriptor, v reflect.Value) error {
	if w.schema == nil {
		return w.encode(d, v)
	}
	w.path = append(w.path, name)
	err := w.value(d, v)
	w.path = w.path[:len(w.path)-1]
	return err
}

// zeroRun writes n contiguous zero-copy values starting at p as one aligned
// raw dump. Scalars in a sequence are aligned too, since the reader hands
// out the whole run as a slice.
func (w *writer) zeroRun(d *descriptor, p unsafe.Pointer, n int) error {
	if d.size == 0 {
		return nil
	}
	if err := w.pad(d.align); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if !d.padded {
		return w.write(common.BytesOf(p, d.size*uintptr(n)))
	}
	// Padding bytes in memory are unspecified; clear them so equal values
	// encode identically.
	for done := 0; done < n; {
		k := min(n-done, chunkElems)
		total := int(d.size) * k
		if cap(w.scratch) < total {
			w.scratch = make([]byte, total)
		}
		buf := w.scratch[:total]
		copy(buf, common.BytesOf(unsafe.Add(p, uintptr(done)*d.size), uintptr(total)))
		for i := 0; i < k; i++ {
			clearPadding(d, buf[uintptr(i)*d.size:])
		}
		if err := w.write(buf); err != nil {
			return err
		}
		done += k
	}
	return nil
}

// clearPadding zeroes every padding byte of the zero-copy value at b.
func clearPadding(d *descriptor, b []byte) {
	if !d.padded {
		return
	}
	switch d.kind {
	case KindStruct:
		for _, g := range d.gaps {
			clear(b[g.off : g.off+g.n])
		}
		for _, f := range d.fields {
			clearPadding(f.desc, b[f.offset:])
		}
	case KindArray:
		for i := 0; i < d.length; i++ {
			clearPadding(d.elem, b[uintptr(i)*d.elem.size:])
		}
	}
}

func (w *writer) iter(d *descriptor, v reflect.Value) error {
	src := v.Interface().(seqSource)
	n := src.seqLen()
	if err := w.writeLen(n); err != nil {
		return err
	}
	zero := d.elem.class == ClassZero
	if zero && d.elem.size > 0 {
		if err := w.pad(d.elem.align); err != nil {
			return err
		}
	}
	err := src.seqEach(func(item reflect.Value) error {
		if zero {
			return w.rawOne(d.elem, item)
		}
		return w.child("[]", d.elem, item)
	})
	var lenErr *IteratorLengthError
	if errors.As(err, &lenErr) {
		return errors.Mark(err, ErrIteratorLength)
	}
	return err
}

// rawOne writes a single zero-copy element of a run without re-aligning;
// the run was aligned once and elements are Size apart.
func (w *writer) rawOne(d *descriptor, v reflect.Value) error {
	b := common.BytesOf(v.Addr().UnsafePointer(), d.size)
	if !d.padded {
		return w.write(b)
	}
	if cap(w.scratch) < len(b) {
		w.scratch = make([]byte, len(b))
	}
	buf := w.scratch[:len(b)]
	copy(buf, b)
	clearPadding(d, buf)
	return w.write(buf)
}
