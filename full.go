package epsilon

import (
	"math"
	"reflect"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/epsilon/internal/common"
)

// fullReader reconstructs owned values, copying every byte out of src.
type fullReader struct {
	src         source
	maxPrealloc int
}

// value decodes into v, which must be settable and of type d.typ.
func (r *fullReader) value(d *descriptor, v reflect.Value) error {
	switch d.kind {
	case KindScalar:
		return r.src.read(common.BytesOf(v.Addr().UnsafePointer(), d.size))
	case KindPhantom:
		return nil
	case KindString:
		n, err := readLen(r.src)
		if err != nil {
			return err
		}
		b, err := r.bytes(n)
		if err != nil {
			return err
		}
		if n > 0 {
			v.SetString(unsafe.String(unsafe.SliceData(b), n))
		} else {
			v.SetString("")
		}
		return nil
	case KindSeq:
		n, err := readLen(r.src)
		if err != nil {
			return err
		}
		if d.elem.class == ClassZero {
			return r.zeroSeq(d, v, n)
		}
		return r.deepSeq(d, v, n)
	case KindPointer:
		some, err := readTag(r.src, d)
		if err != nil || !some {
			v.SetZero()
			return err
		}
		p := reflect.New(d.elem.typ)
		if err := r.value(d.elem, p.Elem()); err != nil {
			return err
		}
		if p.Type() != v.Type() {
			p = p.Convert(v.Type())
		}
		v.Set(p)
		return nil
	case KindArray:
		if d.class == ClassZero {
			return r.raw(d, v.Addr().UnsafePointer())
		}
		for i := 0; i < d.length; i++ {
			if err := r.value(d.elem, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case KindStruct:
		if d.class == ClassZero {
			return r.raw(d, v.Addr().UnsafePointer())
		}
		for _, f := range d.fields {
			if err := r.value(f.desc, v.Field(f.index)); err != nil {
				return err
			}
		}
		return nil
	case KindIter:
		return unsupportedErr("%s is write-only; read it back as a slice", d.typ)
	}
	return unsupportedErr("cannot deserialize %s", d.typ)
}

// readTag reads the presence byte written before a pointee.
func readTag(s source, d *descriptor) (bool, error) {
	var b [1]byte
	if err := s.read(b[:]); err != nil {
		return false, err
	}
	switch b[0] {
	case tagNone[0]:
		return false, nil
	case tagSome[0]:
		return true, nil
	}
	return false, errors.Mark(errors.Newf("%s: presence tag %#x at offset %d", d.typ, b[0], s.pos()-1), ErrInvalidValue)
}

// raw copies one aligned zero-copy value into p.
func (r *fullReader) raw(d *descriptor, p unsafe.Pointer) error {
	if d.size == 0 {
		return nil
	}
	if err := alignSource(r.src, d.align); err != nil {
		return err
	}
	return r.src.read(common.BytesOf(p, d.size))
}

// bytes reads n bytes into fresh memory. Large lengths are read in chunks
// so a corrupt length fails on the missing data instead of allocating.
func (r *fullReader) bytes(n int) ([]byte, error) {
	if rem := r.src.remaining(); rem >= 0 && n > rem {
		return nil, truncatedErr(n, rem)
	}
	if n <= r.maxPrealloc {
		b := make([]byte, n)
		return b, r.src.read(b)
	}
	b := make([]byte, 0, r.maxPrealloc)
	for len(b) < n {
		k := min(n-len(b), r.maxPrealloc)
		b = append(b, make([]byte, k)...)
		if err := r.src.read(b[len(b)-k:]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (r *fullReader) zeroSeq(d *descriptor, v reflect.Value, n int) error {
	elem := d.elem
	if elem.size == 0 {
		v.Set(reflect.MakeSlice(v.Type(), n, n))
		return nil
	}
	if err := alignSource(r.src, elem.align); err != nil {
		return err
	}
	total := satMul(n, int(elem.size))
	if rem := r.src.remaining(); total == math.MaxInt || rem >= 0 && total > rem {
		return truncatedErr(total, rem)
	}
	if total <= r.maxPrealloc {
		s := reflect.MakeSlice(v.Type(), n, n)
		if err := r.src.read(common.BytesOf(s.UnsafePointer(), uintptr(total))); err != nil {
			return err
		}
		v.Set(s)
		return nil
	}
	// Grow as data arrives.
	step := max(r.maxPrealloc/int(elem.size), 1)
	s := reflect.New(v.Type()).Elem()
	for done := 0; done < n; {
		k := min(n-done, step)
		s.Grow(k)
		s.SetLen(done + k)
		p := unsafe.Add(s.UnsafePointer(), uintptr(done)*elem.size)
		if err := r.src.read(common.BytesOf(p, uintptr(k)*elem.size)); err != nil {
			return err
		}
		done += k
	}
	v.Set(s)
	return nil
}

// checkSeqLen rejects a deep sequence length the input cannot back. Elements
// that encode to nothing are bounded by their in-memory size instead.
func (r *fullReader) checkSeqLen(elem *descriptor, n int) error {
	rem := r.src.remaining()
	if elem.minWire > 0 {
		if rem >= 0 && n > rem/elem.minWire {
			return truncatedErr(satMul(n, elem.minWire), rem)
		}
		return nil
	}
	size := max(int(elem.typ.Size()), 1)
	if n > r.maxPrealloc/size {
		return truncatedErr(satMul(n, size), r.maxPrealloc)
	}
	return nil
}

func (r *fullReader) deepSeq(d *descriptor, v reflect.Value, n int) error {
	if err := r.checkSeqLen(d.elem, n); err != nil {
		return err
	}
	elemSize := max(int(d.elem.typ.Size()), 1)
	s := reflect.New(v.Type()).Elem()
	s.Set(reflect.MakeSlice(v.Type(), 0, min(n, max(r.maxPrealloc/elemSize, 1))))
	for i := 0; i < n; i++ {
		if s.Len() == s.Cap() {
			s.Grow(1)
		}
		s.SetLen(i + 1)
		if err := r.value(d.elem, s.Index(i)); err != nil {
			return err
		}
	}
	v.Set(s)
	return nil
}
