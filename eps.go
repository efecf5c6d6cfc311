package epsilon

import (
	"reflect"
	"unsafe"
)

// epsReader reconstructs a result value that borrows from the span.
// Zero-copy nodes reached through param edges become pointers or slices
// into the span; everything else is copied by the embedded fullReader.
type epsReader struct {
	src  *spanSource
	full fullReader
}

// value decodes d into v, whose type is p.typ.
func (r *epsReader) value(d *descriptor, p *projection, v reflect.Value) error {
	switch d.kind {
	case KindScalar, KindPhantom:
		return r.full.value(d, v)
	case KindString:
		n, err := readLen(r.src)
		if err != nil {
			return err
		}
		b, err := r.src.take(n)
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
		return r.deepSeq(d, p, v, n)
	case KindPointer:
		some, err := readTag(r.src, d)
		if err != nil || !some {
			v.SetZero()
			return err
		}
		if d.elem.aliasable() {
			return r.ref(d.elem, v)
		}
		ptr := reflect.New(v.Type().Elem())
		elemProj := p.elem
		if elemProj == nil {
			elemProj = &projection{typ: d.elem.typ}
		}
		if err := r.value(d.elem, elemProj, ptr.Elem()); err != nil {
			return err
		}
		if ptr.Type() != v.Type() {
			ptr = ptr.Convert(v.Type())
		}
		v.Set(ptr)
		return nil
	case KindArray:
		if d.class == ClassZero {
			return r.ref(d, v)
		}
		for i := 0; i < d.length; i++ {
			if err := r.value(d.elem, p.elem, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case KindStruct:
		if d.class == ClassZero {
			return r.ref(d, v)
		}
		for i, f := range d.fields {
			fp := p.fields[i]
			fv := v.Field(fp.index)
			switch {
			case f.phantom:
			case fp.proj != nil:
				if err := r.value(f.desc, fp.proj, fv); err != nil {
					return err
				}
			default:
				if err := r.full.value(f.desc, fv); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return unsupportedErr("cannot deserialize %s", d.typ)
}

// ref stores into v a pointer to the next value of d in the span.
func (r *epsReader) ref(d *descriptor, v reflect.Value) error {
	ptr, err := r.src.view(d, 1)
	if err != nil {
		return err
	}
	pv := reflect.NewAt(d.typ, ptr)
	if pv.Type() != v.Type() {
		pv = pv.Convert(v.Type())
	}
	v.Set(pv)
	return nil
}

func (r *epsReader) zeroSeq(d *descriptor, v reflect.Value, n int) error {
	ptr, err := r.src.view(d.elem, n)
	if err != nil {
		return err
	}
	if n == 0 {
		v.Set(reflect.MakeSlice(v.Type(), 0, 0))
		return nil
	}
	s := reflect.SliceAt(d.elem.typ, ptr, n)
	if s.Type() != v.Type() {
		s = s.Convert(v.Type())
	}
	v.Set(s)
	return nil
}

func (r *epsReader) deepSeq(d *descriptor, p *projection, v reflect.Value, n int) error {
	if err := r.full.checkSeqLen(d.elem, n); err != nil {
		return err
	}
	s := reflect.MakeSlice(v.Type(), n, n)
	for i := 0; i < n; i++ {
		if err := r.value(d.elem, p.elem, s.Index(i)); err != nil {
			return err
		}
	}
	v.Set(s)
	return nil
}
