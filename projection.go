package epsilon

import (
	"reflect"
	"strconv"
	"strings"
)

// projection is a verified pairing of a descriptor with a result type. The
// ε-copy reader walks it instead of trusting the caller's type.
type projection struct {
	typ    reflect.Type
	elem   *projection
	fields []fieldProjection
}

type fieldProjection struct {
	index int
	// proj is nil for fields copied verbatim into the result.
	proj *projection
}

// guard checks that a requested result type is exactly the projection of a
// descriptor. It rejects every widening: a pointer where a scalar is
// copied, a copy where a pointer is handed out, a foreign struct with the
// same shape, a non-param field whose type changed.
type guard struct {
	seen map[projKey]*projection
}

func (g *guard) check(d *descriptor, r reflect.Type) (*projection, error) {
	key := projKey{d: d.typ, r: r}
	if p, ok := g.seen[key]; ok {
		return p, nil
	}
	p := &projection{typ: r}
	g.seen[key] = p

	if d.writeOnly {
		return nil, unsupportedErr("%s is write-only; read it back as a slice", d.typ)
	}
	switch d.kind {
	case KindScalar:
		if r != d.typ {
			return nil, resultTypeErr("%s is copied, not referenced: want %s, got %s", d.typ, d.typ, r)
		}
	case KindPhantom:
		if !r.Implements(phantomIface) {
			return nil, resultTypeErr("want a Phantom for %s, got %s", d.typ, r)
		}
	case KindString:
		if r.Kind() != reflect.String {
			return nil, resultTypeErr("want a string kind for %s, got %s", d.typ, r)
		}
	case KindSeq:
		if r.Kind() != reflect.Slice {
			return nil, resultTypeErr("want a slice for %s, got %s", d.typ, r)
		}
		if d.elem.class == ClassZero {
			if r.Elem() != d.elem.typ {
				return nil, resultTypeErr("want a slice of %s aliasing the buffer, got %s", d.elem.typ, r)
			}
			break
		}
		elem, err := g.check(d.elem, r.Elem())
		if err != nil {
			return nil, err
		}
		p.elem = elem
	case KindArray:
		if d.class == ClassZero {
			if r != reflect.PointerTo(d.typ) {
				return nil, resultTypeErr("zero-copy %s is referenced: want *%s, got %s", d.typ, d.typ, r)
			}
			break
		}
		if r.Kind() != reflect.Array || r.Len() != d.length {
			return nil, resultTypeErr("want [%d] array for %s, got %s", d.length, d.typ, r)
		}
		elem, err := g.check(d.elem, r.Elem())
		if err != nil {
			return nil, err
		}
		p.elem = elem
	case KindPointer:
		if d.elem.class == ClassZero {
			if r != d.typ && r != reflect.PointerTo(d.elem.typ) {
				return nil, resultTypeErr("want %s for %s, got %s", reflect.PointerTo(d.elem.typ), d.typ, r)
			}
			break
		}
		if r.Kind() != reflect.Pointer {
			return nil, resultTypeErr("want a pointer for %s, got %s", d.typ, r)
		}
		elem, err := g.check(d.elem, r.Elem())
		if err != nil {
			return nil, err
		}
		p.elem = elem
	case KindStruct:
		if d.class == ClassZero {
			if r != reflect.PointerTo(d.typ) {
				return nil, resultTypeErr("zero-copy %s is referenced: want *%s, got %s", d.typ, d.typ, r)
			}
			break
		}
		if err := g.record(d, r, p); err != nil {
			return nil, err
		}
	default:
		return nil, unsupportedErr("cannot deserialize %s", d.typ)
	}
	return p, nil
}

func (g *guard) record(d *descriptor, r reflect.Type, p *projection) error {
	if r.Kind() != reflect.Struct || bareName(r) != d.name || r.PkgPath() != d.typ.PkgPath() {
		return resultTypeErr("want an instance of %s.%s, got %s", d.typ.PkgPath(), d.name, r)
	}
	if r.NumField() != d.typ.NumField() {
		return resultTypeErr("%s and %s declare different fields", d.typ, r)
	}
	p.fields = make([]fieldProjection, len(d.fields))
	for i, f := range d.fields {
		rf := r.Field(f.index)
		if rf.Name != f.name {
			return resultTypeErr("%s: field %d is %s, want %s", r, f.index, rf.Name, f.name)
		}
		isParam := parseTag(rf.Tag.Get(tagKey)) == tagParam
		switch {
		case f.phantom:
			if !rf.Type.Implements(phantomIface) {
				return resultTypeErr("%s.%s: want a Phantom, got %s", r, rf.Name, rf.Type)
			}
		case f.param:
			if !isParam {
				return resultTypeErr("%s.%s is not tagged %s:%q", r, rf.Name, tagKey, tagParam)
			}
			fp, err := g.check(f.desc, rf.Type)
			if err != nil {
				return err
			}
			p.fields[i].proj = fp
		default:
			if isParam {
				return resultTypeErr("%s.%s is tagged %s:%q but %s.%s is not", r, rf.Name, tagKey, tagParam, d.typ, f.name)
			}
			if rf.Type != f.desc.typ {
				return resultTypeErr("%s.%s is copied verbatim: want %s, got %s", r, rf.Name, f.desc.typ, rf.Type)
			}
		}
		p.fields[i].index = rf.Index[0]
	}
	return nil
}

// onWire spells the normalized type a descriptor writes.
func onWire(d *descriptor, seen map[*descriptor]bool) string {
	switch d.kind {
	case KindScalar:
		return d.name
	case KindString:
		return "str"
	case KindSeq, KindIter:
		return "seq<" + onWire(d.elem, seen) + ">"
	case KindArray:
		return "[" + strconv.Itoa(d.length) + "]" + onWire(d.elem, seen)
	case KindPointer:
		return "opt<" + onWire(d.elem, seen) + ">"
	case KindPhantom:
		return "phantom<" + onWire(d.elem, seen) + ">"
	case KindStruct:
		if seen[d] || d.class == ClassZero || len(d.fields) == 0 {
			return d.name
		}
		seen[d] = true
		defer delete(seen, d)
		parts := make([]string, len(d.fields))
		for i, f := range d.fields {
			parts[i] = f.name + ": " + onWire(f.desc, seen)
		}
		return d.name + "{" + strings.Join(parts, ", ") + "}"
	}
	return "?"
}

// resultOf spells the result type the ε-copy reader produces for d.
func resultOf(d *descriptor, seen map[*descriptor]bool) string {
	switch d.kind {
	case KindScalar:
		return d.typ.String()
	case KindString:
		return "string"
	case KindSeq:
		if d.elem.class == ClassZero {
			return "[]" + d.elem.typ.String()
		}
		return "[]" + resultOf(d.elem, seen)
	case KindArray:
		if d.class == ClassZero {
			return "*" + d.typ.String()
		}
		return "[" + strconv.Itoa(d.length) + "]" + resultOf(d.elem, seen)
	case KindPointer:
		if d.elem.class == ClassZero {
			return "*" + d.elem.typ.String()
		}
		return "*" + resultOf(d.elem, seen)
	case KindPhantom:
		return d.typ.String()
	case KindStruct:
		if d.class == ClassZero {
			return "*" + d.typ.String()
		}
		if seen[d] {
			return d.name
		}
		seen[d] = true
		defer delete(seen, d)
		var parts []string
		for _, f := range d.fields {
			if f.param {
				parts = append(parts, f.name+": "+resultOf(f.desc, seen))
			}
		}
		if len(parts) == 0 {
			return d.typ.String()
		}
		return d.name + "{" + strings.Join(parts, ", ") + "}"
	case KindIter:
		return "(write-only)"
	}
	return "?"
}
