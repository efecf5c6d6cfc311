package epsilon

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/rawbytedev/epsilon/internal/common"
)

// Class is the copy classification of a type.
type Class uint8

const (
	ClassDeep Class = iota
	ClassZero
)

func (c Class) String() string {
	if c == ClassZero {
		return "zero"
	}
	return "deep"
}

// Kind is the structural shape of a type once names are stripped.
type Kind uint8

const (
	KindScalar Kind = iota + 1
	KindString
	KindArray
	KindSeq
	KindStruct
	KindPointer
	KindIter
	KindPhantom
)

var kindName = map[Kind]string{
	KindScalar:  "scalar",
	KindString:  "string",
	KindArray:   "array",
	KindSeq:     "seq",
	KindStruct:  "struct",
	KindPointer: "pointer",
	KindIter:    "iter",
	KindPhantom: "phantom",
}

func (k Kind) String() string { return kindName[k] }

// descriptor is the structural metadata of one Go type. Descriptors form a
// graph (recursive types point back at themselves) and are immutable once
// published in an Engine.
type descriptor struct {
	typ    reflect.Type
	name   string
	kind   Kind
	class  Class
	size   uintptr // zero-copy only
	align  uintptr // zero-copy only
	length int     // arrays
	elem   *descriptor
	fields []field

	gaps      []span // padding inside a zero-copy struct
	padded    bool   // some padding is reachable from this zero-copy type
	minWire   int    // lower bound of encoded bytes per value
	writeOnly bool   // reaches a SeqIter

	fpOnce  sync.Once
	shapeFP uint64
	alignFP uint64
}

type field struct {
	name    string
	index   int
	offset  uintptr
	desc    *descriptor
	param   bool
	phantom bool
}

type span struct{ off, n uintptr }

// scalar reports whether d is a primitive leaf, which is always copied.
func (d *descriptor) scalar() bool { return d.kind == KindScalar }

// aliasable reports whether the ε-copy reader hands out a pointer to d.
func (d *descriptor) aliasable() bool {
	return d.class == ClassZero && d.kind != KindScalar && d.kind != KindPhantom
}

// builder classifies a type graph. It runs under the engine's write lock and
// publishes nothing unless the whole graph is valid.
type builder struct {
	e       *Engine
	pending map[reflect.Type]*descriptor
	order   []*descriptor
}

func (b *builder) lookup(t reflect.Type) *descriptor {
	if d, ok := b.e.descs[t]; ok {
		return d
	}
	return b.pending[t]
}

func (b *builder) add(d *descriptor) *descriptor {
	b.pending[d.typ] = d
	b.order = append(b.order, d)
	return d
}

func (b *builder) build(t reflect.Type) (*descriptor, error) {
	if d := b.lookup(t); d != nil {
		return d, nil
	}
	k := t.Kind()
	switch {
	case common.IsScalarKind(k):
		return b.add(&descriptor{
			typ: t, name: common.ScalarToken(k), kind: KindScalar, class: ClassZero,
			size: t.Size(), align: uintptr(t.Align()),
		}), nil
	case k == reflect.String:
		return b.add(&descriptor{typ: t, name: "str", kind: KindString, class: ClassDeep}), nil
	case k == reflect.Array:
		return b.array(t)
	case k == reflect.Slice:
		return b.slice(t)
	case k == reflect.Pointer:
		return b.pointer(t)
	case k == reflect.Struct:
		switch {
		case t.Implements(phantomIface):
			return b.phantom(t)
		case t.Implements(seqSourceType):
			return b.iter(t)
		}
		return b.record(t)
	case k == reflect.Uintptr || k == reflect.UnsafePointer:
		return nil, unsupportedErr("%s is a raw address", t)
	default:
		return nil, unsupportedErr("%s: kind %s has no fixed layout", t, k)
	}
}

func (b *builder) array(t reflect.Type) (*descriptor, error) {
	d := b.add(&descriptor{typ: t, name: "arr", kind: KindArray, length: t.Len()})
	elem, err := b.build(t.Elem())
	if err != nil {
		return nil, err
	}
	d.elem = elem
	d.class = elem.class
	if d.class == ClassZero {
		d.size = t.Size()
		d.align = uintptr(t.Align())
		d.padded = elem.padded
	}
	return d, nil
}

func (b *builder) slice(t reflect.Type) (*descriptor, error) {
	d := b.add(&descriptor{typ: t, name: "seq", kind: KindSeq, class: ClassDeep})
	elem, err := b.build(t.Elem())
	if err != nil {
		return nil, err
	}
	d.elem = elem
	return d, nil
}

func (b *builder) pointer(t reflect.Type) (*descriptor, error) {
	d := b.add(&descriptor{typ: t, name: "ptr", kind: KindPointer, class: ClassDeep})
	elem, err := b.build(t.Elem())
	if err != nil {
		return nil, err
	}
	d.elem = elem
	return d, nil
}

func (b *builder) phantom(t reflect.Type) (*descriptor, error) {
	d := b.add(&descriptor{typ: t, name: "phantom", kind: KindPhantom, class: ClassZero, align: 1})
	arg := reflect.Zero(t).Interface().(phantomer).phantomOf()
	elem, err := b.build(arg)
	if err != nil {
		return nil, err
	}
	d.elem = elem
	return d, nil
}

func (b *builder) iter(t reflect.Type) (*descriptor, error) {
	d := b.add(&descriptor{typ: t, name: "seq", kind: KindIter, class: ClassDeep})
	arg := reflect.Zero(t).Interface().(seqSource).seqElem()
	elem, err := b.build(arg)
	if err != nil {
		return nil, err
	}
	d.elem = elem
	return d, nil
}

func (b *builder) record(t reflect.Type) (*descriptor, error) {
	var zero, deep bool
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.Anonymous {
			continue
		}
		switch sf.Type {
		case zeroCopyType:
			zero = true
		case deepCopyType:
			deep = true
		}
	}
	if zero && deep {
		return nil, unsupportedErr("%s embeds both ZeroCopy and DeepCopy", t)
	}
	d := b.add(&descriptor{typ: t, name: bareName(t), kind: KindStruct})
	if zero {
		d.class = ClassZero
		if err := b.zeroRecord(d); err != nil {
			return nil, err
		}
		return d, nil
	}
	d.class = ClassDeep
	if err := b.deepRecord(d); err != nil {
		return nil, err
	}
	if !deep && !b.e.opts.QuietMismatch && couldBeZeroCopy(t) {
		b.e.logger().Warn("type could be zero-copy but is not declared as such",
			zap.Stringer("type", t),
			zap.String("hint", "embed epsilon.ZeroCopy, or epsilon.DeepCopy to silence this warning"))
	}
	return d, nil
}

func (b *builder) zeroRecord(d *descriptor) error {
	t := d.typ
	d.size = t.Size()
	d.align = uintptr(t.Align())
	var end uintptr
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous && sf.Type == zeroCopyType {
			continue
		}
		switch parseTag(sf.Tag.Get(tagKey)) {
		case tagParam:
			return unsupportedErr("%s.%s: zero-copy structs cannot have param fields", t, sf.Name)
		case tagSkip:
			return unsupportedErr("%s.%s: fields of a zero-copy struct cannot be skipped", t, sf.Name)
		}
		fd, err := b.build(sf.Type)
		if err != nil {
			return errors.Wrapf(err, "%s.%s", t, sf.Name)
		}
		if fd.class != ClassZero {
			return unsupportedErr("%s is zero-copy but field %s (%s) is not", t, sf.Name, sf.Type)
		}
		if sf.Offset > end {
			d.gaps = append(d.gaps, span{off: end, n: sf.Offset - end})
		}
		end = sf.Offset + fd.size
		d.padded = d.padded || fd.padded
		d.fields = append(d.fields, field{name: sf.Name, index: i, offset: sf.Offset, desc: fd})
	}
	if d.size > end {
		d.gaps = append(d.gaps, span{off: end, n: d.size - end})
	}
	d.padded = d.padded || len(d.gaps) > 0
	return nil
}

func (b *builder) deepRecord(d *descriptor) error {
	t := d.typ
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous && (sf.Type == zeroCopyType || sf.Type == deepCopyType) {
			continue
		}
		if !sf.IsExported() {
			continue
		}
		tag := parseTag(sf.Tag.Get(tagKey))
		if tag == tagSkip {
			continue
		}
		fd, err := b.build(sf.Type)
		if err != nil {
			return errors.Wrapf(err, "%s.%s", t, sf.Name)
		}
		d.fields = append(d.fields, field{
			name:    sf.Name,
			index:   i,
			offset:  sf.Offset,
			desc:    fd,
			param:   tag == tagParam && fd.kind != KindPhantom,
			phantom: fd.kind == KindPhantom,
		})
	}
	return checkParams(d)
}

// checkParams rejects a param field whose type also appears, unshielded,
// inside the type of another field. The result type of such a struct would
// need the parameter substituted in one place and left alone in the other.
func checkParams(d *descriptor) error {
	for _, p := range d.fields {
		if !p.param || !substitutes(p.desc, map[*descriptor]bool{}) {
			continue
		}
		for _, f := range d.fields {
			if f.param || f.phantom {
				continue
			}
			if f.desc.typ == p.desc.typ {
				return unsupportedErr("%s.%s has the type of param field %s but is not tagged %s:%q",
					d.typ, f.name, p.name, tagKey, tagParam)
			}
			if mentions(f.desc.typ, p.desc.typ) {
				return unsupportedErr("%s: param field %s (%s) also appears inside field %s (%s); wrap it in Phantom",
					d.typ, p.name, p.desc.typ, f.name, f.desc.typ)
			}
		}
	}
	return nil
}

// substitutes reports whether the result type of d differs from d itself.
func substitutes(d *descriptor, seen map[*descriptor]bool) bool {
	if seen[d] {
		return false
	}
	seen[d] = true
	switch d.kind {
	case KindArray:
		if d.class == ClassZero {
			return true
		}
		return substitutes(d.elem, seen)
	case KindStruct:
		if d.class == ClassZero {
			return true
		}
		for _, f := range d.fields {
			if f.param && substitutes(f.desc, seen) {
				return true
			}
		}
	case KindSeq, KindPointer:
		if d.elem.class == ClassDeep {
			return substitutes(d.elem, seen)
		}
	case KindIter:
		return true
	}
	return false
}

// mentions reports whether target occurs strictly inside the type
// expression t: as an element type, or as a generic argument of a named
// type.
func mentions(t, target reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Pointer:
		return t.Elem() == target || mentions(t.Elem(), target)
	case reflect.Struct:
		return mentionsName(typeArgs(t), qualifiedName(target))
	}
	return false
}

func mentionsName(text, name string) bool {
	for i := 0; i+len(name) <= len(text); {
		j := strings.Index(text[i:], name)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(name)
		before := start == 0 || !(identByte(text[start-1]) || text[start-1] == '.' || text[start-1] == '/')
		after := end == len(text) || !identByte(text[end])
		if before && after {
			return true
		}
		i = start + 1
	}
	return false
}

func identByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// qualifiedName spells t the way the runtime spells generic arguments.
func qualifiedName(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Slice:
		return "[]" + qualifiedName(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + qualifiedName(t.Elem())
	case reflect.Pointer:
		return "*" + qualifiedName(t.Elem())
	}
	return t.String()
}

// bareName is the type name without package or instantiation arguments.
func bareName(t reflect.Type) string {
	n := t.Name()
	if i := strings.IndexByte(n, '['); i >= 0 {
		n = n[:i]
	}
	if n == "" {
		return "struct"
	}
	return n
}

func typeArgs(t reflect.Type) string {
	n := t.Name()
	i := strings.IndexByte(n, '[')
	if i < 0 {
		return ""
	}
	return n[i+1 : len(n)-1]
}

func parseTag(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

// couldBeZeroCopy reports whether every field of t is zero-copy capable.
func couldBeZeroCopy(t reflect.Type) bool {
	n := 0
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous && sf.Type == deepCopyType {
			continue
		}
		if !zeroCapable(sf.Type) {
			return false
		}
		n++
	}
	return n > 0
}

func zeroCapable(t reflect.Type) bool {
	switch {
	case common.IsScalarKind(t.Kind()):
		return true
	case t.Kind() == reflect.Array:
		return zeroCapable(t.Elem())
	case t.Kind() == reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if sf := t.Field(i); sf.Anonymous && sf.Type == zeroCopyType {
				return true
			}
		}
	}
	return false
}

// finish computes the derived properties of every new descriptor.
func (b *builder) finish() {
	for _, d := range b.order {
		d.minWire = minWire(d, map[*descriptor]bool{})
		d.writeOnly = reachesIter(d, map[*descriptor]bool{})
	}
}

func minWire(d *descriptor, visiting map[*descriptor]bool) int {
	if visiting[d] {
		return 0
	}
	visiting[d] = true
	defer delete(visiting, d)
	switch d.kind {
	case KindScalar:
		return int(d.size)
	case KindString, KindSeq, KindIter:
		return 8
	case KindPhantom:
		return 0
	case KindPointer:
		return 1
	case KindArray:
		if d.class == ClassZero {
			return int(d.size)
		}
		return satMul(d.length, minWire(d.elem, visiting))
	case KindStruct:
		if d.class == ClassZero {
			return int(d.size)
		}
		total := 0
		for _, f := range d.fields {
			total = satAdd(total, minWire(f.desc, visiting))
		}
		return total
	}
	return 0
}

func reachesIter(d *descriptor, seen map[*descriptor]bool) bool {
	if seen[d] {
		return false
	}
	seen[d] = true
	if d.kind == KindIter {
		return true
	}
	if d.elem != nil && d.kind != KindPhantom && reachesIter(d.elem, seen) {
		return true
	}
	for _, f := range d.fields {
		if reachesIter(f.desc, seen) {
			return true
		}
	}
	return false
}

func satAdd(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func satMul(a, b int) int {
	if a != 0 && b > math.MaxInt/a {
		return math.MaxInt
	}
	return a * b
}
