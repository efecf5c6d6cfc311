package epsilon

import (
	"encoding/binary"
	"slices"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/rawbytedev/epsilon/internal/common"
)

// fingerprints returns the shape and alignment fingerprints of d's on-wire
// type, computing them once.
func (d *descriptor) fingerprints() (shape, align uint64) {
	d.fpOnce.Do(func() {
		d.shapeFP = shapeFingerprint(d)
		d.alignFP = alignFingerprint(d)
	})
	return d.shapeFP, d.alignFP
}

// fpHasher feeds length-prefixed tokens into xxhash, so no two token
// sequences collide by concatenation.
type fpHasher struct {
	h     *xxhash.Digest
	buf   [binary.MaxVarintLen64]byte
	stack []*descriptor
}

func newFPHasher() *fpHasher {
	return &fpHasher{h: xxhash.New()}
}

func (f *fpHasher) token(s string) {
	f.num(uint64(len(s)))
	_, _ = f.h.WriteString(s)
}

func (f *fpHasher) num(n uint64) {
	k := binary.PutUvarint(f.buf[:], n)
	_, _ = f.h.Write(f.buf[:k])
}

// enter pushes a struct on the recursion stack. It reports false, after
// hashing a back reference, if the struct is already being hashed.
func (f *fpHasher) enter(d *descriptor) bool {
	if i := slices.Index(f.stack, d); i >= 0 {
		f.token("rec")
		f.num(uint64(len(f.stack) - i))
		return false
	}
	f.stack = append(f.stack, d)
	return true
}

func (f *fpHasher) leave() {
	f.stack = f.stack[:len(f.stack)-1]
}

// shapeFingerprint digests names, field order and copy classification.
// Containers are normalized, so []T, FixedSeq[T] and SeqIter[T] share a
// fingerprint. A pointer may be nil and carries a presence tag, so *T is
// an optional T on the wire, not T.
func shapeFingerprint(d *descriptor) uint64 {
	f := newFPHasher()
	f.shape(d)
	return f.h.Sum64()
}

func (f *fpHasher) shape(d *descriptor) {
	switch d.kind {
	case KindScalar, KindString:
		f.token(d.name)
	case KindSeq, KindIter:
		f.token("seq")
		f.shape(d.elem)
	case KindArray:
		f.token("arr")
		f.num(uint64(d.length))
		f.shape(d.elem)
	case KindPointer:
		f.token("opt")
		f.shape(d.elem)
	case KindPhantom:
		f.token("phantom")
		f.shape(d.elem)
	case KindStruct:
		if !f.enter(d) {
			return
		}
		defer f.leave()
		f.token("struct")
		f.token(d.name)
		f.token(d.class.String())
		f.num(uint64(len(d.fields)))
		for _, fl := range d.fields {
			f.token(fl.name)
			f.shape(fl.desc)
		}
	}
}

// alignFingerprint digests size, alignment and offsets of every zero-copy
// region, so any padding change is caught. It is seeded with the byte order
// and word size of the platform.
func alignFingerprint(d *descriptor) uint64 {
	f := newFPHasher()
	if common.LittleEndian() {
		f.token("le")
	} else {
		f.token("be")
	}
	f.num(uint64(unsafe.Sizeof(int(0))))
	f.layout(d, 0)
	return f.h.Sum64()
}

func (f *fpHasher) region(tok string, d *descriptor, off uintptr) {
	f.token(tok)
	f.num(uint64(d.size))
	f.num(uint64(d.align))
	f.num(uint64(off))
}

func (f *fpHasher) layout(d *descriptor, off uintptr) {
	switch d.kind {
	case KindScalar:
		f.region(d.name, d, off)
	case KindString:
		f.token("str")
	case KindSeq, KindIter:
		f.token("seq")
		f.layout(d.elem, 0)
	case KindPointer:
		f.token("opt")
		f.layout(d.elem, 0)
	case KindPhantom:
		f.token("phantom")
	case KindArray:
		if d.class == ClassZero {
			f.region("zarr", d, off)
			f.num(uint64(d.length))
			f.layout(d.elem, off)
			return
		}
		f.token("darr")
		f.num(uint64(d.length))
		f.layout(d.elem, 0)
	case KindStruct:
		if !f.enter(d) {
			return
		}
		defer f.leave()
		if d.class == ClassZero {
			f.region("zstruct", d, off)
			for _, fl := range d.fields {
				f.num(uint64(fl.offset))
				f.layout(fl.desc, off+fl.offset)
			}
			return
		}
		f.token("dstruct")
		for _, fl := range d.fields {
			f.layout(fl.desc, 0)
		}
	}
}
