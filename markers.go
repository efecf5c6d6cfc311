package epsilon

import "reflect"

// ZeroCopy, when embedded in a struct, declares the struct zero-copy: its
// in-memory representation is written verbatim and read back as a pointer
// into the source buffer. Every field must itself be zero-copy.
//
//	type Point struct {
//		epsilon.ZeroCopy
//		X, Y float64
//	}
type ZeroCopy struct{}

// DeepCopy, when embedded, declares the struct deep-copy explicitly. Structs
// without either marker are deep-copy too, but a warning is logged if all of
// their fields could have been zero-copy.
type DeepCopy struct{}

// Phantom mentions T in a struct without storing a value of it. It is the
// only way a param-tagged type may appear inside another field.
type Phantom[T any] struct{}

func (Phantom[T]) phantomOf() reflect.Type { return reflect.TypeFor[T]() }

type phantomer interface{ phantomOf() reflect.Type }

// FixedSeq is a sequence whose length is fixed once built. It shares the
// on-wire form of []T, so either can be read back as the other.
type FixedSeq[T any] []T

// NewFixedSeq copies items into a FixedSeq with len == cap.
func NewFixedSeq[T any](items ...T) FixedSeq[T] {
	s := make(FixedSeq[T], len(items))
	copy(s, items)
	return s
}

var (
	zeroCopyType  = reflect.TypeFor[ZeroCopy]()
	deepCopyType  = reflect.TypeFor[DeepCopy]()
	phantomIface  = reflect.TypeFor[phantomer]()
	seqSourceType = reflect.TypeFor[seqSource]()
)

// Struct tag values under the "eps" key.
const (
	tagKey   = "eps"
	tagParam = "param"
	tagSkip  = "-"
)
