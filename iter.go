package epsilon

import (
	"iter"
	"reflect"
	"slices"
)

// SeqIter serializes the items of an iterator as a sequence without
// collecting them first. The count must be known up front because the
// length is written before the items; a different number of yielded items
// fails the write with an *IteratorLengthError. The iterator is not drained
// past the first surplus item.
//
// SeqIter is write-only. Read the data back as []T.
type SeqIter[T any] struct {
	n   int
	seq iter.Seq[T]
}

// NewSeqIter wraps seq, which must yield exactly n items.
func NewSeqIter[T any](n int, seq iter.Seq[T]) SeqIter[T] {
	return SeqIter[T]{n: n, seq: seq}
}

// SeqOf is NewSeqIter over the items of s.
func SeqOf[T any](s []T) SeqIter[T] {
	return SeqIter[T]{n: len(s), seq: slices.Values(s)}
}

func (s SeqIter[T]) seqElem() reflect.Type { return reflect.TypeFor[T]() }

func (s SeqIter[T]) seqLen() int { return s.n }

// seqEach hands each item to fn as an addressable value. It stops at the
// first item past the declared count, so an iterator that yields too many
// reports Actual as n+1.
func (s SeqIter[T]) seqEach(fn func(reflect.Value) error) error {
	count := 0
	if s.seq != nil {
		for item := range s.seq {
			count++
			if count > s.n {
				break
			}
			x := item
			if err := fn(reflect.ValueOf(&x).Elem()); err != nil {
				return err
			}
		}
	}
	if count != s.n {
		return &IteratorLengthError{Expected: s.n, Actual: count}
	}
	return nil
}

type seqSource interface {
	seqElem() reflect.Type
	seqLen() int
	seqEach(func(reflect.Value) error) error
}
