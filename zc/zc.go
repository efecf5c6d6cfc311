// Package zc (zero-copy) is the single place where validated byte spans
// are turned into typed views. Every reference handed out by the ε-copy
// reader goes through View or ViewSlice; callers never cast pointers
// themselves.
//
// A view shares memory with the span it came from. It stays valid only as
// long as the span does, which for heap buffers means as long as the view
// is reachable and for memory maps means until the mapping is closed.
package zc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

var (
	ErrShortBuffer = errors.New("zc: span shorter than requested view")
	ErrMisaligned  = errors.New("zc: span base address is not aligned")
)

// zeroBase backs views of zero-size values.
var zeroBase [0]uint64

// View checks that b holds at least size bytes starting at an address that is
// a multiple of align, and only then returns a pointer to the first byte.
func View(b []byte, size, align uintptr) (unsafe.Pointer, error) {
	if uintptr(len(b)) < size {
		return nil, errors.Wrapf(ErrShortBuffer, "need %d bytes, have %d", size, len(b))
	}
	if size == 0 {
		return unsafe.Pointer(&zeroBase), nil
	}
	p := unsafe.Pointer(unsafe.SliceData(b))
	if align > 1 && uintptr(p)&(align-1) != 0 {
		return nil, errors.Wrapf(ErrMisaligned, "address %#x, alignment %d", uintptr(p), align)
	}
	return p, nil
}

// ViewSlice is View for n contiguous elements of elemSize bytes each.
func ViewSlice(b []byte, n int, elemSize, align uintptr) (unsafe.Pointer, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrShortBuffer, "negative length %d", n)
	}
	if elemSize != 0 && uintptr(n) > ^uintptr(0)/elemSize {
		return nil, errors.Wrapf(ErrShortBuffer, "length %d overflows", n)
	}
	return View(b, uintptr(n)*elemSize, align)
}

// Reinterpret returns a *T aliasing the start of b.
func Reinterpret[T any](b []byte) (*T, error) {
	var zero T
	p, err := View(b, unsafe.Sizeof(zero), unsafe.Alignof(zero))
	if err != nil {
		return nil, err
	}
	return (*T)(p), nil
}

// ReinterpretSlice returns a []T of length n aliasing the start of b.
func ReinterpretSlice[T any](b []byte, n int) ([]T, error) {
	var zero T
	p, err := ViewSlice(b, n, unsafe.Sizeof(zero), unsafe.Alignof(zero))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []T{}, nil
	}
	return unsafe.Slice((*T)(p), n), nil
}
