package zc

import "unsafe"

// Alignment is the base alignment of every Buffer. It covers the strictest
// alignment any Go type can require.
const Alignment = 64

// Buffer is a heap allocation whose first byte sits on an Alignment
// boundary. The Go heap does not move objects, so the alignment holds for
// the buffer's whole life.
type Buffer struct {
	raw  []byte
	data []byte
}

// NewBuffer allocates n zeroed bytes aligned to Alignment.
func NewBuffer(n int) *Buffer {
	raw := make([]byte, n+Alignment)
	off := 0
	if rem := uintptr(unsafe.Pointer(unsafe.SliceData(raw))) % Alignment; rem != 0 {
		off = int(Alignment - rem)
	}
	return &Buffer{raw: raw, data: raw[off : off+n : off+n]}
}

// Bytes returns the aligned region.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Len() int { return len(b.data) }

// Close is a no-op; the garbage collector reclaims the buffer once neither
// it nor any view into it is reachable.
func (b *Buffer) Close() error { return nil }

// AlignedCopy returns a copy of src whose first byte is Alignment-aligned.
func AlignedCopy(src []byte) []byte {
	buf := NewBuffer(len(src))
	copy(buf.data, src)
	return buf.data
}
