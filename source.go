package epsilon

import (
	"io"
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/epsilon/internal/common"
	"github.com/rawbytedev/epsilon/zc"
)

// source is the byte supply of full reconstruction. Positions are measured
// from the first header byte, which is where the writer measured padding
// from.
type source interface {
	// read fills p completely.
	read(p []byte) error
	// skip discards n bytes.
	skip(n int) error
	pos() int
	// remaining reports the unread byte count, or -1 if unknown.
	remaining() int
}

func alignSource(s source, align uintptr) error {
	return s.skip(common.PadAlignTo(s.pos(), align))
}

func readLen(s source) (int, error) {
	var b [8]byte
	if err := s.read(b[:]); err != nil {
		return 0, err
	}
	n := common.Len(b[:])
	if n > math.MaxInt {
		return 0, truncatedErr(math.MaxInt, s.remaining())
	}
	return int(n), nil
}

// streamSource reads from an io.Reader.
type streamSource struct {
	r       io.Reader
	off     int
	discard [64]byte
}

func (s *streamSource) read(p []byte) error {
	n, err := io.ReadFull(s.r, p)
	s.off += n
	return readErr(err)
}

func (s *streamSource) skip(n int) error {
	for n > 0 {
		k := min(n, len(s.discard))
		if err := s.read(s.discard[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

func (s *streamSource) pos() int { return s.off }

func (s *streamSource) remaining() int { return -1 }

// spanSource reads from an in-memory span and can hand out views into it.
type spanSource struct {
	data []byte
	off  int
}

func (s *spanSource) take(n int) ([]byte, error) {
	if n < 0 || n > len(s.data)-s.off {
		return nil, truncatedErr(n, len(s.data)-s.off)
	}
	b := s.data[s.off : s.off+n]
	s.off += n
	return b, nil
}

func (s *spanSource) read(p []byte) error {
	b, err := s.take(len(p))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

func (s *spanSource) skip(n int) error {
	_, err := s.take(n)
	return err
}

func (s *spanSource) pos() int { return s.off }

func (s *spanSource) remaining() int { return len(s.data) - s.off }

// view aligns the cursor and returns a pointer to n values of d, which
// must be zero-copy. All pointers the ε-copy reader returns come from here.
func (s *spanSource) view(d *descriptor, n int) (unsafe.Pointer, error) {
	if d.size == 0 {
		return zc.View(nil, 0, d.align)
	}
	if err := alignSource(s, d.align); err != nil {
		return nil, err
	}
	if uintptr(n) > uintptr(s.remaining())/d.size {
		return nil, truncatedErr(satMul(n, int(d.size)), s.remaining())
	}
	p, err := zc.ViewSlice(s.data[s.off:], n, d.size, d.align)
	if err != nil {
		if errors.Is(err, zc.ErrMisaligned) {
			return nil, alignmentErr(d.typ.String(), uintptr(unsafe.Pointer(unsafe.SliceData(s.data)))+uintptr(s.off), d.align)
		}
		return nil, truncatedErr(satMul(n, int(d.size)), s.remaining())
	}
	s.off += n * int(d.size)
	return p, nil
}
