//go:build unix

package mmap

import (
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// Region is a memory-mapped span of bytes.
type Region struct {
	data   []byte
	size   int
	closed atomic.Bool
}

// Anonymous maps size bytes of zeroed, writable, private memory.
func Anonymous(size int, flags Flags) (*Region, error) {
	if size <= 0 {
		return nil, errors.Newf("mmap: invalid size %d", size)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap: anonymous %d bytes", size)
	}
	r := &Region{data: data, size: size}
	if err := r.Advise(flags); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// MapFile maps the first size bytes of f read-only. A size of zero or less
// maps the whole file.
func MapFile(f *os.File, size int, flags Flags) (*Region, error) {
	if size <= 0 {
		st, err := f.Stat()
		if err != nil {
			return nil, errors.Wrap(err, "mmap: stat")
		}
		size = int(st.Size())
	}
	if size == 0 {
		return nil, errors.Newf("mmap: %s is empty", f.Name())
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap: map %s", f.Name())
	}
	r := &Region{data: data, size: size}
	if err := r.Advise(flags); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Bytes returns the mapped memory.
func (r *Region) Bytes() []byte { return r.data }

func (r *Region) Len() int { return r.size }

// Protect makes the region read-only.
func (r *Region) Protect() error {
	if err := unix.Mprotect(r.data, unix.PROT_READ); err != nil {
		return errors.Wrap(err, "mmap: mprotect")
	}
	return nil
}

// Advise forwards flags to madvise(2).
func (r *Region) Advise(flags Flags) error {
	if flags&Sequential != 0 {
		if err := unix.Madvise(r.data, unix.MADV_SEQUENTIAL); err != nil {
			return errors.Wrap(err, "mmap: madvise sequential")
		}
	}
	if flags&RandomAccess != 0 {
		if err := unix.Madvise(r.data, unix.MADV_RANDOM); err != nil {
			return errors.Wrap(err, "mmap: madvise random")
		}
	}
	if flags&TransparentHugePages != 0 {
		if err := adviseHugePages(r.data); err != nil {
			return errors.Wrap(err, "mmap: madvise hugepage")
		}
	}
	return nil
}

// Close unmaps the region. Calling it more than once is a no-op.
func (r *Region) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	data := r.data
	r.data = nil
	if err := unix.Munmap(data); err != nil {
		return errors.Wrap(err, "mmap: munmap")
	}
	return nil
}
