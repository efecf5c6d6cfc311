package mmap

import "golang.org/x/sys/unix"

func adviseHugePages(b []byte) error {
	err := unix.Madvise(b, unix.MADV_HUGEPAGE)
	// Kernels built without THP reject the hint; mapping still works.
	if err == unix.EINVAL {
		return nil
	}
	return err
}
