package mmap

import "strings"

// Flags are access hints passed to the kernel when a region is created.
type Flags uint32

const (
	// TransparentHugePages asks for huge pages where the kernel supports them.
	TransparentHugePages Flags = 1 << iota
	// Sequential announces front-to-back reads (aggressive read-ahead).
	Sequential
	// RandomAccess announces scattered reads (read-ahead disabled).
	RandomAccess
)

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&TransparentHugePages != 0 {
		parts = append(parts, "hugepages")
	}
	if f&Sequential != 0 {
		parts = append(parts, "sequential")
	}
	if f&RandomAccess != 0 {
		parts = append(parts, "random")
	}
	return strings.Join(parts, "|")
}
