// Package mmap provides read-only memory maps used as byte sources for
// ε-copy deserialization.
//
// # Usage
//
//	r, err := mmap.MapFile(f, size, mmap.Sequential)
//	if err != nil { ... }
//	defer r.Close()
//	data := r.Bytes()
//
// Anonymous regions are writable until Protect is called, which is how a
// stream is copied into off-heap memory and then frozen.
//
// # Thread Safety
//
// A Region is safe for concurrent reads. Close is idempotent, but callers
// must ensure nothing touches Bytes() after Close returns.
package mmap
