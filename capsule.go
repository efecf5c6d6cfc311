package epsilon

import (
	"runtime"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/rawbytedev/epsilon/internal/log"
	"github.com/rawbytedev/epsilon/pkg/mmap"
	"github.com/rawbytedev/epsilon/zc"
)

// Storage is a byte source a Capsule can own.
type Storage interface {
	Bytes() []byte
	Close() error
}

// Backend names the kind of storage behind a Capsule.
type Backend uint8

const (
	BackendNone Backend = iota
	BackendHeap
	BackendMmap
)

func (b Backend) String() string {
	switch b {
	case BackendHeap:
		return "heap"
	case BackendMmap:
		return "mmap"
	default:
		return "none"
	}
}

func backendOf(s Storage) Backend {
	switch s.(type) {
	case nil:
		return BackendNone
	case *mmap.Region:
		return BackendMmap
	default:
		return BackendHeap
	}
}

// Capsule binds a result value to the storage it borrows from, so the pair
// can be stored and passed around like an owned value. Get is the only way
// to reach the value.
//
// A Capsule is immutable after construction and safe to read from many
// goroutines. Close must not race with readers. Values obtained from Get
// share the Capsule's storage and stay valid until Close. Heap-backed
// storage is reclaimed by the garbage collector once nothing references it.
// A memory map is only ever unmapped by Close: a Capsule dropped without
// Close leaks its mapping and logs a warning.
type Capsule[R any] struct {
	value   R
	storage Storage
	backend Backend
	size    int
	closed  atomic.Bool
	cleanup runtime.Cleanup
}

// Encase wraps an owned value in a Capsule with no storage, so code
// written against capsules also accepts values built in memory.
func Encase[R any](v R) *Capsule[R] {
	return &Capsule[R]{value: v}
}

// NewCapsule ε-deserializes the contents of s as D and binds the result to
// s. On failure s is closed.
func NewCapsule[D, R any](e *Engine, s Storage) (*Capsule[R], error) {
	e = orDefault(e)
	v, err := DeserializeEps[D, R](e, s.Bytes())
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	c := &Capsule[R]{value: v, storage: s, backend: backendOf(s), size: len(s.Bytes())}
	if c.backend == BackendMmap {
		c.cleanup = runtime.AddCleanup(c, reportLeaked, c.size)
	}
	e.logger().Debug("capsule created", zap.Stringer("backend", c.backend), zap.Int("bytes", c.size))
	return c, nil
}

// reportLeaked runs when an unclosed mmap Capsule is collected. The region
// stays mapped: values copied out of Get may still point into it.
func reportLeaked(size int) {
	log.Warn("memory-mapped capsule was never closed; mapping leaked", zap.Int("bytes", size))
}

// Get returns the housed value. It panics if the Capsule was closed.
func (c *Capsule[R]) Get() *R {
	if c.closed.Load() {
		panic(ErrCapsuleClosed)
	}
	return &c.value
}

// Backend reports what kind of storage the Capsule owns.
func (c *Capsule[R]) Backend() Backend { return c.backend }

// Len is the byte size of the owned storage.
func (c *Capsule[R]) Len() int { return c.size }

// Close drops the value and releases the storage. Every value previously
// obtained through Get becomes invalid. Close is idempotent.
func (c *Capsule[R]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cleanup.Stop()
	var zero R
	c.value = zero
	if c.storage == nil {
		return nil
	}
	return c.storage.Close()
}

var _ Storage = (*zc.Buffer)(nil)
var _ Storage = (*mmap.Region)(nil)
