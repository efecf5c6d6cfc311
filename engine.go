package epsilon

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/rawbytedev/epsilon/internal/log"
)

// DefaultMaxPrealloc bounds how many bytes full reconstruction allocates
// for one sequence before any of its data has been read.
const DefaultMaxPrealloc = 64 << 20

// Options configure an Engine. The zero value is ready to use.
type Options struct {
	// Logger receives classification warnings and debug traces. Nil means
	// the package-wide logger (see SetLogger).
	Logger *zap.Logger

	// QuietMismatch disables the warning for structs that could be
	// zero-copy but do not embed ZeroCopy.
	QuietMismatch bool

	// MaxPrealloc caps the up-front allocation for a sequence read from a
	// stream. Longer sequences grow as their bytes arrive, so a corrupt
	// length cannot trigger a huge allocation. Zero means
	// DefaultMaxPrealloc.
	MaxPrealloc int
}

// Engine caches type descriptors and result-type projections. It is safe
// for concurrent use; each distinct type is classified once.
type Engine struct {
	opts Options

	mu    sync.RWMutex
	descs map[reflect.Type]*descriptor
	projs map[projKey]*projection
}

type projKey struct {
	d, r reflect.Type
}

// New returns an Engine configured by opts.
func New(opts Options) *Engine {
	if opts.MaxPrealloc <= 0 {
		opts.MaxPrealloc = DefaultMaxPrealloc
	}
	return &Engine{
		opts:  opts,
		descs: make(map[reflect.Type]*descriptor),
		projs: make(map[projKey]*projection),
	}
}

var defaultEngine = sync.OnceValue(func() *Engine { return New(Options{}) })

// Default returns the shared engine used when a nil *Engine is passed.
func Default() *Engine {
	return defaultEngine()
}

// SetLogger replaces the package-wide logger. Nil silences it.
func SetLogger(l *zap.Logger) {
	log.SetLogger(l)
}

func orDefault(e *Engine) *Engine {
	if e == nil {
		return Default()
	}
	return e
}

func (e *Engine) logger() *zap.Logger {
	if e.opts.Logger != nil {
		return e.opts.Logger
	}
	return log.L()
}

// describe returns the descriptor of t, classifying it on first use.
func (e *Engine) describe(t reflect.Type) (*descriptor, error) {
	e.mu.RLock()
	if d, ok := e.descs[t]; ok {
		e.mu.RUnlock()
		return d, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check
	if d, ok := e.descs[t]; ok {
		return d, nil
	}

	b := &builder{e: e, pending: make(map[reflect.Type]*descriptor)}
	d, err := b.build(t)
	if err != nil {
		return nil, err
	}
	b.finish()
	for typ, pd := range b.pending {
		e.descs[typ] = pd
	}
	return d, nil
}

// project returns the verified projection of d onto the result type r.
func (e *Engine) project(d *descriptor, r reflect.Type) (*projection, error) {
	key := projKey{d: d.typ, r: r}
	e.mu.RLock()
	if p, ok := e.projs[key]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.projs[key]; ok {
		return p, nil
	}
	g := &guard{seen: make(map[projKey]*projection)}
	p, err := g.check(d, r)
	if err != nil {
		return nil, err
	}
	e.projs[key] = p
	return p, nil
}
