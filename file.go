package epsilon

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"

	"github.com/rawbytedev/epsilon/pkg/mmap"
	"github.com/rawbytedev/epsilon/zc"
)

// FileOption configures Store and the path-based loaders.
type FileOption func(*fileConfig)

type fileConfig struct {
	compressed bool
	level      zstd.EncoderLevel
}

// Compressed wraps the file in a zstd frame. A compressed file must be
// loaded with Compressed too, and cannot be memory-mapped: ε-copy reads of
// it go through a decompressed heap buffer (LoadAligned).
func Compressed() FileOption {
	return func(c *fileConfig) { c.compressed = true }
}

// CompressionLevel sets the zstd level used by Store. It implies Compressed.
func CompressionLevel(l zstd.EncoderLevel) FileOption {
	return func(c *fileConfig) {
		c.compressed = true
		c.level = l
	}
}

func newFileConfig(opts []FileOption) fileConfig {
	cfg := fileConfig{level: zstd.SpeedDefault}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func ioErr(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIO)
}

// Store serializes v into the file at path, replacing it.
func Store[T any](e *Engine, path string, v T, opts ...FileOption) (err error) {
	cfg := newFileConfig(opts)
	f, err := os.Create(path)
	if err != nil {
		return ioErr(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = ioErr(cerr, "close %s", path)
		}
	}()
	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var enc *zstd.Encoder
	if cfg.compressed {
		enc, err = zstd.NewWriter(bw, zstd.WithEncoderLevel(cfg.level))
		if err != nil {
			return ioErr(err, "zstd writer")
		}
		w = enc
	}
	if _, err := Serialize(e, w, v); err != nil {
		if enc != nil {
			_ = enc.Close()
		}
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return ioErr(err, "zstd close")
		}
	}
	if err := bw.Flush(); err != nil {
		return ioErr(err, "flush %s", path)
	}
	return nil
}

// LoadMem reads the file at path into memory and fully reconstructs a D
// from it.
func LoadMem[D any](e *Engine, path string, opts ...FileOption) (D, error) {
	var zero D
	data, err := readFile(path, newFileConfig(opts))
	if err != nil {
		return zero, err
	}
	return DeserializeFull[D](e, bytes.NewReader(data))
}

// ReadMem reads exactly n bytes from r into memory and fully reconstructs a
// D from them.
func ReadMem[D any](e *Engine, r io.Reader, n int) (D, error) {
	var zero D
	buf, err := readN(r, n)
	if err != nil {
		return zero, err
	}
	return DeserializeFull[D](e, bytes.NewReader(buf.Bytes()))
}

// LoadAligned reads the file at path into an aligned heap buffer and
// returns a Capsule holding the ε-copy result.
func LoadAligned[D, R any](e *Engine, path string, opts ...FileOption) (*Capsule[R], error) {
	cfg := newFileConfig(opts)
	if cfg.compressed {
		data, err := readFile(path, cfg)
		if err != nil {
			return nil, err
		}
		buf := zc.NewBuffer(len(data))
		copy(buf.Bytes(), data)
		return NewCapsule[D, R](e, buf)
	}
	f, size, err := openSized(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAligned[D, R](e, f, size)
}

// ReadAligned reads exactly n bytes from r into an aligned heap buffer and
// returns a Capsule holding the ε-copy result.
func ReadAligned[D, R any](e *Engine, r io.Reader, n int) (*Capsule[R], error) {
	buf, err := readN(r, n)
	if err != nil {
		return nil, err
	}
	return NewCapsule[D, R](e, buf)
}

// LoadMmap copies the file at path into an anonymous memory map, makes it
// read-only and returns a Capsule holding the ε-copy result.
func LoadMmap[D, R any](e *Engine, path string, flags mmap.Flags) (*Capsule[R], error) {
	f, size, err := openSized(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMmap[D, R](e, f, size, flags)
}

// ReadMmap is LoadMmap reading exactly n bytes from r.
func ReadMmap[D, R any](e *Engine, r io.Reader, n int, flags mmap.Flags) (*Capsule[R], error) {
	if n < HeaderSize {
		return nil, truncatedErr(HeaderSize, max(n, 0))
	}
	region, err := mmap.Anonymous(n, flags)
	if err != nil {
		return nil, ioErr(err, "map %d bytes", n)
	}
	if _, err := io.ReadFull(r, region.Bytes()); err != nil {
		_ = region.Close()
		return nil, readErr(err)
	}
	if err := region.Protect(); err != nil {
		_ = region.Close()
		return nil, ioErr(err, "protect")
	}
	return NewCapsule[D, R](e, region)
}

// Mmap maps the file at path itself, read-only, and returns a Capsule
// holding the ε-copy result. Nothing is copied; pages are faulted in as the
// result is read. The file must not be modified while the Capsule is open.
func Mmap[D, R any](e *Engine, path string, flags mmap.Flags) (*Capsule[R], error) {
	f, size, err := openSized(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if size < HeaderSize {
		return nil, truncatedErr(HeaderSize, size)
	}
	region, err := mmap.MapFile(f, size, flags)
	if err != nil {
		return nil, ioErr(err, "map %s", path)
	}
	return NewCapsule[D, R](e, region)
}

func openSized(path string) (*os.File, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, ioErr(err, "open %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, ioErr(err, "stat %s", path)
	}
	return f, int(st.Size()), nil
}

func readFile(path string, cfg fileConfig) ([]byte, error) {
	if !cfg.compressed {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ioErr(err, "read %s", path)
		}
		return data, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr(err, "open %s", path)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, ioErr(err, "zstd reader")
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, ioErr(err, "decompress %s", path)
	}
	return data, nil
}

// readN reads exactly n bytes into a fresh aligned buffer.
func readN(r io.Reader, n int) (*zc.Buffer, error) {
	if n < 0 {
		return nil, truncatedErr(HeaderSize, 0)
	}
	buf := zc.NewBuffer(n)
	if _, err := io.ReadFull(r, buf.Bytes()); err != nil {
		return nil, readErr(err)
	}
	return buf, nil
}
