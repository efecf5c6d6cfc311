//go:build unix

package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnonymous(t *testing.T) {
	r, err := Anonymous(4096, Sequential)
	require.NoError(t, err)
	require.Equal(t, 4096, r.Len())
	b := r.Bytes()
	require.Len(t, b, 4096)
	require.Zero(t, b[100])
	b[100] = 7
	require.NoError(t, r.Protect())
	require.Equal(t, byte(7), r.Bytes()[100])
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	require.Nil(t, r.Bytes())

	_, err = Anonymous(0, 0)
	require.Error(t, err)
}

func TestMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("hello, mmap"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := MapFile(f, 0, RandomAccess)
	require.NoError(t, err)
	require.Equal(t, "hello, mmap", string(r.Bytes()))
	require.NoError(t, r.Close())

	r, err = MapFile(f, 5, TransparentHugePages)
	require.NoError(t, err)
	require.Equal(t, "hello", string(r.Bytes()))
	require.NoError(t, r.Close())
}

func TestMapEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = MapFile(f, 0, 0)
	require.Error(t, err)
}

func TestFlagsString(t *testing.T) {
	require.Equal(t, "none", Flags(0).String())
	require.Equal(t, "hugepages|random", (TransparentHugePages | RandomAccess).String())
	require.Equal(t, "sequential", Sequential.String())
}
