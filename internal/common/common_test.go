package common

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadAlignTo(t *testing.T) {
	cases := []struct {
		pos   int
		align uintptr
		want  int
	}{
		{0, 8, 0},
		{1, 8, 7},
		{8, 8, 0},
		{17, 4, 3},
		{17, 1, 0},
		{17, 0, 0},
		{33, 64, 31},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, PadAlignTo(c.pos, c.align), "pos %d align %d", c.pos, c.align)
	}
}

func TestScalarTokens(t *testing.T) {
	seen := map[string]bool{}
	for k := reflect.Bool; k <= reflect.Complex128; k++ {
		if !IsScalarKind(k) {
			require.Empty(t, ScalarToken(k), k.String())
			continue
		}
		tok := ScalarToken(k)
		require.NotEmpty(t, tok, k.String())
		require.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
	}
	require.False(t, IsScalarKind(reflect.Uintptr))
	require.False(t, IsScalarKind(reflect.String))
}

func TestLen(t *testing.T) {
	var b [8]byte
	PutLen(b[:], 1<<40+3)
	require.Equal(t, uint64(1<<40+3), Len(b[:]))
}

func TestBytesOf(t *testing.T) {
	x := uint32(0x01020304)
	b := BytesOf(unsafe.Pointer(&x), 4)
	require.Len(t, b, 4)
	if LittleEndian() {
		require.Equal(t, []byte{4, 3, 2, 1}, b)
	} else {
		require.Equal(t, []byte{1, 2, 3, 4}, b)
	}
	require.Nil(t, BytesOf(unsafe.Pointer(&x), 0))
}
