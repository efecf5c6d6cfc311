package common

import (
	"encoding/binary"
	"reflect"
	"unsafe"
)

// IsScalarKind reports whether k is a fixed-size primitive kind.
func IsScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

// ScalarToken returns the fingerprint token of a scalar kind. Named scalar
// types share the token of their underlying kind.
func ScalarToken(k reflect.Kind) string {
	switch k {
	case reflect.Bool:
		return "bool"
	case reflect.Int:
		return "int"
	case reflect.Int8:
		return "i8"
	case reflect.Int16:
		return "i16"
	case reflect.Int32:
		return "i32"
	case reflect.Int64:
		return "i64"
	case reflect.Uint:
		return "uint"
	case reflect.Uint8:
		return "u8"
	case reflect.Uint16:
		return "u16"
	case reflect.Uint32:
		return "u32"
	case reflect.Uint64:
		return "u64"
	case reflect.Float32:
		return "f32"
	case reflect.Float64:
		return "f64"
	case reflect.Complex64:
		return "c64"
	case reflect.Complex128:
		return "c128"
	default:
		return ""
	}
}

// PadAlignTo returns the number of bytes needed to move pos to a multiple
// of align. align must be a power of two.
func PadAlignTo(pos int, align uintptr) int {
	if align <= 1 {
		return 0
	}
	return int(uintptr(-pos) & (align - 1))
}

// Zeros is a source of padding bytes.
var Zeros [64]byte

// BytesOf views n bytes of memory starting at p.
func BytesOf(p unsafe.Pointer, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// LittleEndian reports the byte order of the running platform.
func LittleEndian() bool {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	return b[0] == 1
}

// PutLen writes a sequence length in native order.
func PutLen(b []byte, n uint64) {
	binary.NativeEndian.PutUint64(b, n)
}

// Len reads a sequence length in native order.
func Len(b []byte) uint64 {
	return binary.NativeEndian.Uint64(b)
}
