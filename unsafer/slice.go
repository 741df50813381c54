package unsafer

import (
	"unsafe"
)

// SliceToBytes interprets an arbitrary input slice as a byte slice.
//
// Note that the returned slice points to the same underlying data in memory. It
// does not make a copy. An empty input results in a nil slice.
func SliceToBytes[T any](input []T) []byte {
	if len(input) == 0 {
		return nil
	}

	var zero T
	size := int(unsafe.Sizeof(zero)) * len(input)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(input))), size)
}

// StructToBytes returns the memory of the value pointed by v as a byte slice.
// The same aliasing rules as for SliceToBytes apply.
func StructToBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// SliceBytesToUint32 copies SPIR-V byte code into a slice of 32bit words. Trailing
// bytes which do not form a whole word are dropped.
func SliceBytesToUint32(data []byte) []uint32 {
	words := make([]uint32, len(data)/4)
	if len(words) == 0 {
		return words
	}
	copy(SliceToBytes(words), data)
	return words
}

// BytesToSlice interprets raw memory read back from the device as a slice of T.
// Trailing bytes which do not form a whole T are ignored.
func BytesToSlice[T any](data []byte) []T {
	var zero T
	n := len(data) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), n)
}
