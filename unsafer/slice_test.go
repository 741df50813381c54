package unsafer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceToBytes(t *testing.T) {
	in := []uint32{1, 0x01020304}
	out := SliceToBytes(in)
	require.Len(t, out, 8)
	assert.Equal(t, uint32(0x01020304), binary.NativeEndian.Uint32(out[4:]))

	assert.Nil(t, SliceToBytes([]uint16{}))
}

func TestStructToBytes(t *testing.T) {
	type ubo struct {
		DeltaT float32
		Count  int32
	}
	v := ubo{DeltaT: 1, Count: 7}
	out := StructToBytes(&v)
	require.Len(t, out, 8)
	assert.Equal(t, uint32(7), binary.NativeEndian.Uint32(out[4:]))

	// Aliases the struct memory.
	v.Count = 9
	assert.Equal(t, uint32(9), binary.NativeEndian.Uint32(out[4:]))
}

func TestSliceBytesToUint32(t *testing.T) {
	data := make([]byte, 9)
	binary.NativeEndian.PutUint32(data, 0x07230203)
	binary.NativeEndian.PutUint32(data[4:], 42)

	words := SliceBytesToUint32(data)
	assert.Equal(t, []uint32{0x07230203, 42}, words)
	assert.Empty(t, SliceBytesToUint32([]byte{1, 2}))
}

func TestBytesToSlice(t *testing.T) {
	in := []float32{1, 2, 3}
	out := BytesToSlice[float32](SliceToBytes(in))
	assert.Equal(t, in, out)
	assert.Nil(t, BytesToSlice[uint64]([]byte{1}))
}
