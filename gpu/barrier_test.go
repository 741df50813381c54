package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	graphics = Queue{Kind: QueueGraphics, Family: 0}
	compute  = Queue{Kind: QueueCompute, Family: 1}
	aliased  = Queue{Kind: QueueCompute, Family: 0}
)

func TestTransitionAcrossFamilies(t *testing.T) {
	b, err := Transition(7, StateComputeWrite, StateGraphicsRead, compute, graphics)
	require.NoError(t, err)
	require.Len(t, b.Buffers, 1)

	bb := b.Buffers[0]
	assert.Equal(t, Buffer(7), bb.Buffer)
	assert.Equal(t, uint32(1), bb.SrcQueueFamily)
	assert.Equal(t, uint32(0), bb.DstQueueFamily)
	assert.Equal(t, AccessShaderRead|AccessShaderWrite, bb.SrcAccess)
	assert.Equal(t, AccessVertexAttributeRead|AccessShaderRead, bb.DstAccess)
	assert.Equal(t, StageComputeShader, b.SrcStage)
	assert.True(t, b.OwnershipTransfer())

	release, acquire := Handoff(b)
	require.NotNil(t, release)
	require.NotNil(t, acquire)

	assert.Equal(t, StageBottomOfPipe, release.DstStage)
	assert.Zero(t, release.Buffers[0].DstAccess)
	assert.Equal(t, StageTopOfPipe, acquire.SrcStage)
	assert.Zero(t, acquire.Buffers[0].SrcAccess)

	// The original barrier is not modified by splitting it.
	assert.NotZero(t, b.Buffers[0].DstAccess)
	assert.NotZero(t, b.Buffers[0].SrcAccess)
}

func TestTransitionSameFamily(t *testing.T) {
	b, err := Transition(3, StateGraphicsRead, StateComputeWrite, graphics, aliased)
	require.NoError(t, err)

	assert.Equal(t, QueueFamilyIgnored, b.Buffers[0].SrcQueueFamily)
	assert.Equal(t, QueueFamilyIgnored, b.Buffers[0].DstQueueFamily)
	assert.False(t, b.OwnershipTransfer())

	release, acquire := Handoff(b)
	assert.Nil(t, release)
	require.NotNil(t, acquire)
	assert.Equal(t, b, *acquire)
}

func TestTransitionUnsupported(t *testing.T) {
	for _, pair := range [][2]BufferState{
		{StateComputeWrite, StateComputeWrite},
		{StateComputeWrite, StateTransferWrite},
		{StateTransferRead, StateGraphicsRead},
	} {
		_, err := Transition(1, pair[0], pair[1], graphics, compute)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedTransition))

		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, pair[0], te.From)
		assert.Equal(t, pair[1], te.To)
	}
}

func TestMerge(t *testing.T) {
	a, err := Transition(1, StateComputeWrite, StateTransferRead, graphics, graphics)
	require.NoError(t, err)
	b, err := Transition(2, StateGraphicsRead, StateTransferWrite, graphics, graphics)
	require.NoError(t, err)

	m := Merge(a, b)
	assert.Len(t, m.Buffers, 2)
	assert.Equal(t, StageComputeShader|StageVertexInput|StageVertexShader, m.SrcStage)
	assert.Equal(t, StageTransfer, m.DstStage)
}

func TestBufferSpecConcurrent(t *testing.T) {
	assert.False(t, BufferSpec{}.Concurrent())
	assert.False(t, BufferSpec{Families: []uint32{2, 2}}.Concurrent())
	assert.True(t, BufferSpec{Families: []uint32{0, 1}}.Concurrent())
}
