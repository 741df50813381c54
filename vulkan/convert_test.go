package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-async-compute/gpu"
)

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError(vk.Success))
	assert.ErrorIs(t, resultError(vk.NotReady), gpu.ErrNotReady)
	assert.ErrorIs(t, resultError(vk.Timeout), gpu.ErrTimeout)
	assert.ErrorIs(t, resultError(vk.ErrorDeviceLost), gpu.ErrDeviceLost)
	assert.True(t, gpu.IsTransient(resultError(vk.Timeout)))

	err := resultError(vk.ErrorOutOfDeviceMemory)
	assert.Error(t, err)
	assert.False(t, gpu.IsTransient(err))
}

func TestStageFlags(t *testing.T) {
	assert.Equal(t,
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit)|
			vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit),
		stageFlags(gpu.StageVertexInput|gpu.StageVertexShader),
	)
	assert.Zero(t, stageFlags(0))
}

func TestAccessFlags(t *testing.T) {
	assert.Equal(t,
		vk.AccessFlags(vk.AccessShaderReadBit)|vk.AccessFlags(vk.AccessShaderWriteBit),
		accessFlags(gpu.AccessShaderRead|gpu.AccessShaderWrite),
	)
}

func TestUsageFlags(t *testing.T) {
	assert.Equal(t,
		vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)|
			vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		usageFlags(gpu.UsageStorage|gpu.UsageTransferDst),
	)
}

func TestUniqueFamilies(t *testing.T) {
	assert.Equal(t, []uint32{2, 0}, uniqueFamilies([]uint32{2, 0, 2, 0}))
	assert.Nil(t, uniqueFamilies(nil))
}

func TestTable(t *testing.T) {
	var tb table[string]
	a := tb.put("a")
	b := tb.put("b")
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)

	v, ok := tb.get(b)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	v, ok = tb.take(a)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = tb.get(a)
	assert.False(t, ok)
	assert.Equal(t, 1, tb.len())
}
