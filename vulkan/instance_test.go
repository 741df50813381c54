package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-async-compute/gpu"
	"vulkan-async-compute/queues"
)

func TestQueueSlots(t *testing.T) {
	family := func(count uint32) vk.QueueFamilyProperties {
		return vk.QueueFamilyProperties{QueueCount: count}
	}

	t.Run("separate families", func(t *testing.T) {
		var indices queues.FamilyIndices
		indices.Graphics.Set(0)
		indices.Present.Set(0)
		indices.Compute.Set(1)
		indices.Transfer.Set(2)

		slots, counts := queueSlots(indices, []vk.QueueFamilyProperties{family(1), family(4), family(2)})
		assert.Equal(t, [2]uint32{0, 0}, slots[gpu.QueueGraphics])
		assert.Equal(t, [2]uint32{0, 0}, slots[gpu.QueuePresent])
		assert.Equal(t, [2]uint32{1, 0}, slots[gpu.QueueCompute])
		assert.Equal(t, [2]uint32{2, 0}, slots[gpu.QueueTransfer])
		assert.Equal(t, map[uint32]uint32{0: 1, 1: 1, 2: 1}, counts)
	})

	t.Run("one family with spare queues", func(t *testing.T) {
		var indices queues.FamilyIndices
		indices.Graphics.Set(0)
		indices.Present.Set(0)
		indices.Compute.Set(0)

		slots, counts := queueSlots(indices, []vk.QueueFamilyProperties{family(16)})
		assert.Equal(t, [2]uint32{0, 0}, slots[gpu.QueueGraphics])
		assert.Equal(t, [2]uint32{0, 1}, slots[gpu.QueueCompute])
		assert.NotContains(t, slots, gpu.QueueTransfer)
		assert.Equal(t, uint32(2), counts[0])
	})

	t.Run("one family with a single queue", func(t *testing.T) {
		var indices queues.FamilyIndices
		indices.Graphics.Set(0)
		indices.Present.Set(1)
		indices.Compute.Set(0)

		slots, counts := queueSlots(indices, []vk.QueueFamilyProperties{family(1), family(1)})
		assert.Equal(t, slots[gpu.QueueGraphics], slots[gpu.QueueCompute])
		assert.Equal(t, [2]uint32{1, 0}, slots[gpu.QueuePresent])
		assert.Equal(t, uint32(1), counts[0])
	})
}
