package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-async-compute/gpu"
)

func TestFrameQueries(t *testing.T) {
	assert.Equal(t, uint32(0), queryFrameStart)
	assert.Equal(t, uint32(1), queryFrameEnd)
	assert.Equal(t, uint32(2), frameQueries)
}

func TestFrameSubmission(t *testing.T) {
	req := gpu.DrawRequest{
		Wait:       []gpu.Semaphore{7},
		WaitStages: []gpu.Stage{gpu.StageVertexInput},
		Signal:     []gpu.Semaphore{8, 9},
	}

	s := frameSubmission(3, 1, 2, 5, req)
	assert.Equal(t, []gpu.CommandBuffer{3}, s.CommandBuffers)
	assert.Equal(t, []gpu.Semaphore{1, 7}, s.Wait)
	assert.Equal(t, []gpu.Stage{gpu.StageColorAttachmentOutput, gpu.StageVertexInput}, s.WaitStages)
	assert.Equal(t, []gpu.Semaphore{2, 8, 9}, s.Signal)
	assert.Equal(t, gpu.Fence(5), s.Fence)

	s.Signal[1] = 99
	assert.Equal(t, gpu.Semaphore(8), req.Signal[0], "request slices are not shared")

	s = frameSubmission(3, 1, 2, 5, gpu.DrawRequest{})
	assert.Equal(t, []gpu.Semaphore{1}, s.Wait)
	assert.Equal(t, []gpu.Stage{gpu.StageColorAttachmentOutput}, s.WaitStages)
	assert.Equal(t, []gpu.Semaphore{2}, s.Signal)
}

func TestResolveDraw(t *testing.T) {
	d := &Device{}
	vertices := gpu.Buffer(d.buffers.put(&buffer{}))
	indices := gpu.Buffer(d.buffers.put(&buffer{}))
	instances := gpu.Buffer(d.buffers.put(&buffer{}))

	req := gpu.DrawRequest{Vertices: vertices, Indices: indices, Instances: instances}
	_, err := d.resolveDraw(req)
	require.NoError(t, err)

	missing := req
	missing.Instances = 42
	_, err = d.resolveDraw(missing)
	assert.ErrorContains(t, err, "unknown instance buffer 42")

	missing = req
	missing.Indices = 0
	_, err = d.resolveDraw(missing)
	assert.ErrorContains(t, err, "unknown index buffer")

	uneven := req
	uneven.Wait = []gpu.Semaphore{1, 2}
	uneven.WaitStages = []gpu.Stage{gpu.StageVertexInput}
	_, err = d.resolveDraw(uneven)
	assert.ErrorContains(t, err, "2 wait semaphores with 1 wait stages")
}

func TestParticleStates(t *testing.T) {
	st := newParticleStates()

	assert.Equal(t, uint32(2), st.vertexInput.VertexBindingDescriptionCount)
	assert.Equal(t, uint32(5), st.vertexInput.VertexAttributeDescriptionCount)
	assert.Equal(t, vk.PrimitiveTopologyTriangleList, st.inputAssembly.Topology)
	assert.Equal(t, vk.CullModeFlags(vk.CullModeNone), st.raster.CullMode)
	assert.Equal(t, vk.Bool32(vk.True), st.depth.DepthTestEnable)
	assert.Equal(t, vk.CompareOpLess, st.depth.DepthCompareOp)
	assert.Equal(t, []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}, st.dynamic.PDynamicStates)
	require.Len(t, st.blend.PAttachments, 1)
	assert.Equal(t, vk.Bool32(vk.False), st.blend.PAttachments[0].BlendEnable)
}
