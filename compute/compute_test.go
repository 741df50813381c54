package compute

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vulkan-async-compute/bufferset"
	"vulkan-async-compute/gpu"
	"vulkan-async-compute/gpu/gputest"
)

func storage(t *testing.T, dev *gputest.Device, n int) []gpu.Buffer {
	t.Helper()

	var out []gpu.Buffer
	for i := 0; i < n; i++ {
		b, err := dev.CreateBuffer(gpu.BufferSpec{
			Size:     1024,
			Usage:    gpu.UsageStorage,
			Families: []uint32{0, 1},
		})
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestNewSingle(t *testing.T) {
	dev := gputest.New(gputest.Config{})
	q, _ := dev.Queue(gpu.QueueCompute)
	bufs := storage(t, dev, 1)

	c, err := New(dev, q, []byte{1}, 1000, bufs)
	require.NoError(t, err)

	assert.Equal(t, uint32(4), c.Groups())
	assert.Equal(t, c.Sets.Get(bufferset.SlotA), c.Sets.Get(bufferset.SlotB))
	assert.Equal(t, c.Fences.Get(bufferset.SlotA), c.Fences.Get(bufferset.SlotB))

	bindings := dev.Bindings(c.Sets.Get(bufferset.SlotA))
	require.Len(t, bindings, 2)
	assert.Equal(t, bufs[0], bindings[BindingParticles].Buffer)

	// Fences start signaled.
	assert.NoError(t, dev.FenceStatus(c.Fences.Get(bufferset.SlotA)))

	c.Destroy()
	dev.DestroyBuffer(bufs[0])
	assert.Zero(t, dev.Live())
}

func TestNewDouble(t *testing.T) {
	dev := gputest.New(gputest.Config{})
	q, _ := dev.Queue(gpu.QueueCompute)
	bufs := storage(t, dev, 2)

	c, err := New(dev, q, []byte{1}, 256, bufs)
	require.NoError(t, err)
	defer c.Destroy()

	assert.Equal(t, uint32(1), c.Groups())
	assert.NotEqual(t, c.Commands.Get(bufferset.SlotA), c.Commands.Get(bufferset.SlotB))
	assert.NotEqual(t, c.Fences.Get(bufferset.SlotA), c.Fences.Get(bufferset.SlotB))

	for i, slot := range []bufferset.Slot{bufferset.SlotA, bufferset.SlotB} {
		bindings := dev.Bindings(c.Sets.Get(slot))
		assert.Equal(t, bufs[i], bindings[BindingParticles].Buffer)
	}
}

func TestNewErrors(t *testing.T) {
	dev := gputest.New(gputest.Config{})
	q, _ := dev.Queue(gpu.QueueCompute)

	_, err := New(dev, q, []byte{1}, 10, nil)
	assert.Error(t, err)

	bufs := storage(t, dev, 1)
	_, err = New(dev, q, nil, 10, bufs)
	var re *gpu.ResourceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "compute pipeline", re.Resource)

	dev.DestroyBuffer(bufs[0])
	assert.Zero(t, dev.Live(), "partially built config is released")
}

func TestRecordSubmitWait(t *testing.T) {
	dev := gputest.New(gputest.Config{})
	q, _ := dev.Queue(gpu.QueueCompute)

	c, err := New(dev, q, []byte{1}, 512, storage(t, dev, 1))
	require.NoError(t, err)

	require.NoError(t, c.Record(bufferset.SlotA, nil, nil))
	require.NoError(t, c.Wait(bufferset.SlotA))
	require.NoError(t, c.Submit(bufferset.SlotA))
	require.NoError(t, c.Wait(bufferset.SlotA))

	subs := dev.SubmissionsTo(gpu.QueueCompute)
	require.Len(t, subs, 1)
	assert.Equal(t, 1, subs[0].Dispatches)
	assert.Equal(t, c.Fences.Get(bufferset.SlotA), subs[0].Fence)

	ts, err := dev.ReadTimestamps(c.Timestamps, 0, 2, true)
	require.NoError(t, err)
	assert.Equal(t, gputest.DefaultCosts.Dispatch, ts[1]-ts[0])
}

func TestUpdateUniforms(t *testing.T) {
	dev := gputest.New(gputest.Config{})
	q, _ := dev.Queue(gpu.QueueCompute)

	c, err := New(dev, q, []byte{1}, 2000, storage(t, dev, 1))
	require.NoError(t, err)

	assert.Equal(t, Uniforms{DeltaT: 0.016, DestX: 0.5, ParticleCount: 2000}, c.Uniforms)
	require.NoError(t, c.UpdateUniforms(0.033))
	assert.Equal(t, Uniforms{DeltaT: 0.033, DestX: 0.75, ParticleCount: 2000}, c.Uniforms)

	var uniform gpu.Buffer
	for _, b := range dev.Bindings(c.Sets.Get(bufferset.SlotA)) {
		if b.Kind == gpu.DescriptorUniformBuffer {
			uniform = b.Buffer
		}
	}
	data := dev.BufferData(uniform)
	require.Len(t, data, int(UniformsSize))
	assert.Equal(t, float32(0.033), math.Float32frombits(binary.NativeEndian.Uint32(data[0:])))
	assert.Equal(t, float32(0.75), math.Float32frombits(binary.NativeEndian.Uint32(data[4:])))
	assert.Equal(t, uint32(2000), binary.NativeEndian.Uint32(data[12:]))
}
