// Package compute owns the particle simulation pipeline and everything needed
// to record and submit it.
package compute

import (
	"fmt"
	"unsafe"

	"vulkan-async-compute/bufferset"
	"vulkan-async-compute/gpu"
	"vulkan-async-compute/unsafer"
)

// WorkgroupSize is the local size of the particle shader.
const WorkgroupSize = 256

// Uniforms is the physics parameter block read by the compute shader.
type Uniforms struct {
	DeltaT        float32
	DestX         float32
	DestY         float32
	ParticleCount int32
}

// UniformsSize is the size of Uniforms in bytes.
const UniformsSize = uint64(unsafe.Sizeof(Uniforms{}))

// Attractor X position used once the simulation is running.
const runningDestX = 0.75

// Binding indices of the particle shader.
const (
	BindingParticles = 0
	BindingUniforms  = 1
)

// Config is the compute pipeline with one descriptor set, command buffer and
// fence per storage buffer.
type Config struct {
	dev   gpu.Device
	queue gpu.Queue

	pool     gpu.CommandPool
	pipeline gpu.Pipeline
	uniform  gpu.Buffer

	Uniforms Uniforms

	Sets     bufferset.Ring[gpu.DescriptorSet]
	Commands bufferset.Ring[gpu.CommandBuffer]
	Fences   bufferset.Ring[gpu.Fence]

	// Timestamps brackets every dispatch with queries 0 and 1.
	Timestamps gpu.QueryPool

	slots         int
	particleCount uint32
}

// New builds the compute pipeline for storage, which has either one buffer or
// one per slot. Fences start signaled so the first wait returns at once.
func New(
	dev gpu.Device,
	queue gpu.Queue,
	shader []byte,
	particleCount uint32,
	storage []gpu.Buffer,
) (_ *Config, err error) {
	if len(storage) < 1 || len(storage) > 2 {
		return nil, fmt.Errorf("compute needs one or two storage buffers, got %d", len(storage))
	}

	c := &Config{
		dev:           dev,
		queue:         queue,
		slots:         len(storage),
		particleCount: particleCount,
		Uniforms: Uniforms{
			DeltaT:        0.016,
			DestX:         0.5,
			DestY:         0,
			ParticleCount: int32(particleCount),
		},
	}
	defer func() {
		if err != nil {
			c.Destroy()
		}
	}()

	c.uniform, err = dev.CreateBuffer(gpu.BufferSpec{
		Size:        UniformsSize,
		Usage:       gpu.UsageUniform,
		HostVisible: true,
	})
	if err != nil {
		return nil, &gpu.ResourceError{Resource: "compute uniform buffer", Err: err}
	}
	if err := c.writeUniforms(); err != nil {
		return nil, err
	}

	c.pipeline, err = dev.CreateComputePipeline(gpu.ComputePipelineSpec{
		Shader: shader,
		Bindings: []gpu.DescriptorKind{
			BindingParticles: gpu.DescriptorStorageBuffer,
			BindingUniforms:  gpu.DescriptorUniformBuffer,
		},
	})
	if err != nil {
		return nil, &gpu.ResourceError{Resource: "compute pipeline", Err: err}
	}

	c.pool, err = dev.CreateCommandPool(queue)
	if err != nil {
		return nil, &gpu.ResourceError{Resource: "compute command pool", Err: err}
	}
	commands, err := dev.AllocateCommandBuffers(c.pool, c.slots)
	if err != nil {
		return nil, &gpu.ResourceError{Resource: "compute command buffers", Err: err}
	}

	c.Timestamps, err = dev.CreateQueryPool(2)
	if err != nil {
		return nil, &gpu.ResourceError{Resource: "compute query pool", Err: err}
	}

	for i, buf := range storage {
		slot := bufferset.Slot(i)
		c.Commands.Set(slot, commands[i])

		set, err := dev.AllocateDescriptorSet(c.pipeline, []gpu.DescriptorBinding{
			{Binding: BindingParticles, Kind: gpu.DescriptorStorageBuffer, Buffer: buf},
			{Binding: BindingUniforms, Kind: gpu.DescriptorUniformBuffer, Buffer: c.uniform},
		})
		if err != nil {
			return nil, &gpu.ResourceError{Resource: "compute descriptor set", Err: err}
		}
		c.Sets.Set(slot, set)

		fence, err := dev.CreateFence(true)
		if err != nil {
			return nil, &gpu.ResourceError{Resource: "compute fence", Err: err}
		}
		c.Fences.Set(slot, fence)
	}

	// With a single buffer both slots alias it so callers can ignore parity.
	if c.slots == 1 {
		c.Commands.Set(bufferset.SlotB, c.Commands.Get(bufferset.SlotA))
		c.Sets.Set(bufferset.SlotB, c.Sets.Get(bufferset.SlotA))
		c.Fences.Set(bufferset.SlotB, c.Fences.Get(bufferset.SlotA))
	}

	return c, nil
}

// Queue returns the queue compute work is submitted to.
func (c *Config) Queue() gpu.Queue {
	return c.queue
}

// Groups is the number of workgroups one dispatch needs.
func (c *Config) Groups() uint32 {
	return (c.particleCount + WorkgroupSize - 1) / WorkgroupSize
}

// Record records the dispatch for slot. Acquire is recorded before and release
// after it when not nil.
func (c *Config) Record(slot bufferset.Slot, acquire, release *gpu.Barrier) error {
	cb := c.Commands.Get(slot)

	if err := c.dev.ResetCommandBuffer(cb); err != nil {
		return fmt.Errorf("resetting compute command buffer: %w", err)
	}
	if err := c.dev.BeginCommandBuffer(cb, false); err != nil {
		return fmt.Errorf("beginning compute command buffer: %w", err)
	}

	if acquire != nil {
		c.dev.CmdPipelineBarrier(cb, *acquire)
	}

	c.dev.CmdResetQueryPool(cb, c.Timestamps, 0, 2)
	c.dev.CmdWriteTimestamp(cb, gpu.StageTopOfPipe, c.Timestamps, 0)
	c.dev.CmdBindComputePipeline(cb, c.pipeline, c.Sets.Get(slot))
	c.dev.CmdDispatch(cb, c.Groups(), 1, 1)
	c.dev.CmdWriteTimestamp(cb, gpu.StageComputeShader, c.Timestamps, 1)

	if release != nil {
		c.dev.CmdPipelineBarrier(cb, *release)
	}

	if err := c.dev.EndCommandBuffer(cb); err != nil {
		return fmt.Errorf("recording compute command buffer: %w", err)
	}
	return nil
}

// UpdateUniforms writes the physics parameters for the next dispatch. The
// uniform buffer is shared by every slot and written without waiting for
// dispatches which may still be reading it.
func (c *Config) UpdateUniforms(deltaT float32) error {
	c.Uniforms.DeltaT = deltaT
	c.Uniforms.DestX = runningDestX
	return c.writeUniforms()
}

func (c *Config) writeUniforms() error {
	if err := c.dev.WriteBuffer(c.uniform, 0, unsafer.StructToBytes(&c.Uniforms)); err != nil {
		return fmt.Errorf("writing compute uniforms: %w", err)
	}
	return nil
}

// Submit resets the fence of slot and submits its command buffer with it.
func (c *Config) Submit(slot bufferset.Slot) error {
	fence := c.Fences.Get(slot)
	if err := c.dev.ResetFence(fence); err != nil {
		return fmt.Errorf("resetting compute fence: %w", err)
	}
	return c.SubmitWith(slot, gpu.Submission{Fence: fence})
}

// SubmitWith submits the command buffer of slot with the synchronisation in s.
func (c *Config) SubmitWith(slot bufferset.Slot, s gpu.Submission) error {
	s.CommandBuffers = []gpu.CommandBuffer{c.Commands.Get(slot)}
	if err := c.dev.Submit(c.queue, s); err != nil {
		return fmt.Errorf("submitting compute: %w", err)
	}
	return nil
}

// Wait blocks until the fence of slot is signaled.
func (c *Config) Wait(slot bufferset.Slot) error {
	return gpu.WaitFence(c.dev, c.Fences.Get(slot))
}

// Destroy releases every object the config created. It is safe on a
// partially built config.
func (c *Config) Destroy() {
	seen := make(map[gpu.Fence]bool)
	for _, f := range c.Fences.Slots() {
		if f != gpu.NullFence && !seen[f] {
			seen[f] = true
			c.dev.DestroyFence(f)
		}
	}
	c.Fences = bufferset.Ring[gpu.Fence]{}

	if c.Timestamps != 0 {
		c.dev.DestroyQueryPool(c.Timestamps)
		c.Timestamps = 0
	}
	if c.pool != 0 {
		c.dev.DestroyCommandPool(c.pool)
		c.pool = 0
	}
	if c.pipeline != 0 {
		c.dev.DestroyPipeline(c.pipeline)
		c.pipeline = 0
	}
	if c.uniform != 0 {
		c.dev.DestroyBuffer(c.uniform)
		c.uniform = 0
	}
}
