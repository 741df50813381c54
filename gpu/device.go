package gpu

import "time"

// Fences is the fence part of a Device.
type Fences interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)

	// WaitForFence blocks for at most timeout. It returns nil once the fence
	// is signaled, ErrTimeout when it is not and ErrDeviceLost when the
	// device is gone.
	WaitForFence(f Fence, timeout time.Duration) error

	// FenceStatus never blocks. It returns nil for signaled fences and
	// ErrNotReady otherwise.
	FenceStatus(f Fence) error

	ResetFence(f Fence) error
}

// Recorder records commands into command buffers.
type Recorder interface {
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error
	ResetCommandBuffer(cb CommandBuffer) error

	CmdPipelineBarrier(cb CommandBuffer, b Barrier)
	CmdBindComputePipeline(cb CommandBuffer, p Pipeline, set DescriptorSet)
	CmdDispatch(cb CommandBuffer, x, y, z uint32)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size uint64)
	CmdResetQueryPool(cb CommandBuffer, pool QueryPool, first, count uint32)
	CmdWriteTimestamp(cb CommandBuffer, stage Stage, pool QueryPool, query uint32)
}

// Device is everything the strategies and the scheduler need from the GPU.
type Device interface {
	Fences
	Recorder

	// Queue returns the queue resolved for kind. The transfer queue is
	// optional and ok is false on devices without a dedicated one.
	Queue(kind QueueKind) (q Queue, ok bool)

	// TimestampPeriod is the number of nanoseconds per timestamp tick.
	TimestampPeriod() float32

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	CreateCommandPool(q Queue) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)

	CreateBuffer(spec BufferSpec) (Buffer, error)
	DestroyBuffer(b Buffer)

	// WriteBuffer copies data into a host visible buffer at offset.
	WriteBuffer(b Buffer, offset uint64, data []byte) error

	// Upload fills a device local buffer through a staging buffer and a copy
	// on q. It returns once the copy has completed.
	Upload(b Buffer, data []byte, q Queue) error

	CreateComputePipeline(spec ComputePipelineSpec) (Pipeline, error)
	DestroyPipeline(p Pipeline)
	AllocateDescriptorSet(p Pipeline, bindings []DescriptorBinding) (DescriptorSet, error)

	CreateQueryPool(count uint32) (QueryPool, error)
	DestroyQueryPool(pool QueryPool)

	// ReadTimestamps returns count raw timestamps starting at first. With
	// wait it blocks until all of them are available, without it returns
	// ErrNotReady when any is missing.
	ReadTimestamps(pool QueryPool, first, count uint32, wait bool) ([]uint64, error)

	Submit(q Queue, s Submission) error
	QueueWaitIdle(q Queue) error
	WaitIdle() error
}

// DrawRequest is one frame worth of instanced particle drawing.
type DrawRequest struct {
	Vertices   Buffer
	Indices    Buffer
	IndexCount uint32

	Instances     Buffer
	InstanceCount uint32

	// Fence, when set, is signaled by the graphics submission instead of
	// the renderer's own in-flight fence. The caller waits on it.
	Fence Fence

	// Acquire is recorded before the render pass, Release after it.
	Acquire *Barrier
	Release *Barrier

	Wait       []Semaphore
	WaitStages []Stage

	// Signal is signaled by the graphics submission alongside the
	// renderer's own semaphores.
	Signal []Semaphore
}

// Renderer draws frames to the window. It records graphics timestamps 0 and 1
// of TimestampPool at the start and the end of every frame.
type Renderer interface {
	UpdateUniforms(elapsed time.Duration) error
	DrawFrame(req DrawRequest) error
	TimestampPool() QueryPool
	ShouldClose() bool
	PollEvents()
}
