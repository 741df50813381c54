// Package gpu describes the small slice of a Vulkan device the benchmark needs.
//
// The types here carry no Vulkan symbols so that buffer ownership, strategies
// and the scheduler can be exercised against the simulated device in gputest.
// The vulkan package provides the real implementation.
package gpu

import "fmt"

// Handle types. A zero value is the null handle.
type (
	Fence         uint64
	Semaphore     uint64
	Buffer        uint64
	CommandPool   uint64
	CommandBuffer uint64
	DescriptorSet uint64
	Pipeline      uint64
	QueryPool     uint64
)

// NullFence is used for submissions which do not signal a fence.
const NullFence Fence = 0

// QueueFamilyIgnored marks barriers which do not transfer queue family ownership.
const QueueFamilyIgnored = ^uint32(0)

// WholeSize covers a buffer from the barrier offset to its end.
const WholeSize = ^uint64(0)

// QueueKind names the role a queue plays in the benchmark.
type QueueKind int

const (
	QueueGraphics QueueKind = iota
	QueueCompute
	QueueTransfer
	QueuePresent
)

func (k QueueKind) String() string {
	switch k {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	case QueuePresent:
		return "present"
	default:
		return fmt.Sprintf("QueueKind(%d)", int(k))
	}
}

// Queue is a device queue resolved once at start up. Two kinds may share
// the same family, in which case they are the same hardware queue.
type Queue struct {
	Kind   QueueKind
	Family uint32
}

// SameFamily reports whether q and other live in the same queue family.
func (q Queue) SameFamily(other Queue) bool {
	return q.Family == other.Family
}

// BufferUsage is a bit set of the ways a buffer is going to be used.
type BufferUsage uint32

const (
	UsageStorage BufferUsage = 1 << iota
	UsageVertex
	UsageIndex
	UsageUniform
	UsageTransferSrc
	UsageTransferDst
)

// BufferSpec describes a buffer to be created.
type BufferSpec struct {
	Size  uint64
	Usage BufferUsage

	// HostVisible buffers are mapped for the whole of their lifetime and can
	// be written with Device.WriteBuffer.
	HostVisible bool

	// Families lists the queue families which access the buffer. With more
	// than one distinct family the buffer is created with concurrent sharing
	// and needs no ownership transfers.
	Families []uint32
}

// Concurrent reports whether the buffer will use concurrent sharing.
func (s BufferSpec) Concurrent() bool {
	for _, f := range s.Families {
		if f != s.Families[0] {
			return true
		}
	}
	return false
}

// DescriptorKind is the type of resource bound at a descriptor binding.
type DescriptorKind int

const (
	DescriptorStorageBuffer DescriptorKind = iota
	DescriptorUniformBuffer
)

// DescriptorBinding binds Buffer at Binding of a descriptor set.
type DescriptorBinding struct {
	Binding uint32
	Kind    DescriptorKind
	Buffer  Buffer
}

// ComputePipelineSpec describes a compute pipeline with a single descriptor set.
type ComputePipelineSpec struct {
	// Shader is SPIR-V byte code with a "main" entry point.
	Shader []byte

	// Bindings is the layout of descriptor set 0, indexed by binding.
	Bindings []DescriptorKind
}

// Submission is a batch of command buffers handed to a queue.
type Submission struct {
	CommandBuffers []CommandBuffer

	Wait       []Semaphore
	WaitStages []Stage
	Signal     []Semaphore

	// Fence is signaled once every command buffer has completed.
	Fence Fence
}
