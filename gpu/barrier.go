package gpu

import "fmt"

// Access is a bit set of memory access types.
type Access uint32

const (
	AccessShaderRead Access = 1 << iota
	AccessShaderWrite
	AccessVertexAttributeRead
	AccessTransferRead
	AccessTransferWrite
	AccessHostWrite
	AccessUniformRead
)

// Stage is a bit set of pipeline stages.
type Stage uint32

const (
	StageTopOfPipe Stage = 1 << iota
	StageVertexInput
	StageVertexShader
	StageComputeShader
	StageTransfer
	StageColorAttachmentOutput
	StageBottomOfPipe
	StageHost
)

// BufferBarrier is a memory barrier on a buffer range, optionally transferring
// the buffer between queue families.
type BufferBarrier struct {
	Buffer    Buffer
	SrcAccess Access
	DstAccess Access

	SrcQueueFamily uint32
	DstQueueFamily uint32

	Offset uint64
	Size   uint64
}

// OwnershipTransfer reports whether the barrier moves the buffer to another
// queue family.
func (b BufferBarrier) OwnershipTransfer() bool {
	return b.SrcQueueFamily != QueueFamilyIgnored &&
		b.DstQueueFamily != QueueFamilyIgnored &&
		b.SrcQueueFamily != b.DstQueueFamily
}

// Barrier is a pipeline barrier with buffer memory barriers, the unit which
// gets recorded into a command buffer.
type Barrier struct {
	SrcStage Stage
	DstStage Stage
	Buffers  []BufferBarrier
}

// OwnershipTransfer reports whether any of the buffer barriers changes the
// queue family owning the buffer.
func (b Barrier) OwnershipTransfer() bool {
	for _, bb := range b.Buffers {
		if bb.OwnershipTransfer() {
			return true
		}
	}
	return false
}

// Release returns the half of an ownership transfer which is recorded on the
// source queue. The destination access mask is ignored there.
func (b Barrier) Release() Barrier {
	out := Barrier{
		SrcStage: b.SrcStage,
		DstStage: StageBottomOfPipe,
		Buffers:  make([]BufferBarrier, len(b.Buffers)),
	}
	for i, bb := range b.Buffers {
		bb.DstAccess = 0
		out.Buffers[i] = bb
	}
	return out
}

// Acquire returns the half of an ownership transfer which is recorded on the
// destination queue. The source access mask is ignored there.
func (b Barrier) Acquire() Barrier {
	out := Barrier{
		SrcStage: StageTopOfPipe,
		DstStage: b.DstStage,
		Buffers:  make([]BufferBarrier, len(b.Buffers)),
	}
	for i, bb := range b.Buffers {
		bb.SrcAccess = 0
		out.Buffers[i] = bb
	}
	return out
}

// Merge combines barriers into one. Stages are OR-ed together.
func Merge(barriers ...Barrier) Barrier {
	var out Barrier
	for _, b := range barriers {
		out.SrcStage |= b.SrcStage
		out.DstStage |= b.DstStage
		out.Buffers = append(out.Buffers, b.Buffers...)
	}
	return out
}

// BufferState is how a buffer is being used at a point in a frame.
type BufferState int

const (
	StateComputeWrite BufferState = iota
	StateGraphicsRead
	StateTransferRead
	StateTransferWrite
)

func (s BufferState) String() string {
	switch s {
	case StateComputeWrite:
		return "compute-write"
	case StateGraphicsRead:
		return "graphics-read"
	case StateTransferRead:
		return "transfer-read"
	case StateTransferWrite:
		return "transfer-write"
	default:
		return fmt.Sprintf("BufferState(%d)", int(s))
	}
}

func (s BufferState) access() (Access, Stage) {
	switch s {
	case StateComputeWrite:
		return AccessShaderRead | AccessShaderWrite, StageComputeShader
	case StateGraphicsRead:
		return AccessVertexAttributeRead | AccessShaderRead, StageVertexInput | StageVertexShader
	case StateTransferRead:
		return AccessTransferRead, StageTransfer
	case StateTransferWrite:
		return AccessTransferWrite, StageTransfer
	}
	return 0, 0
}

var supportedTransitions = map[[2]BufferState]bool{
	{StateComputeWrite, StateGraphicsRead}:  true,
	{StateGraphicsRead, StateComputeWrite}:  true,
	{StateComputeWrite, StateTransferRead}:  true,
	{StateTransferRead, StateComputeWrite}:  true,
	{StateGraphicsRead, StateTransferWrite}: true,
	{StateTransferWrite, StateGraphicsRead}: true,
}

// Transition builds the barrier which moves buf from one usage to another while
// handing it from queue src to queue dst. When both queues share a family the
// family indices are set to QueueFamilyIgnored and the result is a plain
// memory barrier.
func Transition(buf Buffer, from, to BufferState, src, dst Queue) (Barrier, error) {
	if !supportedTransitions[[2]BufferState{from, to}] {
		return Barrier{}, &TransitionError{From: from, To: to}
	}

	srcAccess, srcStage := from.access()
	dstAccess, dstStage := to.access()

	bb := BufferBarrier{
		Buffer:         buf,
		SrcAccess:      srcAccess,
		DstAccess:      dstAccess,
		SrcQueueFamily: src.Family,
		DstQueueFamily: dst.Family,
		Size:           WholeSize,
	}
	if src.SameFamily(dst) {
		bb.SrcQueueFamily = QueueFamilyIgnored
		bb.DstQueueFamily = QueueFamilyIgnored
	}

	return Barrier{
		SrcStage: srcStage,
		DstStage: dstStage,
		Buffers:  []BufferBarrier{bb},
	}, nil
}

// Handoff splits a transition into what the producing and the consuming queue
// have to record. Plain memory barriers are recorded by the consumer only so
// release is nil for them.
func Handoff(b Barrier) (release, acquire *Barrier) {
	if !b.OwnershipTransfer() {
		return nil, &b
	}
	r, a := b.Release(), b.Acquire()
	return &r, &a
}
