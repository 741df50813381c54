package strategy

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"vulkan-async-compute/bufferset"
	"vulkan-async-compute/compute"
	"vulkan-async-compute/config"
	"vulkan-async-compute/gpu"
)

// copyState is where the transfer strategy is between a dispatch and the copy
// of its results.
type copyState int

const (
	stateIdle copyState = iota
	stateComputePending
	stateReadyToCopy
)

func (s copyState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateComputePending:
		return "compute-pending"
	case stateReadyToCopy:
		return "ready-to-copy"
	default:
		return fmt.Sprintf("copyState(%d)", int(s))
	}
}

// transferAsync lets compute write a storage buffer while graphics draws from
// a separate draw buffer. Finished dispatches are detected by polling and
// copied into the draw buffer, so the picture is a frame or more behind.
type transferAsync struct {
	dedicated bool

	buffers *bufferset.BufferSet
	compute *compute.Config

	// copyQueue is the graphics queue unless a dedicated transfer queue is
	// in use, which onTransfer reports.
	copyQueue  gpu.Queue
	onTransfer bool
	copyPool   gpu.CommandPool
	copyCmd    gpu.CommandBuffer

	state copyState

	// fence belongs to the dispatch in flight. Each dispatch gets a new one.
	fence gpu.Fence

	// storageFree is signaled by a copy and waited on by the next dispatch
	// which overwrites the storage buffer.
	storageFree gpu.Semaphore
	waitStorage bool

	// drawDone and copied order a copy on the transfer queue between the
	// draw reading the old contents and the draw reading the new ones.
	drawDone   gpu.Semaphore
	copied     gpu.Semaphore
	waitCopied bool
}

func (s *transferAsync) Mode() config.Mode {
	return config.ModeTransfer
}

func (s *transferAsync) CreateBuffers(rc *RenderContext, assets Assets) (err error) {
	s.copyQueue = rc.Graphics
	if s.dedicated && rc.HasTransfer {
		s.copyQueue = rc.Transfer
		s.onTransfer = true
	}

	s.buffers, s.compute, err = build(rc, assets, bufferset.Options{
		Layout:          bufferset.Pair,
		StorageFamilies: families(rc.Compute, s.copyQueue),
		DrawFamilies:    families(rc.Graphics, s.copyQueue),
		Upload:          rc.Graphics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.Teardown(rc)
		}
	}()

	// The storage buffer is shared concurrently with the copy queue.
	if err := s.compute.Record(bufferset.SlotA, nil, nil); err != nil {
		return err
	}

	s.copyPool, err = rc.Device.CreateCommandPool(s.copyQueue)
	if err != nil {
		return &gpu.ResourceError{Resource: "copy command pool", Err: err}
	}
	cbs, err := rc.Device.AllocateCommandBuffers(s.copyPool, 1)
	if err != nil {
		return &gpu.ResourceError{Resource: "copy command buffer", Err: err}
	}
	s.copyCmd = cbs[0]
	if err := s.recordCopy(rc); err != nil {
		return err
	}

	sems := []*gpu.Semaphore{&s.storageFree}
	if s.onTransfer {
		sems = append(sems, &s.drawDone, &s.copied)
	}
	for _, sem := range sems {
		if *sem, err = rc.Device.CreateSemaphore(); err != nil {
			return &gpu.ResourceError{Resource: "copy semaphore", Err: err}
		}
	}

	rc.Log.Debug("transfer strategy ready",
		zap.Stringer("copyQueue", s.copyQueue.Kind),
		zap.Uint32("copyFamily", s.copyQueue.Family),
	)
	return nil
}

// recordCopy records storage to draw with the barriers around it. Both
// buffers are shared concurrently so none of the barriers moves ownership.
func (s *transferAsync) recordCopy(rc *RenderContext) error {
	d := rc.Device
	q := s.copyQueue
	storage := s.buffers.Storage(bufferset.SlotA)
	draw := s.buffers.DrawSource(bufferset.SlotA)

	var barriers [4]gpu.Barrier
	steps := []struct {
		buf      gpu.Buffer
		from, to gpu.BufferState
	}{
		{storage, gpu.StateComputeWrite, gpu.StateTransferRead},
		{draw, gpu.StateGraphicsRead, gpu.StateTransferWrite},
		{draw, gpu.StateTransferWrite, gpu.StateGraphicsRead},
		{storage, gpu.StateTransferRead, gpu.StateComputeWrite},
	}
	for i, st := range steps {
		b, err := gpu.Transition(st.buf, st.from, st.to, q, q)
		if err != nil {
			return err
		}
		barriers[i] = b
	}
	before := gpu.Merge(barriers[0], barriers[1])
	after := gpu.Merge(barriers[2], barriers[3])

	// A transfer queue cannot name compute or vertex stages. The semaphores
	// around the copy carry those dependencies instead.
	if s.onTransfer {
		before = before.Acquire()
		after = after.Release()
	}

	if err := d.BeginCommandBuffer(s.copyCmd, false); err != nil {
		return fmt.Errorf("beginning copy command buffer: %w", err)
	}
	d.CmdPipelineBarrier(s.copyCmd, before)
	d.CmdCopyBuffer(s.copyCmd, storage, draw, s.buffers.ParticleBytes)
	d.CmdPipelineBarrier(s.copyCmd, after)
	if err := d.EndCommandBuffer(s.copyCmd); err != nil {
		return fmt.Errorf("recording copy command buffer: %w", err)
	}
	return nil
}

func (s *transferAsync) Frame(rc *RenderContext) error {
	if err := rc.Renderer.UpdateUniforms(rc.Elapsed); err != nil {
		return fmt.Errorf("updating graphics uniforms: %w", err)
	}

	if err := s.DispatchCompute(rc); err != nil {
		return err
	}

	req := s.buffers.Draw(bufferset.SlotA)
	if s.waitCopied {
		req.Wait = []gpu.Semaphore{s.copied}
		req.WaitStages = []gpu.Stage{gpu.StageVertexInput}
		s.waitCopied = false
	}
	copyAfterDraw := s.onTransfer && s.state == stateReadyToCopy
	if copyAfterDraw {
		req.Signal = []gpu.Semaphore{s.drawDone}
	}
	if err := rc.Renderer.DrawFrame(req); err != nil {
		return fmt.Errorf("drawing frame: %w", err)
	}

	if copyAfterDraw {
		if err := s.submitCopy(rc); err != nil {
			return err
		}
		if err := s.submitCompute(rc); err != nil {
			return err
		}
	}

	// Written while the dispatch submitted above may still read it.
	return s.compute.UpdateUniforms(rc.DeltaT())
}

// DispatchCompute advances the state machine without blocking. A finished
// dispatch is copied, unless the copy has to wait for the draw, and a new
// dispatch is submitted once the previous one was copied.
func (s *transferAsync) DispatchCompute(rc *RenderContext) error {
	if s.state == stateComputePending {
		switch err := rc.Device.FenceStatus(s.fence); {
		case err == nil:
			rc.Device.DestroyFence(s.fence)
			s.fence = gpu.NullFence
			s.state = stateReadyToCopy
		case errors.Is(err, gpu.ErrNotReady):
			return nil
		default:
			return fmt.Errorf("polling compute fence: %w", err)
		}
	}

	if s.state == stateReadyToCopy && !s.onTransfer {
		if err := s.submitCopy(rc); err != nil {
			return err
		}
	}

	if s.state == stateIdle {
		return s.submitCompute(rc)
	}
	return nil
}

func (s *transferAsync) submitCompute(rc *RenderContext) error {
	fence, err := rc.Device.CreateFence(false)
	if err != nil {
		return &gpu.ResourceError{Resource: "compute fence", Err: err}
	}

	sub := gpu.Submission{Fence: fence}
	if s.waitStorage {
		sub.Wait = []gpu.Semaphore{s.storageFree}
		sub.WaitStages = []gpu.Stage{gpu.StageComputeShader}
	}
	if err := s.compute.SubmitWith(bufferset.SlotA, sub); err != nil {
		rc.Device.DestroyFence(fence)
		return err
	}

	s.waitStorage = false
	s.fence = fence
	s.state = stateComputePending
	return nil
}

func (s *transferAsync) submitCopy(rc *RenderContext) error {
	sub := gpu.Submission{
		CommandBuffers: []gpu.CommandBuffer{s.copyCmd},
		Signal:         []gpu.Semaphore{s.storageFree},
	}
	if s.onTransfer {
		sub.Wait = []gpu.Semaphore{s.drawDone}
		sub.WaitStages = []gpu.Stage{gpu.StageTransfer}
		sub.Signal = append(sub.Signal, s.copied)
	}

	if err := rc.Device.Submit(s.copyQueue, sub); err != nil {
		return fmt.Errorf("submitting copy: %w", err)
	}

	s.waitStorage = true
	s.waitCopied = s.onTransfer
	s.state = stateIdle
	return nil
}

func (s *transferAsync) Teardown(rc *RenderContext) {
	d := rc.Device
	if s.fence != gpu.NullFence {
		d.DestroyFence(s.fence)
		s.fence = gpu.NullFence
	}
	for _, sem := range []*gpu.Semaphore{&s.storageFree, &s.drawDone, &s.copied} {
		if *sem != 0 {
			d.DestroySemaphore(*sem)
			*sem = 0
		}
	}
	if s.copyPool != 0 {
		d.DestroyCommandPool(s.copyPool)
		s.copyPool = 0
	}
	if s.compute != nil {
		s.compute.Destroy()
		s.compute = nil
	}
	if s.buffers != nil {
		s.buffers.Destroy(d)
		s.buffers = nil
	}
}

func (s *transferAsync) ComputeTimestamps() gpu.QueryPool {
	if s.compute == nil {
		return 0
	}
	return s.compute.Timestamps
}
