package strategy

import (
	"fmt"

	"vulkan-async-compute/bufferset"
	"vulkan-async-compute/compute"
	"vulkan-async-compute/config"
	"vulkan-async-compute/gpu"
)

// computeOnly is the serial baseline. One particle buffer is handed back and
// forth between the compute and the graphics queue and compute is dispatched
// only once presentation went idle.
type computeOnly struct {
	buffers *bufferset.BufferSet
	compute *compute.Config

	// Halves of the ownership transfers recorded by the draw.
	drawAcquire *gpu.Barrier
	drawRelease *gpu.Barrier

	// computeDone orders the next draw after the dispatch whose release it
	// acquires.
	computeDone gpu.Semaphore
	dispatched  bool
}

func (s *computeOnly) Mode() config.Mode {
	return config.ModeCompute
}

func (s *computeOnly) CreateBuffers(rc *RenderContext, assets Assets) (err error) {
	s.buffers, s.compute, err = build(rc, assets, bufferset.Options{
		Layout: bufferset.Single,
		Upload: rc.Graphics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.Teardown(rc)
		}
	}()

	buf := s.buffers.Storage(bufferset.SlotA)
	toGraphics, err := gpu.Transition(buf, gpu.StateComputeWrite, gpu.StateGraphicsRead,
		rc.Compute, rc.Graphics)
	if err != nil {
		return err
	}
	toCompute, err := gpu.Transition(buf, gpu.StateGraphicsRead, gpu.StateComputeWrite,
		rc.Graphics, rc.Compute)
	if err != nil {
		return err
	}

	releaseToCompute, acquireFromGraphics := gpu.Handoff(toCompute)
	releaseToGraphics, acquireFromCompute := gpu.Handoff(toGraphics)

	if err := s.compute.Record(bufferset.SlotA, acquireFromGraphics, releaseToGraphics); err != nil {
		return err
	}
	s.drawAcquire = acquireFromCompute
	s.drawRelease = releaseToCompute

	s.computeDone, err = rc.Device.CreateSemaphore()
	if err != nil {
		return &gpu.ResourceError{Resource: "compute semaphore", Err: err}
	}
	return nil
}

func (s *computeOnly) Frame(rc *RenderContext) error {
	if err := updateUniforms(rc, s.compute); err != nil {
		return err
	}

	req := s.buffers.Draw(bufferset.SlotA)
	req.Release = s.drawRelease

	// The initial upload leaves the buffer with graphics.
	if s.dispatched {
		req.Acquire = s.drawAcquire
		req.Wait = []gpu.Semaphore{s.computeDone}
		req.WaitStages = []gpu.Stage{gpu.StageVertexInput}
	}

	if err := rc.Renderer.DrawFrame(req); err != nil {
		return fmt.Errorf("drawing frame: %w", err)
	}

	return s.DispatchCompute(rc)
}

func (s *computeOnly) DispatchCompute(rc *RenderContext) error {
	if err := rc.Device.QueueWaitIdle(rc.Present); err != nil {
		return fmt.Errorf("waiting for present queue: %w", err)
	}
	if err := s.compute.Wait(bufferset.SlotA); err != nil {
		return err
	}

	fence := s.compute.Fences.Get(bufferset.SlotA)
	if err := rc.Device.ResetFence(fence); err != nil {
		return fmt.Errorf("resetting compute fence: %w", err)
	}
	err := s.compute.SubmitWith(bufferset.SlotA, gpu.Submission{
		Signal: []gpu.Semaphore{s.computeDone},
		Fence:  fence,
	})
	if err != nil {
		return err
	}

	s.dispatched = true
	return nil
}

func (s *computeOnly) Teardown(rc *RenderContext) {
	if s.computeDone != 0 {
		rc.Device.DestroySemaphore(s.computeDone)
		s.computeDone = 0
	}
	if s.compute != nil {
		s.compute.Destroy()
		s.compute = nil
	}
	if s.buffers != nil {
		s.buffers.Destroy(rc.Device)
		s.buffers = nil
	}
}

func (s *computeOnly) ComputeTimestamps() gpu.QueryPool {
	if s.compute == nil {
		return 0
	}
	return s.compute.Timestamps
}
