package strategy

import (
	"fmt"

	"vulkan-async-compute/bufferset"
	"vulkan-async-compute/compute"
	"vulkan-async-compute/config"
	"vulkan-async-compute/gpu"
)

// doubleBuffered runs compute on one particle slot while graphics draws the
// slot compute finished the frame before. The slots swap every frame.
type doubleBuffered struct {
	buffers *bufferset.BufferSet
	compute *compute.Config

	// slot is the one compute writes during the current frame.
	slot bufferset.Slot

	// drawn is signaled by the graphics submission of each frame.
	drawn gpu.Fence
}

func (s *doubleBuffered) Mode() config.Mode {
	return config.ModeDouble
}

// Slot returns the slot the next dispatch writes into.
func (s *doubleBuffered) Slot() bufferset.Slot {
	return s.slot
}

func (s *doubleBuffered) CreateBuffers(rc *RenderContext, assets Assets) (err error) {
	s.buffers, s.compute, err = build(rc, assets, bufferset.Options{
		Layout:          bufferset.Double,
		StorageFamilies: families(rc.Compute, rc.Graphics),
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

	// Slots are shared concurrently and only handed over through fences.
	for _, slot := range []bufferset.Slot{bufferset.SlotA, bufferset.SlotB} {
		if err := s.compute.Record(slot, nil, nil); err != nil {
			return err
		}
	}

	s.drawn, err = rc.Device.CreateFence(false)
	if err != nil {
		return &gpu.ResourceError{Resource: "graphics fence", Err: err}
	}
	s.slot = bufferset.SlotA
	return nil
}

func (s *doubleBuffered) Frame(rc *RenderContext) error {
	if err := updateUniforms(rc, s.compute); err != nil {
		return err
	}

	if err := s.DispatchCompute(rc); err != nil {
		return err
	}

	req := s.buffers.Draw(s.slot.Other())
	req.Fence = s.drawn
	if err := rc.Renderer.DrawFrame(req); err != nil {
		return fmt.Errorf("drawing frame: %w", err)
	}

	if err := gpu.SpinWaitFence(rc.Device, s.drawn, gpu.SpinStep); err != nil {
		return err
	}
	if err := rc.Device.ResetFence(s.drawn); err != nil {
		return fmt.Errorf("resetting graphics fence: %w", err)
	}

	written := s.slot
	s.slot = s.slot.Other()
	return s.compute.Wait(written)
}

// DispatchCompute submits the dispatch writing the current slot.
func (s *doubleBuffered) DispatchCompute(rc *RenderContext) error {
	return s.compute.Submit(s.slot)
}

func (s *doubleBuffered) Teardown(rc *RenderContext) {
	if s.drawn != gpu.NullFence {
		rc.Device.DestroyFence(s.drawn)
		s.drawn = gpu.NullFence
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

func (s *doubleBuffered) ComputeTimestamps() gpu.QueryPool {
	if s.compute == nil {
		return 0
	}
	return s.compute.Timestamps
}
