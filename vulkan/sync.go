package vulkan

import (
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"vulkan-async-compute/gpu"
)

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := resultError(vk.CreateFence(d.device, &fenceInfo, nil, &fence)); err != nil {
		return gpu.NullFence, fmt.Errorf("failed to create fence: %w", err)
	}
	return gpu.Fence(d.fences.put(fence)), nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	if fence, ok := d.fences.take(uint64(f)); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

func (d *Device) fence(f gpu.Fence) (vk.Fence, error) {
	if f == gpu.NullFence {
		return vk.NullFence, nil
	}
	fence, ok := d.fences.get(uint64(f))
	if !ok {
		return vk.NullFence, fmt.Errorf("unknown fence %d", f)
	}
	return fence, nil
}

func (d *Device) WaitForFence(f gpu.Fence, timeout time.Duration) error {
	fence, err := d.fence(f)
	if err != nil {
		return err
	}
	return resultError(vk.WaitForFences(
		d.device, 1, []vk.Fence{fence}, vk.True, uint64(timeout.Nanoseconds()),
	))
}

func (d *Device) FenceStatus(f gpu.Fence) error {
	fence, err := d.fence(f)
	if err != nil {
		return err
	}
	return resultError(vk.GetFenceStatus(d.device, fence))
}

func (d *Device) ResetFence(f gpu.Fence) error {
	fence, err := d.fence(f)
	if err != nil {
		return err
	}
	return resultError(vk.ResetFences(d.device, 1, []vk.Fence{fence}))
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var sem vk.Semaphore
	if err := resultError(vk.CreateSemaphore(d.device, &semaphoreInfo, nil, &sem)); err != nil {
		return 0, fmt.Errorf("failed to create semaphore: %w", err)
	}
	return gpu.Semaphore(d.semaphores.put(sem)), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	if sem, ok := d.semaphores.take(uint64(s)); ok {
		vk.DestroySemaphore(d.device, sem, nil)
	}
}

func (d *Device) vkSemaphores(sems []gpu.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(sems))
	for i, s := range sems {
		sem, ok := d.semaphores.get(uint64(s))
		if !ok {
			return nil, fmt.Errorf("unknown semaphore %d", s)
		}
		out[i] = sem
	}
	return out, nil
}

// Submit hands s to q. Errors are returned as *gpu.SubmitError.
func (d *Device) Submit(q gpu.Queue, s gpu.Submission) error {
	if err := d.submit(q, s); err != nil {
		return &gpu.SubmitError{Queue: q.Kind, Err: err}
	}
	return nil
}

func (d *Device) submit(q gpu.Queue, s gpu.Submission) error {
	queue, err := d.vkQueue(q)
	if err != nil {
		return err
	}
	fence, err := d.fence(s.Fence)
	if err != nil {
		return err
	}
	if len(s.Wait) != len(s.WaitStages) {
		return fmt.Errorf("%d wait semaphores with %d stages", len(s.Wait), len(s.WaitStages))
	}

	wait, err := d.vkSemaphores(s.Wait)
	if err != nil {
		return err
	}
	signal, err := d.vkSemaphores(s.Signal)
	if err != nil {
		return err
	}
	stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
	for i, st := range s.WaitStages {
		stages[i] = stageFlags(st)
	}

	commandBuffers := make([]vk.CommandBuffer, len(s.CommandBuffers))
	for i, h := range s.CommandBuffers {
		cb, ok := d.commandBuffers.get(uint64(h))
		if !ok {
			return fmt.Errorf("unknown command buffer %d", h)
		}
		commandBuffers[i] = cb.vk
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}

	return resultError(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, fence))
}

func (d *Device) QueueWaitIdle(q gpu.Queue) error {
	queue, err := d.vkQueue(q)
	if err != nil {
		return err
	}
	return resultError(vk.QueueWaitIdle(queue))
}

func (d *Device) WaitIdle() error {
	return resultError(vk.DeviceWaitIdle(d.device))
}
