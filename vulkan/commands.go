package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"vulkan-async-compute/gpu"
)

func (d *Device) CreateCommandPool(q gpu.Queue) (gpu.CommandPool, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType: vk.StructureTypeCommandPoolCreateInfo,
		Flags: vk.CommandPoolCreateFlags(
			vk.CommandPoolCreateResetCommandBufferBit,
		),
		QueueFamilyIndex: q.Family,
	}

	var pool vk.CommandPool
	res := vk.CreateCommandPool(d.device, &poolInfo, nil, &pool)
	if err := resultError(res); err != nil {
		return 0, fmt.Errorf("failed to create command pool: %w", err)
	}
	return gpu.CommandPool(d.pools.put(&commandPool{vk: pool})), nil
}

// DestroyCommandPool destroys pool and frees its command buffers.
func (d *Device) DestroyCommandPool(pool gpu.CommandPool) {
	p, ok := d.pools.take(uint64(pool))
	if !ok {
		return
	}
	for _, cb := range p.buffers {
		d.commandBuffers.take(uint64(cb))
	}
	vk.DestroyCommandPool(d.device, p.vk, nil)
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	p, ok := d.pools.get(uint64(pool))
	if !ok {
		return nil, fmt.Errorf("unknown command pool %d", pool)
	}

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.vk,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}

	commandBuffers := make([]vk.CommandBuffer, count)
	res := vk.AllocateCommandBuffers(d.device, &allocInfo, commandBuffers)
	if err := resultError(res); err != nil {
		return nil, fmt.Errorf("failed to allocate command buffers: %w", err)
	}

	out := make([]gpu.CommandBuffer, count)
	for i, cb := range commandBuffers {
		out[i] = gpu.CommandBuffer(d.commandBuffers.put(&commandBuffer{vk: cb, pool: pool}))
		p.buffers = append(p.buffers, out[i])
	}
	return out, nil
}

// cmd resolves a command buffer handle. Recording into an unknown handle is
// a programming error.
func (d *Device) cmd(h gpu.CommandBuffer) vk.CommandBuffer {
	cb, ok := d.commandBuffers.get(uint64(h))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown command buffer %d", h))
	}
	return cb.vk
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer, oneTime bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}

	if err := resultError(vk.BeginCommandBuffer(d.cmd(cb), &beginInfo)); err != nil {
		return fmt.Errorf("cannot add begin command to the buffer: %w", err)
	}
	return nil
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	if err := resultError(vk.EndCommandBuffer(d.cmd(cb))); err != nil {
		return fmt.Errorf("recording commands to buffer failed: %w", err)
	}
	return nil
}

func (d *Device) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	return resultError(vk.ResetCommandBuffer(d.cmd(cb), 0))
}

func (d *Device) CmdPipelineBarrier(cb gpu.CommandBuffer, b gpu.Barrier) {
	d.cmdPipelineBarrier(d.cmd(cb), b)
}

func (d *Device) cmdPipelineBarrier(cb vk.CommandBuffer, b gpu.Barrier) {
	barriers := make([]vk.BufferMemoryBarrier, 0, len(b.Buffers))
	for _, bb := range b.Buffers {
		buf, ok := d.buffers.get(uint64(bb.Buffer))
		if !ok {
			panic(fmt.Sprintf("vulkan: barrier on unknown buffer %d", bb.Buffer))
		}
		barriers = append(barriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       accessFlags(bb.SrcAccess),
			DstAccessMask:       accessFlags(bb.DstAccess),
			SrcQueueFamilyIndex: bb.SrcQueueFamily,
			DstQueueFamilyIndex: bb.DstQueueFamily,
			Buffer:              buf.vk,
			Offset:              vk.DeviceSize(bb.Offset),
			Size:                vk.DeviceSize(bb.Size),
		})
	}

	vk.CmdPipelineBarrier(
		cb,
		stageFlags(b.SrcStage), stageFlags(b.DstStage),
		0,
		0, nil,
		uint32(len(barriers)), barriers,
		0, nil,
	)
}

func (d *Device) CmdBindComputePipeline(cb gpu.CommandBuffer, p gpu.Pipeline, set gpu.DescriptorSet) {
	pl, ok := d.pipelines.get(uint64(p))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown pipeline %d", p))
	}
	ds, ok := d.sets.get(uint64(set))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown descriptor set %d", set))
	}

	c := d.cmd(cb)
	vk.CmdBindPipeline(c, vk.PipelineBindPointCompute, pl.vk)
	vk.CmdBindDescriptorSets(
		c,
		vk.PipelineBindPointCompute,
		pl.layout,
		0,
		1,
		[]vk.DescriptorSet{ds.vk},
		0,
		nil,
	)
}

func (d *Device) CmdDispatch(cb gpu.CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(d.cmd(cb), x, y, z)
}

func (d *Device) CmdCopyBuffer(cb gpu.CommandBuffer, src, dst gpu.Buffer, size uint64) {
	s, ok := d.buffers.get(uint64(src))
	if !ok {
		panic(fmt.Sprintf("vulkan: copy from unknown buffer %d", src))
	}
	t, ok := d.buffers.get(uint64(dst))
	if !ok {
		panic(fmt.Sprintf("vulkan: copy to unknown buffer %d", dst))
	}

	copyRegion := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(d.cmd(cb), s.vk, t.vk, 1, []vk.BufferCopy{copyRegion})
}

func (d *Device) CmdResetQueryPool(cb gpu.CommandBuffer, pool gpu.QueryPool, first, count uint32) {
	vk.CmdResetQueryPool(d.cmd(cb), d.queryPool(pool), first, count)
}

func (d *Device) CmdWriteTimestamp(cb gpu.CommandBuffer, stage gpu.Stage, pool gpu.QueryPool, query uint32) {
	vk.CmdWriteTimestamp(
		d.cmd(cb),
		vk.PipelineStageFlagBits(stageFlags(stage)),
		d.queryPool(pool),
		query,
	)
}

// singleTimeCommands records record into a throwaway command buffer, submits
// it to q and waits for q to go idle.
func (d *Device) singleTimeCommands(q gpu.Queue, record func(cb vk.CommandBuffer)) error {
	queue, err := d.vkQueue(q)
	if err != nil {
		return err
	}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: q.Family,
	}
	var pool vk.CommandPool
	if err := resultError(vk.CreateCommandPool(d.device, &poolInfo, nil, &pool)); err != nil {
		return fmt.Errorf("failed to create transient command pool: %w", err)
	}
	defer vk.DestroyCommandPool(d.device, pool, nil)

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        pool,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(d.device, &allocInfo, commandBuffers)
	if err := resultError(res); err != nil {
		return fmt.Errorf("failed to allocate command buffer: %w", err)
	}

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := resultError(vk.BeginCommandBuffer(commandBuffers[0], &beginInfo)); err != nil {
		return fmt.Errorf("failed to begin command buffer: %w", err)
	}

	record(commandBuffers[0])

	if err := resultError(vk.EndCommandBuffer(commandBuffers[0])); err != nil {
		return fmt.Errorf("failed end command buffer: %w", err)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    commandBuffers,
	}
	res = vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)
	if err := resultError(res); err != nil {
		return fmt.Errorf("failed to submit to %s queue: %w", q.Kind, err)
	}

	if err := resultError(vk.QueueWaitIdle(queue)); err != nil {
		return fmt.Errorf("failed to wait on %s queue idle: %w", q.Kind, err)
	}
	return nil
}
