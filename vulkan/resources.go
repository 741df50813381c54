package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"vulkan-async-compute/gpu"
	"vulkan-async-compute/unsafer"
)

// timestampSize is the size of a query result read with Result64Bit.
const timestampSize = 8

func (d *Device) CreateBuffer(spec gpu.BufferSpec) (gpu.Buffer, error) {
	properties := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if spec.HostVisible {
		properties = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) |
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}

	buf, err := d.createBuffer(spec.Size, usageFlags(spec.Usage), properties,
		uniqueFamilies(spec.Families))
	if err != nil {
		return 0, err
	}

	if spec.HostVisible {
		res := vk.MapMemory(d.device, buf.memory, 0, vk.DeviceSize(spec.Size), 0, &buf.mapped)
		if err := resultError(res); err != nil {
			d.freeBuffer(buf)
			return 0, fmt.Errorf("failed to map buffer memory: %w", err)
		}
	}

	return gpu.Buffer(d.buffers.put(buf)), nil
}

func (d *Device) createBuffer(
	size uint64,
	usage vk.BufferUsageFlags,
	properties vk.MemoryPropertyFlags,
	families []uint32,
) (*buffer, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if len(families) > 1 {
		bufferInfo.SharingMode = vk.SharingModeConcurrent
		bufferInfo.QueueFamilyIndexCount = uint32(len(families))
		bufferInfo.PQueueFamilyIndices = families
	}

	buf := &buffer{size: size}
	res := vk.CreateBuffer(d.device, &bufferInfo, nil, &buf.vk)
	if err := resultError(res); err != nil {
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf.vk, &memRequirements)
	memRequirements.Deref()

	memTypeIndex, err := d.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		vk.DestroyBuffer(d.device, buf.vk, nil)
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}

	res = vk.AllocateMemory(d.device, &allocInfo, nil, &buf.memory)
	if err := resultError(res); err != nil {
		vk.DestroyBuffer(d.device, buf.vk, nil)
		return nil, fmt.Errorf("failed to allocate buffer memory: %w", err)
	}

	res = vk.BindBufferMemory(d.device, buf.vk, buf.memory, 0)
	if err := resultError(res); err != nil {
		d.freeBuffer(buf)
		return nil, fmt.Errorf("failed to bind buffer memory: %w", err)
	}

	return buf, nil
}

func (d *Device) findMemoryType(
	typeFilter uint32,
	properties vk.MemoryPropertyFlags,
) (uint32, error) {
	for i := uint32(0); i < d.memProperties.MemoryTypeCount; i++ {
		memType := d.memProperties.MemoryTypes[i]
		memType.Deref()

		if typeFilter&(1<<i) == 0 {
			continue
		}

		if memType.PropertyFlags&properties != properties {
			continue
		}

		return i, nil
	}

	return 0, fmt.Errorf("failed to find suitable memory type")
}

func (d *Device) freeBuffer(buf *buffer) {
	if buf.mapped != nil {
		vk.UnmapMemory(d.device, buf.memory)
		buf.mapped = nil
	}
	vk.DestroyBuffer(d.device, buf.vk, nil)
	vk.FreeMemory(d.device, buf.memory, nil)
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	if buf, ok := d.buffers.take(uint64(b)); ok {
		d.freeBuffer(buf)
	}
}

func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	buf, ok := d.buffers.get(uint64(b))
	if !ok {
		return fmt.Errorf("unknown buffer %d", b)
	}
	if buf.mapped == nil {
		return fmt.Errorf("buffer %d is not host visible", b)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("writing %d bytes at %d overflows buffer of %d bytes",
			len(data), offset, buf.size)
	}

	vk.Memcopy(unsafe.Add(buf.mapped, offset), data)
	return nil
}

func (d *Device) Upload(b gpu.Buffer, data []byte, q gpu.Queue) error {
	dst, ok := d.buffers.get(uint64(b))
	if !ok {
		return fmt.Errorf("unknown buffer %d", b)
	}
	if uint64(len(data)) > dst.size {
		return fmt.Errorf("uploading %d bytes into buffer of %d bytes", len(data), dst.size)
	}

	staging, err := d.createBuffer(
		uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
		nil,
	)
	if err != nil {
		return fmt.Errorf("creating the staging buffer: %w", err)
	}
	defer d.freeBuffer(staging)

	var pData unsafe.Pointer
	res := vk.MapMemory(d.device, staging.memory, 0, vk.DeviceSize(len(data)), 0, &pData)
	if err := resultError(res); err != nil {
		return fmt.Errorf("failed to map staging buffer: %w", err)
	}
	vk.Memcopy(pData, data)
	vk.UnmapMemory(d.device, staging.memory)

	return d.singleTimeCommands(q, func(cb vk.CommandBuffer) {
		copyRegion := vk.BufferCopy{
			Size: vk.DeviceSize(len(data)),
		}
		vk.CmdCopyBuffer(cb, staging.vk, dst.vk, 1, []vk.BufferCopy{copyRegion})
	})
}

func (d *Device) createShaderModule(code []byte) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    unsafer.SliceBytesToUint32(code),
	}

	var shaderModule vk.ShaderModule
	res := vk.CreateShaderModule(d.device, &createInfo, nil, &shaderModule)
	return shaderModule, resultError(res)
}

// CreateComputePipeline builds the pipeline with its own descriptor pool. The
// pool holds two sets, one per particle slot.
func (d *Device) CreateComputePipeline(spec gpu.ComputePipelineSpec) (gpu.Pipeline, error) {
	const maxSets = 2

	shaderModule, err := d.createShaderModule(spec.Shader)
	if err != nil {
		return 0, fmt.Errorf("creating compute shader module: %w", err)
	}
	defer vk.DestroyShaderModule(d.device, shaderModule, nil)

	p := &pipeline{bindings: spec.Bindings}
	ok := false
	defer func() {
		if !ok {
			d.freePipeline(p)
		}
	}()

	bindings := make([]vk.DescriptorSetLayoutBinding, len(spec.Bindings))
	counts := make(map[vk.DescriptorType]uint32)
	for i, kind := range spec.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  descriptorType(kind),
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		}
		counts[descriptorType(kind)] += maxSets
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	res := vk.CreateDescriptorSetLayout(d.device, &layoutInfo, nil, &p.setLayout)
	if err := resultError(res); err != nil {
		return 0, fmt.Errorf("creating descriptor set layout: %w", err)
	}

	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{p.setLayout},
	}
	res = vk.CreatePipelineLayout(d.device, &pipelineLayoutInfo, nil, &p.layout)
	if err := resultError(res); err != nil {
		return 0, fmt.Errorf("failed to create pipeline layout: %w", err)
	}

	pipelineInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: shaderModule,
			PName:  "main\x00",
		},
		Layout:             p.layout,
		BasePipelineHandle: vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:  -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res = vk.CreateComputePipelines(
		d.device,
		vk.PipelineCache(vk.NullHandle),
		1,
		[]vk.ComputePipelineCreateInfo{pipelineInfo},
		nil,
		pipelines,
	)
	if err := resultError(res); err != nil {
		return 0, fmt.Errorf("failed to create compute pipeline: %w", err)
	}
	p.vk = pipelines[0]

	poolSizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	for t, n := range counts {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       maxSets,
	}
	res = vk.CreateDescriptorPool(d.device, &poolInfo, nil, &p.pool)
	if err := resultError(res); err != nil {
		return 0, fmt.Errorf("failed to create descriptor pool: %w", err)
	}

	ok = true
	return gpu.Pipeline(d.pipelines.put(p)), nil
}

func (d *Device) freePipeline(p *pipeline) {
	for _, s := range p.sets {
		d.sets.take(uint64(s))
	}
	if p.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(d.device, p.pool, nil)
	}
	if p.vk != vk.NullPipeline {
		vk.DestroyPipeline(d.device, p.vk, nil)
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(d.device, p.layout, nil)
	}
	if p.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(d.device, p.setLayout, nil)
	}
}

// DestroyPipeline destroys p together with the descriptor sets allocated
// from it.
func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	if pl, ok := d.pipelines.take(uint64(p)); ok {
		d.freePipeline(pl)
	}
}

func (d *Device) AllocateDescriptorSet(
	p gpu.Pipeline,
	bindings []gpu.DescriptorBinding,
) (gpu.DescriptorSet, error) {
	pl, ok := d.pipelines.get(uint64(p))
	if !ok {
		return 0, fmt.Errorf("unknown pipeline %d", p)
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pl.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{pl.setLayout},
	}

	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(d.device, &allocInfo, &set)
	if err := resultError(res); err != nil {
		return 0, fmt.Errorf("failed to allocate descriptor set: %w", err)
	}

	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(bindings))
	for _, b := range bindings {
		if int(b.Binding) >= len(pl.bindings) || pl.bindings[b.Binding] != b.Kind {
			return 0, fmt.Errorf("binding %d does not match the pipeline layout", b.Binding)
		}
		buf, ok := d.buffers.get(uint64(b.Buffer))
		if !ok {
			return 0, fmt.Errorf("binding %d: unknown buffer %d", b.Binding, b.Buffer)
		}

		bufferInfo := vk.DescriptorBufferInfo{
			Buffer: buf.vk,
			Offset: 0,
			Range:  vk.DeviceSize(vk.WholeSize),
		}
		descriptorWrites = append(descriptorWrites, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      b.Binding,
			DstArrayElement: 0,
			DescriptorType:  descriptorType(b.Kind),
			DescriptorCount: 1,
			PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
		})
	}

	vk.UpdateDescriptorSets(
		d.device,
		uint32(len(descriptorWrites)),
		descriptorWrites,
		0,
		nil,
	)

	h := gpu.DescriptorSet(d.sets.put(descriptorSet{vk: set, pipeline: p}))
	pl.sets = append(pl.sets, h)
	return h, nil
}

func (d *Device) CreateQueryPool(count uint32) (gpu.QueryPool, error) {
	createInfo := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: count,
	}

	var pool vk.QueryPool
	res := vk.CreateQueryPool(d.device, &createInfo, nil, &pool)
	if err := resultError(res); err != nil {
		return 0, fmt.Errorf("failed to create query pool: %w", err)
	}
	return gpu.QueryPool(d.queryPools.put(pool)), nil
}

func (d *Device) DestroyQueryPool(pool gpu.QueryPool) {
	if p, ok := d.queryPools.take(uint64(pool)); ok {
		vk.DestroyQueryPool(d.device, p, nil)
	}
}

func (d *Device) queryPool(pool gpu.QueryPool) vk.QueryPool {
	p, ok := d.queryPools.get(uint64(pool))
	if !ok {
		panic(fmt.Sprintf("vulkan: unknown query pool %d", pool))
	}
	return p
}

func (d *Device) ReadTimestamps(pool gpu.QueryPool, first, count uint32, wait bool) ([]uint64, error) {
	p, ok := d.queryPools.get(uint64(pool))
	if !ok {
		return nil, fmt.Errorf("unknown query pool %d", pool)
	}

	flags := vk.QueryResultFlags(vk.QueryResult64Bit)
	if wait {
		flags |= vk.QueryResultFlags(vk.QueryResultWaitBit)
	}

	results := make([]uint64, count)
	res := vk.GetQueryPoolResults(
		d.device,
		p,
		first,
		count,
		uint(count)*timestampSize,
		unsafe.Pointer(unsafe.SliceData(results)),
		timestampSize,
		flags,
	)
	if err := resultError(res); err != nil {
		return nil, fmt.Errorf("reading timestamps: %w", err)
	}
	return results, nil
}
