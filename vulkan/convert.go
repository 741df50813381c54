package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"vulkan-async-compute/gpu"
)

// resultError maps the results the benchmark distinguishes onto the errors of
// the gpu package. Everything else becomes the generic Vulkan error.
func resultError(res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.NotReady:
		return gpu.ErrNotReady
	case vk.Timeout:
		return gpu.ErrTimeout
	case vk.ErrorDeviceLost:
		return gpu.ErrDeviceLost
	default:
		return vk.Error(res)
	}
}

var stageBits = []struct {
	stage gpu.Stage
	bit   vk.PipelineStageFlagBits
}{
	{gpu.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{gpu.StageVertexInput, vk.PipelineStageVertexInputBit},
	{gpu.StageVertexShader, vk.PipelineStageVertexShaderBit},
	{gpu.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{gpu.StageTransfer, vk.PipelineStageTransferBit},
	{gpu.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{gpu.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
	{gpu.StageHost, vk.PipelineStageHostBit},
}

func stageFlags(s gpu.Stage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for _, b := range stageBits {
		if s&b.stage != 0 {
			out |= vk.PipelineStageFlags(b.bit)
		}
	}
	return out
}

var accessBits = []struct {
	access gpu.Access
	bit    vk.AccessFlagBits
}{
	{gpu.AccessShaderRead, vk.AccessShaderReadBit},
	{gpu.AccessShaderWrite, vk.AccessShaderWriteBit},
	{gpu.AccessVertexAttributeRead, vk.AccessVertexAttributeReadBit},
	{gpu.AccessTransferRead, vk.AccessTransferReadBit},
	{gpu.AccessTransferWrite, vk.AccessTransferWriteBit},
	{gpu.AccessHostWrite, vk.AccessHostWriteBit},
	{gpu.AccessUniformRead, vk.AccessUniformReadBit},
}

func accessFlags(a gpu.Access) vk.AccessFlags {
	var out vk.AccessFlags
	for _, b := range accessBits {
		if a&b.access != 0 {
			out |= vk.AccessFlags(b.bit)
		}
	}
	return out
}

var usageBits = []struct {
	usage gpu.BufferUsage
	bit   vk.BufferUsageFlagBits
}{
	{gpu.UsageStorage, vk.BufferUsageStorageBufferBit},
	{gpu.UsageVertex, vk.BufferUsageVertexBufferBit},
	{gpu.UsageIndex, vk.BufferUsageIndexBufferBit},
	{gpu.UsageUniform, vk.BufferUsageUniformBufferBit},
	{gpu.UsageTransferSrc, vk.BufferUsageTransferSrcBit},
	{gpu.UsageTransferDst, vk.BufferUsageTransferDstBit},
}

func usageFlags(u gpu.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	for _, b := range usageBits {
		if u&b.usage != 0 {
			out |= vk.BufferUsageFlags(b.bit)
		}
	}
	return out
}

func descriptorType(k gpu.DescriptorKind) vk.DescriptorType {
	if k == gpu.DescriptorUniformBuffer {
		return vk.DescriptorTypeUniformBuffer
	}
	return vk.DescriptorTypeStorageBuffer
}

// uniqueFamilies drops repeated family indices keeping the order.
func uniqueFamilies(families []uint32) []uint32 {
	var out []uint32
	for _, f := range families {
		seen := false
		for _, o := range out {
			if o == f {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, f)
		}
	}
	return out
}
