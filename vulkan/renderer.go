package vulkan

import (
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
	"github.com/xlab/linmath"
	"go.uber.org/zap"

	"vulkan-async-compute/geometry"
	"vulkan-async-compute/gpu"
	"vulkan-async-compute/unsafer"
)

// RendererOptions configures NewRenderer.
type RendererOptions struct {
	// Vertex and Fragment are the SPIR-V of the particle shaders.
	Vertex   []byte
	Fragment []byte

	// Lighting reports whether the shaders are the lit variant. It is only
	// logged, the vertex layout is the same for both.
	Lighting bool
}

type uniformBufferObject struct {
	model linmath.Mat4x4
	view  linmath.Mat4x4
	proj  linmath.Mat4x4
}

const uniformBufferSize = uint64(unsafe.Sizeof(uniformBufferObject{}))

// Timestamp queries written into TimestampPool by every frame.
const (
	queryFrameStart uint32 = iota
	queryFrameEnd
	frameQueries
)

// eye is where the camera sits, looking at the origin.
var eye = linmath.Vec3{0, 0, -20}

// Renderer draws the particle mesh once per particle into the window of a
// Device. A single frame is in flight at a time.
type Renderer struct {
	dev *Device

	graphics gpu.Queue
	present  gpu.Queue

	depthFormat vk.Format
	chain       swapchain
	resized     bool

	renderPass vk.RenderPass
	setLayout  vk.DescriptorSetLayout
	layout     vk.PipelineLayout
	pipeline   vk.Pipeline

	descriptorPool vk.DescriptorPool
	descriptorSet  vk.DescriptorSet
	uniforms       gpu.Buffer

	commandPool   gpu.CommandPool
	commandBuffer gpu.CommandBuffer
	timestamps    gpu.QueryPool

	imageAvailable gpu.Semaphore
	renderFinished gpu.Semaphore
	inFlight       gpu.Fence
}

// NewRenderer builds the swap chain and the graphics pipeline on dev.
func NewRenderer(dev *Device, opts RendererOptions) (*Renderer, error) {
	r := &Renderer{dev: dev}

	var ok bool
	if r.graphics, ok = dev.Queue(gpu.QueueGraphics); !ok {
		return nil, fmt.Errorf("device has no graphics queue")
	}
	if r.present, ok = dev.Queue(gpu.QueuePresent); !ok {
		return nil, fmt.Errorf("device has no present queue")
	}

	dev.window.SetFramebufferSizeCallback(func(*glfw.Window, int, int) {
		r.resized = true
	})

	if err := r.init(opts); err != nil {
		r.Destroy()
		return nil, err
	}

	t := r.chain.target
	dev.log.Info("renderer ready",
		zap.Uint32("width", t.extent.Width),
		zap.Uint32("height", t.extent.Height),
		zap.Int("images", len(r.chain.images)),
		zap.Int32("present_mode", int32(t.presentMode)),
		zap.Int32("depth_format", int32(r.depthFormat)),
		zap.Bool("lighting", opts.Lighting),
	)
	return r, nil
}

func (r *Renderer) init(opts RendererOptions) error {
	var err error
	if r.depthFormat, err = r.dev.findDepthFormat(); err != nil {
		return err
	}
	t, err := r.currentTarget()
	if err != nil {
		return err
	}

	steps := []struct {
		what string
		run  func() error
	}{
		{"render pass", func() error { return r.createRenderPass(t.format.Format) }},
		{"graphics pipeline", func() error { return r.createGraphicsPipeline(opts.Vertex, opts.Fragment) }},
		{"swap chain", func() error { return r.buildSwapchain(t) }},
		{"uniforms", r.createUniforms},
		{"frame resources", r.createFrameResources},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("creating %s: %w", s.what, err)
		}
	}
	return nil
}

// vertexInput describes the mesh at binding 0 and the particles at binding 1,
// advanced once per instance.
func vertexInput() ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	bindings := []vk.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    geometry.VertexSize,
			InputRate: vk.VertexInputRateVertex,
		},
		{
			Binding:   1,
			Stride:    uint32(geometry.ParticleSize),
			InputRate: vk.VertexInputRateInstance,
		},
	}

	attributes := []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(geometry.Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(geometry.Vertex{}.Normal)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(geometry.Vertex{}.UV)),
		},
		{
			Binding:  1,
			Location: 3,
			Format:   vk.FormatR32g32b32a32Sfloat,
			Offset:   uint32(unsafe.Offsetof(geometry.Particle{}.Pos)),
		},
		{
			Binding:  1,
			Location: 4,
			Format:   vk.FormatR32g32b32a32Sfloat,
			Offset:   uint32(unsafe.Offsetof(geometry.Particle{}.Vel)),
		},
	}

	return bindings, attributes
}

// particleStates is the fixed function state of the particle pipeline.
type particleStates struct {
	vertexInput   vk.PipelineVertexInputStateCreateInfo
	inputAssembly vk.PipelineInputAssemblyStateCreateInfo
	viewport      vk.PipelineViewportStateCreateInfo
	raster        vk.PipelineRasterizationStateCreateInfo
	multisample   vk.PipelineMultisampleStateCreateInfo
	depth         vk.PipelineDepthStencilStateCreateInfo
	blend         vk.PipelineColorBlendStateCreateInfo
	dynamic       vk.PipelineDynamicStateCreateInfo
}

// newParticleStates draws filled, depth tested and unblended triangles.
// Viewport and scissor follow the swap chain so they are dynamic.
func newParticleStates() *particleStates {
	bindings, attributes := vertexInput()
	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	writeAll := vk.ColorComponentFlags(
		vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit,
	)

	return &particleStates{
		vertexInput: vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		inputAssembly: vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		viewport: vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		// Mesh winding depends on the model file so nothing is culled.
		raster: vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1,
		},
		multisample: vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
			MinSampleShading:     1,
		},
		depth: vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vk.True,
			DepthWriteEnable: vk.True,
			DepthCompareOp:   vk.CompareOpLess,
			MaxDepthBounds:   1,
		},
		blend: vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{
				{ColorWriteMask: writeAll},
			},
		},
		dynamic: vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamic)),
			PDynamicStates:    dynamic,
		},
	}
}

// createGraphicsPipeline builds the particle pipeline with a single uniform
// buffer visible to the vertex stage.
func (r *Renderer) createGraphicsPipeline(vertexCode, fragmentCode []byte) error {
	d := r.dev

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		}},
	}
	res := vk.CreateDescriptorSetLayout(d.device, &layoutInfo, nil, &r.setLayout)
	if err := resultError(res); err != nil {
		return fmt.Errorf("creating descriptor set layout: %w", err)
	}

	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{r.setLayout},
	}
	res = vk.CreatePipelineLayout(d.device, &pipelineLayoutInfo, nil, &r.layout)
	if err := resultError(res); err != nil {
		return fmt.Errorf("creating pipeline layout: %w", err)
	}

	var stages []vk.PipelineShaderStageCreateInfo
	for _, s := range []struct {
		stage vk.ShaderStageFlagBits
		code  []byte
	}{
		{vk.ShaderStageVertexBit, vertexCode},
		{vk.ShaderStageFragmentBit, fragmentCode},
	} {
		module, err := d.createShaderModule(s.code)
		if err != nil {
			return fmt.Errorf("creating shader module for stage %d: %w", s.stage, err)
		}
		defer vk.DestroyShaderModule(d.device, module, nil)

		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  s.stage,
			Module: module,
			PName:  "main\x00",
		})
	}

	st := newParticleStates()
	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &st.vertexInput,
		PInputAssemblyState: &st.inputAssembly,
		PViewportState:      &st.viewport,
		PRasterizationState: &st.raster,
		PMultisampleState:   &st.multisample,
		PDepthStencilState:  &st.depth,
		PColorBlendState:    &st.blend,
		PDynamicState:       &st.dynamic,
		Layout:              r.layout,
		RenderPass:          r.renderPass,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res = vk.CreateGraphicsPipelines(
		d.device,
		vk.PipelineCache(vk.NullHandle),
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo},
		nil,
		pipelines,
	)
	if err := resultError(res); err != nil {
		return fmt.Errorf("failed to create graphics pipeline: %w", err)
	}
	r.pipeline = pipelines[0]
	return nil
}

// area is the whole of the current swap chain image.
func (r *Renderer) area() vk.Rect2D {
	return vk.Rect2D{Extent: r.chain.target.extent}
}

// createUniforms allocates the host visible transform buffer and the
// descriptor set that binds it.
func (r *Renderer) createUniforms() error {
	d := r.dev

	var err error
	r.uniforms, err = d.CreateBuffer(gpu.BufferSpec{
		Size:        uniformBufferSize,
		Usage:       gpu.UsageUniform,
		HostVisible: true,
	})
	if err != nil {
		return err
	}
	uniforms, _ := d.buffers.get(uint64(r.uniforms))

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
		}},
	}
	res := vk.CreateDescriptorPool(d.device, &poolInfo, nil, &r.descriptorPool)
	if err := resultError(res); err != nil {
		return fmt.Errorf("failed to create descriptor pool: %w", err)
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     r.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{r.setLayout},
	}
	res = vk.AllocateDescriptorSets(d.device, &allocInfo, &r.descriptorSet)
	if err := resultError(res); err != nil {
		return fmt.Errorf("failed to allocate descriptor set: %w", err)
	}

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          r.descriptorSet,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: uniforms.vk,
			Range:  vk.DeviceSize(uniformBufferSize),
		}},
	}
	vk.UpdateDescriptorSets(d.device, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return nil
}

// createFrameResources makes what a single frame in flight records into and
// synchronizes on.
func (r *Renderer) createFrameResources() error {
	d := r.dev
	var err error

	if r.commandPool, err = d.CreateCommandPool(r.graphics); err != nil {
		return err
	}
	cbs, err := d.AllocateCommandBuffers(r.commandPool, 1)
	if err != nil {
		return err
	}
	r.commandBuffer = cbs[0]

	if r.imageAvailable, err = d.CreateSemaphore(); err != nil {
		return fmt.Errorf("image available semaphore: %w", err)
	}
	if r.renderFinished, err = d.CreateSemaphore(); err != nil {
		return fmt.Errorf("render finished semaphore: %w", err)
	}
	if r.inFlight, err = d.CreateFence(true); err != nil {
		return fmt.Errorf("in flight fence: %w", err)
	}
	if r.timestamps, err = d.CreateQueryPool(frameQueries); err != nil {
		return fmt.Errorf("timestamp pool: %w", err)
	}
	return nil
}

// UpdateUniforms writes the transforms of the frame about to be drawn. The
// previous frame may still be reading them.
func (r *Renderer) UpdateUniforms(elapsed time.Duration) error {
	var ubo uniformBufferObject

	ubo.model.Identity()
	ubo.model.RotateY(&ubo.model, float32(elapsed.Seconds())*math.Pi/2)
	ubo.view.LookAt(&eye, &linmath.Vec3{}, &linmath.Vec3{0, 1, 0})

	extent := r.chain.target.extent
	ubo.proj.Perspective(math.Pi/4, float32(extent.Width)/float32(extent.Height), 0.1, 10000)
	// Vulkan clip space has y pointing down.
	ubo.proj[1][1] *= -1

	return r.dev.WriteBuffer(r.uniforms, 0, unsafer.StructToBytes(&ubo))
}

// acquireImage returns the next swap chain image, rebuilding the swap chain
// for as long as it is out of date.
func (r *Renderer) acquireImage() (uint32, error) {
	d := r.dev
	sem, _ := d.semaphores.get(uint64(r.imageAvailable))

	for {
		var index uint32
		res := vk.AcquireNextImage(d.device, r.chain.handle, math.MaxUint64, sem, vk.NullFence, &index)
		switch res {
		case vk.Success, vk.Suboptimal:
			return index, nil
		case vk.ErrorOutOfDate:
			if err := r.recreateSwapChain(); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("failed to acquire swap chain image: %w", resultError(res))
		}
	}
}

// drawBuffers are the Vulkan buffers named by a gpu.DrawRequest.
type drawBuffers struct {
	vertices  vk.Buffer
	indices   vk.Buffer
	instances vk.Buffer
}

func (d *Device) resolveDraw(req gpu.DrawRequest) (drawBuffers, error) {
	var b drawBuffers
	for _, named := range []struct {
		what string
		h    gpu.Buffer
		dst  *vk.Buffer
	}{
		{"vertex", req.Vertices, &b.vertices},
		{"index", req.Indices, &b.indices},
		{"instance", req.Instances, &b.instances},
	} {
		buf, ok := d.buffers.get(uint64(named.h))
		if !ok {
			return drawBuffers{}, fmt.Errorf("unknown %s buffer %d", named.what, named.h)
		}
		*named.dst = buf.vk
	}
	if len(req.Wait) != len(req.WaitStages) {
		return drawBuffers{}, fmt.Errorf("%d wait semaphores with %d wait stages", len(req.Wait), len(req.WaitStages))
	}
	return b, nil
}

// frameFence returns the fence the graphics submission signals. Without a
// fence in req the renderer's own fence is waited on and reused. owned
// reports that case, the fence must then be reset before submitting.
func (r *Renderer) frameFence(req gpu.DrawRequest) (fence gpu.Fence, owned bool, err error) {
	if req.Fence != gpu.NullFence {
		return req.Fence, false, nil
	}
	if err := gpu.WaitFence(r.dev, r.inFlight); err != nil {
		return gpu.NullFence, true, err
	}
	return r.inFlight, true, nil
}

// frameSubmission submits cb once the swap chain image is acquired and the
// waits of req are done. finished is signaled for presenting alongside the
// semaphores of req.
func frameSubmission(
	cb gpu.CommandBuffer,
	acquired, finished gpu.Semaphore,
	fence gpu.Fence,
	req gpu.DrawRequest,
) gpu.Submission {
	s := gpu.Submission{
		CommandBuffers: []gpu.CommandBuffer{cb},
		Wait:           make([]gpu.Semaphore, 0, 1+len(req.Wait)),
		WaitStages:     make([]gpu.Stage, 0, 1+len(req.WaitStages)),
		Signal:         make([]gpu.Semaphore, 0, 1+len(req.Signal)),
		Fence:          fence,
	}
	s.Wait = append(append(s.Wait, acquired), req.Wait...)
	s.WaitStages = append(append(s.WaitStages, gpu.StageColorAttachmentOutput), req.WaitStages...)
	s.Signal = append(append(s.Signal, finished), req.Signal...)
	return s
}

// DrawFrame records one frame of req, submits it to the graphics queue and
// presents it.
func (r *Renderer) DrawFrame(req gpu.DrawRequest) error {
	d := r.dev

	bufs, err := d.resolveDraw(req)
	if err != nil {
		return err
	}
	fence, owned, err := r.frameFence(req)
	if err != nil {
		return err
	}

	imageIndex, err := r.acquireImage()
	if err != nil {
		return err
	}
	if owned {
		if err := d.ResetFence(fence); err != nil {
			return fmt.Errorf("resetting in flight fence: %w", err)
		}
	}

	if err := d.ResetCommandBuffer(r.commandBuffer); err != nil {
		return fmt.Errorf("resetting command buffer: %w", err)
	}
	if err := r.recordFrame(imageIndex, req, bufs); err != nil {
		return fmt.Errorf("recording frame: %w", err)
	}

	sub := frameSubmission(r.commandBuffer, r.imageAvailable, r.renderFinished, fence, req)
	if err := d.Submit(r.graphics, sub); err != nil {
		return fmt.Errorf("submitting frame: %w", err)
	}
	return r.presentImage(imageIndex)
}

func (r *Renderer) presentImage(imageIndex uint32) error {
	d := r.dev

	presentQueue, err := d.vkQueue(r.present)
	if err != nil {
		return err
	}
	finished, _ := d.semaphores.get(uint64(r.renderFinished))

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{finished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{r.chain.handle},
		PImageIndices:      []uint32{imageIndex},
	}

	res := vk.QueuePresent(presentQueue, &presentInfo)
	switch {
	case res == vk.ErrorOutOfDate || res == vk.Suboptimal || r.resized:
		r.resized = false
		return r.recreateSwapChain()
	case res != vk.Success:
		return fmt.Errorf("failed to present swap chain image: %w", resultError(res))
	}
	return nil
}

// recordFrame records the particle draw between the frame timestamps. The
// ownership barriers of req go outside the render pass and inside the
// timestamps so a transfer between queues counts towards graphics time.
func (r *Renderer) recordFrame(imageIndex uint32, req gpu.DrawRequest, bufs drawBuffers) error {
	d := r.dev
	if err := d.BeginCommandBuffer(r.commandBuffer, false); err != nil {
		return err
	}

	d.CmdResetQueryPool(r.commandBuffer, r.timestamps, 0, frameQueries)
	d.CmdWriteTimestamp(r.commandBuffer, gpu.StageTopOfPipe, r.timestamps, queryFrameStart)
	if req.Acquire != nil {
		d.CmdPipelineBarrier(r.commandBuffer, *req.Acquire)
	}

	r.cmdDrawParticles(d.cmd(r.commandBuffer), r.chain.images[imageIndex].framebuffer, req, bufs)

	if req.Release != nil {
		d.CmdPipelineBarrier(r.commandBuffer, *req.Release)
	}
	d.CmdWriteTimestamp(r.commandBuffer, gpu.StageBottomOfPipe, r.timestamps, queryFrameEnd)

	return d.EndCommandBuffer(r.commandBuffer)
}

// cmdDrawParticles runs the render pass into fb, drawing the mesh once per
// particle.
func (r *Renderer) cmdDrawParticles(cb vk.CommandBuffer, fb vk.Framebuffer, req gpu.DrawRequest, bufs drawBuffers) {
	clears := make([]vk.ClearValue, 2)
	clears[colorAttachment].SetColor([]float32{0, 0, 0, 1})
	clears[depthAttachment].SetDepthStencil(1, 0)

	area := r.area()
	begin := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      r.renderPass,
		Framebuffer:     fb,
		RenderArea:      area,
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vk.CmdBeginRenderPass(cb, &begin, vk.SubpassContentsInline)

	vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, r.pipeline)
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
		Width:    float32(area.Extent.Width),
		Height:   float32(area.Extent.Height),
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{area})
	vk.CmdBindDescriptorSets(
		cb,
		vk.PipelineBindPointGraphics,
		r.layout,
		0, 1, []vk.DescriptorSet{r.descriptorSet},
		0, nil,
	)

	vk.CmdBindVertexBuffers(cb, 0, 2, []vk.Buffer{bufs.vertices, bufs.instances}, []vk.DeviceSize{0, 0})
	vk.CmdBindIndexBuffer(cb, bufs.indices, 0, vk.IndexTypeUint32)
	vk.CmdDrawIndexed(cb, req.IndexCount, req.InstanceCount, 0, 0, 0)

	vk.CmdEndRenderPass(cb)
}

// TimestampPool holds the start and the end of the last frame's graphics work.
func (r *Renderer) TimestampPool() gpu.QueryPool {
	return r.timestamps
}

func (r *Renderer) ShouldClose() bool {
	return r.dev.window.ShouldClose()
}

func (r *Renderer) PollEvents() {
	glfw.PollEvents()
}

// Destroy releases everything NewRenderer created. The device must be idle.
func (r *Renderer) Destroy() {
	d := r.dev

	r.chain.destroy(d.device)

	if r.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(d.device, r.pipeline, nil)
	}
	if r.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(d.device, r.layout, nil)
	}
	if r.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(d.device, r.renderPass, nil)
	}
	if r.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(d.device, r.descriptorPool, nil)
	}
	if r.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(d.device, r.setLayout, nil)
	}
	r.pipeline, r.layout, r.renderPass = vk.NullPipeline, vk.NullPipelineLayout, vk.NullRenderPass
	r.descriptorPool, r.setLayout = vk.NullDescriptorPool, vk.NullDescriptorSetLayout

	d.DestroyBuffer(r.uniforms)
	d.DestroyQueryPool(r.timestamps)
	d.DestroyFence(r.inFlight)
	d.DestroySemaphore(r.renderFinished)
	d.DestroySemaphore(r.imageAvailable)
	d.DestroyCommandPool(r.commandPool)
	r.uniforms, r.timestamps, r.inFlight = 0, 0, gpu.NullFence
	r.renderFinished, r.imageAvailable, r.commandPool = 0, 0, 0
}

var _ gpu.Renderer = (*Renderer)(nil)
