package vulkan

import (
	"cmp"
	"fmt"
	"math"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// surfaceTarget holds the swap chain settings picked for one window size.
type surfaceTarget struct {
	format      vk.SurfaceFormat
	presentMode vk.PresentMode
	extent      vk.Extent2D
	imageCount  uint32
	transform   vk.SurfaceTransformFlagBits
}

// planTarget picks the swap chain settings for a surface with the given
// support whose framebuffer is width by height pixels. One image more than
// the minimum is asked for so acquiring never waits on the driver.
func planTarget(support swapChainSupportDetails, width, height int) (surfaceTarget, error) {
	if len(support.formats) == 0 {
		return surfaceTarget{}, fmt.Errorf("surface reports no formats")
	}

	caps := support.capabilities
	t := surfaceTarget{
		format:      chooseSwapSurfaceFormat(support.formats),
		presentMode: chooseSwapPresentMode(support.presentModes),
		extent:      chooseSwapExtent(caps, width, height),
		imageCount:  caps.MinImageCount + 1,
		transform:   caps.CurrentTransform,
	}
	if caps.MaxImageCount > 0 {
		t.imageCount = min(t.imageCount, caps.MaxImageCount)
	}
	return t, nil
}

// chainImage is one presentable image with the view and framebuffer the
// render pass draws it through.
type chainImage struct {
	image       vk.Image
	view        vk.ImageView
	framebuffer vk.Framebuffer
}

// depthBuffer is the depth attachment shared by every image of a chain.
type depthBuffer struct {
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
}

func (b *depthBuffer) destroy(device vk.Device) {
	if b.view != vk.NullImageView {
		vk.DestroyImageView(device, b.view, nil)
	}
	if b.image != vk.NullImage {
		vk.DestroyImage(device, b.image, nil)
	}
	if b.memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.memory, nil)
	}
	*b = depthBuffer{}
}

// swapchain is everything rebuilt when the window changes size.
type swapchain struct {
	handle vk.Swapchain
	target surfaceTarget
	images []chainImage
	depth  depthBuffer
}

func (s *swapchain) destroy(device vk.Device) {
	s.depth.destroy(device)
	for _, img := range s.images {
		if img.framebuffer != vk.NullFramebuffer {
			vk.DestroyFramebuffer(device, img.framebuffer, nil)
		}
		if img.view != vk.NullImageView {
			vk.DestroyImageView(device, img.view, nil)
		}
	}
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(device, s.handle, nil)
	}
	*s = swapchain{target: s.target}
}

// currentTarget plans a swap chain for the window as it is now.
func (r *Renderer) currentTarget() (surfaceTarget, error) {
	support, err := r.dev.querySwapChainSupport(r.dev.physicalDevice)
	if err != nil {
		return surfaceTarget{}, err
	}
	width, height := r.dev.window.GetFramebufferSize()
	return planTarget(support, width, height)
}

// buildSwapchain creates the chain for t. The render pass must exist. On
// error whatever was built stays in r.chain for Destroy to release.
func (r *Renderer) buildSwapchain(t surfaceTarget) error {
	d := r.dev
	r.chain.target = t

	mode, families := imageSharing(r.graphics.Family, r.present.Family)
	createInfo := vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               d.surface,
		MinImageCount:         t.imageCount,
		ImageFormat:           t.format.Format,
		ImageColorSpace:       t.format.ColorSpace,
		ImageExtent:           t.extent,
		ImageArrayLayers:      1,
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode:      mode,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		PreTransform:          t.transform,
		CompositeAlpha:        vk.CompositeAlphaOpaqueBit,
		PresentMode:           t.presentMode,
		Clipped:               vk.True,
	}
	res := vk.CreateSwapchain(d.device, &createInfo, nil, &r.chain.handle)
	if err := resultError(res); err != nil {
		return fmt.Errorf("failed to create swap chain: %w", err)
	}

	var count uint32
	vk.GetSwapchainImages(d.device, r.chain.handle, &count, nil)
	images := make([]vk.Image, count)
	vk.GetSwapchainImages(d.device, r.chain.handle, &count, images)

	depth, err := d.createDepthBuffer(t.extent, r.depthFormat)
	r.chain.depth = depth
	if err != nil {
		return err
	}

	for i, image := range images {
		img := chainImage{image: image}
		img.view, err = d.createImageView(image, t.format.Format, vk.ImageAspectColorBit)
		if err == nil {
			img.framebuffer, err = r.createFramebuffer(img.view)
		}
		r.chain.images = append(r.chain.images, img)
		if err != nil {
			return fmt.Errorf("swap chain image %d: %w", i, err)
		}
	}
	return nil
}

// recreateSwapChain rebuilds the chain for the current window size. It blocks
// while the window is minimized.
func (r *Renderer) recreateSwapChain() error {
	for {
		width, height := r.dev.window.GetFramebufferSize()
		if width != 0 && height != 0 {
			break
		}
		glfw.WaitEvents()
	}

	if err := resultError(vk.DeviceWaitIdle(r.dev.device)); err != nil {
		return fmt.Errorf("waiting for device idle: %w", err)
	}
	r.chain.destroy(r.dev.device)

	t, err := r.currentTarget()
	if err != nil {
		return err
	}
	if err := r.buildSwapchain(t); err != nil {
		return err
	}

	r.dev.log.Debug("swap chain recreated")
	return nil
}

// imageSharing reports how swap chain images are shared between the graphics
// and the present queue families.
func imageSharing(graphics, present uint32) (vk.SharingMode, []uint32) {
	if graphics == present {
		return vk.SharingModeExclusive, nil
	}
	return vk.SharingModeConcurrent, []uint32{graphics, present}
}

func (d *Device) createImageView(
	image vk.Image,
	format vk.Format,
	aspect vk.ImageAspectFlagBits,
) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	res := vk.CreateImageView(d.device, &createInfo, nil, &view)
	if err := resultError(res); err != nil {
		return vk.NullImageView, fmt.Errorf("failed to create image view: %w", err)
	}
	return view, nil
}

// createDepthBuffer allocates a device local depth image of extent and its
// view. A partly built buffer is returned along with any error.
func (d *Device) createDepthBuffer(extent vk.Extent2D, format vk.Format) (depthBuffer, error) {
	var b depthBuffer

	imageInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := resultError(vk.CreateImage(d.device, &imageInfo, nil, &b.image)); err != nil {
		return b, fmt.Errorf("failed to create depth image: %w", err)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, b.image, &reqs)
	reqs.Deref()

	memType, err := d.findMemoryType(
		reqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		return b, fmt.Errorf("depth image: %w", err)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memType,
	}
	if err := resultError(vk.AllocateMemory(d.device, &allocInfo, nil, &b.memory)); err != nil {
		return b, fmt.Errorf("failed to allocate depth memory: %w", err)
	}
	if err := resultError(vk.BindImageMemory(d.device, b.image, b.memory, 0)); err != nil {
		return b, fmt.Errorf("failed to bind depth memory: %w", err)
	}

	b.view, err = d.createImageView(b.image, format, vk.ImageAspectDepthBit)
	return b, err
}

// depthFormats are tried in order for the depth attachment.
var depthFormats = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

// findDepthFormat returns the first of depthFormats the physical device can
// use as an optimally tiled depth attachment.
func (d *Device) findDepthFormat() (vk.Format, error) {
	want := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, format := range depthFormats {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physicalDevice, format, &props)
		props.Deref()

		if props.OptimalTilingFeatures&want == want {
			return format, nil
		}
	}
	return vk.FormatUndefined, fmt.Errorf("no depth attachment format among %v", depthFormats)
}

// Attachment indices of the particle render pass.
const (
	colorAttachment uint32 = iota
	depthAttachment
)

// renderPassAttachments describes the cleared color image that is presented
// afterwards and the cleared depth image that is thrown away.
func renderPassAttachments(color, depth vk.Format) []vk.AttachmentDescription {
	cleared := func(format vk.Format, store vk.AttachmentStoreOp, final vk.ImageLayout) vk.AttachmentDescription {
		return vk.AttachmentDescription{
			Format:         format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        store,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    final,
		}
	}

	attachments := make([]vk.AttachmentDescription, 2)
	attachments[colorAttachment] = cleared(color, vk.AttachmentStoreOpStore, vk.ImageLayoutPresentSrc)
	attachments[depthAttachment] = cleared(
		depth,
		vk.AttachmentStoreOpDontCare,
		vk.ImageLayoutDepthStencilAttachmentOptimal,
	)
	return attachments
}

func (r *Renderer) createRenderPass(color vk.Format) error {
	attachments := renderPassAttachments(color, r.depthFormat)

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: colorAttachment,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &vk.AttachmentReference{
			Attachment: depthAttachment,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	// The previous frame may still be writing color and depth.
	outputStages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:   vk.SubpassExternal,
		DstSubpass:   0,
		SrcStageMask: outputStages,
		DstStageMask: outputStages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderPassInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	res := vk.CreateRenderPass(r.dev.device, &renderPassInfo, nil, &r.renderPass)
	if err := resultError(res); err != nil {
		return fmt.Errorf("failed to create render pass: %w", err)
	}
	return nil
}

// createFramebuffer binds view and the chain's depth buffer to the render
// pass.
func (r *Renderer) createFramebuffer(view vk.ImageView) (vk.Framebuffer, error) {
	views := make([]vk.ImageView, 2)
	views[colorAttachment] = view
	views[depthAttachment] = r.chain.depth.view

	extent := r.chain.target.extent
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      r.renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}

	var fb vk.Framebuffer
	if err := resultError(vk.CreateFramebuffer(r.dev.device, &info, nil, &fb)); err != nil {
		return vk.NullFramebuffer, fmt.Errorf("failed to create framebuffer: %w", err)
	}
	return fb, nil
}

func chooseSwapSurfaceFormat(availableFormats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == vk.FormatB8g8r8a8Srgb &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

// chooseSwapPresentMode picks a mode which does not cap the frame rate at the
// display refresh when there is one.
func chooseSwapPresentMode(available []vk.PresentMode) vk.PresentMode {
	for _, want := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, mode := range available {
			if mode == want {
				return mode
			}
		}
	}

	return vk.PresentModeFifo
}

// chooseSwapExtent uses the surface's own extent unless the surface leaves it
// to the framebuffer size, which is then clamped to the allowed range.
func chooseSwapExtent(caps vk.SurfaceCapabilities, width, height int) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}

	return vk.Extent2D{
		Width:  clamp(uint32(width), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(uint32(height), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp[T cmp.Ordered](val, min, max T) T {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
