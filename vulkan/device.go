// Package vulkan implements the gpu.Device and gpu.Renderer of the benchmark
// on top of vulkan-go and a glfw window.
package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"

	"vulkan-async-compute/gpu"
	"vulkan-async-compute/queues"
)

// Options configures Open.
type Options struct {
	Width  int
	Height int
	Title  string

	// VendorID restricts the physical devices which are considered. Zero
	// accepts any vendor.
	VendorID uint32

	// Debug enables the Khronos validation layer.
	Debug bool

	Log *zap.Logger
}

// queue is a resolved device queue.
type queue struct {
	gpu.Queue
	vk vk.Queue
}

type buffer struct {
	vk     vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer
}

type commandBuffer struct {
	vk   vk.CommandBuffer
	pool gpu.CommandPool
}

type commandPool struct {
	vk      vk.CommandPool
	buffers []gpu.CommandBuffer
}

type pipeline struct {
	vk        vk.Pipeline
	layout    vk.PipelineLayout
	setLayout vk.DescriptorSetLayout
	pool      vk.DescriptorPool
	bindings  []gpu.DescriptorKind
	sets      []gpu.DescriptorSet
}

type descriptorSet struct {
	vk       vk.DescriptorSet
	pipeline gpu.Pipeline
}

// Device is a Vulkan logical device with the window it presents to.
type Device struct {
	opts Options
	log  *zap.Logger

	// validationLayers is the list of layers enabled when Debug is set.
	validationLayers []string

	// deviceExtensions is the list of required device extensions.
	deviceExtensions []string

	window   *glfw.Window
	instance vk.Instance
	surface  vk.Surface

	physicalDevice vk.PhysicalDevice
	deviceName     string
	vendorID       uint32
	timestampPer   float32
	memProperties  vk.PhysicalDeviceMemoryProperties

	device   vk.Device
	families queues.FamilyIndices
	queues   map[gpu.QueueKind]queue

	fences         table[vk.Fence]
	semaphores     table[vk.Semaphore]
	pools          table[*commandPool]
	commandBuffers table[*commandBuffer]
	buffers        table[*buffer]
	pipelines      table[*pipeline]
	sets           table[descriptorSet]
	queryPools     table[vk.QueryPool]
}

// Open creates the window and a logical device on the best physical device
// of the requested vendor. The caller must be on the main OS thread.
func Open(opts Options) (*Device, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	d := &Device{
		opts: opts,
		log:  opts.Log,
		validationLayers: []string{
			"VK_LAYER_KHRONOS_validation\x00",
		},
		deviceExtensions: []string{
			vk.KhrSwapchainExtensionName + "\x00",
		},
		physicalDevice: vk.PhysicalDevice(vk.NullHandle),
		device:         vk.Device(vk.NullHandle),
		surface:        vk.NullSurface,
	}

	if err := d.initWindow(); err != nil {
		return nil, fmt.Errorf("initWindow: %w", err)
	}
	if err := d.initVulkan(); err != nil {
		d.Close()
		return nil, fmt.Errorf("initVulkan: %w", err)
	}

	d.log.Info("device ready",
		zap.String("device", d.deviceName),
		zap.String("vendor", fmt.Sprintf("0x%04X", d.vendorID)),
		zap.Uint32("graphicsFamily", d.families.Graphics.Get()),
		zap.Uint32("computeFamily", d.families.Compute.Get()),
		zap.Bool("asyncCompute", d.families.AsyncCompute()),
		zap.Bool("transferQueue", d.families.Transfer.HasValue()),
		zap.Float32("timestampPeriod", d.timestampPer),
	)
	return d, nil
}

func (d *Device) initWindow() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw.Init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	window, err := glfw.CreateWindow(d.opts.Width, d.opts.Height, d.opts.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("creating window: %w", err)
	}

	d.window = window
	return nil
}

func (d *Device) initVulkan() error {
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())

	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to init Vulkan Go: %w", err)
	}

	if err := d.createInstance(); err != nil {
		return fmt.Errorf("createInstance: %w", err)
	}

	if err := d.createSurface(); err != nil {
		return fmt.Errorf("createSurface: %w", err)
	}

	if err := d.pickPhysicalDevice(); err != nil {
		return fmt.Errorf("pickPhysicalDevice: %w", err)
	}

	if err := d.createLogicalDevice(); err != nil {
		return fmt.Errorf("createLogicalDevice: %w", err)
	}

	return nil
}

// Close destroys the device, the surface and the window. Every object
// created through the device must have been destroyed already.
func (d *Device) Close() {
	if d.device != vk.Device(vk.NullHandle) {
		vk.DestroyDevice(d.device, nil)
		d.device = vk.Device(vk.NullHandle)
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
	if d.window != nil {
		d.window.Destroy()
		d.window = nil
		glfw.Terminate()
	}
}

// Name is the name of the physical device in use.
func (d *Device) Name() string {
	return d.deviceName
}

func (d *Device) Queue(kind gpu.QueueKind) (gpu.Queue, bool) {
	q, ok := d.queues[kind]
	return q.Queue, ok
}

func (d *Device) TimestampPeriod() float32 {
	return d.timestampPer
}

func (d *Device) vkQueue(q gpu.Queue) (vk.Queue, error) {
	rq, ok := d.queues[q.Kind]
	if !ok {
		return nil, fmt.Errorf("no %s queue", q.Kind)
	}
	return rq.vk, nil
}

// Live is the number of objects created through the device and not yet
// destroyed.
func (d *Device) Live() int {
	return d.fences.len() + d.semaphores.len() + d.pools.len() + d.buffers.len() +
		d.pipelines.len() + d.queryPools.len()
}

var _ gpu.Device = (*Device)(nil)
