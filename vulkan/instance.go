package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"

	"vulkan-async-compute/gpu"
	"vulkan-async-compute/queues"
)

func (d *Device) createInstance() error {
	if d.opts.Debug && !d.checkValidationSupport() {
		return fmt.Errorf("validation layers requested but not available")
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   d.opts.Title + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "No Engine\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion10,
	}

	glfwExtensions := d.window.GetRequiredInstanceExtensions()
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(glfwExtensions)),
		PpEnabledExtensionNames: glfwExtensions,
	}

	if d.opts.Debug {
		createInfo.EnabledLayerCount = uint32(len(d.validationLayers))
		createInfo.PpEnabledLayerNames = d.validationLayers
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return fmt.Errorf("failed to create Vulkan instance: %w", err)
	}
	if err := vk.InitInstance(instance); err != nil {
		return fmt.Errorf("failed to load instance functions: %w", err)
	}

	d.instance = instance
	return nil
}

func (d *Device) checkValidationSupport() bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	availableLayers := make([]vk.LayerProperties, count)

	if vk.EnumerateInstanceLayerProperties(&count, availableLayers) != vk.Success {
		return false
	}

	available := make(map[string]bool, count)
	for _, layer := range availableLayers {
		layer.Deref()
		available[vk.ToString(layer.LayerName[:])+"\x00"] = true
	}

	for _, validationLayer := range d.validationLayers {
		if !available[validationLayer] {
			return false
		}
	}
	return true
}

func (d *Device) createSurface() error {
	surfacePtr, err := d.window.CreateWindowSurface(d.instance, nil)
	if err != nil {
		return fmt.Errorf("cannot create surface within GLFW window: %w", err)
	}

	d.surface = vk.SurfaceFromPointer(surfacePtr)
	return nil
}

func (d *Device) pickPhysicalDevice() error {
	var deviceCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(d.instance, &deviceCount, nil))
	if err != nil {
		return fmt.Errorf("failed to get the number of physical devices: %w", err)
	}
	if deviceCount == 0 {
		return fmt.Errorf("failed to find GPUs with Vulkan support")
	}

	pDevices := make([]vk.PhysicalDevice, deviceCount)
	err = vk.Error(vk.EnumeratePhysicalDevices(d.instance, &deviceCount, pDevices))
	if err != nil {
		return fmt.Errorf("failed to enumerate the physical devices: %w", err)
	}

	var (
		selectedDevice vk.PhysicalDevice
		score          uint32
	)
	for _, device := range pDevices {
		if deviceScore := d.getDeviceScore(device); deviceScore > score {
			selectedDevice = device
			score = deviceScore
		}
	}

	if selectedDevice == vk.PhysicalDevice(vk.NullHandle) {
		if d.opts.VendorID != 0 {
			return fmt.Errorf("no suitable physical device from vendor 0x%04X", d.opts.VendorID)
		}
		return fmt.Errorf("failed to find suitable physical devices")
	}

	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(selectedDevice, &properties)
	properties.Deref()
	properties.Limits.Deref()

	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(selectedDevice, &memProperties)
	memProperties.Deref()

	d.physicalDevice = selectedDevice
	d.deviceName = vk.ToString(properties.DeviceName[:])
	d.vendorID = properties.VendorID
	d.timestampPer = properties.Limits.TimestampPeriod
	d.memProperties = memProperties
	return nil
}

// getDeviceScore returns how suitable is this device for the benchmark.
// Bigger score means better. Zero means the device cannot be used.
func (d *Device) getDeviceScore(device vk.PhysicalDevice) uint32 {
	var (
		deviceScore uint32
		properties  vk.PhysicalDeviceProperties
	)

	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()
	properties.Limits.Deref()

	if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
		deviceScore += 1000
	} else {
		deviceScore++
	}

	families, _ := d.findQueueFamilies(device)
	if families.AsyncCompute() {
		deviceScore += 100
	}

	switch {
	case d.opts.VendorID != 0 && properties.VendorID != d.opts.VendorID:
		deviceScore = 0
	case properties.Limits.TimestampPeriod == 0:
		deviceScore = 0
	case !d.isDeviceSuitable(device):
		deviceScore = 0
	}

	d.log.Debug("available device",
		zap.String("name", vk.ToString(properties.DeviceName[:])),
		zap.String("vendor", fmt.Sprintf("0x%04X", properties.VendorID)),
		zap.Uint32("score", deviceScore),
	)
	return deviceScore
}

func (d *Device) isDeviceSuitable(device vk.PhysicalDevice) bool {
	indices, props := d.findQueueFamilies(device)
	if !indices.IsComplete() {
		return false
	}

	// Both timed queues have to support timestamps.
	for _, f := range []uint32{indices.Graphics.Get(), indices.Compute.Get()} {
		if props[f].TimestampValidBits == 0 {
			return false
		}
	}

	if !d.checkDeviceExtensionSupport(device) {
		return false
	}

	swapChainSupport, err := d.querySwapChainSupport(device)
	if err != nil {
		d.log.Warn("querying swap chain support", zap.Error(err))
		return false
	}
	return len(swapChainSupport.formats) > 0 && len(swapChainSupport.presentModes) > 0
}

// findQueueFamilies picks the queue families of device and returns them with
// the properties of every family.
func (d *Device) findQueueFamilies(
	device vk.PhysicalDevice,
) (queues.FamilyIndices, []vk.QueueFamilyProperties) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)

	props := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, props)

	caps := make([]queues.FamilyCaps, len(props))
	for i := range props {
		props[i].Deref()
		flags := props[i].QueueFlags

		caps[i] = queues.FamilyCaps{
			Graphics: flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			Compute:  flags&vk.QueueFlags(vk.QueueComputeBit) != 0,
			Transfer: flags&vk.QueueFlags(vk.QueueTransferBit) != 0,
		}

		var hasPresent vk.Bool32
		err := vk.Error(
			vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), d.surface, &hasPresent),
		)
		if err != nil {
			d.log.Warn("querying surface support",
				zap.Int("family", i), zap.Error(err))
			continue
		}
		caps[i].Present = hasPresent.B()
	}

	return queues.Select(caps), props
}

func (d *Device) checkDeviceExtensionSupport(device vk.PhysicalDevice) bool {
	var extensionsCount uint32
	res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount, nil)
	if err := vk.Error(res); err != nil {
		d.log.Warn("enumerating device extension properties count", zap.Error(err))
		return false
	}

	availableExtensions := make([]vk.ExtensionProperties, extensionsCount)
	res = vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount,
		availableExtensions)
	if err := vk.Error(res); err != nil {
		d.log.Warn("getting device extension properties", zap.Error(err))
		return false
	}

	requiredExtensions := make(map[string]struct{})
	for _, extensionName := range d.deviceExtensions {
		requiredExtensions[extensionName] = struct{}{}
	}

	for _, extension := range availableExtensions {
		extension.Deref()
		delete(requiredExtensions, vk.ToString(extension.ExtensionName[:])+"\x00")
	}

	return len(requiredExtensions) == 0
}

// swapChainSupportDetails describes a present surface.
type swapChainSupportDetails struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func (d *Device) querySwapChainSupport(
	device vk.PhysicalDevice,
) (swapChainSupportDetails, error) {
	details := swapChainSupportDetails{}

	var capabilities vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(device, d.surface, &capabilities)
	if err := vk.Error(res); err != nil {
		return details, fmt.Errorf("failed to query device surface capabilities: %w", err)
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	details.capabilities = capabilities

	var formatCount uint32
	res = vk.GetPhysicalDeviceSurfaceFormats(device, d.surface, &formatCount, nil)
	if err := vk.Error(res); err != nil {
		return details, fmt.Errorf("failed to query device surface formats: %w", err)
	}

	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(device, d.surface, &formatCount, formats)
		for _, format := range formats {
			format.Deref()
			details.formats = append(details.formats, format)
		}
	}

	var presentModeCount uint32
	res = vk.GetPhysicalDeviceSurfacePresentModes(
		device, d.surface, &presentModeCount, nil,
	)
	if err := vk.Error(res); err != nil {
		return details, fmt.Errorf("failed to query device surface present modes: %w", err)
	}

	if presentModeCount != 0 {
		presentModes := make([]vk.PresentMode, presentModeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(
			device, d.surface, &presentModeCount, presentModes,
		)
		details.presentModes = presentModes
	}

	return details, nil
}

// queueSlots decides which queue index of its family each kind uses. Kinds
// sharing a family get their own queue while the family has enough of them.
// Present always shares the graphics queue when it lives in the same family.
func queueSlots(
	indices queues.FamilyIndices,
	props []vk.QueueFamilyProperties,
) (slots map[gpu.QueueKind][2]uint32, counts map[uint32]uint32) {
	slots = make(map[gpu.QueueKind][2]uint32)
	counts = make(map[uint32]uint32)

	assign := func(kind gpu.QueueKind, family uint32) {
		index := counts[family]
		if index >= props[family].QueueCount {
			index = props[family].QueueCount - 1
		} else {
			counts[family]++
		}
		slots[kind] = [2]uint32{family, index}
	}

	assign(gpu.QueueGraphics, indices.Graphics.Get())
	assign(gpu.QueueCompute, indices.Compute.Get())
	if indices.Transfer.HasValue() {
		assign(gpu.QueueTransfer, indices.Transfer.Get())
	}
	if indices.Present.Get() == indices.Graphics.Get() {
		slots[gpu.QueuePresent] = slots[gpu.QueueGraphics]
	} else {
		assign(gpu.QueuePresent, indices.Present.Get())
	}
	return slots, counts
}

func (d *Device) createLogicalDevice() error {
	indices, props := d.findQueueFamilies(d.physicalDevice)
	if !indices.IsComplete() {
		return fmt.Errorf("createLogicalDevice called for physical device which does " +
			"not have all the queues required by the program")
	}

	slots, counts := queueSlots(indices, props)

	queueCreateInfos := []vk.DeviceQueueCreateInfo{}
	for _, familyIndex := range indices.Unique() {
		count := counts[familyIndex]
		priorities := make([]float32, count)
		for i := range priorities {
			priorities[i] = 1
		}

		queueCreateInfos = append(
			queueCreateInfos,
			vk.DeviceQueueCreateInfo{
				SType:            vk.StructureTypeDeviceQueueCreateInfo,
				QueueFamilyIndex: familyIndex,
				QueueCount:       count,
				PQueuePriorities: priorities,
			},
		)
	}

	deviceFeatures := []vk.PhysicalDeviceFeatures{{}}

	createInfo := vk.DeviceCreateInfo{
		SType:            vk.StructureTypeDeviceCreateInfo,
		PEnabledFeatures: deviceFeatures,

		PQueueCreateInfos:    queueCreateInfos,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),

		EnabledExtensionCount:   uint32(len(d.deviceExtensions)),
		PpEnabledExtensionNames: d.deviceExtensions,
	}

	if d.opts.Debug {
		createInfo.PpEnabledLayerNames = d.validationLayers
		createInfo.EnabledLayerCount = uint32(len(d.validationLayers))
	}

	var device vk.Device
	err := vk.Error(vk.CreateDevice(d.physicalDevice, &createInfo, nil, &device))
	if err != nil {
		return fmt.Errorf("failed to create logical device: %w", err)
	}
	d.device = device
	d.families = indices

	d.queues = make(map[gpu.QueueKind]queue, len(slots))
	for kind, slot := range slots {
		var q vk.Queue
		vk.GetDeviceQueue(d.device, slot[0], slot[1], &q)
		d.queues[kind] = queue{Queue: gpu.Queue{Kind: kind, Family: slot[0]}, vk: q}
	}

	return nil
}
