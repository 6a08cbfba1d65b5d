// Package vulkan implements the gpu.Device abstraction on top of Vulkan,
// using GLFW for surface creation.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/prismatik/lumen/engine/core"
	"github.com/prismatik/lumen/engine/platform"
	"github.com/prismatik/lumen/engine/renderer/gpu"
)

// descriptorPoolCapacity bounds the device-level descriptor pool. The
// binder enforces its own per-template caps well below this.
const descriptorPoolCapacity = 4096

// New brings up the full Vulkan stack: instance, surface, device, queues
// and the shared command and descriptor pools. validation enables the
// Khronos validation layer and a debug report callback.
func New(p *platform.Platform, appName string, validation bool) (*Device, error) {
	vk.SetGetInstanceProcAddr(platform.VulkanProcAddr())
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("initializing vulkan: %w", err)
	}

	d := &Device{
		ctx:        &Context{},
		locks:      newLockPool(),
		memories:   map[gpu.BlockHandle]vk.DeviceMemory{},
		buffers:    map[gpu.BufferHandle]vk.Buffer{},
		images:     map[gpu.ImageHandle]*imageObject{},
		samplers:   map[gpu.SamplerHandle]vk.Sampler{},
		shaders:    map[gpu.ShaderModule]vk.ShaderModule{},
		sets:       map[gpu.DescriptorSet]vk.DescriptorSet{},
		pipelines:  map[gpu.PipelineHandle]*pipelineObject{},
		passes:     map[gpu.RenderPassHandle]vk.RenderPass{},
		fbs:        map[gpu.FramebufferHandle]vk.Framebuffer{},
		fences:     map[gpu.FenceHandle]vk.Fence{},
		semaphores: map[gpu.SemaphoreHandle]vk.Semaphore{},
		swapchains: map[gpu.SwapchainHandle]*swapchainObject{},
		setLayouts: map[uint64]vk.DescriptorSetLayout{},
		validation: validation,
	}

	if err := d.createInstance(p, appName); err != nil {
		return nil, err
	}
	if validation {
		if err := d.createDebugMessenger(); err != nil {
			core.LogWarn("debug messenger unavailable: %v", err)
		}
	}

	surface, err := p.Window.CreateWindowSurface(d.ctx.Instance, nil)
	if err != nil {
		d.Destroy()
		return nil, fmt.Errorf("creating surface: %w", err)
	}
	d.ctx.Surface = vk.SurfaceFromPointer(uintptr(surface))

	if err := d.selectPhysicalDevice(); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.Destroy()
		return nil, err
	}
	if !d.ctx.detectDepthFormat() {
		d.Destroy()
		return nil, fmt.Errorf("no supported depth attachment format: %w", core.ErrNoSuitableDevice)
	}
	if err := d.createDescriptorPool(); err != nil {
		d.Destroy()
		return nil, err
	}

	d.ctx.Properties.Deref()
	d.ctx.Properties.Limits.Deref()
	d.info = gpu.DeviceInfo{
		Name: vk.ToString(d.ctx.Properties.DeviceName[:]),
		Limits: gpu.DeviceLimits{
			MaxDescriptorSets:               descriptorPoolCapacity,
			MinUniformBufferOffsetAlignment: uint64(d.ctx.Properties.Limits.MinUniformBufferOffsetAlignment),
			MaxPushConstantSize:             d.ctx.Properties.Limits.MaxPushConstantsSize,
		},
		GraphicsQueueIndex: uint32(d.ctx.GraphicsQueueIndex),
		PresentQueueIndex:  uint32(d.ctx.PresentQueueIndex),
		TransferQueueIndex: uint32(d.ctx.TransferQueueIndex),
		DepthFormat:        fromVkFormat(d.ctx.DepthFormat),
	}
	core.LogInfo("vulkan device ready: %s", d.info.Name)
	return d, nil
}

func (d *Device) createInstance(p *platform.Platform, appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(appName),
		PEngineName:        safeString("Lumen"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, p.RequiredVulkanExtensions()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if d.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = safeStrings(requiredExtensions)

	var layers []string
	if d.validation {
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if !instanceLayersAvailable(layers) {
			core.LogWarn("validation layer missing, continuing without it")
			layers = nil
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	if res := vk.CreateInstance(&createInfo, d.ctx.Allocator, &d.ctx.Instance); res != vk.Success {
		return resultErr("creating instance", res)
	}
	if err := vk.InitInstance(d.ctx.Instance); err != nil {
		return fmt.Errorf("initializing instance: %w", err)
	}
	core.LogDebug("vulkan instance created")
	return nil
}

func instanceLayersAvailable(required []string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for _, want := range required {
		found := false
		for j := range available {
			available[j].Deref()
			end := findFirstZeroInByteArray(available[j].LayerName[:])
			if want == vk.ToString(available[j].LayerName[:end+1]) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (d *Device) createDebugMessenger() error {
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(d.ctx.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
		return err
	}
	d.ctx.debugMessenger = dbg
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] %s", pLayerPrefix, pMessage)
	default:
		core.LogWarn("[%s] %s", pLayerPrefix, pMessage)
	}
	return vk.Bool32(vk.False)
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.ctx.Instance, &count, nil); res != vk.Success {
		return resultErr("enumerating devices", res)
	}
	if count == 0 {
		return fmt.Errorf("no Vulkan devices present: %w", core.ErrNoSuitableDevice)
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.ctx.Instance, &count, devices); res != vk.Success {
		return resultErr("enumerating devices", res)
	}

	requireDiscrete := runtime.GOOS != "darwin"
	for pass := 0; pass < 2; pass++ {
		for _, candidate := range devices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(candidate, &properties)
			properties.Deref()

			if requireDiscrete && pass == 0 && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
				continue
			}

			graphics, present, transfer, ok := d.queueFamilies(candidate)
			if !ok {
				continue
			}
			if !deviceSupportsSwapchain(candidate) {
				continue
			}

			d.ctx.PhysicalDevice = candidate
			d.ctx.GraphicsQueueIndex = graphics
			d.ctx.PresentQueueIndex = present
			d.ctx.TransferQueueIndex = transfer
			d.ctx.Properties = properties
			vk.GetPhysicalDeviceFeatures(candidate, &d.ctx.Features)
			d.ctx.Features.Deref()
			vk.GetPhysicalDeviceMemoryProperties(candidate, &d.ctx.Memory)
			d.ctx.Memory.Deref()

			if err := d.ctx.querySwapchainSupport(); err != nil {
				return err
			}
			if len(d.ctx.SwapchainSupport.Formats) == 0 || len(d.ctx.SwapchainSupport.PresentModes) == 0 {
				continue
			}
			core.LogInfo("selected device: %s", vk.ToString(properties.DeviceName[:]))
			return nil
		}
	}
	return fmt.Errorf("no device satisfies graphics and present requirements: %w", core.ErrNoSuitableDevice)
}

func (d *Device) queueFamilies(device vk.PhysicalDevice) (graphics, present, transfer int32, ok bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)

	graphics, present, transfer = -1, -1, -1
	// Prefer the least capable family holding the transfer bit, which is
	// most likely a dedicated transfer queue.
	minTransferScore := 255
	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		score := 0

		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			graphics = int32(i)
			score++
		}
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueComputeBit != 0 {
			score++
		}
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueTransferBit != 0 {
			if score <= minTransferScore {
				minTransferScore = score
				transfer = int32(i)
			}
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, i, d.ctx.Surface, &supportsPresent); res != vk.Success {
			continue
		}
		if supportsPresent == vk.True {
			present = int32(i)
		}
	}
	return graphics, present, transfer, graphics >= 0 && present >= 0 && transfer >= 0
}

func deviceSupportsSwapchain(device vk.PhysicalDevice) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, extensions); res != vk.Success {
		return false
	}
	for i := range extensions {
		extensions[i].Deref()
		end := findFirstZeroInByteArray(extensions[i].ExtensionName[:])
		if vk.ToString(extensions[i].ExtensionName[:end+1]) == vk.KhrSwapchainExtensionName {
			return true
		}
	}
	return false
}

func (d *Device) createLogicalDevice() error {
	// Do not create additional queues for shared indices.
	indices := []uint32{uint32(d.ctx.GraphicsQueueIndex)}
	if d.ctx.PresentQueueIndex != d.ctx.GraphicsQueueIndex {
		indices = append(indices, uint32(d.ctx.PresentQueueIndex))
	}
	if d.ctx.TransferQueueIndex != d.ctx.GraphicsQueueIndex && d.ctx.TransferQueueIndex != d.ctx.PresentQueueIndex {
		indices = append(indices, uint32(d.ctx.TransferQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	if d.ctx.Features.SamplerAnisotropy == vk.True {
		deviceFeatures.SamplerAnisotropy = vk.True
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if devicePortabilityRequired(d.ctx.PhysicalDevice) {
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: safeStrings(extensionNames),
	}

	if res := vk.CreateDevice(d.ctx.PhysicalDevice, &deviceCreateInfo, d.ctx.Allocator, &d.ctx.LogicalDevice); res != vk.Success {
		return resultErr("creating logical device", res)
	}

	vk.GetDeviceQueue(d.ctx.LogicalDevice, uint32(d.ctx.GraphicsQueueIndex), 0, &d.ctx.GraphicsQueue)
	vk.GetDeviceQueue(d.ctx.LogicalDevice, uint32(d.ctx.PresentQueueIndex), 0, &d.ctx.PresentQueue)
	vk.GetDeviceQueue(d.ctx.LogicalDevice, uint32(d.ctx.TransferQueueIndex), 0, &d.ctx.TransferQueue)

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.ctx.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(d.ctx.LogicalDevice, &poolCreateInfo, d.ctx.Allocator, &d.ctx.GraphicsCommandPool); res != vk.Success {
		return resultErr("creating command pool", res)
	}
	core.LogDebug("logical device and queues ready")
	return nil
}

func devicePortabilityRequired(device vk.PhysicalDevice) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, extensions); res != vk.Success {
		return false
	}
	for i := range extensions {
		extensions[i].Deref()
		end := findFirstZeroInByteArray(extensions[i].ExtensionName[:])
		if vk.ToString(extensions[i].ExtensionName[:end+1]) == "VK_KHR_portability_subset" {
			return true
		}
	}
	return false
}

func (d *Device) createDescriptorPool() error {
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: descriptorPoolCapacity},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: descriptorPoolCapacity},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       descriptorPoolCapacity,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if res := vk.CreateDescriptorPool(d.ctx.LogicalDevice, &poolInfo, d.ctx.Allocator, &d.descriptorPool); res != vk.Success {
		return resultErr("creating descriptor pool", res)
	}
	return nil
}
