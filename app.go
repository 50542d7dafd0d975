package main

import (
	"cmp"
	"fmt"
	"math"
	"unsafe"

	"gpuparticles/config"
	"gpuparticles/frame"
	"gpuparticles/queues"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

// ParticleApp renders a GPU-driven particle system. Every frame a compute
// dispatch advances the particle state and a graphics pass draws the result,
// with both submissions pipelined over the configured number of frames in
// flight. The frame ordering logic itself lives in the frame package; this
// type owns the Vulkan objects and wires them into it.
type ParticleApp struct {
	cfg *config.Config
	log *zap.Logger

	// validationLayers is the list of validation layers enabled by this
	// program when the -debug flag is set.
	validationLayers       []string
	enableValidationLayers bool

	// deviceExtensions is the list of required device extensions needed by this
	// program.
	deviceExtensions []string

	window   *glfw.Window
	instance vk.Instance

	// physicalDevice is the physical device selected for this program.
	physicalDevice vk.PhysicalDevice

	// device is the logical device created for interfacing with the physical device.
	device vk.Device

	graphicsQueue vk.Queue
	computeQueue  vk.Queue
	presentQueue  vk.Queue

	surface vk.Surface

	swapChain            vk.Swapchain
	swapChainImages      []vk.Image
	swapChainImageViews  []vk.ImageView
	swapChainImageFormat vk.Format
	swapChainExtend      vk.Extent2D

	swapChainFramebuffers []vk.Framebuffer

	renderPass vk.RenderPass

	pipelineLayout   vk.PipelineLayout
	graphicsPipeline vk.Pipeline

	computeDescriptorSetLayout vk.DescriptorSetLayout
	computePipelineLayout      vk.PipelineLayout
	computePipeline            vk.Pipeline

	commandPool vk.CommandPool

	// particleBuffers hold one device-local particle array per frame slot.
	// The compute pass for slot i reads the previous slot's buffer and
	// writes buffer i, which the graphics pass then uses as vertex source.
	particleBuffers       frame.Ring[vk.Buffer]
	particleBuffersMemory frame.Ring[vk.DeviceMemory]

	uniformBuffers       frame.Ring[vk.Buffer]
	uniformBuffersMemory frame.Ring[vk.DeviceMemory]
	uniformBuffersMapped frame.Ring[unsafe.Pointer]

	descriptorPool        vk.DescriptorPool
	computeDescriptorSets frame.Ring[vk.DescriptorSet]

	commandBuffers        frame.Ring[vk.CommandBuffer]
	computeCommandBuffers frame.Ring[vk.CommandBuffer]

	imageAvailableSems    frame.Ring[vk.Semaphore]
	renderFinishedSems    frame.Ring[vk.Semaphore]
	computeFinishedSems   frame.Ring[vk.Semaphore]
	inFlightFences        frame.Ring[vk.Fence]
	computeInFlightFences frame.Ring[vk.Fence]

	scheduler *frame.Scheduler
}

// Run runs the vulkan program.
func (a *ParticleApp) Run() error {
	if err := a.initWindow(); err != nil {
		return fmt.Errorf("initWindow: %w", err)
	}
	defer a.cleanWindow()

	// Registered before initVulkan so that a failure partway through the
	// create chain still releases everything created up to that point. All
	// destruction below is guarded against null handles and empty rings.
	defer a.cleanupVulkan()

	if err := a.initVulkan(); err != nil {
		return fmt.Errorf("initVulkan: %w", err)
	}

	if err := a.mainLoop(); err != nil {
		return fmt.Errorf("mainLoop: %w", err)
	}

	return nil
}

func (a *ParticleApp) initWindow() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw.Init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	window, err := glfw.CreateWindow(a.cfg.Screen.Width, a.cfg.Screen.Height, title, nil, nil)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}

	window.SetFramebufferSizeCallback(a.frameBufferResizeCallback)

	a.window = window
	return nil
}

func (a *ParticleApp) frameBufferResizeCallback(
	w *glfw.Window,
	width int,
	height int,
) {
	if a.scheduler != nil {
		a.scheduler.NotifyResize()
	}
}

func (a *ParticleApp) cleanWindow() {
	a.window.Destroy()
	glfw.Terminate()
}

func (a *ParticleApp) initVulkan() error {
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())

	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to init Vulkan Go: %w", err)
	}

	if err := a.createInstance(); err != nil {
		return fmt.Errorf("createInstance: %w", err)
	}

	if err := a.createSurface(); err != nil {
		return fmt.Errorf("createSurface: %w", err)
	}

	if err := a.pickPhysicalDevice(); err != nil {
		return fmt.Errorf("pickPhysicalDevice: %w", err)
	}

	if err := a.createLogicalDevice(); err != nil {
		return fmt.Errorf("createLogicalDevice: %w", err)
	}

	if err := a.createSwapChain(); err != nil {
		return fmt.Errorf("createSwapChain: %w", err)
	}

	if err := a.createImageViews(); err != nil {
		return fmt.Errorf("createImageViews: %w", err)
	}

	if err := a.createRenderPass(); err != nil {
		return fmt.Errorf("createRenderPass: %w", err)
	}

	if err := a.createComputeDescriptorSetLayout(); err != nil {
		return fmt.Errorf("createComputeDescriptorSetLayout: %w", err)
	}

	if err := a.createGraphicsPipeline(); err != nil {
		return fmt.Errorf("createGraphicsPipeline: %w", err)
	}

	if err := a.createComputePipeline(); err != nil {
		return fmt.Errorf("createComputePipeline: %w", err)
	}

	if err := a.createFramebuffers(); err != nil {
		return fmt.Errorf("createFramebuffers: %w", err)
	}

	if err := a.createCommandPool(); err != nil {
		return fmt.Errorf("createCommandPool: %w", err)
	}

	if err := a.createParticleBuffers(); err != nil {
		return fmt.Errorf("createParticleBuffers: %w", err)
	}

	if err := a.createUniformBuffers(); err != nil {
		return fmt.Errorf("createUniformBuffers: %w", err)
	}

	if err := a.createDescriptorPool(); err != nil {
		return fmt.Errorf("createDescriptorPool: %w", err)
	}

	if err := a.createComputeDescriptorSets(); err != nil {
		return fmt.Errorf("createComputeDescriptorSets: %w", err)
	}

	if err := a.createCommandBuffers(); err != nil {
		return fmt.Errorf("createCommandBuffers: %w", err)
	}

	if err := a.createSyncObjects(); err != nil {
		return fmt.Errorf("createSyncObjects: %w", err)
	}

	if err := a.createScheduler(); err != nil {
		return fmt.Errorf("createScheduler: %w", err)
	}

	return nil
}

func (a *ParticleApp) cleanupVulkan() {
	// Drain all in-flight work first. mainLoop only reaches its own drain
	// on a clean exit; after a fatal frame error submitted command buffers
	// may still reference the objects destroyed below.
	if a.device != vk.Device(vk.NullHandle) {
		vk.DeviceWaitIdle(a.device)
	}

	for _, sem := range a.imageAvailableSems.Items() {
		vk.DestroySemaphore(a.device, sem, nil)
	}
	for _, sem := range a.renderFinishedSems.Items() {
		vk.DestroySemaphore(a.device, sem, nil)
	}
	for _, sem := range a.computeFinishedSems.Items() {
		vk.DestroySemaphore(a.device, sem, nil)
	}
	for _, fence := range a.inFlightFences.Items() {
		vk.DestroyFence(a.device, fence, nil)
	}
	for _, fence := range a.computeInFlightFences.Items() {
		vk.DestroyFence(a.device, fence, nil)
	}

	if a.commandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(a.device, a.commandPool, nil)
	}

	if a.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(a.device, a.descriptorPool, nil)
	}
	if a.computeDescriptorSetLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(a.device, a.computeDescriptorSetLayout, nil)
	}

	for _, buffer := range a.uniformBuffers.Items() {
		vk.DestroyBuffer(a.device, buffer, nil)
	}
	for _, memory := range a.uniformBuffersMemory.Items() {
		vk.FreeMemory(a.device, memory, nil)
	}

	for _, buffer := range a.particleBuffers.Items() {
		vk.DestroyBuffer(a.device, buffer, nil)
	}
	for _, memory := range a.particleBuffersMemory.Items() {
		vk.FreeMemory(a.device, memory, nil)
	}

	if a.graphicsPipeline != vk.NullPipeline {
		vk.DestroyPipeline(a.device, a.graphicsPipeline, nil)
	}
	if a.pipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(a.device, a.pipelineLayout, nil)
	}
	if a.computePipeline != vk.NullPipeline {
		vk.DestroyPipeline(a.device, a.computePipeline, nil)
	}
	if a.computePipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(a.device, a.computePipelineLayout, nil)
	}

	a.cleanupSwapChain()

	if a.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(a.device, a.renderPass, nil)
	}

	if a.device != vk.Device(vk.NullHandle) {
		vk.DestroyDevice(a.device, nil)
	}
	if a.surface != vk.NullSurface {
		vk.DestroySurface(a.instance, a.surface, nil)
	}
	vk.DestroyInstance(a.instance, nil)
}

func (a *ParticleApp) cleanupSwapChain() {
	for _, frameBuffer := range a.swapChainFramebuffers {
		vk.DestroyFramebuffer(a.device, frameBuffer, nil)
	}
	a.swapChainFramebuffers = nil

	for _, imageView := range a.swapChainImageViews {
		vk.DestroyImageView(a.device, imageView, nil)
	}

	if a.swapChain != vk.NullSwapchain {
		vk.DestroySwapchain(a.device, a.swapChain, nil)
	}
	a.swapChain = vk.NullSwapchain
	a.swapChainImages = nil
	a.swapChainImageViews = nil
}

// recreateSwapChain rebuilds everything which depends on the presentation
// surface. Particle buffers, uniform memory and synchronization objects
// survive untouched, so the simulation continues where it was.
func (a *ParticleApp) recreateSwapChain() error {
	for {
		width, height := a.window.GetFramebufferSize()
		if width != 0 && height != 0 {
			break
		}

		glfw.WaitEvents()
	}

	vk.DeviceWaitIdle(a.device)

	a.cleanupSwapChain()

	if err := a.createSwapChain(); err != nil {
		return fmt.Errorf("createSwapChain: %w", err)
	}
	if err := a.createImageViews(); err != nil {
		return fmt.Errorf("createImageViews: %w", err)
	}
	if err := a.createFramebuffers(); err != nil {
		return fmt.Errorf("createFramebuffers: %w", err)
	}

	return nil
}

func (a *ParticleApp) createInstance() error {
	if a.enableValidationLayers && !a.checkValidationSupport() {
		return fmt.Errorf("validation layers requested but not available")
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   title + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "No Engine\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion10,
	}

	glfwExtensions := a.window.GetRequiredInstanceExtensions()
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(glfwExtensions)),
		PpEnabledExtensionNames: glfwExtensions,
	}

	if a.enableValidationLayers {
		createInfo.EnabledLayerCount = uint32(len(a.validationLayers))
		createInfo.PpEnabledLayerNames = a.validationLayers
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return fmt.Errorf("failed to create Vulkan instance: %w", err)
	}

	a.instance = instance
	return nil
}

func (a *ParticleApp) createSurface() error {
	surfacePtr, err := a.window.CreateWindowSurface(a.instance, nil)
	if err != nil {
		return fmt.Errorf("cannot create surface within GLFW window: %w", err)
	}

	a.surface = vk.SurfaceFromPointer(surfacePtr)
	return nil
}

func (a *ParticleApp) pickPhysicalDevice() error {
	var deviceCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(a.instance, &deviceCount, nil))
	if err != nil {
		return fmt.Errorf("failed to get the number of physical devices: %w", err)
	}
	if deviceCount == 0 {
		return fmt.Errorf("failed to find GPUs with Vulkan support")
	}

	pDevices := make([]vk.PhysicalDevice, deviceCount)
	err = vk.Error(vk.EnumeratePhysicalDevices(a.instance, &deviceCount, pDevices))
	if err != nil {
		return fmt.Errorf("failed to enumerate the physical devices: %w", err)
	}

	var (
		selectedDevice vk.PhysicalDevice
		score          uint32
	)

	for _, device := range pDevices {
		deviceScore := a.getDeviceScore(device)

		if deviceScore > score {
			selectedDevice = device
			score = deviceScore
		}
	}

	if selectedDevice == vk.PhysicalDevice(vk.NullHandle) {
		return fmt.Errorf("failed to find suitable physical devices")
	}

	a.physicalDevice = selectedDevice
	return nil
}

func (a *ParticleApp) createLogicalDevice() error {
	indices := a.findQueueFamilies(a.physicalDevice)
	if !indices.IsComplete() {
		return fmt.Errorf("createLogicalDevice called for physical device which does " +
			"not have all the queues required by the program")
	}

	queueFamilies := make(map[uint32]struct{})
	queueFamilies[indices.GraphicsAndCompute.Get()] = struct{}{}
	queueFamilies[indices.Present.Get()] = struct{}{}

	queueCreateInfos := []vk.DeviceQueueCreateInfo{}

	for familyIndex := range queueFamilies {
		queueCreateInfos = append(
			queueCreateInfos,
			vk.DeviceQueueCreateInfo{
				SType:            vk.StructureTypeDeviceQueueCreateInfo,
				QueueFamilyIndex: familyIndex,
				QueueCount:       1,
				PQueuePriorities: []float32{1.0},
			},
		)
	}

	deviceFeatures := []vk.PhysicalDeviceFeatures{{}}

	createInfo := vk.DeviceCreateInfo{
		SType:            vk.StructureTypeDeviceCreateInfo,
		PEnabledFeatures: deviceFeatures,

		PQueueCreateInfos:    queueCreateInfos,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),

		EnabledExtensionCount:   uint32(len(a.deviceExtensions)),
		PpEnabledExtensionNames: a.deviceExtensions,
	}

	if a.enableValidationLayers {
		createInfo.PpEnabledLayerNames = a.validationLayers
		createInfo.EnabledLayerCount = uint32(len(a.validationLayers))
	}

	var device vk.Device
	err := vk.Error(vk.CreateDevice(a.physicalDevice, &createInfo, nil, &device))
	if err != nil {
		return fmt.Errorf("failed to create logical device: %w", err)
	}
	a.device = device

	// The compute queue may well be the same hardware queue as the graphics
	// one. The submission ordering does not rely on them being distinct.
	var graphicsQueue vk.Queue
	vk.GetDeviceQueue(a.device, indices.GraphicsAndCompute.Get(), 0, &graphicsQueue)
	a.graphicsQueue = graphicsQueue

	var computeQueue vk.Queue
	vk.GetDeviceQueue(a.device, indices.GraphicsAndCompute.Get(), 0, &computeQueue)
	a.computeQueue = computeQueue

	var presentQueue vk.Queue
	vk.GetDeviceQueue(a.device, indices.Present.Get(), 0, &presentQueue)
	a.presentQueue = presentQueue

	return nil
}

func (a *ParticleApp) createSwapChain() error {
	swapChainSupport := a.querySwapChainSupport(a.physicalDevice)

	surfaceFormat := a.chooseSwapSurfaceFormat(swapChainSupport.formats)
	presentMode := a.chooseSwapPresentMode(swapChainSupport.presentModes)
	extend := a.chooseSwapExtend(swapChainSupport.capabilities)

	imageCount := swapChainSupport.capabilities.MinImageCount + 1
	if swapChainSupport.capabilities.MaxImageCount > 0 &&
		imageCount > swapChainSupport.capabilities.MaxImageCount {
		imageCount = swapChainSupport.capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          a.surface,
		MinImageCount:    imageCount,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageFormat:      surfaceFormat.Format,
		ImageExtent:      extend,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     swapChainSupport.capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	indices := a.findQueueFamilies(a.physicalDevice)
	if indices.GraphicsAndCompute.Get() != indices.Present.Get() {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			indices.GraphicsAndCompute.Get(),
			indices.Present.Get(),
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapChain vk.Swapchain
	res := vk.CreateSwapchain(a.device, &createInfo, nil, &swapChain)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to create swap chain: %w", err)
	}
	a.swapChain = swapChain

	var imagesCount uint32
	vk.GetSwapchainImages(a.device, a.swapChain, &imagesCount, nil)

	images := make([]vk.Image, imagesCount)
	vk.GetSwapchainImages(a.device, a.swapChain, &imagesCount, images)

	a.swapChainImages = images

	a.swapChainImageFormat = surfaceFormat.Format
	a.swapChainExtend = extend

	return nil
}

func (a *ParticleApp) createImageViews() error {
	for i, swapChainImage := range a.swapChainImages {
		swapChainImage := swapChainImage
		createInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapChainImage,
			ViewType: vk.ImageViewType2d,
			Format:   a.swapChainImageFormat,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}

		var imageView vk.ImageView
		res := vk.CreateImageView(a.device, &createInfo, nil, &imageView)
		if err := vk.Error(res); err != nil {
			return fmt.Errorf("failed to create image %d: %w", i, err)
		}

		a.swapChainImageViews = append(a.swapChainImageViews, imageView)
	}

	return nil
}

func (a *ParticleApp) createRenderPass() error {
	colorAttachment := vk.AttachmentDescription{
		Format:         a.swapChainImageFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}

	colorAttachmentRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorAttachmentRef},
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	renderPassInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	res := vk.CreateRenderPass(a.device, &renderPassInfo, nil, &renderPass)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to create render pass: %w", err)
	}
	a.renderPass = renderPass

	return nil
}

func (a *ParticleApp) createFramebuffers() error {
	a.swapChainFramebuffers = make([]vk.Framebuffer, len(a.swapChainImageViews))

	for i, swapChainView := range a.swapChainImageViews {
		swapChainView := swapChainView

		attachments := []vk.ImageView{
			swapChainView,
		}

		frameBufferInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      a.renderPass,
			AttachmentCount: 1,
			PAttachments:    attachments,
			Width:           a.swapChainExtend.Width,
			Height:          a.swapChainExtend.Height,
			Layers:          1,
		}

		var frameBuffer vk.Framebuffer
		res := vk.CreateFramebuffer(a.device, &frameBufferInfo, nil, &frameBuffer)
		if err := vk.Error(res); err != nil {
			return fmt.Errorf("failed to create frame buffer %d: %w", i, err)
		}

		a.swapChainFramebuffers[i] = frameBuffer
	}

	return nil
}

func (a *ParticleApp) createCommandPool() error {
	queueFamilyIndices := a.findQueueFamilies(a.physicalDevice)
	poolInfo := vk.CommandPoolCreateInfo{
		SType: vk.StructureTypeCommandPoolCreateInfo,
		Flags: vk.CommandPoolCreateFlags(
			vk.CommandPoolCreateResetCommandBufferBit,
		),
		QueueFamilyIndex: queueFamilyIndices.GraphicsAndCompute.Get(),
	}

	var commandPool vk.CommandPool
	res := vk.CreateCommandPool(a.device, &poolInfo, nil, &commandPool)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to create command pool: %w", err)
	}
	a.commandPool = commandPool

	return nil
}

// findQueueFamilies returns a FamilyIndices populated with Vulkan queue families
// needed by the program.
func (a *ParticleApp) findQueueFamilies(device vk.PhysicalDevice) queues.FamilyIndices {
	indices := queues.FamilyIndices{}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)

	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	requiredFlags := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)

	for i, family := range queueFamilies {
		family.Deref()

		if family.QueueFlags&requiredFlags == requiredFlags {
			indices.GraphicsAndCompute.Set(uint32(i))
		}

		var hasPresent vk.Bool32
		err := vk.Error(
			vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), a.surface, &hasPresent),
		)
		if err != nil {
			a.log.Warn("error querying surface support for queue family",
				zap.Int("family", i),
				zap.Error(err),
			)
		} else if hasPresent.B() {
			indices.Present.Set(uint32(i))
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices
}

func (a *ParticleApp) querySwapChainSupport(
	device vk.PhysicalDevice,
) swapChainSupportDetails {
	details := swapChainSupportDetails{}

	var capabilities vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(device, a.surface, &capabilities)
	if err := vk.Error(res); err != nil {
		panic(fmt.Sprintf("failed to query device surface capabilities: %s", err))
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	details.capabilities = capabilities

	var formatCount uint32
	res = vk.GetPhysicalDeviceSurfaceFormats(device, a.surface, &formatCount, nil)
	if err := vk.Error(res); err != nil {
		panic(fmt.Sprintf("failed to query device surface formats: %s", err))
	}

	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(device, a.surface, &formatCount, formats)
		for _, format := range formats {
			format.Deref()
			details.formats = append(details.formats, format)
		}
	}

	var presentModeCount uint32
	res = vk.GetPhysicalDeviceSurfacePresentModes(
		device, a.surface, &presentModeCount, nil,
	)
	if err := vk.Error(res); err != nil {
		panic(fmt.Sprintf("failed to query device surface present modes: %s", err))
	}

	if presentModeCount != 0 {
		presentModes := make([]vk.PresentMode, presentModeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(
			device, a.surface, &presentModeCount, presentModes,
		)
		details.presentModes = presentModes
	}

	return details
}

// getDeviceScore returns how suitable is this device for the current program.
// Bigger score means better. Zero or negative means the device cannot be used.
func (a *ParticleApp) getDeviceScore(device vk.PhysicalDevice) uint32 {
	var (
		deviceScore uint32
		properties  vk.PhysicalDeviceProperties
	)

	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()

	if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
		deviceScore += 1000
	} else {
		deviceScore++
	}

	if !a.isDeviceSuitable(device) {
		deviceScore = 0
	}

	a.log.Debug("available device",
		zap.String("name", vk.ToString(properties.DeviceName[:])),
		zap.Uint32("score", deviceScore),
	)

	return deviceScore
}

func (a *ParticleApp) isDeviceSuitable(device vk.PhysicalDevice) bool {
	indices := a.findQueueFamilies(device)
	extensionsSupported := a.checkDeviceExtensionSupport(device)

	swapChainAdequate := false
	if extensionsSupported {
		swapChainSupport := a.querySwapChainSupport(device)
		swapChainAdequate = len(swapChainSupport.formats) > 0 &&
			len(swapChainSupport.presentModes) > 0
	}

	return indices.IsComplete() && extensionsSupported && swapChainAdequate
}

func (a *ParticleApp) chooseSwapSurfaceFormat(
	availableFormats []vk.SurfaceFormat,
) vk.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == vk.FormatB8g8r8a8Srgb &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

func (a *ParticleApp) chooseSwapPresentMode(
	available []vk.PresentMode,
) vk.PresentMode {
	for _, mode := range available {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}

	return vk.PresentModeFifo
}

func (a *ParticleApp) chooseSwapExtend(
	capabilities vk.SurfaceCapabilities,
) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}

	width, height := a.window.GetFramebufferSize()

	actualExtend := vk.Extent2D{
		Width:  uint32(width),
		Height: uint32(height),
	}

	actualExtend.Width = clamp(
		actualExtend.Width,
		capabilities.MinImageExtent.Width,
		capabilities.MaxImageExtent.Width,
	)

	actualExtend.Height = clamp(
		actualExtend.Height,
		capabilities.MinImageExtent.Height,
		capabilities.MaxImageExtent.Height,
	)

	return actualExtend
}

func (a *ParticleApp) checkDeviceExtensionSupport(device vk.PhysicalDevice) bool {
	var extensionsCount uint32
	res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount, nil)
	if err := vk.Error(res); err != nil {
		a.log.Warn("enumerating device extension properties count failed",
			zap.Error(err),
		)
		return false
	}

	availableExtensions := make([]vk.ExtensionProperties, extensionsCount)
	res = vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount,
		availableExtensions)
	if err := vk.Error(res); err != nil {
		a.log.Warn("getting device extension properties failed", zap.Error(err))
		return false
	}

	requiredExtensions := make(map[string]struct{})
	for _, extensionName := range a.deviceExtensions {
		requiredExtensions[extensionName] = struct{}{}
	}

	for _, extension := range availableExtensions {
		extension.Deref()
		extensionName := vk.ToString(extension.ExtensionName[:])

		delete(requiredExtensions, extensionName+"\x00")
	}

	return len(requiredExtensions) == 0
}

func (a *ParticleApp) checkValidationSupport() bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	availableLayers := make([]vk.LayerProperties, count)

	if vk.EnumerateInstanceLayerProperties(&count, availableLayers) != vk.Success {
		return false
	}

	availableLayersStr := make([]string, 0, count)
	for _, layer := range availableLayers {
		layer.Deref()

		layerName := vk.ToString(layer.LayerName[:])
		availableLayersStr = append(availableLayersStr, layerName+"\x00")
	}

	for _, validationLayer := range a.validationLayers {
		layerFound := false

		for _, instanceLayer := range availableLayersStr {
			if validationLayer == instanceLayer {
				layerFound = true
				break
			}
		}

		if !layerFound {
			return false
		}
	}

	return true
}

func (a *ParticleApp) createShaderModule(code []byte) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    repackUint32(code),
	}

	var shaderModule vk.ShaderModule
	res := vk.CreateShaderModule(a.device, &createInfo, nil, &shaderModule)
	return shaderModule, vk.Error(res)
}

func (a *ParticleApp) mainLoop() error {
	a.log.Info("starting frame loop",
		zap.Int("particles", a.cfg.Particles.Count),
		zap.Int("framesInFlight", a.cfg.Frames.InFlight),
	)

	lastTime := glfw.GetTime()

	for !a.window.ShouldClose() {
		currentTime := glfw.GetTime()
		delta := float32(currentTime-lastTime) * 1000
		lastTime = currentTime

		result, err := a.scheduler.AdvanceFrame(delta)
		if err != nil {
			return fmt.Errorf("advancing frame: %w", err)
		}
		if result == frame.ResultSwapchainRebuilt {
			a.log.Debug("swapchain rebuilt",
				zap.Int("slot", a.scheduler.Slot()),
			)
		}

		glfw.PollEvents()
	}

	return a.scheduler.Shutdown()
}

// swapChainSupportDetails describes a present surface. The type is suitable for
// passing around many details of the surface between functions.
type swapChainSupportDetails struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func clamp[T cmp.Ordered](val, min, max T) T {
	if val < min {
		val = min
	}
	if val > max {
		val = max
	}
	return val
}

func repackUint32(data []byte) []uint32 {
	buf := make([]uint32, len(data)/4)
	vk.Memcopy(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&buf)).Data), data)
	return buf
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}
