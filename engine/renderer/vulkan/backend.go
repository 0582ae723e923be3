package vulkan

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vitro/engine/containers"
	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/platform"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

// Serializes object creation and queue submission across goroutines.
var lockPool = NewVulkanLockPool()

// ErrFrameBooted reports that a frame cannot start this tick because the
// swapchain is in flux. The caller should skip the frame and try again.
var ErrFrameBooted = fmt.Errorf("frame booted")

/**
 * @brief Everything the backend keeps per program: the descriptor plan,
 * the pipeline built against its layout, and the shader modules the
 * pipeline was created from.
 */
type vulkanProgramState struct {
	Descriptors *VulkanProgramDescriptors
	Pipeline    *VulkanPipeline
	Modules     []*VulkanShaderStage
}

type VulkanRenderer struct {
	platform    *platform.Platform
	config      *metadata.RendererBackendConfig
	FrameNumber uint64
	context     *VulkanContext

	cachedFramebufferWidth  uint32
	cachedFramebufferHeight uint32

	// The session receiving commands, nil between frames. Sessions not
	// recording and not in flight wait on the idle stack.
	recording *VulkanBatch
	idle      []*VulkanBatch

	// True while the main renderpass is open on the recording session.
	rpActive bool
	// True until the frame's first submission consumes the image
	// availability semaphore.
	pendingWait bool

	debug bool
}

func New(p *platform.Platform, config *metadata.RendererBackendConfig) *VulkanRenderer {
	return &VulkanRenderer{
		platform:    p,
		config:      config,
		FrameNumber: 0,
		context: &VulkanContext{
			FramebufferWidth:  0,
			FramebufferHeight: 0,
			Allocator:         nil,
		},
		cachedFramebufferWidth:  0,
		cachedFramebufferHeight: 0,
		debug:                   config.Validation,
	}
}

func (vr *VulkanRenderer) Initialize() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		core.LogFatal("GetInstanceProcAddress is nil")
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogFatal("failed to initialize vk: %s", err)
		return err
	}

	// TODO: custom allocator.
	vr.context.Allocator = nil

	vr.cachedFramebufferWidth = vr.config.Width
	vr.cachedFramebufferHeight = vr.config.Height

	if vr.cachedFramebufferWidth != 0 {
		vr.context.FramebufferWidth = vr.cachedFramebufferWidth
	} else {
		vr.context.FramebufferWidth = 800
	}

	if vr.cachedFramebufferHeight != 0 {
		vr.context.FramebufferHeight = vr.cachedFramebufferHeight
	} else {
		vr.context.FramebufferHeight = 600
	}

	vr.cachedFramebufferWidth = 0
	vr.cachedFramebufferHeight = 0

	// Setup Vulkan instance.
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vr.config.ApplicationName),
		PEngineName:        VulkanSafeString("Vitro Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions. The window system reports
	// the surface extensions it needs.
	requiredExtensions := vr.platform.RequiredVulkanExtensions()

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}

	if vr.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugUtilsExtensionName, vk.ExtDebugReportExtensionName)
		core.LogInfo("Required extensions:")
		for i := 0; i < len(requiredExtensions); i++ {
			core.LogInfo(requiredExtensions[i])
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers. Only enabled on non-release builds.
	requiredValidationLayerNames := []string{}

	if vr.debug {
		core.LogInfo("Validation layers enabled. Enumerating...")

		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}

		if runtime.GOOS == "darwin" {
			createInfo.Flags |= 1
		}

		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			err := fmt.Errorf("failed to enumerate instance layer properties with error %s", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}

		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			err := fmt.Errorf("failed to enumerate instance layer properties with error %s", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}

		// Verify all required layers are available.
		for i := range requiredValidationLayerNames {
			core.LogInfo("Searching for layer: %s...", requiredValidationLayerNames[i])
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
				if requiredValidationLayerNames[i] == string(availableLayers[j].LayerName[:end]) {
					found = true
					core.LogInfo("Found.")
					break
				}
			}

			if !found {
				err := fmt.Errorf("required validation layer is missing: %s", requiredValidationLayerNames[i])
				core.LogFatal(err.Error())
				return err
			}
		}
		core.LogInfo("All required validation layers are present.")
	}

	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}

	core.LogInfo("Vulkan Instance created.")

	// Debugger
	if vr.debug {
		core.LogDebug("Creating Vulkan debugger...")

		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportInformationBit),
			PfnCallback: dbgCallbackFunc,
			PNext:       nil,
		}

		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vr.context.debugMessenger = dbg

		core.LogDebug("Vulkan debugger created.")
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	if !CreateVulkanSurface(vr.platform, vr.context) {
		err := fmt.Errorf("failed to create platform surface")
		core.LogError(err.Error())
		return err
	}
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(vr.context); err != nil {
		core.LogError("Failed to create device!")
		return err
	}

	lockPool.SetQueueFamily(uint32(vr.context.Device.GraphicsQueueIndex))
	lockPool.SetQueueFamily(uint32(vr.context.Device.PresentQueueIndex))
	lockPool.SetQueueFamily(uint32(vr.context.Device.ComputeQueueIndex))
	lockPool.SetQueueFamily(uint32(vr.context.Device.TransferQueueIndex))

	// Swapchain
	sc, err := SwapchainCreate(vr.context, vr.context.FramebufferWidth, vr.context.FramebufferHeight, uint8(vr.config.FramesInFlight))
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc

	rp, err := RenderpassCreate(
		vr.context,
		0, 0, float32(vr.context.FramebufferWidth), float32(vr.context.FramebufferHeight),
		0.0, 0.0, 0.2, 1.0,
		1.0,
		0)
	if err != nil {
		return err
	}
	vr.context.MainRenderpass = rp

	// Swapchain framebuffers.
	vr.context.Swapchain.Framebuffers = make([]*VulkanFramebuffer, vr.context.Swapchain.ImageCount)
	if err := vr.regenerateFramebuffers(vr.context.Swapchain, vr.context.MainRenderpass); err != nil {
		return err
	}

	// Recording sessions, one per frame in flight. The submitted ring
	// holds them in submission order so the oldest can be reclaimed.
	if err := vr.createSessions(); err != nil {
		return err
	}

	// Create sync objects.
	vr.context.ImageAvailableSemaphores = make([]vk.Semaphore, vr.context.Swapchain.MaxFramesInFlight)
	vr.context.QueueCompleteSemaphores = make([]vk.Semaphore, vr.context.Swapchain.MaxFramesInFlight)

	for i := 0; i < int(vr.context.Swapchain.MaxFramesInFlight); i++ {
		semaphoreCreateInfo := vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}

		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &vr.context.ImageAvailableSemaphores[i]); res != vk.Success {
			err := fmt.Errorf("failed to create semaphore on image available")
			core.LogError(err.Error())
			return err
		}

		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &vr.context.QueueCompleteSemaphores[i]); res != vk.Success {
			err := fmt.Errorf("failed to create semaphore on queue complete")
			core.LogError(err.Error())
			return err
		}
	}

	// Descriptor management. The hardware push path is only taken when
	// the device extension made it through the driver allowlist and the
	// configuration did not veto it.
	descriptorDev := newVulkanDescriptorDevice(
		vr.context.Device,
		vr.context.Allocator,
		vr.context.Device.PushDescriptors && vr.config.PushDescriptors,
	)
	descriptors, err := NewVulkanDescriptorContext(descriptorDev, vr.config.PoolSetCapacity, vr.config.UpdateTemplates, vr.reclaimSession)
	if err != nil {
		return err
	}
	vr.context.Descriptors = descriptors

	core.LogInfo("Vulkan renderer initialized successfully.")

	return nil
}

func (vr *VulkanRenderer) Shutdow() error {
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

	// Destroy in the opposite order of creation.

	// Recording sessions and their descriptor pools.
	for _, batch := range vr.context.Batches {
		if vr.context.Descriptors != nil {
			vr.context.Descriptors.DestroyBatchState(batch)
		}
		if batch.Fence != nil {
			batch.Fence.FenceDestroy(vr.context)
		}
		if batch.CommandBuffer != nil && batch.CommandBuffer.Handle != nil {
			batch.CommandBuffer.Free(vr.context, vr.context.Device.GraphicsCommandPool)
		}
	}
	vr.context.Batches = nil
	vr.context.InFlight = nil
	vr.recording = nil
	vr.idle = nil

	if vr.context.Descriptors != nil {
		vr.context.Descriptors.Destroy()
		vr.context.Descriptors = nil
	}

	// Sync objects
	for i := 0; i < int(vr.context.Swapchain.MaxFramesInFlight); i++ {
		if vr.context.ImageAvailableSemaphores[i] != vk.NullSemaphore {
			vk.DestroySemaphore(
				vr.context.Device.LogicalDevice,
				vr.context.ImageAvailableSemaphores[i],
				vr.context.Allocator)
			vr.context.ImageAvailableSemaphores[i] = vk.NullSemaphore
		}
		if vr.context.QueueCompleteSemaphores[i] != vk.NullSemaphore {
			vk.DestroySemaphore(
				vr.context.Device.LogicalDevice,
				vr.context.QueueCompleteSemaphores[i],
				vr.context.Allocator)
			vr.context.QueueCompleteSemaphores[i] = vk.NullSemaphore
		}
	}

	vr.context.ImageAvailableSemaphores = nil
	vr.context.QueueCompleteSemaphores = nil

	// Destroy framebuffers
	for i := 0; i < int(vr.context.Swapchain.ImageCount); i++ {
		vr.context.Swapchain.Framebuffers[i].Destroy(vr.context)
	}

	// Renderpass
	vr.context.MainRenderpass.RenderpassDestroy(vr.context)

	// Swapchain
	vr.context.Swapchain.SwapchainDestroy(vr.context)

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(vr.context)

	core.LogDebug("Destroying Vulkan surface...")
	if vr.context.Surface != vk.NullSurface {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.debug {
		core.LogDebug("Destroying Vulkan debugger...")
		if vr.context.debugMessenger != vk.NullDebugReportCallback {
			vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		}
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)

	return nil
}

func (vr *VulkanRenderer) Resized(width, height uint16) error {
	// Update the "framebuffer size generation", a counter which indicates when the
	// framebuffer size has been updated.
	vr.cachedFramebufferWidth = uint32(width)
	vr.cachedFramebufferHeight = uint32(height)
	vr.context.FramebufferSizeGeneration++

	core.LogInfo("Vulkan renderer backend->resized: w/h/gen: %d/%d/%d", width, height, vr.context.FramebufferSizeGeneration)
	return nil
}

func (vr *VulkanRenderer) BeginFrame(deltaTime float64) error {
	device := vr.context.Device

	// Check if recreating swap chain and boot out.
	if vr.context.RecreatingSwapchain {
		result := vk.DeviceWaitIdle(device.LogicalDevice)
		if !VulkanResultIsSuccess(result) {
			err := fmt.Errorf("begin frame vkDeviceWaitIdle (1) failed: '%s'", VulkanResultString(result, true))
			core.LogError(err.Error())
			return err
		}
		core.LogInfo("Recreating swapchain, booting.")
		return ErrFrameBooted
	}

	// Check if the framebuffer has been resized. If so, a new swapchain must be created.
	if vr.context.FramebufferSizeGeneration != vr.context.FramebufferSizeLastGeneration {
		result := vk.DeviceWaitIdle(device.LogicalDevice)
		if !VulkanResultIsSuccess(result) {
			err := fmt.Errorf("begin frame vkDeviceWaitIdle (2) failed: '%s'", VulkanResultString(result, true))
			core.LogError(err.Error())
			return err
		}

		// If the swapchain recreation failed (because, for example, the window was minimized),
		// boot out before unsetting the flag.
		if !vr.recreateSwapchain() {
			err := fmt.Errorf("failed to recreate the swapchain")
			core.LogError(err.Error())
			return err
		}

		core.LogInfo("Resized, booting.")
		return ErrFrameBooted
	}

	// Take a session to record into. When every session is in flight
	// this blocks on the oldest fence, which throttles the CPU at the
	// configured frame depth.
	batch, err := vr.acquireSession()
	if err != nil {
		return err
	}

	// Acquire the next image from the swap chain. Pass along the semaphore that should signaled when this completes.
	// This same semaphore will later be waited on by the queue submission to ensure this image is available.
	imageIndex, ok := vr.context.Swapchain.SwapchainAcquireNextImageIndex(vr.context, math.MaxUint64, vr.context.ImageAvailableSemaphores[vr.context.CurrentFrame], vk.NullFence)
	if !ok {
		// The swapchain is in flux; hand the session back and retry
		// next tick.
		vr.idle = append(vr.idle, batch)
		core.LogInfo("Swapchain acquire did not produce an image, booting.")
		return ErrFrameBooted
	}
	vr.context.ImageIndex = imageIndex

	if err := vr.beginRecording(batch); err != nil {
		return err
	}
	vr.pendingWait = true

	return nil
}

func (vr *VulkanRenderer) EndFrame(deltaTime float64) error {
	if vr.recording == nil {
		err := fmt.Errorf("end frame called with no frame in progress")
		core.LogError(err.Error())
		return err
	}

	// The present below advances CurrentFrame; the submission must
	// signal the semaphore of the frame being ended.
	frameIndex := vr.context.CurrentFrame

	if err := vr.submitRecording(true); err != nil {
		return err
	}

	// Give the image back to the swapchain.
	vr.context.Swapchain.SwapchainPresent(
		vr.context,
		vr.context.Device.GraphicsQueue,
		vr.context.Device.PresentQueue,
		vr.context.QueueCompleteSemaphores[frameIndex],
		vr.context.ImageIndex)

	vr.FrameNumber++

	return nil
}

/**
 * @brief Records one non-indexed draw. Descriptor state set since the
 * previous draw is resolved here, growing or rotating pools as needed,
 * before the pipeline is bound and the draw is recorded.
 */
func (vr *VulkanRenderer) Draw(cmd *metadata.DrawCommand) error {
	if vr.recording == nil {
		err := fmt.Errorf("draw issued outside of a frame")
		core.LogError(err.Error())
		return err
	}
	state, err := programState(cmd.Program)
	if err != nil {
		return err
	}
	if state.Descriptors.Kind != metadata.PipelineKindGraphics {
		err := fmt.Errorf("program '%s' is not a graphics program", cmd.Program.Name)
		core.LogError(err.Error())
		return err
	}

	descriptors := vr.context.Descriptors
	descriptors.BindProgram(state.Descriptors)
	if err := descriptors.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		return err
	}

	// The update may have rotated the recording session; enter the pass
	// on whichever session records now. Set binds recorded outside the
	// pass carry into it.
	vr.ensureRenderpass()
	if err := state.Pipeline.Bind(vr.recording.CommandBuffer, vk.PipelineBindPointGraphics); err != nil {
		return err
	}

	instanceCount := cmd.InstanceCount
	if instanceCount == 0 {
		instanceCount = 1
	}
	vk.CmdDraw(vr.recording.CommandBuffer.Handle, cmd.VertexCount, instanceCount, 0, 0)

	return nil
}

/**
 * @brief Records one compute dispatch. Compute cannot execute inside a
 * render pass, so an open pass is ended first; the next draw re-enters it.
 */
func (vr *VulkanRenderer) Dispatch(cmd *metadata.DispatchCommand) error {
	if vr.recording == nil {
		err := fmt.Errorf("dispatch issued outside of a frame")
		core.LogError(err.Error())
		return err
	}
	state, err := programState(cmd.Program)
	if err != nil {
		return err
	}
	if state.Descriptors.Kind != metadata.PipelineKindCompute {
		err := fmt.Errorf("program '%s' is not a compute program", cmd.Program.Name)
		core.LogError(err.Error())
		return err
	}

	vr.suspendRenderpass()

	descriptors := vr.context.Descriptors
	descriptors.BindProgram(state.Descriptors)
	if err := descriptors.UpdateAndBind(metadata.PipelineKindCompute); err != nil {
		return err
	}

	if err := state.Pipeline.Bind(vr.recording.CommandBuffer, vk.PipelineBindPointCompute); err != nil {
		return err
	}

	groupsX := cmd.GroupsX
	if groupsX == 0 {
		groupsX = 1
	}
	groupsY := cmd.GroupsY
	if groupsY == 0 {
		groupsY = 1
	}
	groupsZ := cmd.GroupsZ
	if groupsZ == 0 {
		groupsZ = 1
	}
	vk.CmdDispatch(vr.recording.CommandBuffer.Handle, groupsX, groupsY, groupsZ)

	return nil
}

/**
 * @brief Builds the backend side of a program: descriptor plan from the
 * staged reflection, shader modules from disk, and the pipeline against
 * the plan's layout.
 */
func (vr *VulkanRenderer) ProgramCreate(program *metadata.Program) error {
	if program == nil {
		err := fmt.Errorf("program create requires a program")
		core.LogError(err.Error())
		return err
	}
	if program.InternalData != nil {
		err := fmt.Errorf("program '%s' already has backend state", program.Name)
		core.LogError(err.Error())
		return err
	}

	config := &metadata.ProgramConfig{
		Name:   program.Name,
		Stages: program.Stages,
	}
	program.Kind = config.PipelineKind()

	descriptors, err := vr.context.Descriptors.BuildProgramDescriptors(config)
	if err != nil {
		return err
	}

	state := &vulkanProgramState{
		Descriptors: descriptors,
	}

	cleanup := func() {
		for _, module := range state.Modules {
			module.Destroy(vr.context)
		}
		vr.context.Descriptors.DestroyProgramDescriptors(descriptors)
	}

	stageInfos := make([]vk.PipelineShaderStageCreateInfo, 0, len(program.Stages))
	for i := range program.Stages {
		module, err := NewShaderModule(vr.context, program.Name, program.Stages[i].Stage)
		if err != nil {
			cleanup()
			return err
		}
		state.Modules = append(state.Modules, module)
		stageInfos = append(stageInfos, module.ShaderStageCreateInfo)
	}

	if program.Kind == metadata.PipelineKindCompute {
		pipeline, err := NewComputePipeline(vr.context, descriptors.PipelineLayout, stageInfos[0])
		if err != nil {
			cleanup()
			return err
		}
		state.Pipeline = pipeline
	} else {
		pipelineConfig := &VulkanPipelineConfig{
			Renderpass:     vr.context.MainRenderpass,
			PipelineLayout: descriptors.PipelineLayout,
			Stages:         stageInfos,
			Viewport: vk.Viewport{
				X:        0.0,
				Y:        float32(vr.context.FramebufferHeight),
				Width:    float32(vr.context.FramebufferWidth),
				Height:   float32(vr.context.FramebufferHeight),
				MinDepth: 0.0,
				MaxDepth: 1.0,
			},
			Scissor: vk.Rect2D{
				Offset: vk.Offset2D{X: 0, Y: 0},
				Extent: vk.Extent2D{
					Width:  vr.context.FramebufferWidth,
					Height: vr.context.FramebufferHeight,
				},
			},
			CullMode:   metadata.FaceCullModeBack,
			DepthTest:  true,
			DepthWrite: true,
		}
		pipeline, err := NewGraphicsPipeline(vr.context, pipelineConfig)
		if err != nil {
			cleanup()
			return err
		}
		state.Pipeline = pipeline
	}

	program.InternalData = state
	program.State = metadata.PROGRAM_STATE_INITIALIZED

	core.LogDebug("program '%s' created: kind %s, %d sets", program.Name, program.Kind.String(), descriptors.NumSets)
	return nil
}

/**
 * @brief Tears a program's backend state down. Any session may still
 * reference its sets, so the device is drained first.
 */
func (vr *VulkanRenderer) ProgramDestroy(program *metadata.Program) error {
	state, err := programState(program)
	if err != nil {
		return err
	}

	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

	if state.Pipeline != nil {
		state.Pipeline.Destroy(vr.context)
	}
	for _, module := range state.Modules {
		module.Destroy(vr.context)
	}
	vr.context.Descriptors.DestroyProgramDescriptors(state.Descriptors)

	program.InternalData = nil
	program.State = metadata.PROGRAM_STATE_NOT_CREATED
	return nil
}

func (vr *VulkanRenderer) SetUniformBuffer(stage metadata.ShaderStage, slot uint32, buffer vk.Buffer, offset, size vk.DeviceSize) {
	vr.context.Descriptors.SetUniformBuffer(stage, slot, buffer, offset, size)
}

func (vr *VulkanRenderer) SetStorageBuffer(stage metadata.ShaderStage, slot uint32, buffer vk.Buffer, offset, size vk.DeviceSize) {
	vr.context.Descriptors.SetStorageBuffer(stage, slot, buffer, offset, size)
}

func (vr *VulkanRenderer) SetTexture(stage metadata.ShaderStage, slot uint32, view vk.ImageView, sampler vk.Sampler, layout vk.ImageLayout) {
	vr.context.Descriptors.SetTexture(stage, slot, view, sampler, layout)
}

func (vr *VulkanRenderer) SetStorageImage(stage metadata.ShaderStage, slot uint32, view vk.ImageView) {
	vr.context.Descriptors.SetStorageImage(stage, slot, view)
}

func (vr *VulkanRenderer) SetTexelBuffer(stage metadata.ShaderStage, slot uint32, view vk.BufferView) {
	vr.context.Descriptors.SetTexelBuffer(stage, slot, view)
}

func (vr *VulkanRenderer) SetStorageTexelBuffer(stage metadata.ShaderStage, slot uint32, view vk.BufferView) {
	vr.context.Descriptors.SetStorageTexelBuffer(stage, slot, view)
}

func (vr *VulkanRenderer) Invalidate(stage metadata.ShaderStage, bindingType metadata.BindingType, slot uint32) {
	vr.context.Descriptors.Invalidate(stage, bindingType, slot)
}

func programState(program *metadata.Program) (*vulkanProgramState, error) {
	if program == nil {
		err := fmt.Errorf("operation requires a program")
		core.LogError(err.Error())
		return nil, err
	}
	state, ok := program.InternalData.(*vulkanProgramState)
	if !ok || state == nil {
		err := fmt.Errorf("program '%s' has no backend state", program.Name)
		core.LogError(err.Error())
		return nil, err
	}
	return state, nil
}

func (vr *VulkanRenderer) createSessions() error {
	count := int(vr.context.Swapchain.MaxFramesInFlight)
	vr.context.Batches = make([]*VulkanBatch, 0, count)
	vr.context.InFlight = containers.NewRingQueue[*VulkanBatch](count)
	vr.idle = make([]*VulkanBatch, 0, count)

	for i := 0; i < count; i++ {
		cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		// Created signaled so the first wait on each session passes.
		fence, err := NewFence(vr.context, true)
		if err != nil {
			return err
		}
		batch := NewVulkanBatch(cb, fence)
		vr.context.Batches = append(vr.context.Batches, batch)
		vr.idle = append(vr.idle, batch)
	}

	core.LogDebug("Vulkan recording sessions created: %d.", count)
	return nil
}

// acquireSession pops an idle session, or waits out the oldest
// submitted one when none is idle.
func (vr *VulkanRenderer) acquireSession() (*VulkanBatch, error) {
	if n := len(vr.idle); n > 0 {
		batch := vr.idle[n-1]
		vr.idle = vr.idle[:n-1]
		return batch, nil
	}
	return vr.waitOldestSession()
}

// waitOldestSession blocks on the fence of the oldest submitted session
// and rewinds its descriptor pools before handing it back.
func (vr *VulkanRenderer) waitOldestSession() (*VulkanBatch, error) {
	batch, err := vr.context.InFlight.Dequeue()
	if err != nil {
		err := fmt.Errorf("no submitted session available to reclaim")
		core.LogError(err.Error())
		return nil, err
	}
	if !batch.Fence.FenceWait(vr.context, math.MaxUint64) {
		err := fmt.Errorf("fence wait failed while reclaiming session %s", batch.ID.String())
		core.LogError(err.Error())
		return nil, err
	}
	if err := vr.context.Descriptors.RecycleBatch(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// beginRecording opens a session's command buffer and re-records the
// per-buffer dynamic state.
func (vr *VulkanRenderer) beginRecording(batch *VulkanBatch) error {
	commandBuffer := batch.CommandBuffer
	commandBuffer.Reset()
	if err := commandBuffer.Begin(false, false, false); err != nil {
		return err
	}

	// Dynamic state
	viewport := vk.Viewport{
		X:        0.0,
		Y:        float32(vr.context.FramebufferHeight),
		Width:    float32(vr.context.FramebufferWidth),
		Height:   float32(vr.context.FramebufferHeight), // TODO: it was a negative value before
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}

	// Scissor
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{
			X: 0,
			Y: 0,
		},
		Extent: vk.Extent2D{
			Width:  vr.context.FramebufferWidth,
			Height: vr.context.FramebufferHeight,
		},
	}

	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})

	vr.context.MainRenderpass.W = float32(vr.context.FramebufferWidth)
	vr.context.MainRenderpass.H = float32(vr.context.FramebufferHeight)

	vr.recording = batch
	vr.context.Descriptors.SetCurrentBatch(batch)
	vr.rpActive = false

	return nil
}

// ensureRenderpass lazily opens the main pass on the recording session.
func (vr *VulkanRenderer) ensureRenderpass() {
	if vr.rpActive {
		return
	}
	vr.context.MainRenderpass.RenderpassBegin(vr.recording.CommandBuffer, vr.context.Swapchain.Framebuffers[vr.context.ImageIndex].Handle)
	vr.rpActive = true
}

func (vr *VulkanRenderer) suspendRenderpass() {
	if !vr.rpActive {
		return
	}
	vr.context.MainRenderpass.RenderpassEnd(vr.recording.CommandBuffer)
	vr.rpActive = false
}

/**
 * @brief Closes and submits the recording session. The frame's first
 * submission waits on image availability; only the final one signals
 * the present semaphore. Intermediate submissions order on the queue.
 */
func (vr *VulkanRenderer) submitRecording(final bool) error {
	batch := vr.recording
	vr.suspendRenderpass()

	if err := batch.CommandBuffer.End(); err != nil {
		return err
	}

	// Reset the fence for use on the next submission
	if err := batch.Fence.FenceReset(vr.context); err != nil {
		return err
	}

	submit_info := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
	}

	// Command buffer(s) to be executed.
	submit_info.CommandBufferCount = 1
	submit_info.PCommandBuffers = []vk.CommandBuffer{batch.CommandBuffer.Handle}

	if final {
		// The semaphore(s) to be signaled when the queue is complete.
		submit_info.SignalSemaphoreCount = 1
		submit_info.PSignalSemaphores = []vk.Semaphore{vr.context.QueueCompleteSemaphores[vr.context.CurrentFrame]}
	}

	if vr.pendingWait {
		// Wait semaphore ensures that the operation cannot begin until the image is available.
		submit_info.WaitSemaphoreCount = 1
		submit_info.PWaitSemaphores = []vk.Semaphore{vr.context.ImageAvailableSemaphores[vr.context.CurrentFrame]}

		// Each semaphore waits on the corresponding pipeline stage to complete. 1:1 ratio.
		// VK_PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT_BIT prevents subsequent colour attachment
		// writes from executing until the semaphore signals (i.e. one frame is presented at a time)
		flags := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
		submit_info.PWaitDstStageMask = []vk.PipelineStageFlags{flags}
		vr.pendingWait = false
	}

	var result vk.Result
	if err := lockPool.SafeQueueCall(uint32(vr.context.Device.GraphicsQueueIndex), func() error {
		result = vk.QueueSubmit(vr.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submit_info}, batch.Fence.Handle)
		return nil
	}); err != nil {
		return err
	}
	if result != vk.Success {
		err := fmt.Errorf("vkQueueSubmit failed with result: %s", VulkanResultString(result, true))
		core.LogError(err.Error())
		return err
	}

	batch.CommandBuffer.UpdateSubmitted()
	batch.InFlight = true
	if err := vr.context.InFlight.Enqueue(batch); err != nil {
		return err
	}
	vr.recording = nil

	return nil
}

// reclaimSession is the stall path handed to the descriptor context.
// The recording session is flushed mid-frame so its sets land on the
// queue, then the oldest submission is waited out and its session
// reopened for the rest of the frame.
func (vr *VulkanRenderer) reclaimSession() (*VulkanBatch, error) {
	if vr.recording != nil {
		if err := vr.submitRecording(false); err != nil {
			return nil, err
		}
	}
	batch, err := vr.waitOldestSession()
	if err != nil {
		return nil, err
	}
	if err := vr.beginRecording(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (vr *VulkanRenderer) regenerateFramebuffers(swapchain *VulkanSwapchain, renderpass *VulkanRenderpass) error {
	for i := 0; i < int(swapchain.ImageCount); i++ {
		attachments := []vk.ImageView{
			swapchain.Views[i],
			swapchain.DepthAttachment.View,
		}
		fb, err := FramebufferCreate(vr.context, renderpass, vr.context.FramebufferWidth, vr.context.FramebufferHeight, attachments)
		if err != nil {
			core.LogError("failed to create framebuffer for swapchain image %d", i)
			return err
		}
		swapchain.Framebuffers[i] = fb
	}
	return nil
}

func (vr *VulkanRenderer) recreateSwapchain() bool {
	// If already being recreated, do not try again.
	if vr.context.RecreatingSwapchain {
		core.LogDebug("recreateSwapchain called when already recreating. Booting.")
		return false
	}

	// Detect if the window is too small to be drawn to
	if vr.cachedFramebufferWidth == 0 || vr.cachedFramebufferHeight == 0 {
		core.LogDebug("recreateSwapchain called when window is < 1 in a dimension. Booting.")
		return false
	}

	// Mark as recreating if the dimensions are valid.
	vr.context.RecreatingSwapchain = true

	// Wait for any operations to complete.
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

	// Every submitted session has retired; rewind them onto the idle
	// stack so no stale fence state survives the swap.
	for !vr.context.InFlight.IsEmpty() {
		batch, err := vr.context.InFlight.Dequeue()
		if err != nil {
			break
		}
		if err := vr.context.Descriptors.RecycleBatch(batch); err != nil {
			core.LogError("failed to recycle session %s during swapchain recreation", batch.ID.String())
		}
		vr.idle = append(vr.idle, batch)
	}

	// Requery support
	DeviceQuerySwapchainSupport(vr.context.Device.PhysicalDevice, vr.context.Surface, &vr.context.Device.SwapchainSupport)
	DeviceDetectDepthFormat(vr.context.Device)

	// The old framebuffers reference the old image views; they go first.
	oldFramebuffers := vr.context.Swapchain.Framebuffers
	for i := range oldFramebuffers {
		if oldFramebuffers[i] != nil {
			oldFramebuffers[i].Destroy(vr.context)
		}
	}

	sc, err := vr.context.Swapchain.SwapchainRecreate(vr.context, vr.cachedFramebufferWidth, vr.cachedFramebufferHeight)
	if err != nil {
		vr.context.RecreatingSwapchain = false
		return false
	}
	vr.context.Swapchain = sc

	// Sync the framebuffer size with the cached sizes.
	vr.context.FramebufferWidth = vr.cachedFramebufferWidth
	vr.context.FramebufferHeight = vr.cachedFramebufferHeight
	vr.context.MainRenderpass.X = 0
	vr.context.MainRenderpass.Y = 0
	vr.context.MainRenderpass.W = float32(vr.context.FramebufferWidth)
	vr.context.MainRenderpass.H = float32(vr.context.FramebufferHeight)
	vr.cachedFramebufferWidth = 0
	vr.cachedFramebufferHeight = 0

	// Update framebuffer size generation.
	vr.context.FramebufferSizeLastGeneration = vr.context.FramebufferSizeGeneration

	vr.context.Swapchain.Framebuffers = make([]*VulkanFramebuffer, vr.context.Swapchain.ImageCount)
	if err := vr.regenerateFramebuffers(vr.context.Swapchain, vr.context.MainRenderpass); err != nil {
		vr.context.RecreatingSwapchain = false
		return false
	}

	// Clear the recreating flag.
	vr.context.RecreatingSwapchain = false

	return true
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogInfo("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
