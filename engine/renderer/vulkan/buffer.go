package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vitro/engine/core"
)

/**
 * @brief A buffer and the memory bound to it. Buffers back the uniform,
 * storage and texel bindings the descriptor layer distributes.
 */
type VulkanBuffer struct {
	/** @brief The handle to the internal buffer. */
	Handle vk.Buffer
	/** @brief The total size of the buffer in bytes. */
	TotalSize vk.DeviceSize
	/** @brief The usage flags the buffer was created with. */
	Usage vk.BufferUsageFlags
	/** @brief Indicates if the buffer's memory is currently locked. */
	IsLocked bool
	/** @brief The memory used by the buffer. */
	Memory vk.DeviceMemory
	/** @brief The index of the memory type in use. */
	MemoryIndex int32
	/** @brief The property flags of the memory in use. */
	MemoryPropertyFlags vk.MemoryPropertyFlags
}

func BufferCreate(context *VulkanContext, size vk.DeviceSize, usage vk.BufferUsageFlags,
	memoryPropertyFlags vk.MemoryPropertyFlags, bindOnCreate bool) (*VulkanBuffer, error) {

	buffer := &VulkanBuffer{
		TotalSize:           size,
		Usage:               usage,
		MemoryPropertyFlags: memoryPropertyFlags,
	}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferCreateInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create buffer with error %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Handle = handle

	// Gather memory requirements.
	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	buffer.MemoryIndex = context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(memoryPropertyFlags))
	if buffer.MemoryIndex == -1 {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer.Handle, context.Allocator)
		err := fmt.Errorf("unable to create buffer because the required memory type index was not found")
		core.LogError(err.Error())
		return nil, err
	}

	// Allocate memory info
	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(buffer.MemoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &memoryAllocateInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer.Handle, context.Allocator)
		err := fmt.Errorf("unable to create buffer because the required memory allocation failed. Error: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Memory = memory

	if bindOnCreate {
		if err := buffer.Bind(context, 0); err != nil {
			vk.FreeMemory(context.Device.LogicalDevice, buffer.Memory, context.Allocator)
			vk.DestroyBuffer(context.Device.LogicalDevice, buffer.Handle, context.Allocator)
			return nil, err
		}
	}

	return buffer, nil
}

func (buffer *VulkanBuffer) Bind(context *VulkanContext, offset vk.DeviceSize) error {
	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, offset); res != vk.Success {
		err := fmt.Errorf("failed to bind buffer memory with error %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}

/** @brief Maps the buffer memory and returns a pointer into it. */
func (buffer *VulkanBuffer) LockMemory(context *VulkanContext, offset, size vk.DeviceSize, flags vk.MemoryMapFlags) (unsafe.Pointer, error) {
	var data unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, buffer.Memory, offset, size, flags, &data); res != vk.Success {
		err := fmt.Errorf("failed to map buffer memory with error %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.IsLocked = true
	return data, nil
}

func (buffer *VulkanBuffer) UnlockMemory(context *VulkanContext) {
	vk.UnmapMemory(context.Device.LogicalDevice, buffer.Memory)
	buffer.IsLocked = false
}

/**
 * @brief Copies bytes into the buffer. Requires host-visible memory;
 * device-local buffers load through a staging buffer and CopyTo.
 */
func (buffer *VulkanBuffer) LoadData(context *VulkanContext, offset, size vk.DeviceSize, flags vk.MemoryMapFlags, data []byte) error {
	dataPtr, err := buffer.LockMemory(context, offset, size, flags)
	if err != nil {
		return err
	}
	vk.Memcopy(dataPtr, data)
	buffer.UnlockMemory(context)
	return nil
}

/**
 * @brief Copies a range from one buffer to another through a single-use
 * command buffer. Blocks until the transfer has finished.
 */
func BufferCopyTo(context *VulkanContext, pool vk.CommandPool, fence vk.Fence, queue vk.Queue,
	source vk.Buffer, sourceOffset vk.DeviceSize, dest vk.Buffer, destOffset vk.DeviceSize, size vk.DeviceSize) error {

	vk.QueueWaitIdle(queue)

	// Create a one-time-use command buffer.
	commandBuffer, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		return err
	}

	// Prepare the copy command and add it to the command buffer.
	copyRegion := vk.BufferCopy{
		SrcOffset: sourceOffset,
		DstOffset: destOffset,
		Size:      size,
	}
	vk.CmdCopyBuffer(commandBuffer.Handle, source, dest, 1, []vk.BufferCopy{copyRegion})

	// Submit the buffer for execution and wait for it to complete.
	return commandBuffer.EndSingleUse(context, pool, queue)
}

func (buffer *VulkanBuffer) Destroy(context *VulkanContext) {
	if buffer.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, buffer.Memory, context.Allocator)
		buffer.Memory = vk.NullDeviceMemory
	}
	if buffer.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer.Handle, context.Allocator)
		buffer.Handle = vk.NullBuffer
	}
	buffer.TotalSize = 0
	buffer.IsLocked = false
}

/**
 * @brief Creates a typed view over a texel buffer so shaders can fetch
 * or store formatted elements through it.
 */
func BufferViewCreate(context *VulkanContext, buffer *VulkanBuffer, format vk.Format, offset, viewRange vk.DeviceSize) (vk.BufferView, error) {
	viewCreateInfo := vk.BufferViewCreateInfo{
		SType:  vk.StructureTypeBufferViewCreateInfo,
		Buffer: buffer.Handle,
		Format: format,
		Offset: offset,
		Range:  viewRange,
	}

	var view vk.BufferView
	if res := vk.CreateBufferView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		err := fmt.Errorf("failed to create buffer view with error %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return vk.NullBufferView, err
	}
	return view, nil
}

func BufferViewDestroy(context *VulkanContext, view vk.BufferView) {
	if view != vk.NullBufferView {
		vk.DestroyBufferView(context.Device.LogicalDevice, view, context.Allocator)
	}
}
