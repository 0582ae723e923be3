package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/**
 * @brief Backend state of a bindable buffer: the buffer itself plus the
 * texel view when the usage calls for one.
 */
type vulkanBufferState struct {
	Buffer *VulkanBuffer
	View   vk.BufferView
}

/**
 * @brief Backend state of a bindable texture: image, view and sampler.
 */
type vulkanTextureState struct {
	Image   *VulkanImage
	Sampler vk.Sampler
	Layout  vk.ImageLayout
}

func texelFormat(format metadata.TexelFormat) vk.Format {
	switch format {
	case metadata.TexelFormatRGBA8:
		return vk.FormatR8g8b8a8Unorm
	case metadata.TexelFormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat
	}
	return vk.FormatR32Sfloat
}

/**
 * @brief Creates the backend side of a buffer. Demo plumbing: memory is
 * host visible so LoadData maps directly, which keeps the descriptor
 * layer's inputs simple. Texel usages also get a view in the requested
 * format.
 */
func (vr *VulkanRenderer) BufferCreate(buffer *metadata.Buffer) error {
	if buffer == nil || buffer.Size == 0 {
		err := fmt.Errorf("buffer create requires a buffer with a non-zero size")
		core.LogError(err.Error())
		return err
	}
	if buffer.InternalData != nil {
		err := fmt.Errorf("buffer '%s' already has backend state", buffer.Name)
		core.LogError(err.Error())
		return err
	}

	var usage vk.BufferUsageFlags
	switch buffer.Usage {
	case metadata.BufferUsageStorage:
		usage = vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	case metadata.BufferUsageUniformTexel:
		usage = vk.BufferUsageFlags(vk.BufferUsageUniformTexelBufferBit)
	case metadata.BufferUsageStorageTexel:
		usage = vk.BufferUsageFlags(vk.BufferUsageStorageTexelBufferBit)
	default:
		usage = vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}

	vb, err := BufferCreate(vr.context, vk.DeviceSize(buffer.Size), usage,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit), true)
	if err != nil {
		return err
	}

	state := &vulkanBufferState{Buffer: vb}
	if buffer.Usage == metadata.BufferUsageUniformTexel || buffer.Usage == metadata.BufferUsageStorageTexel {
		view, err := BufferViewCreate(vr.context, vb, texelFormat(buffer.Format), 0, vk.DeviceSize(buffer.Size))
		if err != nil {
			vb.Destroy(vr.context)
			return err
		}
		state.View = view
	}

	buffer.InternalData = state
	return nil
}

func (vr *VulkanRenderer) BufferLoadData(buffer *metadata.Buffer, offset uint64, data []byte) error {
	state, err := bufferState(buffer)
	if err != nil {
		return err
	}
	return state.Buffer.LoadData(vr.context, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, data)
}

func (vr *VulkanRenderer) BufferDestroy(buffer *metadata.Buffer) {
	state, err := bufferState(buffer)
	if err != nil {
		return
	}
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)
	if state.View != nil {
		BufferViewDestroy(vr.context, state.View)
	}
	state.Buffer.Destroy(vr.context)
	buffer.InternalData = nil
}

/**
 * @brief Creates the backend side of a texture and uploads its pixels
 * through a staging buffer. Writeable textures live in GENERAL layout so
 * compute programs can store to them; sampled ones settle in
 * SHADER_READ_ONLY_OPTIMAL.
 */
func (vr *VulkanRenderer) TextureCreate(texture *metadata.Texture, pixels []uint8) error {
	if texture == nil || texture.Width == 0 || texture.Height == 0 {
		err := fmt.Errorf("texture create requires non-zero dimensions")
		core.LogError(err.Error())
		return err
	}
	if texture.InternalData != nil {
		err := fmt.Errorf("texture '%s' already has backend state", texture.Name)
		core.LogError(err.Error())
		return err
	}

	format := vk.FormatR8g8b8a8Unorm
	usage := vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit)
	if texture.Writeable {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}

	image, err := ImageCreate(vr.context, vk.ImageType2d, texture.Width, texture.Height, format,
		vk.ImageTilingOptimal, usage, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		true, vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return err
	}

	state := &vulkanTextureState{Image: image, Layout: vk.ImageLayoutShaderReadOnlyOptimal}
	if texture.Writeable {
		state.Layout = vk.ImageLayoutGeneral
	}

	if len(pixels) > 0 {
		if err := vr.uploadTexturePixels(image, pixels, state.Layout); err != nil {
			image.ImageDestroy(vr.context)
			return err
		}
	} else if texture.Writeable {
		cb, err := AllocateAndBeginSingleUse(vr.context, vr.context.Device.GraphicsCommandPool)
		if err != nil {
			image.ImageDestroy(vr.context)
			return err
		}
		if err := image.ImageTransitionLayout(vr.context, cb, format, vk.ImageLayoutUndefined, vk.ImageLayoutGeneral); err != nil {
			image.ImageDestroy(vr.context)
			return err
		}
		if err := cb.EndSingleUse(vr.context, vr.context.Device.GraphicsCommandPool, vr.context.Device.GraphicsQueue); err != nil {
			image.ImageDestroy(vr.context)
			return err
		}
	}

	samplerInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
		AddressModeW: vk.SamplerAddressModeRepeat,
		MaxAnisotropy: 1.0,
		BorderColor:   vk.BorderColorIntOpaqueBlack,
		MipmapMode:    vk.SamplerMipmapModeLinear,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(vr.context.Device.LogicalDevice, &samplerInfo, vr.context.Allocator, &sampler); res != vk.Success {
		image.ImageDestroy(vr.context)
		err := fmt.Errorf("failed to create sampler for texture '%s' with error %s", texture.Name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	state.Sampler = sampler

	texture.InternalData = state
	return nil
}

// uploadTexturePixels stages pixels into the image and leaves it in the
// requested final layout. Blocks on the transfer; creation-time only.
func (vr *VulkanRenderer) uploadTexturePixels(image *VulkanImage, pixels []uint8, final vk.ImageLayout) error {
	staging, err := BufferCreate(vr.context, vk.DeviceSize(len(pixels)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit), true)
	if err != nil {
		return err
	}
	defer staging.Destroy(vr.context)

	if err := staging.LoadData(vr.context, 0, vk.DeviceSize(len(pixels)), 0, pixels); err != nil {
		return err
	}

	cb, err := AllocateAndBeginSingleUse(vr.context, vr.context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	if err := image.ImageTransitionLayout(vr.context, cb, vk.FormatR8g8b8a8Unorm, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		return err
	}
	image.ImageCopyFromBuffer(vr.context, staging.Handle, cb)
	if final == vk.ImageLayoutGeneral {
		// Storage images cannot sit in SHADER_READ_ONLY; barrier straight
		// from the copy into GENERAL.
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           vk.ImageLayoutTransferDstOptimal,
			NewLayout:           vk.ImageLayoutGeneral,
			SrcQueueFamilyIndex: uint32(vr.context.Device.GraphicsQueueIndex),
			DstQueueFamilyIndex: uint32(vr.context.Device.GraphicsQueueIndex),
			Image:               image.Handle,
			SrcAccessMask:       vk.AccessFlags(vk.AccessTransferWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		vk.CmdPipelineBarrier(cb.Handle,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit|vk.PipelineStageFragmentShaderBit), 0,
			0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	} else {
		if err := image.ImageTransitionLayout(vr.context, cb, vk.FormatR8g8b8a8Unorm, vk.ImageLayoutTransferDstOptimal, final); err != nil {
			return err
		}
	}
	return cb.EndSingleUse(vr.context, vr.context.Device.GraphicsCommandPool, vr.context.Device.GraphicsQueue)
}

func (vr *VulkanRenderer) TextureDestroy(texture *metadata.Texture) {
	state, err := textureState(texture)
	if err != nil {
		return
	}
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)
	if state.Sampler != nil {
		vk.DestroySampler(vr.context.Device.LogicalDevice, state.Sampler, vr.context.Allocator)
	}
	state.Image.ImageDestroy(vr.context)
	texture.InternalData = nil
}

// Bind-point setters. These unwrap the frontend handles and publish raw
// payloads into the descriptor context's resource table.

func (vr *VulkanRenderer) BindUniformBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer, offset, size uint64) {
	state, err := bufferState(buffer)
	if err != nil {
		return
	}
	if size == 0 {
		size = buffer.Size
	}
	vr.SetUniformBuffer(stage, slot, state.Buffer.Handle, vk.DeviceSize(offset), vk.DeviceSize(size))
}

func (vr *VulkanRenderer) BindStorageBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer, offset, size uint64) {
	state, err := bufferState(buffer)
	if err != nil {
		return
	}
	if size == 0 {
		size = buffer.Size
	}
	vr.SetStorageBuffer(stage, slot, state.Buffer.Handle, vk.DeviceSize(offset), vk.DeviceSize(size))
}

func (vr *VulkanRenderer) BindTexture(stage metadata.ShaderStage, slot uint32, texture *metadata.Texture) {
	state, err := textureState(texture)
	if err != nil {
		return
	}
	vr.SetTexture(stage, slot, state.Image.View, state.Sampler, state.Layout)
}

func (vr *VulkanRenderer) BindStorageImage(stage metadata.ShaderStage, slot uint32, texture *metadata.Texture) {
	state, err := textureState(texture)
	if err != nil {
		return
	}
	vr.SetStorageImage(stage, slot, state.Image.View)
}

func (vr *VulkanRenderer) BindTexelBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer) {
	state, err := bufferState(buffer)
	if err != nil {
		return
	}
	if state.View == nil {
		core.LogWarn("buffer '%s' has no texel view, bind ignored", buffer.Name)
		return
	}
	if buffer.Usage == metadata.BufferUsageStorageTexel {
		vr.SetStorageTexelBuffer(stage, slot, state.View)
		return
	}
	vr.SetTexelBuffer(stage, slot, state.View)
}

func bufferState(buffer *metadata.Buffer) (*vulkanBufferState, error) {
	if buffer == nil {
		err := fmt.Errorf("operation requires a buffer")
		core.LogError(err.Error())
		return nil, err
	}
	state, ok := buffer.InternalData.(*vulkanBufferState)
	if !ok || state == nil {
		err := fmt.Errorf("buffer '%s' has no backend state", buffer.Name)
		core.LogError(err.Error())
		return nil, err
	}
	return state, nil
}

func textureState(texture *metadata.Texture) (*vulkanTextureState, error) {
	if texture == nil {
		err := fmt.Errorf("operation requires a texture")
		core.LogError(err.Error())
		return nil, err
	}
	state, ok := texture.InternalData.(*vulkanTextureState)
	if !ok || state == nil {
		err := fmt.Errorf("texture '%s' has no backend state", texture.Name)
		core.LogError(err.Error())
		return nil, err
	}
	return state, nil
}
