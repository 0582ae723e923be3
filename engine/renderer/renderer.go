package renderer

import (
	"errors"

	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/platform"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
	"github.com/spaghettifunk/vitro/engine/renderer/vulkan"
)

/**
 * @brief The renderer frontend. Routes the application's frame packets and
 * resource requests to the active backend. One per engine instance.
 */
type Renderer struct {
	backend RendererBackend
}

func New(p *platform.Platform, config *metadata.RendererBackendConfig) *Renderer {
	return &Renderer{
		backend: vulkan.New(p, config),
	}
}

func (r *Renderer) Initialize() error {
	return r.backend.Initialize()
}

func (r *Renderer) Shutdown() error {
	return r.backend.Shutdow()
}

func (r *Renderer) OnResize(width, height uint16) error {
	return r.backend.Resized(width, height)
}

// DrawFrame records and submits one frame. A booted frame (swapchain in
// flux) is not an error: the packet is dropped and the next tick retries.
// A failed draw is logged and skipped; the rest of the packet still runs,
// descriptor dirty state for the failed draw carries into the next frame.
func (r *Renderer) DrawFrame(packet *metadata.RenderPacket) error {
	if err := r.backend.BeginFrame(packet.DeltaTime); err != nil {
		if errors.Is(err, vulkan.ErrFrameBooted) {
			return nil
		}
		core.LogError(err.Error())
		return err
	}

	for i := range packet.Draws {
		if err := r.backend.Draw(&packet.Draws[i]); err != nil {
			core.LogError("draw with program '%s' abandoned: %s", packet.Draws[i].Program.Name, err.Error())
		}
	}
	for i := range packet.Dispatches {
		if err := r.backend.Dispatch(&packet.Dispatches[i]); err != nil {
			core.LogError("dispatch with program '%s' abandoned: %s", packet.Dispatches[i].Program.Name, err.Error())
		}
	}

	if err := r.backend.EndFrame(packet.DeltaTime); err != nil {
		core.LogError("RendererEndFrame failed. Application shutting down...")
		return err
	}
	return nil
}

func (r *Renderer) ProgramCreate(program *metadata.Program) error {
	return r.backend.ProgramCreate(program)
}

func (r *Renderer) ProgramDestroy(program *metadata.Program) error {
	return r.backend.ProgramDestroy(program)
}

func (r *Renderer) BufferCreate(buffer *metadata.Buffer) error {
	return r.backend.BufferCreate(buffer)
}

func (r *Renderer) BufferLoadData(buffer *metadata.Buffer, offset uint64, data []byte) error {
	return r.backend.BufferLoadData(buffer, offset, data)
}

func (r *Renderer) BufferDestroy(buffer *metadata.Buffer) {
	r.backend.BufferDestroy(buffer)
}

func (r *Renderer) TextureCreate(texture *metadata.Texture, pixels []uint8) error {
	return r.backend.TextureCreate(texture, pixels)
}

func (r *Renderer) TextureDestroy(texture *metadata.Texture) {
	r.backend.TextureDestroy(texture)
}

func (r *Renderer) BindUniformBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer, offset, size uint64) {
	r.backend.BindUniformBuffer(stage, slot, buffer, offset, size)
}

func (r *Renderer) BindStorageBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer, offset, size uint64) {
	r.backend.BindStorageBuffer(stage, slot, buffer, offset, size)
}

func (r *Renderer) BindTexture(stage metadata.ShaderStage, slot uint32, texture *metadata.Texture) {
	r.backend.BindTexture(stage, slot, texture)
}

func (r *Renderer) BindStorageImage(stage metadata.ShaderStage, slot uint32, texture *metadata.Texture) {
	r.backend.BindStorageImage(stage, slot, texture)
}

func (r *Renderer) BindTexelBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer) {
	r.backend.BindTexelBuffer(stage, slot, buffer)
}

// Invalidate drops whatever is published at a slot, reverting it to the
// dummy resource until the next bind.
func (r *Renderer) Invalidate(stage metadata.ShaderStage, bindingType metadata.BindingType, slot uint32) {
	r.backend.Invalidate(stage, bindingType, slot)
}
