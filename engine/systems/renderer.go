package systems

import (
	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/platform"
	"github.com/spaghettifunk/vitro/engine/renderer"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/**
 * @brief Owns the renderer frontend and the frame lifecycle. Everything
 * the application binds or draws goes through here.
 */
type RendererSystem struct {
	renderer    *renderer.Renderer
	frameNumber uint64
}

func NewRendererSystem(p *platform.Platform, config *metadata.RendererBackendConfig) (*RendererSystem, error) {
	return &RendererSystem{
		renderer: renderer.New(p, config),
	}, nil
}

func (rs *RendererSystem) Initialize() error {
	return rs.renderer.Initialize()
}

func (rs *RendererSystem) Shutdown() error {
	return rs.renderer.Shutdown()
}

func (rs *RendererSystem) OnResize(width, height uint16) error {
	return rs.renderer.OnResize(width, height)
}

/**
 * @brief Records and submits one frame from the packet, then folds the
 * frame time into the metrics window.
 */
func (rs *RendererSystem) DrawFrame(packet *metadata.RenderPacket) error {
	if err := rs.renderer.DrawFrame(packet); err != nil {
		return err
	}
	rs.frameNumber++
	core.MetricsUpdate(packet.DeltaTime)
	return nil
}

func (rs *RendererSystem) FrameNumber() uint64 {
	return rs.frameNumber
}

// Program lifecycle, forwarded for the program system.

func (rs *RendererSystem) ProgramCreate(program *metadata.Program) error {
	return rs.renderer.ProgramCreate(program)
}

func (rs *RendererSystem) ProgramDestroy(program *metadata.Program) error {
	return rs.renderer.ProgramDestroy(program)
}

// Demo-grade resources for the workload to bind.

func (rs *RendererSystem) BufferCreate(buffer *metadata.Buffer) error {
	return rs.renderer.BufferCreate(buffer)
}

func (rs *RendererSystem) BufferLoadData(buffer *metadata.Buffer, offset uint64, data []byte) error {
	return rs.renderer.BufferLoadData(buffer, offset, data)
}

func (rs *RendererSystem) BufferDestroy(buffer *metadata.Buffer) {
	rs.renderer.BufferDestroy(buffer)
}

func (rs *RendererSystem) TextureCreate(texture *metadata.Texture, pixels []uint8) error {
	return rs.renderer.TextureCreate(texture, pixels)
}

func (rs *RendererSystem) TextureDestroy(texture *metadata.Texture) {
	rs.renderer.TextureDestroy(texture)
}

// Bind points. Each publishes a payload and dirties descriptor state;
// nothing touches the device until the next draw or dispatch resolves it.

func (rs *RendererSystem) BindUniformBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer, offset, size uint64) {
	rs.renderer.BindUniformBuffer(stage, slot, buffer, offset, size)
}

func (rs *RendererSystem) BindStorageBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer, offset, size uint64) {
	rs.renderer.BindStorageBuffer(stage, slot, buffer, offset, size)
}

func (rs *RendererSystem) BindTexture(stage metadata.ShaderStage, slot uint32, texture *metadata.Texture) {
	rs.renderer.BindTexture(stage, slot, texture)
}

func (rs *RendererSystem) BindStorageImage(stage metadata.ShaderStage, slot uint32, texture *metadata.Texture) {
	rs.renderer.BindStorageImage(stage, slot, texture)
}

func (rs *RendererSystem) BindTexelBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer) {
	rs.renderer.BindTexelBuffer(stage, slot, buffer)
}

func (rs *RendererSystem) Invalidate(stage metadata.ShaderStage, bindingType metadata.BindingType, slot uint32) {
	rs.renderer.Invalidate(stage, bindingType, slot)
}
