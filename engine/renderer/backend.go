package renderer

import "github.com/spaghettifunk/vitro/engine/renderer/metadata"

// RendererBackend is the contract a rendering backend fulfills. Frame
// lifecycle and program management return errors; bind-point setters are
// fire-and-forget and only publish payloads for the next draw to resolve.
type RendererBackend interface {
	Initialize() error
	Shutdow() error
	Resized(width, height uint16) error

	BeginFrame(deltaTime float64) error
	EndFrame(deltaTime float64) error
	Draw(cmd *metadata.DrawCommand) error
	Dispatch(cmd *metadata.DispatchCommand) error

	ProgramCreate(program *metadata.Program) error
	ProgramDestroy(program *metadata.Program) error

	BufferCreate(buffer *metadata.Buffer) error
	BufferLoadData(buffer *metadata.Buffer, offset uint64, data []byte) error
	BufferDestroy(buffer *metadata.Buffer)
	TextureCreate(texture *metadata.Texture, pixels []uint8) error
	TextureDestroy(texture *metadata.Texture)

	BindUniformBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer, offset, size uint64)
	BindStorageBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer, offset, size uint64)
	BindTexture(stage metadata.ShaderStage, slot uint32, texture *metadata.Texture)
	BindStorageImage(stage metadata.ShaderStage, slot uint32, texture *metadata.Texture)
	BindTexelBuffer(stage metadata.ShaderStage, slot uint32, buffer *metadata.Buffer)
	Invalidate(stage metadata.ShaderStage, bindingType metadata.BindingType, slot uint32)
}
