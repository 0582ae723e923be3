package metadata

/**
 * @brief Configuration handed to the renderer backend at startup.
 */
type RendererBackendConfig struct {
	/** @brief The name of the application */
	ApplicationName string
	/** @brief Initial framebuffer width. */
	Width uint32
	/** @brief Initial framebuffer height. */
	Height uint32
	/** @brief Enable the validation layer when available. */
	Validation bool
	/** @brief Allow the hardware push-descriptor fast path when the device offers it. */
	PushDescriptors bool
	/** @brief Precompile per-program descriptor write plans. */
	UpdateTemplates bool
	/** @brief How many submitted recording sessions may be in flight. */
	FramesInFlight uint32
	/** @brief Per-pool set capacity every descriptor pool grows toward. */
	PoolSetCapacity uint32
}

/**
 * @brief One draw issued through the layer. Descriptor state is resolved
 * at draw time from whatever was bound since the previous draw.
 */
type DrawCommand struct {
	Program *Program
	/** @brief Non-indexed vertex count
	 */
	VertexCount uint32
	/** @brief The number of instances, minimum 1. */
	InstanceCount uint32
}

/**
 * @brief One compute dispatch issued through the layer.
 */
type DispatchCommand struct {
	Program *Program
	GroupsX uint32
	GroupsY uint32
	GroupsZ uint32
}

/**
 * @brief Everything the application wants rendered this frame.
 */
type RenderPacket struct {
	DeltaTime  float64
	Draws      []DrawCommand
	Dispatches []DispatchCommand
}

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)
