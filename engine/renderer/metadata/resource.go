package metadata

/** @brief What a demo buffer backs. Decides native usage flags and which
 * bind points accept it. */
type BufferUsage uint8

const (
	BufferUsageUniform BufferUsage = iota
	BufferUsageStorage
	BufferUsageUniformTexel
	BufferUsageStorageTexel
)

/** @brief Element format of a texel buffer view. Ignored for plain buffers. */
type TexelFormat uint8

const (
	TexelFormatR32Float TexelFormat = iota
	TexelFormatRGBA8
	TexelFormatRGBA32Float
)

/**
 * @brief A buffer bindable through the descriptor layer. Creation and
 * destruction go through the renderer; residency is the caller's problem.
 */
type Buffer struct {
	Name  string
	Size  uint64
	Usage BufferUsage

	/** @brief View format for texel usages. */
	Format TexelFormat

	/** @brief An opaque pointer to hold renderer API specific data. Renderer is responsible for creation and destruction of this. */
	InternalData interface{}
}

/**
 * @brief A texture bindable as a sampled or storage image.
 */
type Texture struct {
	Name   string
	Width  uint32
	Height uint32

	/** @brief Created with storage usage so compute programs may write it. */
	Writeable bool

	/** @brief An opaque pointer to hold renderer API specific data. Renderer is responsible for creation and destruction of this. */
	InternalData interface{}
}
