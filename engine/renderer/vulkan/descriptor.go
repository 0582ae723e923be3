package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/**
 * @brief The typed descriptor set groups a program may use. Each kind maps
 * to one descriptor set slot; the push set sits in front of them at
 * absolute set index 0.
 */
type VulkanDescriptorSetKind uint8

const (
	DescriptorSetKindUniform VulkanDescriptorSetKind = iota
	DescriptorSetKindSamplerView
	DescriptorSetKindStorageBuffer
	DescriptorSetKindImage
	DescriptorSetKindCount
)

func (k VulkanDescriptorSetKind) String() string {
	switch k {
	case DescriptorSetKindUniform:
		return "uniform"
	case DescriptorSetKindSamplerView:
		return "sampler_view"
	case DescriptorSetKindStorageBuffer:
		return "storage_buffer"
	case DescriptorSetKindImage:
		return "image"
	}
	return "unknown"
}

/** @brief Absolute set index of a typed kind. Index 0 is always push. */
func (k VulkanDescriptorSetKind) SetIndex() uint32 {
	return uint32(k) + 1
}

/**
 * @brief Pool-size buckets. Distinct native descriptor types that share a
 * bucket are sized together when a pool is created.
 */
type VulkanDescriptorSizeClass uint8

const (
	SizeClassUniformBuffer VulkanDescriptorSizeClass = iota
	SizeClassCombinedSampler
	SizeClassUniformTexel
	SizeClassStorageBuffer
	SizeClassStorageImage
	SizeClassStorageTexel
	SizeClassCount
)

/** @brief Which payload array of the resource-info table a binding reads. */
type VulkanDescriptorPayload uint8

const (
	PayloadBuffer VulkanDescriptorPayload = iota
	PayloadImage
	PayloadTexelView
)

/**
 * @brief Static routing for one binding type: where it lives (push or
 * which typed set), how pools are sized for it, its native descriptor
 * type, which payload it carries and how write plans expand arrays.
 * Built once; every classification decision dispatches through it.
 */
type VulkanBindingClass struct {
	/** @brief Routed to the push set; never consumes a typed-set slot. */
	Push bool
	/** @brief The typed set the binding belongs to (when not push). */
	SetKind VulkanDescriptorSetKind
	/** @brief The pool-size bucket the binding counts toward. */
	SizeClass VulkanDescriptorSizeClass
	/** @brief The native descriptor type written into layouts and writes. */
	NativeType vk.DescriptorType
	/** @brief The resource-table payload array the binding reads. */
	Payload VulkanDescriptorPayload
	/** @brief Write plans expand one entry per array element when set;
	 * otherwise one entry covers the whole array. */
	PerElement bool
	/** @brief Binding-number block within the set, for kinds sharing a set. */
	SlotBlock uint32
}

var bindingClasses = [metadata.BindingTypeCount]VulkanBindingClass{
	metadata.BindingTypeUniformBuffer: {
		SetKind:    DescriptorSetKindUniform,
		SizeClass:  SizeClassUniformBuffer,
		NativeType: vk.DescriptorTypeUniformBuffer,
		Payload:    PayloadBuffer,
		PerElement: true,
		SlotBlock:  0,
	},
	metadata.BindingTypeDynamicUniformBuffer: {
		Push:       true,
		SizeClass:  SizeClassUniformBuffer,
		NativeType: vk.DescriptorTypeUniformBufferDynamic,
		Payload:    PayloadBuffer,
		PerElement: true,
	},
	metadata.BindingTypeStorageBuffer: {
		SetKind:    DescriptorSetKindStorageBuffer,
		SizeClass:  SizeClassStorageBuffer,
		NativeType: vk.DescriptorTypeStorageBuffer,
		Payload:    PayloadBuffer,
		PerElement: true,
		SlotBlock:  0,
	},
	metadata.BindingTypeSampledImage: {
		SetKind:    DescriptorSetKindSamplerView,
		SizeClass:  SizeClassCombinedSampler,
		NativeType: vk.DescriptorTypeCombinedImageSampler,
		Payload:    PayloadImage,
		PerElement: false,
		SlotBlock:  0,
	},
	metadata.BindingTypeStorageImage: {
		SetKind:    DescriptorSetKindImage,
		SizeClass:  SizeClassStorageImage,
		NativeType: vk.DescriptorTypeStorageImage,
		Payload:    PayloadImage,
		PerElement: false,
		SlotBlock:  0,
	},
	metadata.BindingTypeUniformTexelBuffer: {
		SetKind:    DescriptorSetKindSamplerView,
		SizeClass:  SizeClassUniformTexel,
		NativeType: vk.DescriptorTypeUniformTexelBuffer,
		Payload:    PayloadTexelView,
		PerElement: false,
		SlotBlock:  1,
	},
	metadata.BindingTypeStorageTexelBuffer: {
		SetKind:    DescriptorSetKindImage,
		SizeClass:  SizeClassStorageTexel,
		NativeType: vk.DescriptorTypeStorageTexelBuffer,
		Payload:    PayloadTexelView,
		PerElement: false,
		SlotBlock:  1,
	},
}

// bindingClassFor resolves the routing entry for a reflected binding type.
func bindingClassFor(t metadata.BindingType) (VulkanBindingClass, bool) {
	if t >= metadata.BindingTypeCount {
		return VulkanBindingClass{}, false
	}
	return bindingClasses[t], true
}

// setBindingNumber computes the unique binding number of a slot inside its
// typed set. Stages get disjoint blocks so one set can carry every stage's
// bindings; kinds sharing a set are split by their slot block.
func setBindingNumber(stage metadata.ShaderStage, class VulkanBindingClass, slot uint32) uint32 {
	return uint32(stage)*(2*VULKAN_MAX_BINDING_SLOTS) + class.SlotBlock*VULKAN_MAX_BINDING_SLOTS + slot
}

// pushBindingNumber computes the binding number of a stage's dynamic
// uniform block inside the push set. Graphics stages occupy bindings 0..4
// of the shared graphics push layout; compute has its own single-binding
// layout, so it folds back to 0.
func pushBindingNumber(stage metadata.ShaderStage) uint32 {
	if stage == metadata.ShaderStageCompute {
		return 0
	}
	return uint32(stage)
}

// payloadForNativeType recovers the payload family and the per-element
// expansion rule from a native descriptor type. The write-assembly
// fallback uses it when update templates are disabled.
func payloadForNativeType(t vk.DescriptorType) (VulkanDescriptorPayload, bool) {
	switch t {
	case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeUniformBufferDynamic, vk.DescriptorTypeStorageBuffer:
		return PayloadBuffer, true
	case vk.DescriptorTypeCombinedImageSampler, vk.DescriptorTypeStorageImage:
		return PayloadImage, false
	}
	return PayloadTexelView, false
}

// stageSlotFromBinding inverts setBindingNumber back to the stage and the
// resource-table slot of the binding's first element.
func stageSlotFromBinding(binding uint32) (metadata.ShaderStage, uint32) {
	stage := metadata.ShaderStage(binding / (2 * VULKAN_MAX_BINDING_SLOTS))
	slot := binding % VULKAN_MAX_BINDING_SLOTS
	return stage, slot
}

// shaderStageFlag maps a reflected stage to its native stage bit.
func shaderStageFlag(stage metadata.ShaderStage) vk.ShaderStageFlagBits {
	switch stage {
	case metadata.ShaderStageVertex:
		return vk.ShaderStageVertexBit
	case metadata.ShaderStageTessellationControl:
		return vk.ShaderStageTessellationControlBit
	case metadata.ShaderStageTessellationEvaluation:
		return vk.ShaderStageTessellationEvaluationBit
	case metadata.ShaderStageGeometry:
		return vk.ShaderStageGeometryBit
	case metadata.ShaderStageFragment:
		return vk.ShaderStageFragmentBit
	case metadata.ShaderStageCompute:
		return vk.ShaderStageComputeBit
	}
	return 0
}

// bindPointFor maps a pipeline kind to the native bind point.
func bindPointFor(kind metadata.PipelineKind) vk.PipelineBindPoint {
	if kind == metadata.PipelineKindCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}
