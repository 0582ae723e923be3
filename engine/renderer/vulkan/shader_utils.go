package vulkan

import (
	"fmt"
	"os"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The shader module creation info. */
	CreateInfo vk.ShaderModuleCreateInfo
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// sliceUint32 reinterprets SPIR-V bytes as the word slice the loader
// wants. The backing array must stay reachable until module creation
// returns.
func sliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}

func stageFileSuffix(stage metadata.ShaderStage) string {
	switch stage {
	case metadata.ShaderStageVertex:
		return "vert"
	case metadata.ShaderStageTessellationControl:
		return "tesc"
	case metadata.ShaderStageTessellationEvaluation:
		return "tese"
	case metadata.ShaderStageGeometry:
		return "geom"
	case metadata.ShaderStageFragment:
		return "frag"
	case metadata.ShaderStageCompute:
		return "comp"
	}
	return "unknown"
}

func NewShaderModule(context *VulkanContext, name string, stage metadata.ShaderStage) (*VulkanShaderStage, error) {
	// Build file name, which is also the module name in logs.
	fileName := fmt.Sprintf("shaders/%s.%s.spv", name, stageFileSuffix(stage))

	shaderContents, err := os.ReadFile(fileName)
	if err != nil {
		err := fmt.Errorf("unable to read shader module %s: %w", fileName, err)
		core.LogError(err.Error())
		return nil, err
	}
	if len(shaderContents) == 0 || len(shaderContents)%4 != 0 {
		err := fmt.Errorf("shader module %s is not valid SPIR-V: %d bytes", fileName, len(shaderContents))
		core.LogError(err.Error())
		return nil, err
	}

	shaderStage := &VulkanShaderStage{}
	shaderStage.CreateInfo = vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(shaderContents)),
		PCode:    sliceUint32(shaderContents),
	}

	if res := vk.CreateShaderModule(
		context.Device.LogicalDevice,
		&shaderStage.CreateInfo,
		context.Allocator,
		&shaderStage.Handle); res != vk.Success {
		err := fmt.Errorf("failed to create shader module %s with error %s", fileName, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	// Shader stage info
	shaderStage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStageFlag(stage),
		Module: shaderStage.Handle,
		PName:  VulkanSafeString("main"),
	}

	return shaderStage, nil
}

func (vss *VulkanShaderStage) Destroy(context *VulkanContext) {
	if vss.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, vss.Handle, context.Allocator)
		vss.Handle = vk.NullShaderModule
	}
}
