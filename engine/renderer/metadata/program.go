package metadata

import (
	"fmt"
	"sort"
	"strings"
)

/** @brief The maximum number of binding slots one stage may use per set kind. */
const MAX_BINDING_SLOTS uint32 = 32

/**
 * @brief Represents the current state of a given program.
 */
type ProgramState int

const (
	/** @brief The program has not yet gone through the creation process, and is unusable.*/
	PROGRAM_STATE_NOT_CREATED ProgramState = iota
	/** @brief The program has gone through the creation process, but not initialization. It is unusable.*/
	PROGRAM_STATE_UNINITIALIZED
	/** @brief The program is created and initialized, and is ready for use.*/
	PROGRAM_STATE_INITIALIZED
)

/** @brief Pipeline kinds tracked independently by the descriptor state. */
type PipelineKind uint8

const (
	PipelineKindGraphics PipelineKind = 0
	PipelineKindCompute  PipelineKind = 1
	PipelineKindCount    PipelineKind = 2
)

func (pk PipelineKind) String() string {
	if pk == PipelineKindCompute {
		return "compute"
	}
	return "graphics"
}

/** @brief Shader stages available in the system, in pipeline order. */
type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageTessellationControl
	ShaderStageTessellationEvaluation
	ShaderStageGeometry
	ShaderStageFragment
	ShaderStageCompute
	ShaderStageCount
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageTessellationControl:
		return "tess_control"
	case ShaderStageTessellationEvaluation:
		return "tess_evaluation"
	case ShaderStageGeometry:
		return "geometry"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageCompute:
		return "compute"
	}
	return "unknown"
}

func ShaderStageFromString(s string) (ShaderStage, error) {
	switch strings.ToLower(s) {
	case "vertex", "vert":
		return ShaderStageVertex, nil
	case "tess_control", "tesc":
		return ShaderStageTessellationControl, nil
	case "tess_evaluation", "tese":
		return ShaderStageTessellationEvaluation, nil
	case "geometry", "geom":
		return ShaderStageGeometry, nil
	case "fragment", "frag":
		return ShaderStageFragment, nil
	case "compute", "comp":
		return ShaderStageCompute, nil
	}
	return 0, fmt.Errorf("string %s is not a valid ShaderStage", s)
}

/** @brief Binding types a stage's reflection may declare. */
type BindingType uint8

const (
	BindingTypeUniformBuffer BindingType = iota
	BindingTypeDynamicUniformBuffer
	BindingTypeStorageBuffer
	BindingTypeSampledImage
	BindingTypeStorageImage
	BindingTypeUniformTexelBuffer
	BindingTypeStorageTexelBuffer
	BindingTypeCount
)

func (bt BindingType) String() string {
	switch bt {
	case BindingTypeUniformBuffer:
		return "uniform_buffer"
	case BindingTypeDynamicUniformBuffer:
		return "dynamic_uniform_buffer"
	case BindingTypeStorageBuffer:
		return "storage_buffer"
	case BindingTypeSampledImage:
		return "sampled_image"
	case BindingTypeStorageImage:
		return "storage_image"
	case BindingTypeUniformTexelBuffer:
		return "uniform_texel_buffer"
	case BindingTypeStorageTexelBuffer:
		return "storage_texel_buffer"
	}
	return "unknown"
}

func BindingTypeFromString(s string) (BindingType, error) {
	switch strings.ToLower(s) {
	case "uniform_buffer", "ubo":
		return BindingTypeUniformBuffer, nil
	case "dynamic_uniform_buffer", "push_ubo":
		return BindingTypeDynamicUniformBuffer, nil
	case "storage_buffer", "ssbo":
		return BindingTypeStorageBuffer, nil
	case "sampled_image", "texture":
		return BindingTypeSampledImage, nil
	case "storage_image", "image":
		return BindingTypeStorageImage, nil
	case "uniform_texel_buffer":
		return BindingTypeUniformTexelBuffer, nil
	case "storage_texel_buffer":
		return BindingTypeStorageTexelBuffer, nil
	}
	return 0, fmt.Errorf("string %s is not a valid BindingType", s)
}

/**
 * @brief One reflected binding: the slot within its stage, the binding
 * type, and the array element Count (1 for non-arrays).
 */
type Binding struct {
	Slot  uint32
	Type  BindingType
	Count uint32
}

/**
 * @brief The reflected binding list of one shader stage, ordered as the
 * reflection emitted it. Order is not significant: layout identity is
 * canonicalized downstream.
 */
type StageReflection struct {
	Stage    ShaderStage
	Bindings []Binding
}

/**
 * @brief Configuration for a program: its name and the reflection of every
 * stage it links. Reflection is produced upstream (offline or by the shader
 * front end); this layer only consumes it.
 */
type ProgramConfig struct {
	Name   string
	Stages []StageReflection
}

// PipelineKind derives the pipeline kind from the staged reflection.
func (cfg *ProgramConfig) PipelineKind() PipelineKind {
	for i := range cfg.Stages {
		if cfg.Stages[i].Stage == ShaderStageCompute {
			return PipelineKindCompute
		}
	}
	return PipelineKindGraphics
}

// Hash returns a canonical identity string for the program's reflection,
// stable across stage and binding declaration order. Program caches key on it.
func (cfg *ProgramConfig) Hash() string {
	stages := make([]StageReflection, len(cfg.Stages))
	copy(stages, cfg.Stages)
	sort.Slice(stages, func(i, j int) bool { return stages[i].Stage < stages[j].Stage })

	var sb strings.Builder
	for si := range stages {
		bindings := make([]Binding, len(stages[si].Bindings))
		copy(bindings, stages[si].Bindings)
		sort.Slice(bindings, func(i, j int) bool {
			if bindings[i].Type != bindings[j].Type {
				return bindings[i].Type < bindings[j].Type
			}
			return bindings[i].Slot < bindings[j].Slot
		})
		fmt.Fprintf(&sb, "%d{", stages[si].Stage)
		for bi := range bindings {
			fmt.Fprintf(&sb, "%d:%d:%d;", bindings[bi].Slot, bindings[bi].Type, bindings[bi].Count)
		}
		sb.WriteString("}")
	}
	return sb.String()
}

/**
 * @brief Represents a program on the frontend: a linked set of shader
 * stages whose descriptor interface this layer manages.
 */
type Program struct {
	/** @brief The program identifier. */
	ID uint32

	Name string

	/** @brief The reflection the program was built from. */
	Stages []StageReflection

	/** @brief Graphics or compute; descriptor state is tracked per kind. */
	Kind PipelineKind

	/** @brief The internal State of the program. */
	State ProgramState

	/** @brief An opaque pointer to hold renderer API specific data. Renderer is responsible for creation and destruction of this. */
	InternalData interface{}
}
