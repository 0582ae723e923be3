package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/**
 * @brief One precompiled descriptor write. Plans are frozen at program
 * build time so populating a fresh set is a straight copy of resource
 * table entries into write structures, with no per-frame reflection walk.
 */
type vulkanWriteStep struct {
	Binding      uint32
	ArrayElement uint32
	Count        uint32
	NativeType   vk.DescriptorType
	Payload      VulkanDescriptorPayload
	Stage        metadata.ShaderStage
	Slot         uint32
}

/**
 * @brief Everything the backend needs to feed one program's descriptors:
 * layout keys per set kind, precompiled write plans, the ordered native
 * layouts with dummy gaps, and the pipeline layout built over them.
 */
type VulkanProgramDescriptors struct {
	Name string
	Kind metadata.PipelineKind

	/** @brief One key per used set kind, nil where the program binds nothing. */
	LayoutKeys [DescriptorSetKindCount]*VulkanDescriptorLayoutKey

	/** @brief Bit per set kind with at least one binding. */
	UsageMask uint8
	/** @brief Bit per shader stage ordinal that declares the push uniform. */
	PushStages uint32

	/** @brief Write plans per set kind, buffer arrays expanded per element. */
	WritePlans [DescriptorSetKindCount][]vulkanWriteStep
	/** @brief Write plan for set 0, dynamic uniforms flattened to plain uniforms. */
	PushPlan []vulkanWriteStep

	/** @brief Descriptors consumed by one set of each kind, for pool sizing. */
	PoolSizes [DescriptorSetKindCount][]vk.DescriptorPoolSize

	/** @brief Native layouts in set order, gaps filled with the dummy layout. */
	SetLayouts []vk.DescriptorSetLayout
	/** @brief Set count implied by the highest used set index. */
	NumSets uint32

	PipelineLayout vk.PipelineLayout
}

// UsesKind reports whether the program binds anything of the given set kind.
func (pd *VulkanProgramDescriptors) UsesKind(kind VulkanDescriptorSetKind) bool {
	return pd.UsageMask&(1<<uint(kind)) != 0
}

// HasPush reports whether any stage declares the push uniform.
func (pd *VulkanProgramDescriptors) HasPush() bool {
	return pd.PushStages != 0
}

// pushStageBit is the PushStages bit for a stage ordinal.
func pushStageBit(stage metadata.ShaderStage) uint32 {
	return 1 << uint(stage)
}

type programBindingAccumulator struct {
	layoutBindings [DescriptorSetKindCount][]vk.DescriptorSetLayoutBinding
	typeCounts     [DescriptorSetKindCount]map[vk.DescriptorType]uint32
	seen           map[uint64]bool
}

func newProgramBindingAccumulator() *programBindingAccumulator {
	acc := &programBindingAccumulator{seen: make(map[uint64]bool)}
	for k := range acc.typeCounts {
		acc.typeCounts[k] = make(map[vk.DescriptorType]uint32)
	}
	return acc
}

// slotIdentity keys a (stage, type, slot) triple for duplicate detection.
func slotIdentity(stage metadata.ShaderStage, t metadata.BindingType, slot uint32) uint64 {
	return uint64(stage)<<40 | uint64(t)<<32 | uint64(slot)
}

/**
 * @brief Compiles a program's shader reflection into descriptor machinery.
 * Layout keys come from the shared registry so identical reflections share
 * pools; write plans are frozen here. Set 0 is the context's shared push
 * layout when any stage declares the push uniform, the dummy layout
 * otherwise.
 */
func (dc *VulkanDescriptorContext) BuildProgramDescriptors(config *metadata.ProgramConfig) (*VulkanProgramDescriptors, error) {
	pd := &VulkanProgramDescriptors{
		Name: config.Name,
		Kind: config.PipelineKind(),
	}

	acc := newProgramBindingAccumulator()
	for si := range config.Stages {
		stage := &config.Stages[si]
		if err := accumulateStage(pd, acc, stage); err != nil {
			return nil, err
		}
	}

	for kind := VulkanDescriptorSetKind(0); kind < DescriptorSetKindCount; kind++ {
		if len(acc.layoutBindings[kind]) == 0 {
			continue
		}
		key, err := dc.layoutCache.GetOrCreate(acc.layoutBindings[kind], false)
		if err != nil {
			dc.releaseProgramKeys(pd)
			return nil, err
		}
		pd.LayoutKeys[kind] = key
		pd.UsageMask |= 1 << uint(kind)
		pd.PoolSizes[kind] = poolSizesFromCounts(acc.typeCounts[kind])
	}

	buildSetLayouts(pd, dc.dummyKey.Layout, dc.pushKeys[pd.Kind].Layout)

	if len(pd.SetLayouts) > 0 {
		layout, err := dc.device.CreatePipelineLayout(pd.SetLayouts)
		if err != nil {
			dc.releaseProgramKeys(pd)
			return nil, err
		}
		pd.PipelineLayout = layout
	}

	core.LogDebug("program '%s': %d sets, usage mask 0x%x, push stages 0x%x",
		pd.Name, pd.NumSets, pd.UsageMask, pd.PushStages)
	core.MetricsDescriptors().ProgramsBuilt.Add(1)
	return pd, nil
}

func accumulateStage(pd *VulkanProgramDescriptors, acc *programBindingAccumulator, stage *metadata.StageReflection) error {
	for bi := range stage.Bindings {
		b := &stage.Bindings[bi]
		class, ok := bindingClassFor(b.Type)
		if !ok {
			err := fmt.Errorf("program '%s': stage %s binding type %s is not bindable: %w", pd.Name, stage.Stage, b.Type, core.ErrInvalidProgram)
			core.LogError(err.Error())
			return err
		}
		count := b.Count
		if count == 0 {
			count = 1
		}
		id := slotIdentity(stage.Stage, b.Type, b.Slot)
		if acc.seen[id] {
			err := fmt.Errorf("program '%s': stage %s declares %s slot %d twice: %w", pd.Name, stage.Stage, b.Type, b.Slot, core.ErrInvalidProgram)
			core.LogError(err.Error())
			return err
		}
		acc.seen[id] = true

		if class.Push {
			if b.Slot != 0 || count != 1 {
				err := fmt.Errorf("program '%s': stage %s dynamic uniform must occupy slot 0 with count 1: %w", pd.Name, stage.Stage, core.ErrInvalidProgram)
				core.LogError(err.Error())
				return err
			}
			if pd.PushStages&pushStageBit(stage.Stage) != 0 {
				err := fmt.Errorf("program '%s': stage %s declares two dynamic uniforms: %w", pd.Name, stage.Stage, core.ErrInvalidProgram)
				core.LogError(err.Error())
				return err
			}
			pd.PushStages |= pushStageBit(stage.Stage)
			pd.PushPlan = append(pd.PushPlan, vulkanWriteStep{
				Binding:    pushBindingNumber(stage.Stage),
				Count:      1,
				NativeType: vk.DescriptorTypeUniformBuffer,
				Payload:    PayloadBuffer,
				Stage:      stage.Stage,
				Slot:       0,
			})
			continue
		}

		if b.Slot+count > VULKAN_MAX_BINDING_SLOTS {
			err := fmt.Errorf("program '%s': stage %s %s slots [%d,%d) exceed the %d slot table: %w",
				pd.Name, stage.Stage, b.Type, b.Slot, b.Slot+count, VULKAN_MAX_BINDING_SLOTS, core.ErrInvalidProgram)
			core.LogError(err.Error())
			return err
		}

		binding := setBindingNumber(stage.Stage, class, b.Slot)
		acc.layoutBindings[class.SetKind] = append(acc.layoutBindings[class.SetKind], vk.DescriptorSetLayoutBinding{
			Binding:         binding,
			DescriptorType:  class.NativeType,
			DescriptorCount: count,
			StageFlags:      vk.ShaderStageFlags(shaderStageFlag(stage.Stage)),
		})
		acc.typeCounts[class.SetKind][class.NativeType] += count

		if class.PerElement {
			// Buffer arrays populate one element per write so sparse
			// rebinding of a single element stays cheap.
			for e := uint32(0); e < count; e++ {
				pd.WritePlans[class.SetKind] = append(pd.WritePlans[class.SetKind], vulkanWriteStep{
					Binding:      binding,
					ArrayElement: e,
					Count:        1,
					NativeType:   class.NativeType,
					Payload:      class.Payload,
					Stage:        stage.Stage,
					Slot:         b.Slot + e,
				})
			}
		} else {
			pd.WritePlans[class.SetKind] = append(pd.WritePlans[class.SetKind], vulkanWriteStep{
				Binding:    binding,
				Count:      count,
				NativeType: class.NativeType,
				Payload:    class.Payload,
				Stage:      stage.Stage,
				Slot:       b.Slot,
			})
		}
	}
	return nil
}

func poolSizesFromCounts(counts map[vk.DescriptorType]uint32) []vk.DescriptorPoolSize {
	if len(counts) == 0 {
		return nil
	}
	sizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	// Fixed iteration order keeps pool creation deterministic.
	for _, t := range []vk.DescriptorType{
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeCombinedImageSampler,
		vk.DescriptorTypeStorageImage,
		vk.DescriptorTypeUniformTexelBuffer,
		vk.DescriptorTypeStorageTexelBuffer,
	} {
		if n, ok := counts[t]; ok && n > 0 {
			sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
		}
	}
	return sizes
}

// buildSetLayouts lays out the native layout list in set order. Set 0 is
// always present once any set exists; unused kinds between used ones get
// the dummy layout so absolute set numbers stay fixed across programs.
func buildSetLayouts(pd *VulkanProgramDescriptors, dummyLayout, pushLayout vk.DescriptorSetLayout) {
	highest := -1
	for kind := VulkanDescriptorSetKind(0); kind < DescriptorSetKindCount; kind++ {
		if pd.UsesKind(kind) {
			highest = int(kind.SetIndex())
		}
	}
	if highest < 0 && !pd.HasPush() {
		pd.NumSets = 0
		return
	}
	if highest < 0 {
		highest = 0
	}

	pd.NumSets = uint32(highest) + 1
	pd.SetLayouts = make([]vk.DescriptorSetLayout, pd.NumSets)
	for i := range pd.SetLayouts {
		pd.SetLayouts[i] = dummyLayout
	}
	if pd.HasPush() {
		pd.SetLayouts[0] = pushLayout
	}
	for kind := VulkanDescriptorSetKind(0); kind < DescriptorSetKindCount; kind++ {
		if key := pd.LayoutKeys[kind]; key != nil {
			pd.SetLayouts[kind.SetIndex()] = key.Layout
		}
	}
}

func (dc *VulkanDescriptorContext) releaseProgramKeys(pd *VulkanProgramDescriptors) {
	for kind := range pd.LayoutKeys {
		if pd.LayoutKeys[kind] != nil {
			dc.layoutCache.Release(pd.LayoutKeys[kind])
			pd.LayoutKeys[kind] = nil
		}
	}
}

// DestroyProgramDescriptors releases the program's layout keys and its
// pipeline layout. Cached native set layouts stay alive in the registry
// for future rebuilds; per-session pools keyed by the released layouts
// are reclaimed at the next session reset once no live program holds them.
func (dc *VulkanDescriptorContext) DestroyProgramDescriptors(pd *VulkanProgramDescriptors) {
	if pd == nil {
		return
	}
	dc.releaseProgramKeys(pd)
	if pd.PipelineLayout != nil {
		dc.device.DestroyPipelineLayout(pd.PipelineLayout)
		pd.PipelineLayout = nil
	}
	for kind := range dc.boundPrograms {
		if dc.boundPrograms[kind] == pd {
			dc.boundPrograms[kind] = nil
		}
	}
	pd.SetLayouts = nil
	pd.NumSets = 0
	pd.UsageMask = 0
	pd.PushStages = 0
}
