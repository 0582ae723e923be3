package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/**
 * @brief Per-stage resource payloads the write plans read from. The shape
 * is fixed at context creation; bind-point setters overwrite entries in
 * place, so a plan applied after a setter always sees the latest payload.
 * Slot 0 of the uniform window doubles as the push uniform source.
 */
type vulkanStageResources struct {
	UniformBuffers [VULKAN_MAX_BINDING_SLOTS]vk.DescriptorBufferInfo
	StorageBuffers [VULKAN_MAX_BINDING_SLOTS]vk.DescriptorBufferInfo
	SampledImages  [VULKAN_MAX_BINDING_SLOTS]vk.DescriptorImageInfo
	StorageImages  [VULKAN_MAX_BINDING_SLOTS]vk.DescriptorImageInfo
	SampledTexels  [VULKAN_MAX_BINDING_SLOTS]vk.BufferView
	StorageTexels  [VULKAN_MAX_BINDING_SLOTS]vk.BufferView
}

/**
 * @brief The descriptor core of the backend. Owns the layout registry,
 * the shared push and dummy layouts, the resource table, dirty tracking
 * per pipeline kind, and the update-and-bind protocol that feeds every
 * draw and dispatch. One per logical device.
 */
type VulkanDescriptorContext struct {
	device       descriptorDevice
	capacity     uint32
	hardwarePush bool
	templates    bool

	layoutCache *VulkanDescriptorLayoutCache
	dummyKey    *VulkanDescriptorLayoutKey
	pushKeys    [metadata.PipelineKindCount]*VulkanDescriptorLayoutKey
	pushSizes   [metadata.PipelineKindCount][]vk.DescriptorPoolSize

	dummyPool vk.DescriptorPool
	dummySet  vk.DescriptorSet

	resources [metadata.ShaderStageCount]vulkanStageResources

	boundPrograms [metadata.PipelineKindCount]*VulkanProgramDescriptors
	changedSets   [metadata.PipelineKindCount]uint8
	pushChanged   [metadata.PipelineKindCount]bool

	/** @brief The recording session updates feed; swapped by rotation. */
	current *VulkanBatch
	/** @brief Blocks until an in-flight session retires, then hands over
	 * the session to record into. Invoked on pool saturation. */
	reclaim func() (*VulkanBatch, error)

	writes []vk.WriteDescriptorSet
}

func NewVulkanDescriptorContext(device descriptorDevice, capacity uint32, useTemplates bool, reclaim func() (*VulkanBatch, error)) (*VulkanDescriptorContext, error) {
	if capacity == 0 {
		capacity = VULKAN_DEFAULT_POOL_SET_CAPACITY
	}
	dc := &VulkanDescriptorContext{
		device:       device,
		capacity:     capacity,
		hardwarePush: device.SupportsPushDescriptors(),
		templates:    useTemplates,
		layoutCache:  NewVulkanDescriptorLayoutCache(device),
		reclaim:      reclaim,
	}

	// The empty binding list is a valid canonical identity; its layout
	// fills every gap slot.
	dummy, err := dc.layoutCache.GetOrCreate(nil, false)
	if err != nil {
		dc.layoutCache.Destroy()
		return nil, err
	}
	dc.dummyKey = dummy

	// Shared push layouts. Graphics carries one uniform block per
	// graphics stage; programs write only the stages they declare.
	gfxBindings := make([]vk.DescriptorSetLayoutBinding, 0, metadata.ShaderStageCompute)
	for stage := metadata.ShaderStageVertex; stage < metadata.ShaderStageCompute; stage++ {
		gfxBindings = append(gfxBindings, vk.DescriptorSetLayoutBinding{
			Binding:         pushBindingNumber(stage),
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(shaderStageFlag(stage)),
		})
	}
	gfxKey, err := dc.layoutCache.GetOrCreate(gfxBindings, dc.hardwarePush)
	if err != nil {
		dc.layoutCache.Destroy()
		return nil, err
	}
	computeKey, err := dc.layoutCache.GetOrCreate([]vk.DescriptorSetLayoutBinding{{
		Binding:         pushBindingNumber(metadata.ShaderStageCompute),
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(shaderStageFlag(metadata.ShaderStageCompute)),
	}}, dc.hardwarePush)
	if err != nil {
		dc.layoutCache.Destroy()
		return nil, err
	}
	dc.pushKeys[metadata.PipelineKindGraphics] = gfxKey
	dc.pushKeys[metadata.PipelineKindCompute] = computeKey
	dc.pushSizes[metadata.PipelineKindGraphics] = []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: uint32(len(gfxBindings))},
	}
	dc.pushSizes[metadata.PipelineKindCompute] = []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
	}

	// One never-written set on the dummy layout, from a dedicated tiny
	// pool. It fills gap indices and clears stale push slots.
	dummyPool, err := device.CreatePool([]vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
	}, VULKAN_DUMMY_POOL_SETS)
	if err != nil {
		dc.layoutCache.Destroy()
		return nil, err
	}
	dummySets := make([]vk.DescriptorSet, 1)
	if err := device.AllocateSets(dummyPool, dc.dummyKey.Layout, dummySets); err != nil {
		device.DestroyPool(dummyPool)
		dc.layoutCache.Destroy()
		return nil, err
	}
	dc.dummyPool = dummyPool
	dc.dummySet = dummySets[0]

	core.LogInfo("descriptor context ready: capacity %d sets/pool, hardware push %t, templates %t",
		dc.capacity, dc.hardwarePush, dc.templates)
	return dc, nil
}

// SetCurrentBatch points updates at the session being recorded. The
// session's own last-bound tracking decides what first use dirties.
func (dc *VulkanDescriptorContext) SetCurrentBatch(b *VulkanBatch) {
	dc.current = b
}

// CurrentBatch returns the session updates currently feed.
func (dc *VulkanDescriptorContext) CurrentBatch() *VulkanBatch {
	return dc.current
}

// RecycleBatch rewinds a retired session's descriptor pools so the
// session can record again. Only safe once the session's fence has
// signaled.
func (dc *VulkanDescriptorContext) RecycleBatch(b *VulkanBatch) error {
	return b.ResetDescriptors(dc.device, dc.layoutCache)
}

// DestroyBatchState releases a session's descriptor pools for good.
func (dc *VulkanDescriptorContext) DestroyBatchState(b *VulkanBatch) {
	if b != nil && b.Descriptors != nil {
		b.Descriptors.Destroy(dc.device)
	}
}

// BindProgram selects the program whose descriptors the next update for
// its pipeline kind will feed.
func (dc *VulkanDescriptorContext) BindProgram(pd *VulkanProgramDescriptors) {
	dc.boundPrograms[pd.Kind] = pd
}

func pipelineKindForStage(stage metadata.ShaderStage) metadata.PipelineKind {
	if stage == metadata.ShaderStageCompute {
		return metadata.PipelineKindCompute
	}
	return metadata.PipelineKindGraphics
}

// Invalidate marks descriptor state stale after a resource rebind.
// Uniform slot 0 is the per-stage dynamic window, so it dirties only the
// push state; everything else dirties its set kind's bit.
func (dc *VulkanDescriptorContext) Invalidate(stage metadata.ShaderStage, t metadata.BindingType, slot uint32) {
	class, ok := bindingClassFor(t)
	if !ok {
		return
	}
	pipe := pipelineKindForStage(stage)
	if class.Push || (class.SetKind == DescriptorSetKindUniform && slot == 0) {
		dc.pushChanged[pipe] = true
		return
	}
	dc.changedSets[pipe] |= 1 << uint(class.SetKind)
}

func (dc *VulkanDescriptorContext) slotInRange(stage metadata.ShaderStage, slot uint32) bool {
	if stage >= metadata.ShaderStageCount || slot >= VULKAN_MAX_BINDING_SLOTS {
		core.LogWarn("descriptor payload ignored: stage %d slot %d out of range", stage, slot)
		return false
	}
	return true
}

// SetUniformBuffer publishes a uniform buffer payload. Slot 0 is the
// dynamic window that feeds the push set.
func (dc *VulkanDescriptorContext) SetUniformBuffer(stage metadata.ShaderStage, slot uint32, buffer vk.Buffer, offset, size vk.DeviceSize) {
	if !dc.slotInRange(stage, slot) {
		return
	}
	dc.resources[stage].UniformBuffers[slot] = vk.DescriptorBufferInfo{Buffer: buffer, Offset: offset, Range: size}
	dc.Invalidate(stage, metadata.BindingTypeUniformBuffer, slot)
}

// SetStorageBuffer publishes a storage buffer payload.
func (dc *VulkanDescriptorContext) SetStorageBuffer(stage metadata.ShaderStage, slot uint32, buffer vk.Buffer, offset, size vk.DeviceSize) {
	if !dc.slotInRange(stage, slot) {
		return
	}
	dc.resources[stage].StorageBuffers[slot] = vk.DescriptorBufferInfo{Buffer: buffer, Offset: offset, Range: size}
	dc.Invalidate(stage, metadata.BindingTypeStorageBuffer, slot)
}

// SetTexture publishes a sampled image payload.
func (dc *VulkanDescriptorContext) SetTexture(stage metadata.ShaderStage, slot uint32, view vk.ImageView, sampler vk.Sampler, layout vk.ImageLayout) {
	if !dc.slotInRange(stage, slot) {
		return
	}
	dc.resources[stage].SampledImages[slot] = vk.DescriptorImageInfo{Sampler: sampler, ImageView: view, ImageLayout: layout}
	dc.Invalidate(stage, metadata.BindingTypeSampledImage, slot)
}

// SetStorageImage publishes a storage image payload.
func (dc *VulkanDescriptorContext) SetStorageImage(stage metadata.ShaderStage, slot uint32, view vk.ImageView) {
	if !dc.slotInRange(stage, slot) {
		return
	}
	dc.resources[stage].StorageImages[slot] = vk.DescriptorImageInfo{ImageView: view, ImageLayout: vk.ImageLayoutGeneral}
	dc.Invalidate(stage, metadata.BindingTypeStorageImage, slot)
}

// SetTexelBuffer publishes a uniform texel buffer view.
func (dc *VulkanDescriptorContext) SetTexelBuffer(stage metadata.ShaderStage, slot uint32, view vk.BufferView) {
	if !dc.slotInRange(stage, slot) {
		return
	}
	dc.resources[stage].SampledTexels[slot] = view
	dc.Invalidate(stage, metadata.BindingTypeUniformTexelBuffer, slot)
}

// SetStorageTexelBuffer publishes a storage texel buffer view.
func (dc *VulkanDescriptorContext) SetStorageTexelBuffer(stage metadata.ShaderStage, slot uint32, view vk.BufferView) {
	if !dc.slotInRange(stage, slot) {
		return
	}
	dc.resources[stage].StorageTexels[slot] = view
	dc.Invalidate(stage, metadata.BindingTypeStorageTexelBuffer, slot)
}

func recordLastBound(bds *VulkanBatchDescriptorState, pipe metadata.PipelineKind, pd *VulkanProgramDescriptors) {
	bds.LastPrograms[pipe] = pd
	bds.LastPushStages[pipe] = pd.PushStages
	for kind := VulkanDescriptorSetKind(0); kind < DescriptorSetKindCount; kind++ {
		if key := pd.LayoutKeys[kind]; key != nil {
			bds.LastLayouts[pipe][kind] = key.Layout
		} else {
			bds.LastLayouts[pipe][kind] = nil
		}
	}
}

// diffProgramSwitch folds a program change into the dirty state: only
// kinds whose set layout differs from the session's last-seen one become
// dirty, push likewise. First use in a session dirties full usage.
func (dc *VulkanDescriptorContext) diffProgramSwitch(bds *VulkanBatchDescriptorState, pipe metadata.PipelineKind, pd *VulkanProgramDescriptors) {
	if bds.LastPrograms[pipe] == pd {
		return
	}
	if bds.LastPrograms[pipe] == nil {
		dc.changedSets[pipe] |= pd.UsageMask
		dc.pushChanged[pipe] = true
		recordLastBound(bds, pipe, pd)
		return
	}
	for kind := VulkanDescriptorSetKind(0); kind < DescriptorSetKindCount; kind++ {
		var want vk.DescriptorSetLayout
		if key := pd.LayoutKeys[kind]; key != nil {
			want = key.Layout
		}
		if bds.LastLayouts[pipe][kind] != want {
			dc.changedSets[pipe] |= 1 << uint(kind)
		}
	}
	if bds.LastPushStages[pipe] != pd.PushStages {
		dc.pushChanged[pipe] = true
	}
	recordLastBound(bds, pipe, pd)
}

// stallForSession blocks until an in-flight session retires and swaps the
// retired session in as the recording target. kind is only event payload.
func (dc *VulkanDescriptorContext) stallForSession(kind uint32) error {
	core.MetricsDescriptors().PoolStalls.Add(1)
	var ec core.EventContext
	ec.Data.U32[0] = kind
	core.EventFire(core.EVENT_CODE_DESCRIPTOR_STALL, dc, ec)
	if dc.reclaim == nil {
		err := fmt.Errorf("pool saturated with no session to reclaim: %w", core.ErrDescriptorsExhausted)
		core.LogError(err.Error())
		return err
	}
	core.LogWarn("descriptor pool saturated; blocking until a session retires")
	b, err := dc.reclaim()
	if err != nil {
		err = fmt.Errorf("session reclamation failed: %s: %w", err.Error(), core.ErrDescriptorsExhausted)
		core.LogError(err.Error())
		return err
	}
	dc.current = b
	core.MetricsDescriptors().SessionRotations.Add(1)
	return nil
}

// acquireTargetSets walks the dirty kinds and pulls one fresh set per
// kind the program uses, plus the emulated push set when needed. A
// saturated pool triggers one blocking reclamation and reports restart.
func (dc *VulkanDescriptorContext) acquireTargetSets(pd *VulkanProgramDescriptors, pipe metadata.PipelineKind, dirty uint8, pushDirty bool, sets *[DescriptorSetKindCount]vk.DescriptorSet, pushSet *vk.DescriptorSet) (bool, error) {
	bds := dc.current.Descriptors
	for kind := VulkanDescriptorSetKind(0); kind < DescriptorSetKindCount; kind++ {
		if dirty&(1<<uint(kind)) == 0 || !pd.UsesKind(kind) {
			continue
		}
		pool, err := bds.AcquirePool(dc.device, kind, pd.LayoutKeys[kind], pd.PoolSizes[kind], dc.capacity)
		if err != nil {
			return false, err
		}
		set, err := pool.AcquireSet(dc.device)
		if errors.Is(err, core.ErrPoolSaturated) {
			if serr := dc.stallForSession(uint32(kind)); serr != nil {
				return false, serr
			}
			return true, nil
		}
		if err != nil {
			return false, err
		}
		sets[kind] = set
	}

	if pushDirty && pd.HasPush() && !dc.hardwarePush {
		pool, err := bds.AcquirePushPool(dc.device, pipe, dc.pushKeys[pipe], dc.pushSizes[pipe], dc.capacity)
		if err != nil {
			return false, err
		}
		set, err := pool.AcquireSet(dc.device)
		if errors.Is(err, core.ErrPoolSaturated) {
			if serr := dc.stallForSession(uint32(DescriptorSetKindCount)); serr != nil {
				return false, serr
			}
			return true, nil
		}
		if err != nil {
			return false, err
		}
		*pushSet = set
	}
	return false, nil
}

func (dc *VulkanDescriptorContext) appendStepWrite(dst vk.DescriptorSet, step *vulkanWriteStep) {
	w := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          dst,
		DstBinding:      step.Binding,
		DstArrayElement: step.ArrayElement,
		DescriptorCount: step.Count,
		DescriptorType:  step.NativeType,
	}
	res := &dc.resources[step.Stage]
	switch step.Payload {
	case PayloadBuffer:
		if step.NativeType == vk.DescriptorTypeStorageBuffer {
			w.PBufferInfo = res.StorageBuffers[step.Slot : step.Slot+step.Count]
		} else {
			w.PBufferInfo = res.UniformBuffers[step.Slot : step.Slot+step.Count]
		}
	case PayloadImage:
		if step.NativeType == vk.DescriptorTypeStorageImage {
			w.PImageInfo = res.StorageImages[step.Slot : step.Slot+step.Count]
		} else {
			w.PImageInfo = res.SampledImages[step.Slot : step.Slot+step.Count]
		}
	case PayloadTexelView:
		if step.NativeType == vk.DescriptorTypeStorageTexelBuffer {
			w.PTexelBufferView = res.StorageTexels[step.Slot : step.Slot+step.Count]
		} else {
			w.PTexelBufferView = res.SampledTexels[step.Slot : step.Slot+step.Count]
		}
	}
	dc.writes = append(dc.writes, w)
}

// buildKindWrites fills the scratch write list for one freshly acquired
// set, either from the program's frozen plan or assembled on the spot
// from the layout key when templates are disabled.
func (dc *VulkanDescriptorContext) buildKindWrites(pd *VulkanProgramDescriptors, kind VulkanDescriptorSetKind, dst vk.DescriptorSet) {
	dc.writes = dc.writes[:0]
	if dc.templates {
		for i := range pd.WritePlans[kind] {
			dc.appendStepWrite(dst, &pd.WritePlans[kind][i])
		}
		return
	}
	key := pd.LayoutKeys[kind]
	for i := range key.Bindings {
		lb := &key.Bindings[i]
		payload, perElement := payloadForNativeType(lb.DescriptorType)
		stage, slot := stageSlotFromBinding(lb.Binding)
		if perElement {
			for e := uint32(0); e < lb.DescriptorCount; e++ {
				step := vulkanWriteStep{
					Binding: lb.Binding, ArrayElement: e, Count: 1,
					NativeType: lb.DescriptorType, Payload: payload,
					Stage: stage, Slot: slot + e,
				}
				dc.appendStepWrite(dst, &step)
			}
			continue
		}
		step := vulkanWriteStep{
			Binding: lb.Binding, Count: lb.DescriptorCount,
			NativeType: lb.DescriptorType, Payload: payload,
			Stage: stage, Slot: slot,
		}
		dc.appendStepWrite(dst, &step)
	}
}

// buildPushWrites fills the scratch write list for the push set. Dynamic
// uniforms flatten to plain uniform writes reading each stage's dynamic
// window; dst stays nil on the hardware path.
func (dc *VulkanDescriptorContext) buildPushWrites(pd *VulkanProgramDescriptors, dst vk.DescriptorSet) {
	dc.writes = dc.writes[:0]
	if dc.templates {
		for i := range pd.PushPlan {
			dc.appendStepWrite(dst, &pd.PushPlan[i])
		}
		return
	}
	for stage := metadata.ShaderStage(0); stage < metadata.ShaderStageCount; stage++ {
		if pd.PushStages&pushStageBit(stage) == 0 {
			continue
		}
		step := vulkanWriteStep{
			Binding: pushBindingNumber(stage), Count: 1,
			NativeType: vk.DescriptorTypeUniformBuffer, Payload: PayloadBuffer,
			Stage: stage, Slot: 0,
		}
		dc.appendStepWrite(dst, &step)
	}
}

/**
 * @brief Updates and binds every stale descriptor set for the bound
 * program of the given pipeline kind. Population is a bounded loop: a
 * saturated pool blocks for a session to retire, rotates to it, and the
 * loop restarts against the program's full usage. A failed population
 * abandons the update with dirty bits preserved; it never half-binds.
 */
func (dc *VulkanDescriptorContext) UpdateAndBind(pipe metadata.PipelineKind) error {
	pd := dc.boundPrograms[pipe]
	if pd == nil {
		err := fmt.Errorf("no %s program bound: %w", pipe, core.ErrInvalidProgram)
		core.LogError(err.Error())
		return err
	}
	if dc.current == nil {
		err := fmt.Errorf("no recording session for %s update", pipe)
		core.LogError(err.Error())
		return err
	}
	if pd.NumSets == 0 {
		return nil
	}

	dc.diffProgramSwitch(dc.current.Descriptors, pipe, pd)

	dirty := dc.changedSets[pipe] & pd.UsageMask
	dummyDirty := dc.changedSets[pipe] &^ pd.UsageMask
	pushDirty := dc.pushChanged[pipe]
	if dirty == 0 && dummyDirty == 0 && !pushDirty {
		return nil
	}

	var sets [DescriptorSetKindCount]vk.DescriptorSet
	var pushSet vk.DescriptorSet
	for attempt := 0; ; attempt++ {
		if attempt >= VULKAN_MAX_POPULATE_ATTEMPTS {
			err := fmt.Errorf("descriptor population for program '%s' gave up after %d attempts: %w",
				pd.Name, VULKAN_MAX_POPULATE_ATTEMPTS, core.ErrDescriptorsExhausted)
			core.LogError(err.Error())
			return err
		}
		restart, err := dc.acquireTargetSets(pd, pipe, dirty, pushDirty, &sets, &pushSet)
		if err != nil {
			return err
		}
		if !restart {
			break
		}
		// The session rotated under us. Sets acquired so far died with
		// it; recompute from full usage and run the pass again. The
		// recomputed mask is persisted, not just held in locals: the
		// rotated session has nothing bound yet, so if a later attempt
		// fails the next update must still start from full usage.
		sets = [DescriptorSetKindCount]vk.DescriptorSet{}
		pushSet = nil
		dirty = pd.UsageMask
		dummyDirty = 0
		pushDirty = true
		dc.changedSets[pipe] = pd.UsageMask
		dc.pushChanged[pipe] = true
		recordLastBound(dc.current.Descriptors, pipe, pd)
	}

	// Write phase: one bulk update per freshly acquired set.
	for kind := VulkanDescriptorSetKind(0); kind < DescriptorSetKindCount; kind++ {
		if sets[kind] == nil {
			continue
		}
		dc.buildKindWrites(pd, kind, sets[kind])
		if len(dc.writes) > 0 {
			dc.device.UpdateSets(dc.writes)
			core.MetricsDescriptors().PlanWrites.Add(uint64(len(dc.writes)))
		}
	}
	if pushSet != nil {
		dc.buildPushWrites(pd, pushSet)
		if len(dc.writes) > 0 {
			dc.device.UpdateSets(dc.writes)
			core.MetricsDescriptors().PlanWrites.Add(uint64(len(dc.writes)))
		}
	}

	// Bind phase: push slot first, then typed sets in ascending order.
	cmd := dc.current.CommandBuffer.Handle
	bp := bindPointFor(pipe)
	if pushDirty {
		switch {
		case pd.HasPush() && dc.hardwarePush:
			dc.buildPushWrites(pd, nil)
			dc.device.PushSet(cmd, bp, pd.PipelineLayout, 0, dc.writes)
			core.MetricsDescriptors().PushWrites.Add(uint64(len(dc.writes)))
		case pd.HasPush():
			dc.device.BindSets(cmd, bp, pd.PipelineLayout, 0, []vk.DescriptorSet{pushSet})
		default:
			dc.device.BindSets(cmd, bp, pd.PipelineLayout, 0, []vk.DescriptorSet{dc.dummySet})
			core.MetricsDescriptors().DummyBinds.Add(1)
		}
	}
	for kind := VulkanDescriptorSetKind(0); kind < DescriptorSetKindCount; kind++ {
		idx := kind.SetIndex()
		if idx >= pd.NumSets {
			continue
		}
		if sets[kind] != nil {
			dc.device.BindSets(cmd, bp, pd.PipelineLayout, idx, []vk.DescriptorSet{sets[kind]})
			continue
		}
		if dummyDirty&(1<<uint(kind)) != 0 {
			dc.device.BindSets(cmd, bp, pd.PipelineLayout, idx, []vk.DescriptorSet{dc.dummySet})
			core.MetricsDescriptors().DummyBinds.Add(1)
		}
	}

	dc.changedSets[pipe] = 0
	dc.pushChanged[pipe] = false
	return nil
}

// Destroy tears the context down: the dummy pool, then every cached
// layout. Programs and sessions must already be gone.
func (dc *VulkanDescriptorContext) Destroy() {
	if dc.dummyPool != nil {
		dc.device.DestroyPool(dc.dummyPool)
		dc.dummyPool = nil
		dc.dummySet = nil
	}
	dc.layoutCache.Release(dc.dummyKey)
	for pipe := range dc.pushKeys {
		dc.layoutCache.Release(dc.pushKeys[pipe])
		dc.pushKeys[pipe] = nil
	}
	dc.layoutCache.Destroy()
	dc.current = nil
	core.LogInfo("descriptor context destroyed")
}
