package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

func resetDeviceTracking(device *fakeDescriptorDevice) {
	device.allocBuckets = nil
	device.updates = nil
	device.binds = nil
	device.pushes = nil
}

func uniformProgram(t *testing.T, dc *VulkanDescriptorContext, name string) *VulkanProgramDescriptors {
	t.Helper()
	return buildTestProgram(t, dc, name,
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}))
}

func TestInvalidateRouting(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	dc.Invalidate(metadata.ShaderStageVertex, metadata.BindingTypeUniformBuffer, 0)
	if !dc.pushChanged[metadata.PipelineKindGraphics] {
		t.Fatalf("uniform slot 0 did not dirty push state")
	}
	if dc.changedSets[metadata.PipelineKindGraphics] != 0 {
		t.Fatalf("uniform slot 0 dirtied typed sets: 0x%x", dc.changedSets[metadata.PipelineKindGraphics])
	}

	dc.Invalidate(metadata.ShaderStageVertex, metadata.BindingTypeUniformBuffer, 2)
	if dc.changedSets[metadata.PipelineKindGraphics] != 1<<uint(DescriptorSetKindUniform) {
		t.Fatalf("uniform slot 2: have 0x%x, want uniform bit", dc.changedSets[metadata.PipelineKindGraphics])
	}

	dc.Invalidate(metadata.ShaderStageFragment, metadata.BindingTypeSampledImage, 0)
	if dc.changedSets[metadata.PipelineKindGraphics]&(1<<uint(DescriptorSetKindSamplerView)) == 0 {
		t.Fatalf("sampled image slot 0 did not dirty the sampler-view kind")
	}

	dc.Invalidate(metadata.ShaderStageCompute, metadata.BindingTypeStorageBuffer, 1)
	if dc.changedSets[metadata.PipelineKindCompute] != 1<<uint(DescriptorSetKindStorageBuffer) {
		t.Fatalf("compute storage: have 0x%x", dc.changedSets[metadata.PipelineKindCompute])
	}
	if dc.pushChanged[metadata.PipelineKindCompute] {
		t.Fatalf("compute storage dirtied push state")
	}

	dc.Invalidate(metadata.ShaderStageCompute, metadata.BindingTypeDynamicUniformBuffer, 0)
	if !dc.pushChanged[metadata.PipelineKindCompute] {
		t.Fatalf("compute dynamic uniform did not dirty push state")
	}
}

func TestUpdateAndBindFirstUse(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)
	pd := buildTestProgram(t, dc, "first",
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}),
		stageWithBindings(metadata.ShaderStageFragment,
			metadata.Binding{Slot: 0, Type: metadata.BindingTypeSampledImage, Count: 1}))

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(pd)

	buf := fakeBuffer(device)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, buf, 0, 256)
	dc.SetTexture(metadata.ShaderStageFragment, 0, fakeImageView(device), fakeSampler(device), vk.ImageLayoutShaderReadOnlyOptimal)

	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("UpdateAndBind returned %v", err)
	}

	// One bulk update per populated set.
	if len(device.updates) != 2 {
		t.Fatalf("bulk updates: have %d, want 2", len(device.updates))
	}
	uniformWrite := device.updates[0][0]
	class, _ := bindingClassFor(metadata.BindingTypeUniformBuffer)
	if uniformWrite.DstBinding != setBindingNumber(metadata.ShaderStageVertex, class, 1) {
		t.Fatalf("uniform write binding: have %d", uniformWrite.DstBinding)
	}
	if len(uniformWrite.PBufferInfo) != 1 || uniformWrite.PBufferInfo[0].Buffer != buf {
		t.Fatalf("uniform write does not window the resource table")
	}

	// Dummy at slot 0 (no push usage), then sets 1 and 2 ascending.
	if len(device.binds) != 3 {
		t.Fatalf("binds: have %d, want 3", len(device.binds))
	}
	if device.binds[0].firstSet != 0 || device.binds[0].sets[0] != dc.dummySet {
		t.Fatalf("slot 0 did not get the dummy set")
	}
	if device.binds[1].firstSet != 1 || device.binds[2].firstSet != 2 {
		t.Fatalf("typed sets bound out of order: %v, %v", device.binds[1].firstSet, device.binds[2].firstSet)
	}

	if dc.changedSets[metadata.PipelineKindGraphics] != 0 || dc.pushChanged[metadata.PipelineKindGraphics] {
		t.Fatalf("dirty state survived a successful update")
	}

	// Nothing changed since: the next update is free.
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("second UpdateAndBind returned %v", err)
	}
	if len(device.updates) != 0 || len(device.binds) != 0 {
		t.Fatalf("clean update touched the device: %d updates, %d binds", len(device.updates), len(device.binds))
	}

	// A single rebind dirties exactly its kind.
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 128)
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("third UpdateAndBind returned %v", err)
	}
	if len(device.updates) != 1 || len(device.binds) != 1 || device.binds[0].firstSet != 1 {
		t.Fatalf("incremental update wrote %d sets, bound %d", len(device.updates), len(device.binds))
	}
}

func TestProgramSwitchDiffing(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	a := uniformProgram(t, dc, "a")
	b := uniformProgram(t, dc, "b")
	c := buildTestProgram(t, dc, "c",
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}),
		stageWithBindings(metadata.ShaderStageFragment,
			metadata.Binding{Slot: 2, Type: metadata.BindingTypeSampledImage, Count: 1}))

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(a)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("first update returned %v", err)
	}

	// Identical layouts and push usage: the switch costs nothing.
	dc.BindProgram(b)
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("switch to b returned %v", err)
	}
	if len(device.updates) != 0 || len(device.binds) != 0 {
		t.Fatalf("shared-layout switch touched the device")
	}

	// Only the sampler-view kind differs.
	dc.BindProgram(c)
	dc.SetTexture(metadata.ShaderStageFragment, 2, fakeImageView(device), fakeSampler(device), vk.ImageLayoutShaderReadOnlyOptimal)
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("switch to c returned %v", err)
	}
	if len(device.updates) != 1 {
		t.Fatalf("sampler-view switch wrote %d sets, want 1", len(device.updates))
	}
	for _, bind := range device.binds {
		if bind.firstSet == 1 {
			t.Fatalf("uniform set rebound despite identical layout")
		}
	}
	if device.binds[len(device.binds)-1].firstSet != 2 {
		t.Fatalf("sampler-view set not bound at index 2")
	}
}

func TestPushHardwarePath(t *testing.T) {
	device := newFakeDescriptorDevice()
	device.pushSupported = true
	dc := newTestContext(t, device, 100, true, nil)

	pd := buildTestProgram(t, dc, "hwpush",
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 0, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 1},
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}))

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(pd)
	pushBuf := fakeBuffer(device)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 0, pushBuf, 0, 64)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)

	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("UpdateAndBind returned %v", err)
	}

	if len(device.pushes) != 1 {
		t.Fatalf("hardware pushes: have %d, want 1", len(device.pushes))
	}
	push := device.pushes[0]
	if push.setIndex != 0 || len(push.writes) != 1 {
		t.Fatalf("push call shape: set %d, %d writes", push.setIndex, len(push.writes))
	}
	if push.writes[0].DescriptorType != vk.DescriptorTypeUniformBuffer {
		t.Fatalf("push write type: %v", push.writes[0].DescriptorType)
	}
	if push.writes[0].PBufferInfo[0].Buffer != pushBuf {
		t.Fatalf("push write does not read the dynamic window")
	}
	if batch.Descriptors.PushPools[metadata.PipelineKindGraphics] != nil {
		t.Fatalf("hardware path created an emulated push pool")
	}
	// No dummy bind at slot 0 on the push path.
	for _, bind := range device.binds {
		if bind.firstSet == 0 {
			t.Fatalf("slot 0 bound a set despite hardware push")
		}
	}
}

func TestPushEmulatedPath(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	pd := buildTestProgram(t, dc, "empush",
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 0, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 1}))

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(pd)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 0, fakeBuffer(device), 0, 64)

	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("UpdateAndBind returned %v", err)
	}

	pool := batch.Descriptors.PushPools[metadata.PipelineKindGraphics]
	if pool == nil {
		t.Fatalf("emulated push pool was not created")
	}
	if len(device.pushes) != 0 {
		t.Fatalf("emulated path still pushed natively")
	}
	if len(device.updates) != 1 {
		t.Fatalf("push set updates: have %d, want 1", len(device.updates))
	}
	if len(device.binds) != 1 || device.binds[0].firstSet != 0 {
		t.Fatalf("push set not bound at slot 0")
	}
	if device.binds[0].sets[0] == dc.dummySet {
		t.Fatalf("emulated push bound the dummy set")
	}
}

func TestStallRotatesToReclaimedSession(t *testing.T) {
	device := newFakeDescriptorDevice()

	var reclaimed int
	var next *VulkanBatch
	reclaim := func() (*VulkanBatch, error) {
		reclaimed++
		next = newTestBatch(device)
		return next, nil
	}

	dc := newTestContext(t, device, 4, true, reclaim)
	pd := uniformProgram(t, dc, "churn")

	first := newTestBatch(device)
	dc.SetCurrentBatch(first)
	dc.BindProgram(pd)

	for i := 0; i < 4; i++ {
		dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
		if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
			t.Fatalf("update %d returned %v", i+1, err)
		}
	}
	if reclaimed != 0 {
		t.Fatalf("reclaimed %d sessions before saturation", reclaimed)
	}

	// The fifth update saturates the 4-set pool: exactly one blocking
	// reclamation, then the update completes on the fresh session.
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("saturated update returned %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclamations: have %d, want 1", reclaimed)
	}
	if dc.CurrentBatch() != next {
		t.Fatalf("context did not rotate to the reclaimed session")
	}
	if next.Descriptors.LastPrograms[metadata.PipelineKindGraphics] != pd {
		t.Fatalf("rotated session lost last-bound tracking")
	}
	if len(device.binds) == 0 {
		t.Fatalf("no binds recorded after rotation")
	}
}

func TestRotationRecomputesFullUsage(t *testing.T) {
	device := newFakeDescriptorDevice()

	var next *VulkanBatch
	reclaim := func() (*VulkanBatch, error) {
		next = newTestBatch(device)
		return next, nil
	}

	dc := newTestContext(t, device, 4, true, reclaim)
	pd := buildTestProgram(t, dc, "wide",
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}),
		stageWithBindings(metadata.ShaderStageFragment,
			metadata.Binding{Slot: 0, Type: metadata.BindingTypeStorageBuffer, Count: 1}))

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(pd)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	dc.SetStorageBuffer(metadata.ShaderStageFragment, 0, fakeBuffer(device), 0, 64)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("first update returned %v", err)
	}

	// Drain the storage pool so only that kind saturates next time.
	storageKey := pd.LayoutKeys[DescriptorSetKindStorageBuffer]
	storagePool := batch.Descriptors.Pools[DescriptorSetKindStorageBuffer][storageKey.ID]
	for storagePool.SetIdx < storagePool.Capacity {
		if _, err := storagePool.AcquireSet(device); err != nil {
			t.Fatalf("drain acquire returned %v", err)
		}
	}

	// Only storage is dirty; the uniform set is clean.
	dc.SetStorageBuffer(metadata.ShaderStageFragment, 0, fakeBuffer(device), 0, 64)
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("saturated update returned %v", err)
	}

	// The rotation restarted population from full usage: both kinds were
	// freshly written in the new session, not just the dirty one.
	if len(device.updates) != 2 {
		t.Fatalf("post-rotation updates: have %d, want 2", len(device.updates))
	}
	bound := map[uint32]bool{}
	for _, bind := range device.binds {
		bound[bind.firstSet] = true
	}
	if !bound[0] || !bound[1] || !bound[3] {
		t.Fatalf("post-rotation binds missed a slot: %v", bound)
	}
	if dc.CurrentBatch() != next {
		t.Fatalf("context did not rotate")
	}
}

// drainUniformPool spends every set in the session's uniform pool so the
// next acquisition saturates.
func drainUniformPool(t *testing.T, device *fakeDescriptorDevice, b *VulkanBatch, pd *VulkanProgramDescriptors, capacity uint32) {
	t.Helper()
	pool, err := b.Descriptors.AcquirePool(device, DescriptorSetKindUniform,
		pd.LayoutKeys[DescriptorSetKindUniform], pd.PoolSizes[DescriptorSetKindUniform], capacity)
	if err != nil {
		t.Fatalf("drain pool setup returned %v", err)
	}
	for pool.SetIdx < pool.Capacity {
		if _, err := pool.AcquireSet(device); err != nil {
			t.Fatalf("drain acquire returned %v", err)
		}
	}
}

func TestFailureAfterRotationPreservesFullUsage(t *testing.T) {
	device := newFakeDescriptorDevice()

	reclaim := func() (*VulkanBatch, error) {
		// The rotated session arrives while the device is refusing
		// allocations, so the first pass over it fails.
		device.allocErr = errors.New("transient allocation failure")
		return newTestBatch(device), nil
	}

	dc := newTestContext(t, device, 4, true, reclaim)
	pd := buildTestProgram(t, dc, "relapse",
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}),
		stageWithBindings(metadata.ShaderStageFragment,
			metadata.Binding{Slot: 0, Type: metadata.BindingTypeStorageBuffer, Count: 1}))

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(pd)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	dc.SetStorageBuffer(metadata.ShaderStageFragment, 0, fakeBuffer(device), 0, 64)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("first update returned %v", err)
	}

	// Drain the storage pool so only that kind saturates next time.
	storageKey := pd.LayoutKeys[DescriptorSetKindStorageBuffer]
	storagePool := batch.Descriptors.Pools[DescriptorSetKindStorageBuffer][storageKey.ID]
	for storagePool.SetIdx < storagePool.Capacity {
		if _, err := storagePool.AcquireSet(device); err != nil {
			t.Fatalf("drain acquire returned %v", err)
		}
	}

	dc.SetStorageBuffer(metadata.ShaderStageFragment, 0, fakeBuffer(device), 0, 64)
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err == nil {
		t.Fatalf("update succeeded despite the post-rotation fault")
	}
	if len(device.binds) != 0 {
		t.Fatalf("failed update still bound %d sets", len(device.binds))
	}

	// The rotated session has nothing bound yet, so the full usage mask
	// must survive the failure, not just the storage bit that started it.
	if have := dc.changedSets[metadata.PipelineKindGraphics]; have != pd.UsageMask {
		t.Fatalf("dirty mask after failed rotation: have 0x%x, want 0x%x", have, pd.UsageMask)
	}
	if !dc.pushChanged[metadata.PipelineKindGraphics] {
		t.Fatalf("push dirty was lost in the rotated session")
	}

	// Clearing the fault must rebind every kind in the new session.
	device.allocErr = nil
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("retry returned %v", err)
	}
	bound := map[uint32]bool{}
	for _, bind := range device.binds {
		bound[bind.firstSet] = true
	}
	if !bound[1] {
		t.Fatalf("uniform set never rebound in the rotated session; binds: %v", bound)
	}
	if !bound[0] || !bound[3] {
		t.Fatalf("retry missed a slot: %v", bound)
	}
	if dc.changedSets[metadata.PipelineKindGraphics] != 0 || dc.pushChanged[metadata.PipelineKindGraphics] {
		t.Fatalf("dirty state survived the successful retry")
	}
}

func TestRotationStormEventuallySucceeds(t *testing.T) {
	device := newFakeDescriptorDevice()

	var pd *VulkanProgramDescriptors
	reclaims := 0
	var last *VulkanBatch
	reclaim := func() (*VulkanBatch, error) {
		reclaims++
		b := newTestBatch(device)
		// The first reclaimed sessions come back already spent, forcing
		// the population loop to stall and rotate again.
		if reclaims < 3 {
			drainUniformPool(t, device, b, pd, 4)
		}
		last = b
		return b, nil
	}

	dc := newTestContext(t, device, 4, true, reclaim)
	pd = uniformProgram(t, dc, "storm")

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(pd)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("first update returned %v", err)
	}
	drainUniformPool(t, device, batch, pd, 4)

	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("stormy update returned %v", err)
	}
	if reclaims != 3 {
		t.Fatalf("reclamations: have %d, want 3", reclaims)
	}
	if dc.CurrentBatch() != last {
		t.Fatalf("context did not land on the healthy session")
	}
	bound := map[uint32]bool{}
	for _, bind := range device.binds {
		bound[bind.firstSet] = true
	}
	if !bound[0] || !bound[1] {
		t.Fatalf("post-storm binds missed a slot: %v", bound)
	}
	if dc.changedSets[metadata.PipelineKindGraphics] != 0 || dc.pushChanged[metadata.PipelineKindGraphics] {
		t.Fatalf("dirty state survived the successful update")
	}
}

func TestRotationStormExhaustsAttempts(t *testing.T) {
	device := newFakeDescriptorDevice()

	var pd *VulkanProgramDescriptors
	reclaims := 0
	reclaim := func() (*VulkanBatch, error) {
		reclaims++
		b := newTestBatch(device)
		drainUniformPool(t, device, b, pd, 4)
		return b, nil
	}

	dc := newTestContext(t, device, 4, true, reclaim)
	pd = uniformProgram(t, dc, "thrash")

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(pd)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("first update returned %v", err)
	}
	drainUniformPool(t, device, batch, pd, 4)

	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	resetDeviceTracking(device)
	err := dc.UpdateAndBind(metadata.PipelineKindGraphics)
	if !errors.Is(err, core.ErrDescriptorsExhausted) {
		t.Fatalf("have %v, want ErrDescriptorsExhausted", err)
	}
	if reclaims != VULKAN_MAX_POPULATE_ATTEMPTS {
		t.Fatalf("reclamations: have %d, want %d", reclaims, VULKAN_MAX_POPULATE_ATTEMPTS)
	}
	if len(device.binds) != 0 {
		t.Fatalf("exhausted update still bound %d sets", len(device.binds))
	}
	// The last rotated session still owes a full rewrite.
	if have := dc.changedSets[metadata.PipelineKindGraphics]; have != pd.UsageMask {
		t.Fatalf("dirty mask after exhaustion: have 0x%x, want 0x%x", have, pd.UsageMask)
	}
}

func TestFailedPopulationPreservesDirty(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)
	pd := uniformProgram(t, dc, "doomed")

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(pd)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)

	device.allocErr = errors.New("device lost its marbles")
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err == nil {
		t.Fatalf("update succeeded despite allocation failure")
	}
	if len(device.binds) != 0 {
		t.Fatalf("failed population still bound %d sets", len(device.binds))
	}
	if dc.changedSets[metadata.PipelineKindGraphics]&(1<<uint(DescriptorSetKindUniform)) == 0 {
		t.Fatalf("dirty bits were lost on failure")
	}

	// Clearing the fault lets the same dirty state drain normally.
	device.allocErr = nil
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("retry returned %v", err)
	}
	if dc.changedSets[metadata.PipelineKindGraphics] != 0 {
		t.Fatalf("dirty state survived the successful retry")
	}
}

func TestSaturationWithoutReclaimFails(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 4, true, nil)
	pd := uniformProgram(t, dc, "stuck")

	dc.SetCurrentBatch(newTestBatch(device))
	dc.BindProgram(pd)
	for i := 0; i < 4; i++ {
		dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
		if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
			t.Fatalf("update %d returned %v", i+1, err)
		}
	}
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	err := dc.UpdateAndBind(metadata.PipelineKindGraphics)
	if !errors.Is(err, core.ErrDescriptorsExhausted) {
		t.Fatalf("have %v, want ErrDescriptorsExhausted", err)
	}
}

func TestTemplatesDisabledFallbackMatchesPlans(t *testing.T) {
	build := func(templates bool) [][]vk.WriteDescriptorSet {
		device := newFakeDescriptorDevice()
		dc := newTestContext(t, device, 100, templates, nil)
		pd := buildTestProgram(t, dc, "fallback",
			stageWithBindings(metadata.ShaderStageVertex,
				metadata.Binding{Slot: 2, Type: metadata.BindingTypeUniformBuffer, Count: 2}),
			stageWithBindings(metadata.ShaderStageFragment,
				metadata.Binding{Slot: 1, Type: metadata.BindingTypeSampledImage, Count: 3}))

		dc.SetCurrentBatch(newTestBatch(device))
		dc.BindProgram(pd)
		dc.SetUniformBuffer(metadata.ShaderStageVertex, 2, fakeBuffer(device), 0, 64)
		dc.SetUniformBuffer(metadata.ShaderStageVertex, 3, fakeBuffer(device), 0, 64)
		dc.SetTexture(metadata.ShaderStageFragment, 1, fakeImageView(device), fakeSampler(device), vk.ImageLayoutShaderReadOnlyOptimal)

		resetDeviceTracking(device)
		if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
			t.Fatalf("templates=%t update returned %v", templates, err)
		}
		return device.updates
	}

	planned := build(true)
	assembled := build(false)

	if len(planned) != len(assembled) {
		t.Fatalf("update call counts differ: %d vs %d", len(planned), len(assembled))
	}
	for i := range planned {
		if len(planned[i]) != len(assembled[i]) {
			t.Fatalf("update %d write counts differ: %d vs %d", i, len(planned[i]), len(assembled[i]))
		}
		for j := range planned[i] {
			p, a := planned[i][j], assembled[i][j]
			if p.DstBinding != a.DstBinding || p.DstArrayElement != a.DstArrayElement ||
				p.DescriptorCount != a.DescriptorCount || p.DescriptorType != a.DescriptorType {
				t.Fatalf("update %d write %d differs: %+v vs %+v", i, j, p, a)
			}
		}
	}
}

func TestComputeStateIsolated(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	gfx := uniformProgram(t, dc, "gfx")
	comp := buildTestProgram(t, dc, "comp",
		stageWithBindings(metadata.ShaderStageCompute,
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeStorageBuffer, Count: 1}))

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(gfx)
	dc.BindProgram(comp)

	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	dc.SetStorageBuffer(metadata.ShaderStageCompute, 1, fakeBuffer(device), 0, 64)

	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindCompute); err != nil {
		t.Fatalf("compute update returned %v", err)
	}
	for _, bind := range device.binds {
		if bind.bindPoint != vk.PipelineBindPointCompute {
			t.Fatalf("compute update bound at %v", bind.bindPoint)
		}
	}
	if dc.changedSets[metadata.PipelineKindGraphics]&(1<<uint(DescriptorSetKindUniform)) == 0 {
		t.Fatalf("graphics dirty state consumed by a compute update")
	}

	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("graphics update returned %v", err)
	}
	for _, bind := range device.binds {
		if bind.bindPoint != vk.PipelineBindPointGraphics {
			t.Fatalf("graphics update bound at %v", bind.bindPoint)
		}
	}
}

func TestUpdateWithoutProgramOrSession(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); !errors.Is(err, core.ErrInvalidProgram) {
		t.Fatalf("no program: have %v, want ErrInvalidProgram", err)
	}

	pd := uniformProgram(t, dc, "orphan")
	dc.BindProgram(pd)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err == nil {
		t.Fatalf("update without a session succeeded")
	}
}
