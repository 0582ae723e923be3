package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

func TestBatchPoolSharedByLayoutKey(t *testing.T) {
	device := newFakeDescriptorDevice()
	cache := NewVulkanDescriptorLayoutCache(device)
	defer cache.Destroy()

	key, err := cache.GetOrCreate([]vk.DescriptorSetLayoutBinding{uniformLayoutBinding(1, 1, vk.ShaderStageVertexBit)}, false)
	if err != nil {
		t.Fatalf("GetOrCreate returned %v", err)
	}
	sizes := []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}}

	bds := NewVulkanBatchDescriptorState()
	defer bds.Destroy(device)

	first, err := bds.AcquirePool(device, DescriptorSetKindUniform, key, sizes, 100)
	if err != nil {
		t.Fatalf("AcquirePool returned %v", err)
	}
	second, err := bds.AcquirePool(device, DescriptorSetKindUniform, key, sizes, 100)
	if err != nil {
		t.Fatalf("second AcquirePool returned %v", err)
	}
	if first != second {
		t.Fatalf("same layout key produced two pools in one session")
	}
	if device.poolsCreated != 1 {
		t.Fatalf("native pools created: have %d, want 1", device.poolsCreated)
	}

	// A different key of the same kind gets its own pool.
	other, err := cache.GetOrCreate([]vk.DescriptorSetLayoutBinding{uniformLayoutBinding(2, 1, vk.ShaderStageVertexBit)}, false)
	if err != nil {
		t.Fatalf("GetOrCreate returned %v", err)
	}
	third, err := bds.AcquirePool(device, DescriptorSetKindUniform, other, sizes, 100)
	if err != nil {
		t.Fatalf("third AcquirePool returned %v", err)
	}
	if third == first {
		t.Fatalf("distinct layout keys shared a pool")
	}
}

func TestBatchResetRetainsLivePools(t *testing.T) {
	device := newFakeDescriptorDevice()
	cache := NewVulkanDescriptorLayoutCache(device)
	defer cache.Destroy()

	live, err := cache.GetOrCreate([]vk.DescriptorSetLayoutBinding{uniformLayoutBinding(1, 1, vk.ShaderStageVertexBit)}, false)
	if err != nil {
		t.Fatalf("GetOrCreate returned %v", err)
	}
	orphan, err := cache.GetOrCreate([]vk.DescriptorSetLayoutBinding{uniformLayoutBinding(2, 1, vk.ShaderStageVertexBit)}, false)
	if err != nil {
		t.Fatalf("GetOrCreate returned %v", err)
	}
	sizes := []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}}

	bds := NewVulkanBatchDescriptorState()
	livePool, err := bds.AcquirePool(device, DescriptorSetKindUniform, live, sizes, 100)
	if err != nil {
		t.Fatalf("AcquirePool returned %v", err)
	}
	orphanPool, err := bds.AcquirePool(device, DescriptorSetKindUniform, orphan, sizes, 100)
	if err != nil {
		t.Fatalf("AcquirePool returned %v", err)
	}
	if _, err := livePool.AcquireSet(device); err != nil {
		t.Fatalf("AcquireSet returned %v", err)
	}
	if _, err := orphanPool.AcquireSet(device); err != nil {
		t.Fatalf("AcquireSet returned %v", err)
	}

	// The orphan key's last program is gone before the session retires.
	cache.Release(orphan)

	if err := bds.Reset(device, cache); err != nil {
		t.Fatalf("Reset returned %v", err)
	}

	if bds.Pools[DescriptorSetKindUniform][live.ID] != livePool {
		t.Fatalf("live pool was dropped at reset")
	}
	if livePool.SetIdx != 0 || livePool.SetsAlloc != 0 {
		t.Fatalf("live pool was not rewound: idx %d, alloc %d", livePool.SetIdx, livePool.SetsAlloc)
	}
	if _, ok := bds.Pools[DescriptorSetKindUniform][orphan.ID]; ok {
		t.Fatalf("orphaned pool survived reset")
	}
	if device.poolsDestroyed != 1 {
		t.Fatalf("native pools destroyed: have %d, want 1", device.poolsDestroyed)
	}
	if device.poolResets != 1 {
		t.Fatalf("native pool resets: have %d, want 1", device.poolResets)
	}
}

func TestBatchResetRewindsPushPools(t *testing.T) {
	device := newFakeDescriptorDevice()
	cache := NewVulkanDescriptorLayoutCache(device)
	defer cache.Destroy()

	pushKey, err := cache.GetOrCreate([]vk.DescriptorSetLayoutBinding{uniformLayoutBinding(0, 1, vk.ShaderStageVertexBit)}, true)
	if err != nil {
		t.Fatalf("GetOrCreate returned %v", err)
	}
	sizes := []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}}

	bds := NewVulkanBatchDescriptorState()
	defer bds.Destroy(device)

	pool, err := bds.AcquirePushPool(device, metadata.PipelineKindGraphics, pushKey, sizes, 100)
	if err != nil {
		t.Fatalf("AcquirePushPool returned %v", err)
	}
	if again, _ := bds.AcquirePushPool(device, metadata.PipelineKindGraphics, pushKey, sizes, 100); again != pool {
		t.Fatalf("push pool not cached per pipeline kind")
	}
	if _, err := pool.AcquireSet(device); err != nil {
		t.Fatalf("AcquireSet returned %v", err)
	}

	if err := bds.Reset(device, cache); err != nil {
		t.Fatalf("Reset returned %v", err)
	}
	if bds.PushPools[metadata.PipelineKindGraphics] != pool {
		t.Fatalf("push pool was dropped at reset")
	}
	if pool.SetIdx != 0 || pool.SetsAlloc != 0 {
		t.Fatalf("push pool was not rewound")
	}
	if device.poolsDestroyed != 0 {
		t.Fatalf("push pool destroyed at reset")
	}
}

func TestBatchResetClearsBindTracking(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)
	pd := uniformProgram(t, dc, "tracked")

	batch := newTestBatch(device)
	dc.SetCurrentBatch(batch)
	dc.BindProgram(pd)
	dc.SetUniformBuffer(metadata.ShaderStageVertex, 1, fakeBuffer(device), 0, 64)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("UpdateAndBind returned %v", err)
	}
	if batch.Descriptors.LastPrograms[metadata.PipelineKindGraphics] != pd {
		t.Fatalf("bind tracking not recorded")
	}

	if err := batch.ResetDescriptors(device, dc.layoutCache); err != nil {
		t.Fatalf("ResetDescriptors returned %v", err)
	}
	if batch.Descriptors.LastPrograms[metadata.PipelineKindGraphics] != nil {
		t.Fatalf("bind tracking survived session retirement")
	}
	if batch.InFlight {
		t.Fatalf("retired session still marked in flight")
	}

	// A retired session must re-record everything on next use.
	dc.SetCurrentBatch(batch)
	resetDeviceTracking(device)
	if err := dc.UpdateAndBind(metadata.PipelineKindGraphics); err != nil {
		t.Fatalf("post-retire UpdateAndBind returned %v", err)
	}
	if len(device.updates) == 0 || len(device.binds) == 0 {
		t.Fatalf("retired session reuse skipped population")
	}
}

func TestBatchDestroyReleasesPools(t *testing.T) {
	device := newFakeDescriptorDevice()
	cache := NewVulkanDescriptorLayoutCache(device)
	defer cache.Destroy()

	key, err := cache.GetOrCreate([]vk.DescriptorSetLayoutBinding{uniformLayoutBinding(1, 1, vk.ShaderStageVertexBit)}, false)
	if err != nil {
		t.Fatalf("GetOrCreate returned %v", err)
	}
	sizes := []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}}

	bds := NewVulkanBatchDescriptorState()
	if _, err := bds.AcquirePool(device, DescriptorSetKindUniform, key, sizes, 100); err != nil {
		t.Fatalf("AcquirePool returned %v", err)
	}
	if _, err := bds.AcquirePushPool(device, metadata.PipelineKindGraphics, key, sizes, 100); err != nil {
		t.Fatalf("AcquirePushPool returned %v", err)
	}

	bds.Destroy(device)
	if device.poolsDestroyed != 2 {
		t.Fatalf("native pools destroyed: have %d, want 2", device.poolsDestroyed)
	}
	if len(bds.Pools[DescriptorSetKindUniform]) != 0 {
		t.Fatalf("pool map not cleared on destroy")
	}
	if bds.PushPools[metadata.PipelineKindGraphics] != nil {
		t.Fatalf("push pool survived destroy")
	}
}

func TestBatchRetirementFiresEvent(t *testing.T) {
	device := newFakeDescriptorDevice()
	cache := NewVulkanDescriptorLayoutCache(device)
	defer cache.Destroy()

	core.EventInitialize()

	var retired []string
	listener := func(code core.SystemEventCode, sender, listenerInst interface{}, data core.EventContext) bool {
		retired = append(retired, data.Data.C[0])
		return true
	}
	if !core.EventRegister(core.EVENT_CODE_SESSION_RETIRED, nil, listener) {
		t.Fatalf("EventRegister failed")
	}
	defer core.EventUnregister(core.EVENT_CODE_SESSION_RETIRED, nil, listener)

	batch := newTestBatch(device)
	batch.InFlight = true
	if err := batch.ResetDescriptors(device, cache); err != nil {
		t.Fatalf("ResetDescriptors returned %v", err)
	}
	if len(retired) != 1 || retired[0] != batch.ID.String() {
		t.Fatalf("retirement event not observed: %v", retired)
	}
}
