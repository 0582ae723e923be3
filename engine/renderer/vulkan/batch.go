package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/google/uuid"
	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

/**
 * @brief Descriptor state owned by one recording session: the pool cache
 * keyed by layout identity per set kind, the emulated push pools, and the
 * last-bound tracking that drives program-switch diffing. Everything here
 * is recycled wholesale when the session's fence retires.
 */
type VulkanBatchDescriptorState struct {
	/** @brief Pools keyed by layout-key identity, one map per set kind. */
	Pools [DescriptorSetKindCount]map[string]*VulkanDescriptorPool
	/** @brief Emulated push pools, created on first push use per pipeline kind. */
	PushPools [metadata.PipelineKindCount]*VulkanDescriptorPool

	/** @brief Program whose descriptors were updated last, per pipeline kind. */
	LastPrograms [metadata.PipelineKindCount]*VulkanProgramDescriptors
	/** @brief Set layouts seen at the last update, per pipeline and set kind. */
	LastLayouts [metadata.PipelineKindCount][DescriptorSetKindCount]vk.DescriptorSetLayout
	/** @brief Push stage mask seen at the last update, per pipeline kind. */
	LastPushStages [metadata.PipelineKindCount]uint32
}

func NewVulkanBatchDescriptorState() *VulkanBatchDescriptorState {
	bds := &VulkanBatchDescriptorState{}
	for kind := range bds.Pools {
		bds.Pools[kind] = make(map[string]*VulkanDescriptorPool)
	}
	return bds
}

// AcquirePool returns the session pool serving the given layout key,
// creating it on first use from the owning program's size estimates.
// Programs sharing a layout key share the pool.
func (bds *VulkanBatchDescriptorState) AcquirePool(device descriptorDevice, kind VulkanDescriptorSetKind, key *VulkanDescriptorLayoutKey, sizes []vk.DescriptorPoolSize, capacity uint32) (*VulkanDescriptorPool, error) {
	if pool, ok := bds.Pools[kind][key.ID]; ok {
		return pool, nil
	}
	pool, err := NewVulkanDescriptorPool(device, key, sizes, capacity)
	if err != nil {
		return nil, err
	}
	bds.Pools[kind][key.ID] = pool
	return pool, nil
}

// AcquirePushPool returns the session's emulated push pool for the given
// pipeline kind, creating it on first use.
func (bds *VulkanBatchDescriptorState) AcquirePushPool(device descriptorDevice, pipe metadata.PipelineKind, key *VulkanDescriptorLayoutKey, sizes []vk.DescriptorPoolSize, capacity uint32) (*VulkanDescriptorPool, error) {
	if bds.PushPools[pipe] != nil {
		return bds.PushPools[pipe], nil
	}
	pool, err := NewVulkanDescriptorPool(device, key, sizes, capacity)
	if err != nil {
		return nil, err
	}
	bds.PushPools[pipe] = pool
	return pool, nil
}

// Reset rewinds the session's descriptor state once its fence has
// retired. Pools whose layout key is still held by a live program stay
// and rewind their cursor; orphaned pools are destroyed. Push pools are
// context-owned layouts, so they always stay. Last-bound tracking clears
// so the next update in this session dirties full usage.
func (bds *VulkanBatchDescriptorState) Reset(device descriptorDevice, cache *VulkanDescriptorLayoutCache) error {
	var firstErr error
	for kind := range bds.Pools {
		for id, pool := range bds.Pools[kind] {
			if cache.UseCount(pool.Key) > 0 {
				if err := pool.Reset(device); err != nil && firstErr == nil {
					firstErr = err
				}
				continue
			}
			pool.Destroy(device)
			delete(bds.Pools[kind], id)
		}
	}
	for pipe := range bds.PushPools {
		if bds.PushPools[pipe] == nil {
			continue
		}
		if err := bds.PushPools[pipe].Reset(device); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for pipe := range bds.LastPrograms {
		bds.LastPrograms[pipe] = nil
		bds.LastPushStages[pipe] = 0
		for kind := range bds.LastLayouts[pipe] {
			bds.LastLayouts[pipe][kind] = nil
		}
	}
	return firstErr
}

// Destroy releases every pool the session ever created.
func (bds *VulkanBatchDescriptorState) Destroy(device descriptorDevice) {
	for kind := range bds.Pools {
		for id, pool := range bds.Pools[kind] {
			pool.Destroy(device)
			delete(bds.Pools[kind], id)
		}
	}
	for pipe := range bds.PushPools {
		if bds.PushPools[pipe] != nil {
			bds.PushPools[pipe].Destroy(device)
			bds.PushPools[pipe] = nil
		}
		bds.LastPrograms[pipe] = nil
	}
}

/**
 * @brief One recording session: the command buffer being filled, the
 * fence that reports its retirement, and the descriptor state that lives
 * and dies with it. The UUID correlates log lines across rotations.
 */
type VulkanBatch struct {
	ID            uuid.UUID
	CommandBuffer *VulkanCommandBuffer
	Fence         *VulkanFence
	Descriptors   *VulkanBatchDescriptorState
	/** @brief True between submit and fence retirement. */
	InFlight bool
}

func NewVulkanBatch(commandBuffer *VulkanCommandBuffer, fence *VulkanFence) *VulkanBatch {
	return &VulkanBatch{
		ID:            uuid.New(),
		CommandBuffer: commandBuffer,
		Fence:         fence,
		Descriptors:   NewVulkanBatchDescriptorState(),
	}
}

// ResetDescriptors recycles the session's descriptor state for reuse.
// Callers must have observed the session's fence first.
func (b *VulkanBatch) ResetDescriptors(device descriptorDevice, cache *VulkanDescriptorLayoutCache) error {
	if err := b.Descriptors.Reset(device, cache); err != nil {
		core.LogError("batch %s: descriptor reset failed: %s", b.ID, err.Error())
		return err
	}
	b.InFlight = false
	var ec core.EventContext
	ec.Data.C[0] = b.ID.String()
	core.EventFire(core.EVENT_CODE_SESSION_RETIRED, b, ec)
	return nil
}
