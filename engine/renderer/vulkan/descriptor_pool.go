package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vitro/engine/core"
)

/**
 * @brief A descriptor pool serving one layout key within one recording
 * session. The native pool is sized to full capacity at creation; set
 * allocation is the amortized part and grows geometrically. Pools are
 * never freed set-by-set, only reset wholesale when the session retires.
 */
type VulkanDescriptorPool struct {
	Handle vk.DescriptorPool
	/** @brief The layout every set in this pool is allocated against. */
	Key *VulkanDescriptorLayoutKey

	Sets      []vk.DescriptorSet
	SetIdx    uint32
	SetsAlloc uint32
	Capacity  uint32
}

// nextPoolAllocation is the growth schedule for allocated sets: 0 grows to
// 10, 10 to 100, then capacity bounds it.
func nextPoolAllocation(setsAlloc, capacity uint32) uint32 {
	target := setsAlloc * VULKAN_POOL_GROWTH_BASE
	if target < VULKAN_POOL_GROWTH_BASE {
		target = VULKAN_POOL_GROWTH_BASE
	}
	if target > capacity {
		target = capacity
	}
	return target
}

/**
 * @brief Creates a pool for one layout key. sizes holds the descriptor
 * counts one set consumes; the native pool is provisioned for capacity
 * sets of that shape up front.
 */
func NewVulkanDescriptorPool(device descriptorDevice, key *VulkanDescriptorLayoutKey, sizes []vk.DescriptorPoolSize, capacity uint32) (*VulkanDescriptorPool, error) {
	if capacity == 0 {
		capacity = VULKAN_DEFAULT_POOL_SET_CAPACITY
	}
	scaled := make([]vk.DescriptorPoolSize, len(sizes))
	for i := range sizes {
		scaled[i] = vk.DescriptorPoolSize{
			Type:            sizes[i].Type,
			DescriptorCount: sizes[i].DescriptorCount * capacity,
		}
	}
	handle, err := device.CreatePool(scaled, capacity)
	if err != nil {
		return nil, err
	}
	core.MetricsDescriptors().PoolsCreated.Add(1)
	return &VulkanDescriptorPool{
		Handle:   handle,
		Key:      key,
		Sets:     make([]vk.DescriptorSet, 0, VULKAN_POOL_GROWTH_BASE),
		Capacity: capacity,
	}, nil
}

// AcquireSet hands out the next unused set, allocating the next growth
// bucket when the current one is spent. A pool that has already allocated
// its full capacity reports core.ErrPoolSaturated; the caller decides
// whether to stall for a retired session.
func (p *VulkanDescriptorPool) AcquireSet(device descriptorDevice) (vk.DescriptorSet, error) {
	if p.SetIdx < p.SetsAlloc {
		set := p.Sets[p.SetIdx]
		p.SetIdx++
		return set, nil
	}
	if p.SetsAlloc >= p.Capacity {
		return nil, fmt.Errorf("pool for layout %q: %w", p.Key.ID, core.ErrPoolSaturated)
	}
	target := nextPoolAllocation(p.SetsAlloc, p.Capacity)
	bucket := target - p.SetsAlloc
	grown := make([]vk.DescriptorSet, bucket)
	if err := device.AllocateSets(p.Handle, p.Key.Layout, grown); err != nil {
		return nil, err
	}
	p.Sets = append(p.Sets, grown...)
	p.SetsAlloc = target
	core.MetricsDescriptors().SetsAllocated.Add(uint64(bucket))

	set := p.Sets[p.SetIdx]
	p.SetIdx++
	return set, nil
}

// Reset recycles every set back to the native pool. Handles allocated
// before the reset are dead, so growth restarts from zero.
func (p *VulkanDescriptorPool) Reset(device descriptorDevice) error {
	if p.SetIdx == 0 && p.SetsAlloc == 0 {
		return nil
	}
	if err := device.ResetPool(p.Handle); err != nil {
		return err
	}
	p.SetIdx = 0
	p.SetsAlloc = 0
	p.Sets = p.Sets[:0]
	return nil
}

// Destroy releases the native pool and every set with it.
func (p *VulkanDescriptorPool) Destroy(device descriptorDevice) {
	if p.Handle != nil {
		device.DestroyPool(p.Handle)
		p.Handle = nil
	}
	p.Sets = nil
	p.SetIdx = 0
	p.SetsAlloc = 0
	core.MetricsDescriptors().PoolsDestroyed.Add(1)
}
