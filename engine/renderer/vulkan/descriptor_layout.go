package vulkan

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	vk "github.com/goki/vulkan"
)

/**
 * @brief A canonical descriptor-set layout identity. Two programs whose
 * reflection produces the same binding list share one key, and therefore
 * one pool per recording session. The use count tracks how many live
 * programs hold the key; it governs pool retention at session reset, not
 * the native layout's lifetime.
 */
type VulkanDescriptorLayoutKey struct {
	/** @brief Canonical identity string derived from the binding list. */
	ID string
	/** @brief The canonical binding list, sorted by binding number. */
	Bindings []vk.DescriptorSetLayoutBinding
	/** @brief The cached native layout. Lives until the cache dies. */
	Layout vk.DescriptorSetLayout

	useCount int32
}

/**
 * @brief Per-context registry of layout keys. Mutations happen at program
 * build/destroy time only; the mutex makes prewarm workers safe alongside
 * the recording thread.
 */
type VulkanDescriptorLayoutCache struct {
	device descriptorDevice

	mutex   sync.Mutex
	entries map[string]*VulkanDescriptorLayoutKey
}

func NewVulkanDescriptorLayoutCache(device descriptorDevice) *VulkanDescriptorLayoutCache {
	return &VulkanDescriptorLayoutCache{
		device:  device,
		entries: make(map[string]*VulkanDescriptorLayoutKey),
	}
}

// layoutIdentity builds the canonical identity string for a binding list.
// The caller passes bindings already sorted by binding number.
func layoutIdentity(bindings []vk.DescriptorSetLayoutBinding, push bool) string {
	var sb strings.Builder
	if push {
		sb.WriteString("push|")
	}
	for i := range bindings {
		fmt.Fprintf(&sb, "%d:%d:%d:%d;",
			bindings[i].Binding,
			bindings[i].DescriptorType,
			bindings[i].DescriptorCount,
			bindings[i].StageFlags)
	}
	return sb.String()
}

// GetOrCreate canonicalizes the binding list, returns the existing key for
// it or creates the native layout once. The returned key's use count is
// already incremented for the caller.
func (c *VulkanDescriptorLayoutCache) GetOrCreate(bindings []vk.DescriptorSetLayoutBinding, push bool) (*VulkanDescriptorLayoutKey, error) {
	canonical := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	copy(canonical, bindings)
	sort.Slice(canonical, func(i, j int) bool { return canonical[i].Binding < canonical[j].Binding })

	id := layoutIdentity(canonical, push)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if key, ok := c.entries[id]; ok {
		key.useCount++
		return key, nil
	}

	layout, err := c.device.CreateSetLayout(canonical, push)
	if err != nil {
		return nil, err
	}
	key := &VulkanDescriptorLayoutKey{
		ID:       id,
		Bindings: canonical,
		Layout:   layout,
		useCount: 1,
	}
	c.entries[id] = key
	return key, nil
}

// Release drops one use of the key. The native layout stays cached so a
// program rebuilt with the same reflection never recreates it.
func (c *VulkanDescriptorLayoutCache) Release(key *VulkanDescriptorLayoutKey) {
	if key == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if key.useCount > 0 {
		key.useCount--
	}
}

// UseCount reports how many live programs hold the key.
func (c *VulkanDescriptorLayoutCache) UseCount(key *VulkanDescriptorLayoutKey) int32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return key.useCount
}

// Len reports how many distinct layouts the cache holds.
func (c *VulkanDescriptorLayoutCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Destroy releases every cached native layout. Sessions and programs must
// already be gone.
func (c *VulkanDescriptorLayoutCache) Destroy() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, key := range c.entries {
		c.device.DestroySetLayout(key.Layout)
		key.Layout = nil
	}
	c.entries = make(map[string]*VulkanDescriptorLayoutKey)
}
