package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vitro/engine/core"
)

/**
 * @brief The native operations the descriptor core consumes. The
 * production implementation wraps the logical device; tests drive the
 * core with a fake so pool growth, dirty tracking and rotation logic run
 * without a live driver.
 */
type descriptorDevice interface {
	CreateSetLayout(bindings []vk.DescriptorSetLayoutBinding, push bool) (vk.DescriptorSetLayout, error)
	DestroySetLayout(layout vk.DescriptorSetLayout)

	CreatePool(sizes []vk.DescriptorPoolSize, maxSets uint32) (vk.DescriptorPool, error)
	ResetPool(pool vk.DescriptorPool) error
	DestroyPool(pool vk.DescriptorPool)

	// AllocateSets fills out with len(out) sets of the given layout from
	// the pool, in one native call.
	AllocateSets(pool vk.DescriptorPool, layout vk.DescriptorSetLayout, out []vk.DescriptorSet) error

	UpdateSets(writes []vk.WriteDescriptorSet)
	BindSets(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet)
	PushSet(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, setIndex uint32, writes []vk.WriteDescriptorSet)

	CreatePipelineLayout(setLayouts []vk.DescriptorSetLayout) (vk.PipelineLayout, error)
	DestroyPipelineLayout(layout vk.PipelineLayout)

	// SupportsPushDescriptors reports whether PushSet may be used. When
	// false the emulated push pool path runs instead.
	SupportsPushDescriptors() bool
}

/**
 * @brief Production descriptorDevice backed by the logical device.
 */
type vulkanDescriptorDevice struct {
	device        *VulkanDevice
	allocator     *vk.AllocationCallbacks
	pushSupported bool
}

func newVulkanDescriptorDevice(device *VulkanDevice, allocator *vk.AllocationCallbacks, pushSupported bool) *vulkanDescriptorDevice {
	return &vulkanDescriptorDevice{
		device:        device,
		allocator:     allocator,
		pushSupported: pushSupported,
	}
}

func (d *vulkanDescriptorDevice) CreateSetLayout(bindings []vk.DescriptorSetLayoutBinding, push bool) (vk.DescriptorSetLayout, error) {
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
	}
	if len(bindings) > 0 {
		info.PBindings = bindings
	}
	if push && d.pushSupported {
		info.Flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreatePushDescriptorBit)
	}

	var layout vk.DescriptorSetLayout
	if result := vk.CreateDescriptorSetLayout(d.device.LogicalDevice, &info, d.allocator, &layout); !VulkanResultIsSuccess(result) {
		err := fmt.Errorf("failed to create descriptor set layout with result %s", VulkanResultString(result, true))
		core.LogError(err.Error())
		return nil, err
	}
	return layout, nil
}

func (d *vulkanDescriptorDevice) DestroySetLayout(layout vk.DescriptorSetLayout) {
	if layout != nil {
		vk.DestroyDescriptorSetLayout(d.device.LogicalDevice, layout, d.allocator)
	}
}

func (d *vulkanDescriptorDevice) CreatePool(sizes []vk.DescriptorPoolSize, maxSets uint32) (vk.DescriptorPool, error) {
	// No per-set free flag: pools recycle by whole-pool reset only.
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}

	var pool vk.DescriptorPool
	if result := vk.CreateDescriptorPool(d.device.LogicalDevice, &info, d.allocator, &pool); !VulkanResultIsSuccess(result) {
		err := fmt.Errorf("failed to create descriptor pool with result %s", VulkanResultString(result, true))
		core.LogError(err.Error())
		return nil, err
	}
	return pool, nil
}

func (d *vulkanDescriptorDevice) ResetPool(pool vk.DescriptorPool) error {
	if result := vk.ResetDescriptorPool(d.device.LogicalDevice, pool, vk.DescriptorPoolResetFlags(0)); !VulkanResultIsSuccess(result) {
		err := fmt.Errorf("failed to reset descriptor pool with result %s", VulkanResultString(result, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (d *vulkanDescriptorDevice) DestroyPool(pool vk.DescriptorPool) {
	if pool != nil {
		vk.DestroyDescriptorPool(d.device.LogicalDevice, pool, d.allocator)
	}
}

func (d *vulkanDescriptorDevice) AllocateSets(pool vk.DescriptorPool, layout vk.DescriptorSetLayout, out []vk.DescriptorSet) error {
	if len(out) == 0 {
		return nil
	}
	layouts := make([]vk.DescriptorSetLayout, len(out))
	for i := range layouts {
		layouts[i] = layout
	}
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: uint32(len(out)),
		PSetLayouts:        layouts,
	}
	if result := vk.AllocateDescriptorSets(d.device.LogicalDevice, &info, &out[0]); !VulkanResultIsSuccess(result) {
		err := fmt.Errorf("failed to allocate %d descriptor sets with result %s", len(out), VulkanResultString(result, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (d *vulkanDescriptorDevice) UpdateSets(writes []vk.WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
}

func (d *vulkanDescriptorDevice) BindSets(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet) {
	vk.CmdBindDescriptorSets(cmd, bindPoint, layout, firstSet, uint32(len(sets)), sets, 0, nil)
}

func (d *vulkanDescriptorDevice) PushSet(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, setIndex uint32, writes []vk.WriteDescriptorSet) {
	vk.CmdPushDescriptorSet(cmd, bindPoint, layout, setIndex, uint32(len(writes)), writes)
}

func (d *vulkanDescriptorDevice) CreatePipelineLayout(setLayouts []vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
	}
	if len(setLayouts) > 0 {
		info.PSetLayouts = setLayouts
	}

	var layout vk.PipelineLayout
	if result := vk.CreatePipelineLayout(d.device.LogicalDevice, &info, d.allocator, &layout); !VulkanResultIsSuccess(result) {
		err := fmt.Errorf("failed to create pipeline layout with result %s", VulkanResultString(result, true))
		core.LogError(err.Error())
		return nil, err
	}
	return layout, nil
}

func (d *vulkanDescriptorDevice) DestroyPipelineLayout(layout vk.PipelineLayout) {
	if layout != nil {
		vk.DestroyPipelineLayout(d.device.LogicalDevice, layout, d.allocator)
	}
}

func (d *vulkanDescriptorDevice) SupportsPushDescriptors() bool {
	return d.pushSupported
}
