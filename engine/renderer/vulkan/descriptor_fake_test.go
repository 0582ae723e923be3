package vulkan

import (
	"fmt"
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/google/uuid"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

// fakeDescriptorDevice drives the descriptor core without a GPU. Handles
// are distinct heap allocations so pointer identity behaves like the real
// driver's.
type fakeDescriptorDevice struct {
	pushSupported bool

	anchors []*byte

	layoutsCreated   int
	layoutsDestroyed int
	pushFlagged      map[vk.DescriptorSetLayout]bool

	pools          map[vk.DescriptorPool]*fakePoolState
	poolsCreated   int
	poolsDestroyed int
	poolResets     int

	allocBuckets []int
	allocErr     error

	updates [][]vk.WriteDescriptorSet
	binds   []fakeBind
	pushes  []fakePush

	pipelineLayoutsCreated   int
	pipelineLayoutsDestroyed int
}

type fakePoolState struct {
	maxSets   uint32
	sizes     []vk.DescriptorPoolSize
	allocated uint32
	resets    int
	destroyed bool
}

type fakeBind struct {
	bindPoint vk.PipelineBindPoint
	firstSet  uint32
	sets      []vk.DescriptorSet
}

type fakePush struct {
	bindPoint vk.PipelineBindPoint
	setIndex  uint32
	writes    []vk.WriteDescriptorSet
}

func newFakeDescriptorDevice() *fakeDescriptorDevice {
	return &fakeDescriptorDevice{
		pushFlagged: make(map[vk.DescriptorSetLayout]bool),
		pools:       make(map[vk.DescriptorPool]*fakePoolState),
	}
}

func (d *fakeDescriptorDevice) handle() unsafe.Pointer {
	b := new(byte)
	d.anchors = append(d.anchors, b)
	return unsafe.Pointer(b)
}

func (d *fakeDescriptorDevice) CreateSetLayout(bindings []vk.DescriptorSetLayoutBinding, push bool) (vk.DescriptorSetLayout, error) {
	layout := vk.DescriptorSetLayout(d.handle())
	d.layoutsCreated++
	d.pushFlagged[layout] = push
	return layout, nil
}

func (d *fakeDescriptorDevice) DestroySetLayout(layout vk.DescriptorSetLayout) {
	d.layoutsDestroyed++
}

func (d *fakeDescriptorDevice) CreatePool(sizes []vk.DescriptorPoolSize, maxSets uint32) (vk.DescriptorPool, error) {
	pool := vk.DescriptorPool(d.handle())
	d.pools[pool] = &fakePoolState{
		maxSets: maxSets,
		sizes:   append([]vk.DescriptorPoolSize(nil), sizes...),
	}
	d.poolsCreated++
	return pool, nil
}

func (d *fakeDescriptorDevice) ResetPool(pool vk.DescriptorPool) error {
	st := d.pools[pool]
	if st == nil || st.destroyed {
		return fmt.Errorf("reset of unknown pool")
	}
	st.allocated = 0
	st.resets++
	d.poolResets++
	return nil
}

func (d *fakeDescriptorDevice) DestroyPool(pool vk.DescriptorPool) {
	if st := d.pools[pool]; st != nil {
		st.destroyed = true
	}
	d.poolsDestroyed++
}

func (d *fakeDescriptorDevice) AllocateSets(pool vk.DescriptorPool, layout vk.DescriptorSetLayout, out []vk.DescriptorSet) error {
	if d.allocErr != nil {
		return d.allocErr
	}
	st := d.pools[pool]
	if st == nil || st.destroyed {
		return fmt.Errorf("allocation from unknown pool")
	}
	if st.allocated+uint32(len(out)) > st.maxSets {
		return fmt.Errorf("fake pool overcommitted: %d+%d > %d", st.allocated, len(out), st.maxSets)
	}
	st.allocated += uint32(len(out))
	for i := range out {
		out[i] = vk.DescriptorSet(d.handle())
	}
	d.allocBuckets = append(d.allocBuckets, len(out))
	return nil
}

func (d *fakeDescriptorDevice) UpdateSets(writes []vk.WriteDescriptorSet) {
	d.updates = append(d.updates, append([]vk.WriteDescriptorSet(nil), writes...))
}

func (d *fakeDescriptorDevice) BindSets(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet) {
	d.binds = append(d.binds, fakeBind{
		bindPoint: bindPoint,
		firstSet:  firstSet,
		sets:      append([]vk.DescriptorSet(nil), sets...),
	})
}

func (d *fakeDescriptorDevice) PushSet(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, setIndex uint32, writes []vk.WriteDescriptorSet) {
	d.pushes = append(d.pushes, fakePush{
		bindPoint: bindPoint,
		setIndex:  setIndex,
		writes:    append([]vk.WriteDescriptorSet(nil), writes...),
	})
}

func (d *fakeDescriptorDevice) CreatePipelineLayout(setLayouts []vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	d.pipelineLayoutsCreated++
	return vk.PipelineLayout(d.handle()), nil
}

func (d *fakeDescriptorDevice) DestroyPipelineLayout(layout vk.PipelineLayout) {
	d.pipelineLayoutsDestroyed++
}

func (d *fakeDescriptorDevice) SupportsPushDescriptors() bool {
	return d.pushSupported
}

func newTestBatch(d *fakeDescriptorDevice) *VulkanBatch {
	return &VulkanBatch{
		ID: uuid.New(),
		CommandBuffer: &VulkanCommandBuffer{
			Handle: vk.CommandBuffer(d.handle()),
			State:  COMMAND_BUFFER_STATE_RECORDING,
		},
		Descriptors: NewVulkanBatchDescriptorState(),
	}
}

func fakeBuffer(d *fakeDescriptorDevice) vk.Buffer {
	return vk.Buffer(d.handle())
}

func fakeImageView(d *fakeDescriptorDevice) vk.ImageView {
	return vk.ImageView(d.handle())
}

func fakeSampler(d *fakeDescriptorDevice) vk.Sampler {
	return vk.Sampler(d.handle())
}

func fakeBufferView(d *fakeDescriptorDevice) vk.BufferView {
	return vk.BufferView(d.handle())
}

func stageWithBindings(stage metadata.ShaderStage, bindings ...metadata.Binding) metadata.StageReflection {
	return metadata.StageReflection{Stage: stage, Bindings: bindings}
}

func newTestContext(t *testing.T, device *fakeDescriptorDevice, capacity uint32, templates bool, reclaim func() (*VulkanBatch, error)) *VulkanDescriptorContext {
	t.Helper()
	dc, err := NewVulkanDescriptorContext(device, capacity, templates, reclaim)
	if err != nil {
		t.Fatalf("descriptor context setup failed: %v", err)
	}
	return dc
}

func buildTestProgram(t *testing.T, dc *VulkanDescriptorContext, name string, stages ...metadata.StageReflection) *VulkanProgramDescriptors {
	t.Helper()
	pd, err := dc.BuildProgramDescriptors(&metadata.ProgramConfig{Name: name, Stages: stages})
	if err != nil {
		t.Fatalf("program %q build failed: %v", name, err)
	}
	return pd
}
