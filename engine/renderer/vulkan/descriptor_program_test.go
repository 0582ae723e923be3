package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vitro/engine/core"
	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

func TestProgramSetCountFormula(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	cases := []struct {
		name     string
		stages   []metadata.StageReflection
		wantSets uint32
		wantMask uint8
	}{
		{
			name: "uniform only",
			stages: []metadata.StageReflection{
				stageWithBindings(metadata.ShaderStageVertex,
					metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}),
			},
			wantSets: 2,
			wantMask: 1 << uint(DescriptorSetKindUniform),
		},
		{
			name: "uniform and storage image",
			stages: []metadata.StageReflection{
				stageWithBindings(metadata.ShaderStageVertex,
					metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}),
				stageWithBindings(metadata.ShaderStageFragment,
					metadata.Binding{Slot: 0, Type: metadata.BindingTypeStorageImage, Count: 1}),
			},
			wantSets: 5,
			wantMask: 1<<uint(DescriptorSetKindUniform) | 1<<uint(DescriptorSetKindImage),
		},
		{
			name: "push only",
			stages: []metadata.StageReflection{
				stageWithBindings(metadata.ShaderStageVertex,
					metadata.Binding{Slot: 0, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 1}),
			},
			wantSets: 1,
			wantMask: 0,
		},
		{
			name:     "empty",
			stages:   nil,
			wantSets: 0,
			wantMask: 0,
		},
	}

	for _, tc := range cases {
		pd := buildTestProgram(t, dc, tc.name, tc.stages...)
		if pd.NumSets != tc.wantSets {
			t.Fatalf("%s: NumSets have %d, want %d", tc.name, pd.NumSets, tc.wantSets)
		}
		if pd.UsageMask != tc.wantMask {
			t.Fatalf("%s: usage mask have 0x%x, want 0x%x", tc.name, pd.UsageMask, tc.wantMask)
		}
		if tc.wantSets == 0 && pd.PipelineLayout != nil {
			t.Fatalf("%s: empty program got a pipeline layout", tc.name)
		}
		if tc.wantSets > 0 && pd.PipelineLayout == nil {
			t.Fatalf("%s: missing pipeline layout", tc.name)
		}
	}
}

func TestProgramDummyGapLayouts(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	pd := buildTestProgram(t, dc, "gaps",
		stageWithBindings(metadata.ShaderStageFragment,
			metadata.Binding{Slot: 0, Type: metadata.BindingTypeStorageImage, Count: 1}))

	if pd.NumSets != 5 {
		t.Fatalf("NumSets: have %d, want 5", pd.NumSets)
	}
	dummy := dc.dummyKey.Layout
	for _, idx := range []uint32{0, 1, 2, 3} {
		if pd.SetLayouts[idx] != dummy {
			t.Fatalf("set %d: expected the dummy layout", idx)
		}
	}
	imageKey := pd.LayoutKeys[DescriptorSetKindImage]
	if imageKey == nil || pd.SetLayouts[4] != imageKey.Layout {
		t.Fatalf("set 4 does not carry the image kind's layout")
	}
}

func TestProgramPushLayoutAtSlotZero(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	pd := buildTestProgram(t, dc, "pushed",
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 0, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 1},
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}))

	if !pd.HasPush() {
		t.Fatalf("expected push usage")
	}
	if pd.PushStages != pushStageBit(metadata.ShaderStageVertex) {
		t.Fatalf("push stages: have 0x%x, want vertex bit", pd.PushStages)
	}
	if pd.SetLayouts[0] != dc.pushKeys[metadata.PipelineKindGraphics].Layout {
		t.Fatalf("set 0 is not the shared graphics push layout")
	}
	if len(pd.PushPlan) != 1 {
		t.Fatalf("push plan length: have %d, want 1", len(pd.PushPlan))
	}
	step := pd.PushPlan[0]
	if step.NativeType != vk.DescriptorTypeUniformBuffer {
		t.Fatalf("push write type not flattened to plain uniform: %v", step.NativeType)
	}
	if step.Binding != pushBindingNumber(metadata.ShaderStageVertex) || step.Slot != 0 {
		t.Fatalf("push step binding/slot: have %d/%d", step.Binding, step.Slot)
	}
}

func TestProgramInvalidReflection(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	cases := []struct {
		name   string
		stages []metadata.StageReflection
	}{
		{
			name: "dynamic uniform off slot zero",
			stages: []metadata.StageReflection{
				stageWithBindings(metadata.ShaderStageVertex,
					metadata.Binding{Slot: 1, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 1}),
			},
		},
		{
			name: "dynamic uniform array",
			stages: []metadata.StageReflection{
				stageWithBindings(metadata.ShaderStageVertex,
					metadata.Binding{Slot: 0, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 2}),
			},
		},
		{
			name: "duplicate slot",
			stages: []metadata.StageReflection{
				stageWithBindings(metadata.ShaderStageFragment,
					metadata.Binding{Slot: 3, Type: metadata.BindingTypeSampledImage, Count: 1},
					metadata.Binding{Slot: 3, Type: metadata.BindingTypeSampledImage, Count: 1}),
			},
		},
		{
			name: "slot window past table end",
			stages: []metadata.StageReflection{
				stageWithBindings(metadata.ShaderStageVertex,
					metadata.Binding{Slot: 30, Type: metadata.BindingTypeUniformBuffer, Count: 4}),
			},
		},
	}
	for _, tc := range cases {
		_, err := dc.BuildProgramDescriptors(&metadata.ProgramConfig{Name: tc.name, Stages: tc.stages})
		if !errors.Is(err, core.ErrInvalidProgram) {
			t.Fatalf("%s: have %v, want ErrInvalidProgram", tc.name, err)
		}
	}
}

func TestWritePlanExpansion(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	pd := buildTestProgram(t, dc, "expansion",
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 2, Type: metadata.BindingTypeUniformBuffer, Count: 3}),
		stageWithBindings(metadata.ShaderStageFragment,
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeSampledImage, Count: 4}))

	ubo := pd.WritePlans[DescriptorSetKindUniform]
	if len(ubo) != 3 {
		t.Fatalf("uniform plan steps: have %d, want 3", len(ubo))
	}
	class, _ := bindingClassFor(metadata.BindingTypeUniformBuffer)
	wantBinding := setBindingNumber(metadata.ShaderStageVertex, class, 2)
	for e, step := range ubo {
		if step.Binding != wantBinding || step.ArrayElement != uint32(e) || step.Count != 1 || step.Slot != uint32(2+e) {
			t.Fatalf("uniform step %d: %+v", e, step)
		}
	}

	images := pd.WritePlans[DescriptorSetKindSamplerView]
	if len(images) != 1 {
		t.Fatalf("sampler-view plan steps: have %d, want 1", len(images))
	}
	if images[0].Count != 4 || images[0].ArrayElement != 0 || images[0].Slot != 1 {
		t.Fatalf("image step: %+v", images[0])
	}
}

func TestSamplerViewClassMerge(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	// Sampled images and uniform texel buffers land in one set kind,
	// split by slot block inside the binding number.
	pd := buildTestProgram(t, dc, "merged",
		stageWithBindings(metadata.ShaderStageFragment,
			metadata.Binding{Slot: 2, Type: metadata.BindingTypeSampledImage, Count: 1},
			metadata.Binding{Slot: 2, Type: metadata.BindingTypeUniformTexelBuffer, Count: 1}))

	if pd.UsageMask != 1<<uint(DescriptorSetKindSamplerView) {
		t.Fatalf("usage mask: have 0x%x, want sampler-view only", pd.UsageMask)
	}
	key := pd.LayoutKeys[DescriptorSetKindSamplerView]
	if len(key.Bindings) != 2 {
		t.Fatalf("merged set bindings: have %d, want 2", len(key.Bindings))
	}
	if key.Bindings[0].Binding == key.Bindings[1].Binding {
		t.Fatalf("image and texel bindings collided on %d", key.Bindings[0].Binding)
	}

	sizes := pd.PoolSizes[DescriptorSetKindSamplerView]
	if len(sizes) != 2 {
		t.Fatalf("merged pool sizes: have %v", sizes)
	}
}

func TestProgramsShareLayoutKey(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	reflect := stageWithBindings(metadata.ShaderStageVertex,
		metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1})

	a := buildTestProgram(t, dc, "a", reflect)
	b := buildTestProgram(t, dc, "b", reflect)

	keyA := a.LayoutKeys[DescriptorSetKindUniform]
	keyB := b.LayoutKeys[DescriptorSetKindUniform]
	if keyA != keyB {
		t.Fatalf("identical reflections produced distinct layout keys")
	}
	if have := dc.layoutCache.UseCount(keyA); have != 2 {
		t.Fatalf("shared key use count: have %d, want 2", have)
	}

	dc.DestroyProgramDescriptors(a)
	if have := dc.layoutCache.UseCount(keyB); have != 1 {
		t.Fatalf("use count after one destroy: have %d, want 1", have)
	}
	if device.layoutsDestroyed != 0 {
		t.Fatalf("program destroy released native layouts")
	}
	if b.PipelineLayout == nil || a.PipelineLayout != nil {
		t.Fatalf("pipeline layout lifetime wrong after destroy")
	}
}

func TestProgramPipelineKind(t *testing.T) {
	device := newFakeDescriptorDevice()
	dc := newTestContext(t, device, 100, true, nil)

	graphics := buildTestProgram(t, dc, "gfx",
		stageWithBindings(metadata.ShaderStageVertex,
			metadata.Binding{Slot: 1, Type: metadata.BindingTypeUniformBuffer, Count: 1}))
	compute := buildTestProgram(t, dc, "comp",
		stageWithBindings(metadata.ShaderStageCompute,
			metadata.Binding{Slot: 0, Type: metadata.BindingTypeStorageBuffer, Count: 1},
			metadata.Binding{Slot: 0, Type: metadata.BindingTypeDynamicUniformBuffer, Count: 1}))

	if graphics.Kind != metadata.PipelineKindGraphics {
		t.Fatalf("graphics program kind: %v", graphics.Kind)
	}
	if compute.Kind != metadata.PipelineKindCompute {
		t.Fatalf("compute program kind: %v", compute.Kind)
	}
	if compute.SetLayouts[0] != dc.pushKeys[metadata.PipelineKindCompute].Layout {
		t.Fatalf("compute push slot does not use the compute push layout")
	}
	if compute.PushPlan[0].Binding != 0 {
		t.Fatalf("compute push binding: have %d, want 0", compute.PushPlan[0].Binding)
	}
}
