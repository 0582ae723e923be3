package metadata

import "testing"

func TestProgramConfigHashCanonical(t *testing.T) {
	a := &ProgramConfig{
		Name: "a",
		Stages: []StageReflection{
			{Stage: ShaderStageVertex, Bindings: []Binding{
				{Slot: 0, Type: BindingTypeDynamicUniformBuffer, Count: 1},
			}},
			{Stage: ShaderStageFragment, Bindings: []Binding{
				{Slot: 1, Type: BindingTypeUniformBuffer, Count: 1},
				{Slot: 0, Type: BindingTypeSampledImage, Count: 1},
			}},
		},
	}
	// Same reflection with stages and bindings declared backwards, and a
	// different display name. Identity covers neither order nor name.
	b := &ProgramConfig{
		Name: "b",
		Stages: []StageReflection{
			{Stage: ShaderStageFragment, Bindings: []Binding{
				{Slot: 0, Type: BindingTypeSampledImage, Count: 1},
				{Slot: 1, Type: BindingTypeUniformBuffer, Count: 1},
			}},
			{Stage: ShaderStageVertex, Bindings: []Binding{
				{Slot: 0, Type: BindingTypeDynamicUniformBuffer, Count: 1},
			}},
		},
	}

	if a.Hash() != b.Hash() {
		t.Fatalf("reordered reflections hashed differently:\n%s\n%s", a.Hash(), b.Hash())
	}
}

func TestProgramConfigHashDistinguishes(t *testing.T) {
	base := &ProgramConfig{
		Stages: []StageReflection{
			{Stage: ShaderStageVertex, Bindings: []Binding{
				{Slot: 0, Type: BindingTypeUniformBuffer, Count: 1},
			}},
		},
	}

	cases := map[string]*ProgramConfig{
		"different slot": {
			Stages: []StageReflection{
				{Stage: ShaderStageVertex, Bindings: []Binding{
					{Slot: 1, Type: BindingTypeUniformBuffer, Count: 1},
				}},
			},
		},
		"different type": {
			Stages: []StageReflection{
				{Stage: ShaderStageVertex, Bindings: []Binding{
					{Slot: 0, Type: BindingTypeStorageBuffer, Count: 1},
				}},
			},
		},
		"different count": {
			Stages: []StageReflection{
				{Stage: ShaderStageVertex, Bindings: []Binding{
					{Slot: 0, Type: BindingTypeUniformBuffer, Count: 4},
				}},
			},
		},
		"different stage": {
			Stages: []StageReflection{
				{Stage: ShaderStageFragment, Bindings: []Binding{
					{Slot: 0, Type: BindingTypeUniformBuffer, Count: 1},
				}},
			},
		},
	}
	for name, cfg := range cases {
		if cfg.Hash() == base.Hash() {
			t.Errorf("%s collided with the base reflection", name)
		}
	}
}

func TestProgramConfigPipelineKind(t *testing.T) {
	graphics := &ProgramConfig{
		Stages: []StageReflection{
			{Stage: ShaderStageVertex},
			{Stage: ShaderStageFragment},
		},
	}
	if have := graphics.PipelineKind(); have != PipelineKindGraphics {
		t.Fatalf("graphics stages: have kind %s", have.String())
	}

	compute := &ProgramConfig{
		Stages: []StageReflection{{Stage: ShaderStageCompute}},
	}
	if have := compute.PipelineKind(); have != PipelineKindCompute {
		t.Fatalf("compute stage: have kind %s", have.String())
	}
}
