package systems

import (
	"sync"
	"testing"

	"github.com/spaghettifunk/vitro/engine/renderer/metadata"
)

type fakeProgramBackend struct {
	mu        sync.Mutex
	created   []string
	destroyed []string
}

func (f *fakeProgramBackend) ProgramCreate(program *metadata.Program) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, program.Name)
	program.State = metadata.PROGRAM_STATE_INITIALIZED
	return nil
}

func (f *fakeProgramBackend) ProgramDestroy(program *metadata.Program) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, program.Name)
	return nil
}

func pushOnlyConfig(name string, slot uint32) *metadata.ProgramConfig {
	return &metadata.ProgramConfig{
		Name: name,
		Stages: []metadata.StageReflection{
			{Stage: metadata.ShaderStageVertex, Bindings: []metadata.Binding{
				{Slot: slot, Type: metadata.BindingTypeUniformBuffer, Count: 1},
			}},
		},
	}
}

func TestProgramSystemSharesIdenticalReflections(t *testing.T) {
	backend := &fakeProgramBackend{}
	ps, err := NewProgramSystem(&ProgramSystemConfig{MaxProgramCount: 8}, backend, nil)
	if err != nil {
		t.Fatalf("NewProgramSystem returned %v", err)
	}

	first, err := ps.Acquire(pushOnlyConfig("one", 0))
	if err != nil {
		t.Fatalf("Acquire(one) returned %v", err)
	}
	// Different name, identical reflection: must resolve to the same program.
	second, err := ps.Acquire(pushOnlyConfig("two", 0))
	if err != nil {
		t.Fatalf("Acquire(two) returned %v", err)
	}

	if first != second {
		t.Fatalf("identical reflections produced distinct programs")
	}
	if have, want := len(backend.created), 1; have != want {
		t.Fatalf("backend creates: have %d, want %d", have, want)
	}
	if have, want := ps.Count(), 1; have != want {
		t.Fatalf("cached programs: have %d, want %d", have, want)
	}
}

func TestProgramSystemEvictsLeastRecent(t *testing.T) {
	backend := &fakeProgramBackend{}
	ps, err := NewProgramSystem(&ProgramSystemConfig{MaxProgramCount: 2}, backend, nil)
	if err != nil {
		t.Fatalf("NewProgramSystem returned %v", err)
	}

	for i, name := range []string{"a", "b", "c"} {
		if _, err := ps.Acquire(pushOnlyConfig(name, uint32(i))); err != nil {
			t.Fatalf("Acquire(%s) returned %v", name, err)
		}
	}

	if have, want := ps.Count(), 2; have != want {
		t.Fatalf("cached programs: have %d, want %d", have, want)
	}
	if have, want := len(backend.destroyed), 1; have != want {
		t.Fatalf("destroys after eviction: have %d, want %d", have, want)
	}
	if backend.destroyed[0] != "a" {
		t.Fatalf("evicted program: have %q, want %q", backend.destroyed[0], "a")
	}
}

func TestProgramSystemShutdownDestroysAll(t *testing.T) {
	backend := &fakeProgramBackend{}
	ps, err := NewProgramSystem(&ProgramSystemConfig{MaxProgramCount: 8}, backend, nil)
	if err != nil {
		t.Fatalf("NewProgramSystem returned %v", err)
	}

	for i, name := range []string{"a", "b", "c"} {
		if _, err := ps.Acquire(pushOnlyConfig(name, uint32(i))); err != nil {
			t.Fatalf("Acquire(%s) returned %v", name, err)
		}
	}
	if err := ps.Shutdown(); err != nil {
		t.Fatalf("Shutdown returned %v", err)
	}

	if have, want := len(backend.destroyed), 3; have != want {
		t.Fatalf("destroys after shutdown: have %d, want %d", have, want)
	}
	if have, want := ps.Count(), 0; have != want {
		t.Fatalf("cached programs after shutdown: have %d, want %d", have, want)
	}
}

func TestProgramSystemPrewarmBuildsOnWorkers(t *testing.T) {
	backend := &fakeProgramBackend{}
	jobs, err := NewJobSystem(2, 8)
	if err != nil {
		t.Fatalf("NewJobSystem returned %v", err)
	}
	ps, err := NewProgramSystem(&ProgramSystemConfig{MaxProgramCount: 8}, backend, jobs)
	if err != nil {
		t.Fatalf("NewProgramSystem returned %v", err)
	}

	ps.Prewarm([]*metadata.ProgramConfig{
		pushOnlyConfig("a", 0),
		pushOnlyConfig("b", 1),
		pushOnlyConfig("a-again", 0),
	})
	// Shutdown drains the queue, so every prewarm has finished after this.
	if err := jobs.Shutdown(); err != nil {
		t.Fatalf("job shutdown returned %v", err)
	}

	if have, want := ps.Count(), 2; have != want {
		t.Fatalf("cached programs: have %d, want %d", have, want)
	}
	if have, want := len(backend.created), 2; have != want {
		t.Fatalf("backend creates: have %d, want %d", have, want)
	}
}
