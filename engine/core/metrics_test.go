package core

import "testing"

func TestMetricsDescriptorsLazyInit(t *testing.T) {
	// Counter bumps happen from pool creation and program builds, which
	// may run before (or without) the engine bootstrap calling
	// MetricsInitialize. The handle must come up on first use.
	m := MetricsDescriptors()
	if m == nil {
		t.Fatalf("MetricsDescriptors returned nil before explicit initialization")
	}

	before := m.SetsAllocated.Load()
	m.SetsAllocated.Add(2)

	snap := MetricsDescriptorsSnapshot()
	if have, want := snap["sets_allocated"], before+2; have != want {
		t.Fatalf("sets_allocated: have %d, want %d", have, want)
	}
}
