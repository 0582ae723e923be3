package containers

import "testing"

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3)
	if !rq.IsEmpty() {
		t.Fatalf("new queue should be empty")
	}

	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if !rq.IsFull() {
		t.Fatalf("queue with 3/3 elements should be full")
	}
	if err := rq.Enqueue(4); err != ErrQueueFull {
		t.Fatalf("enqueue on full queue: have %v, want %v", err, ErrQueueFull)
	}

	for want := 1; want <= 3; want++ {
		have, err := rq.Dequeue()
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if have != want {
			t.Fatalf("dequeue order: have %d, want %d", have, want)
		}
	}
	if _, err := rq.Dequeue(); err != ErrQueueEmpty {
		t.Fatalf("dequeue on empty queue: have %v, want %v", err, ErrQueueEmpty)
	}
}

func TestRingQueueWrap(t *testing.T) {
	rq := NewRingQueue[string](2)

	// Fill, drain one, refill: write index must wrap cleanly.
	if err := rq.Enqueue("a"); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := rq.Enqueue("b"); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if v, _ := rq.Dequeue(); v != "a" {
		t.Fatalf("have %q, want %q", v, "a")
	}
	if err := rq.Enqueue("c"); err != nil {
		t.Fatalf("enqueue c after wrap: %v", err)
	}

	if v, _ := rq.Peek(); v != "b" {
		t.Fatalf("peek: have %q, want %q", v, "b")
	}
	if rq.Len() != 2 {
		t.Fatalf("len: have %d, want 2", rq.Len())
	}
	if v, _ := rq.Dequeue(); v != "b" {
		t.Fatalf("have %q, want %q", v, "b")
	}
	if v, _ := rq.Dequeue(); v != "c" {
		t.Fatalf("have %q, want %q", v, "c")
	}
}
