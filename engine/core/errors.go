package core

import (
	"errors"
)

var (
	// ErrSwapchainBooting signals that the swapchain was resized or recreated
	// mid-frame and the frame should be skipped, not failed.
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")

	// ErrPoolSaturated is returned by a descriptor pool that has grown to its
	// configured capacity. Callers reclaim a retired session and retry.
	ErrPoolSaturated = errors.New("descriptor pool saturated at capacity")

	// ErrDescriptorsExhausted is returned when set population cannot complete
	// even after reclamation, which means every trackable session is still
	// in flight.
	ErrDescriptorsExhausted = errors.New("descriptor sets exhausted across all sessions")

	// ErrInvalidProgram is returned when a program's reflection cannot produce
	// a legal descriptor layout.
	ErrInvalidProgram = errors.New("program reflection is invalid")

	ErrUnknown = errors.New("unknown")
)
