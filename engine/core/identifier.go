package core

import (
	"fmt"
	"sync"
)

// Owners holds one entry per handed-out identifier. The identifier is the
// slot index; a nil slot is free. Guarded by ownersMutex since program
// builds may run on prewarm workers.
var Owners []interface{}
var ownersMutex sync.Mutex

func IdentifierAcquireNewID(owner interface{}) uint32 {
	ownersMutex.Lock()
	defer ownersMutex.Unlock()

	if len(Owners) == 0 {
		Owners = make([]interface{}, 100)
	}
	length := uint32(len(Owners))
	for i := uint32(0); i < length; i++ {
		// Existing free spot. Take it.
		if Owners[i] == nil {
			Owners[i] = owner
			return i
		}
	}

	// No existing free slots, push a new one. The id is then length - 1.
	Owners = append(Owners, owner)
	length = uint32(len(Owners))
	return length - 1
}

func IdentifierReleaseID(id uint32) error {
	ownersMutex.Lock()
	defer ownersMutex.Unlock()

	if len(Owners) == 0 {
		err := fmt.Errorf("identifier release called before any identifier was acquired. Nothing was done")
		return err
	}

	length := uint32(len(Owners))
	if id >= length {
		err := fmt.Errorf("identifier release: id '%d' out of range (max=%d). Nothing was done", id, length)
		return err
	}

	// Just zero out the entry, making it available for use.
	Owners[id] = nil
	return nil
}
