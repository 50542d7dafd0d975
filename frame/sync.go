package frame

import (
	"fmt"
	"time"
)

// Fence is a host-waitable signal that a specific queue submission has
// retired on the device.
//
// Implementations must create the underlying object in the signaled state so
// that the very first wait on a freshly initialized slot does not block.
type Fence interface {
	// Wait blocks until the fence is signaled. A non-positive timeout means
	// wait without bound. When the timeout elapses first Wait returns
	// ErrDeviceLost.
	Wait(timeout time.Duration) error

	// Reset returns the fence to the unsignaled state. It must only be
	// called after a successful Wait, never while a submission using the
	// fence is still in flight.
	Reset() error
}

// SyncSet owns the per-slot fence pairs gating host reuse of frame
// resources. The compute fence of a slot gates its uniform memory, compute
// command buffer and storage-buffer write target; the graphics fence gates
// its graphics command buffer.
//
// The completion semaphores that order the two queue submissions against
// each other live entirely on the device and are owned by the stages; the
// scheduler never observes them.
type SyncSet struct {
	compute  Ring[Fence]
	graphics Ring[Fence]
}

// NewSyncSet builds a SyncSet from per-slot fences. Both slices must have
// one entry per frame slot.
func NewSyncSet(compute, graphics []Fence) (*SyncSet, error) {
	if len(compute) == 0 {
		return nil, fmt.Errorf("sync set needs at least one slot")
	}
	if len(compute) != len(graphics) {
		return nil, fmt.Errorf(
			"mismatched fence counts: %d compute, %d graphics",
			len(compute), len(graphics),
		)
	}

	return &SyncSet{
		compute:  NewRing(compute),
		graphics: NewRing(graphics),
	}, nil
}

// Slots returns the number of frame slots in the set.
func (s *SyncSet) Slots() int {
	return s.compute.Len()
}

// Compute returns the compute-done fence for the given slot.
func (s *SyncSet) Compute(slot int) Fence {
	return s.compute.At(slot)
}

// Graphics returns the graphics-done fence for the given slot.
func (s *SyncSet) Graphics(slot int) Fence {
	return s.graphics.At(slot)
}
