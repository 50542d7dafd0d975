package frame

import (
	"testing"
	"time"
)

type nopFence struct{}

func (nopFence) Wait(time.Duration) error { return nil }
func (nopFence) Reset() error             { return nil }

func TestNewSyncSetValidatesSlotCounts(t *testing.T) {
	_, err := NewSyncSet(nil, nil)
	if err == nil {
		t.Error("expected an error for zero slots")
	}

	_, err = NewSyncSet(
		[]Fence{nopFence{}, nopFence{}},
		[]Fence{nopFence{}},
	)
	if err == nil {
		t.Error("expected an error for mismatched fence counts")
	}
}

func TestSyncSetSlotAccess(t *testing.T) {
	compute := []Fence{&fakeFence{log: &callLog{}, name: "c0"}, &fakeFence{log: &callLog{}, name: "c1"}}
	graphics := []Fence{&fakeFence{log: &callLog{}, name: "g0"}, &fakeFence{log: &callLog{}, name: "g1"}}

	set, err := NewSyncSet(compute, graphics)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if set.Slots() != 2 {
		t.Errorf("expected 2 slots, got %d", set.Slots())
	}

	if set.Compute(0) != compute[0] || set.Compute(1) != compute[1] {
		t.Error("compute fences not returned per slot")
	}
	if set.Graphics(0) != graphics[0] || set.Graphics(1) != graphics[1] {
		t.Error("graphics fences not returned per slot")
	}

	// Slot indices wrap like every other per-frame ring.
	if set.Compute(2) != compute[0] {
		t.Error("slot index did not wrap")
	}
}
