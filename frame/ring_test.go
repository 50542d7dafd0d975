package frame

import "testing"

func TestRingWrapsIndices(t *testing.T) {
	ring := NewRing([]string{"a", "b", "c"})

	if ring.Len() != 3 {
		t.Errorf("expected length 3, got %d", ring.Len())
	}

	cases := []struct {
		slot int
		want string
	}{
		{0, "a"},
		{1, "b"},
		{2, "c"},
		{3, "a"},
		{7, "b"},
		{-1, "c"},
		{-4, "c"},
	}

	for _, c := range cases {
		if got := ring.At(c.slot); got != c.want {
			t.Errorf("At(%d) = %q, want %q", c.slot, got, c.want)
		}
	}
}

func TestRingPrevPairsWithPreviousSlot(t *testing.T) {
	ring := NewRing([]int{10, 20})

	// In a two slot ring each slot's previous item is the other one.
	if got := ring.Prev(0); got != 20 {
		t.Errorf("Prev(0) = %d, want 20", got)
	}
	if got := ring.Prev(1); got != 10 {
		t.Errorf("Prev(1) = %d, want 10", got)
	}
}

func TestRingPanicsOnZeroSlots(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for an empty ring")
		}
	}()

	NewRing([]int{})
}
