package frame

// Ring holds one copy of a per-frame resource for every frame slot. Accessors
// take indices modulo the ring length so callers may pass a running frame
// counter directly.
type Ring[T any] struct {
	items []T
}

// NewRing returns a ring over the given per-slot items. The slice is not
// copied; the ring owns it from here on.
func NewRing[T any](items []T) Ring[T] {
	if len(items) == 0 {
		panic("frame: ring with zero slots")
	}
	return Ring[T]{items: items}
}

// Len returns the number of slots in the ring.
func (r Ring[T]) Len() int {
	return len(r.items)
}

// At returns the item for the given slot. The index wraps around, negative
// values included.
func (r Ring[T]) At(slot int) T {
	return r.items[r.wrap(slot)]
}

// Prev returns the item one slot before the given one. For a two-slot ring
// Prev(0) and At(1) are the same item, which is exactly the pairing the
// compute pass relies on: it reads the buffer the previous frame wrote.
func (r Ring[T]) Prev(slot int) T {
	return r.items[r.wrap(slot-1)]
}

// Items returns the underlying per-slot slice, ordered by slot.
func (r Ring[T]) Items() []T {
	return r.items
}

func (r Ring[T]) wrap(slot int) int {
	n := len(r.items)
	return ((slot % n) + n) % n
}
