package queues

import (
	"gpuparticles/optional"
)

// FamilyIndices holds the indexes of Vulkan queue families needed by the program.
type FamilyIndices struct {

	// GraphicsAndCompute is the index of a queue family which supports both
	// graphics and compute work. The simulation dispatch may end up on the
	// same hardware queue as the draw when the device has no dedicated
	// compute family.
	GraphicsAndCompute optional.Optional[uint32]

	// Present is the index of the queue family used for presenting to the drawing
	// surface.
	Present optional.Optional[uint32]
}

// IsComplete returns true if all families have been set.
func (f *FamilyIndices) IsComplete() bool {
	return f.GraphicsAndCompute.HasValue() && f.Present.HasValue()
}
