// Package frame implements the per-frame orchestration for a GPU particle
// simulation which pipelines a compute pass and a graphics pass across
// several frames in flight.
//
// The package is deliberately free of any Vulkan types. The Scheduler drives
// collaborators behind small interfaces so that the ordering rules between
// fence waits, queue submissions and presentation can be exercised without a
// device present. The Vulkan implementations of the interfaces live in the
// program binary.
package frame

import "errors"

// Status is the outcome reported by surface operations. It mirrors the
// non-fatal subset of presentation results: anything outside this set is
// returned as an error by the Surface implementation.
type Status int

const (
	// StatusOK means the operation succeeded and the surface still matches
	// the window.
	StatusOK Status = iota

	// StatusSuboptimal means the operation succeeded but the surface no
	// longer matches the window exactly. Rendering may continue but the
	// swapchain should be rebuilt after presenting.
	StatusSuboptimal

	// StatusOutdated means the surface can no longer be used at all and the
	// swapchain must be rebuilt before any further rendering.
	StatusOutdated
)

// Result is what a single AdvanceFrame call achieved.
type Result int

const (
	// ResultRendered means a frame was submitted and presented.
	ResultRendered Result = iota

	// ResultSwapchainRebuilt means the swapchain-dependent resources were
	// recreated. Depending on where the rebuild was triggered the frame may
	// or may not have been presented; see Scheduler.AdvanceFrame.
	ResultSwapchainRebuilt
)

// ErrDeviceLost is returned when a fence wait times out. A fence which never
// retires means the device stopped executing submitted work, which the host
// cannot recover from.
var ErrDeviceLost = errors.New("device lost: fence wait timed out")
