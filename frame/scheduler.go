package frame

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ComputeStage records and submits the per-frame simulation dispatch. The
// implementation owns the compute pipeline, the per-slot descriptor sets
// wired as "read previous slot's buffer, write this slot's buffer", the
// per-slot command buffers and the compute-done semaphores.
type ComputeStage interface {
	// UpdateUniform writes the frame parameters into the slot's host-visible
	// uniform memory. Only called after the slot's compute fence has been
	// waited on, so the memory is not read by an in-flight dispatch.
	UpdateUniform(slot int, delta float32)

	// Submit re-records the slot's compute command buffer and submits it to
	// the compute-capable queue, signaling the slot's compute-done semaphore
	// and retiring the slot's compute fence on completion.
	Submit(slot int) error
}

// GraphicsStage records and submits the per-frame draw. The submission waits
// on the slot's compute-done semaphore at the vertex-input stage and on the
// image-available semaphore at the color-output stage, and signals the
// render-done semaphore the presentation engine waits on.
type GraphicsStage interface {
	Submit(slot int, imageIndex uint32) error
}

// Surface is the presentable-surface abstraction supplied by the swapchain
// bootstrap.
type Surface interface {
	// Acquire obtains the next presentable image, signaling the slot's
	// image-available semaphore once the image is free. StatusOutdated means
	// no image was acquired.
	Acquire(slot int) (imageIndex uint32, status Status, err error)

	// Present queues the image for presentation, waiting on the slot's
	// render-done semaphore.
	Present(slot int, imageIndex uint32) (Status, error)
}

// Device exposes the one whole-device operation the scheduler needs: the
// full drain before resources may be destroyed.
type Device interface {
	WaitIdle() error
}

// Options configures a Scheduler. Sync, Compute, Graphics, Surface, Device
// and Rebuild are required.
type Options struct {
	Sync     *SyncSet
	Compute  ComputeStage
	Graphics GraphicsStage
	Surface  Surface
	Device   Device

	// Rebuild recreates the swapchain-dependent resources after a resize or
	// surface invalidation. Particle buffers and their contents must not be
	// touched by it.
	Rebuild func() error

	// WaitTimeout bounds every fence wait. Zero or negative waits without
	// bound, reproducing the original behavior of hanging on a lost device.
	WaitTimeout time.Duration

	Log *zap.Logger
}

// Scheduler sequences one simulation-and-render frame per AdvanceFrame call.
// It is driven from a single thread; the pipelining happens on the device,
// where slot i+1's compute work may start while slot i's draw is still
// executing.
type Scheduler struct {
	sync     *SyncSet
	compute  ComputeStage
	graphics GraphicsStage
	surface  Surface
	device   Device
	rebuild  func() error
	timeout  time.Duration
	log      *zap.Logger

	slot    int
	resized atomic.Bool
}

// NewScheduler validates the options and returns a scheduler starting at
// slot zero.
func NewScheduler(opts Options) (*Scheduler, error) {
	if opts.Sync == nil {
		return nil, fmt.Errorf("a sync set is required")
	}
	if opts.Compute == nil || opts.Graphics == nil {
		return nil, fmt.Errorf("both a compute and a graphics stage are required")
	}
	if opts.Surface == nil {
		return nil, fmt.Errorf("a surface is required")
	}
	if opts.Device == nil {
		return nil, fmt.Errorf("a device is required")
	}
	if opts.Rebuild == nil {
		return nil, fmt.Errorf("a swapchain rebuild function is required")
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Scheduler{
		sync:     opts.Sync,
		compute:  opts.Compute,
		graphics: opts.Graphics,
		surface:  opts.Surface,
		device:   opts.Device,
		rebuild:  opts.Rebuild,
		timeout:  opts.WaitTimeout,
		log:      log,
	}, nil
}

// Slot returns the frame slot the next AdvanceFrame call will use.
func (s *Scheduler) Slot() int {
	return s.slot
}

// NotifyResize flags that the window surface changed size. The swapchain is
// rebuilt after the next presented frame. Safe to call from a window-system
// callback while AdvanceFrame runs on the driving thread.
func (s *Scheduler) NotifyResize() {
	s.resized.Store(true)
}

// AdvanceFrame runs one frame: it gates on the slot's fences, submits the
// compute pass for this slot (reading the previous slot's particle buffer,
// writing this slot's), submits the graphics pass reading the freshly
// written buffer, and presents the result.
//
// When image acquisition reports the surface outdated the frame is aborted
// before any graphics work, the swapchain is rebuilt and the slot index is
// left untouched so the next call retries the same frame. A rebuild
// triggered at present time still counts as a completed frame and the slot
// advances.
//
// Any error is fatal per the submission error taxonomy; the scheduler makes
// no attempt to retry.
func (s *Scheduler) AdvanceFrame(delta float32) (Result, error) {
	slot := s.slot

	// Compute submission.
	if err := s.sync.Compute(slot).Wait(s.timeout); err != nil {
		return 0, fmt.Errorf("waiting on compute fence of slot %d: %w", slot, err)
	}

	s.compute.UpdateUniform(slot, delta)

	if err := s.sync.Compute(slot).Reset(); err != nil {
		return 0, fmt.Errorf("resetting compute fence of slot %d: %w", slot, err)
	}

	if err := s.compute.Submit(slot); err != nil {
		return 0, fmt.Errorf("compute submit for slot %d: %w", slot, err)
	}

	// Graphics submission.
	if err := s.sync.Graphics(slot).Wait(s.timeout); err != nil {
		return 0, fmt.Errorf("waiting on graphics fence of slot %d: %w", slot, err)
	}

	imageIndex, status, err := s.surface.Acquire(slot)
	if err != nil {
		return 0, fmt.Errorf("acquiring swapchain image: %w", err)
	}
	if status == StatusOutdated {
		s.log.Debug("surface outdated on acquire, rebuilding swapchain",
			zap.Int("slot", slot),
		)
		if err := s.rebuild(); err != nil {
			return 0, fmt.Errorf("rebuilding swapchain: %w", err)
		}
		return ResultSwapchainRebuilt, nil
	}

	if err := s.sync.Graphics(slot).Reset(); err != nil {
		return 0, fmt.Errorf("resetting graphics fence of slot %d: %w", slot, err)
	}

	if err := s.graphics.Submit(slot, imageIndex); err != nil {
		return 0, fmt.Errorf("graphics submit for slot %d: %w", slot, err)
	}

	status, err = s.surface.Present(slot, imageIndex)
	if err != nil {
		return 0, fmt.Errorf("presenting swapchain image %d: %w", imageIndex, err)
	}

	// Consume the resize flag regardless of the present status. A rebuild
	// triggered by an outdated present already covers a pending resize and
	// leaving the flag set would force a second rebuild next frame.
	resized := s.resized.Swap(false)

	result := ResultRendered
	if status == StatusOutdated || status == StatusSuboptimal || resized {
		s.log.Debug("rebuilding swapchain after present",
			zap.Int("slot", slot),
			zap.Bool("suboptimal", status == StatusSuboptimal),
		)
		if err := s.rebuild(); err != nil {
			return 0, fmt.Errorf("rebuilding swapchain: %w", err)
		}
		result = ResultSwapchainRebuilt
	}

	s.slot = (slot + 1) % s.sync.Slots()
	return result, nil
}

// Shutdown drains all in-flight device work. It must be called before any
// per-frame resource is destroyed since a submitted but unretired command
// buffer may still reference them.
func (s *Scheduler) Shutdown() error {
	if err := s.device.WaitIdle(); err != nil {
		return fmt.Errorf("draining device: %w", err)
	}
	return nil
}
