package frame

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callLog records every scheduler-driven call in order so tests can assert
// the exact frame choreography.
type callLog struct {
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

type fakeFence struct {
	log  *callLog
	name string

	waits   int
	resets  int
	waitErr error
}

func (f *fakeFence) Wait(timeout time.Duration) error {
	f.waits++
	f.log.add("%s.wait", f.name)
	return f.waitErr
}

func (f *fakeFence) Reset() error {
	f.resets++
	f.log.add("%s.reset", f.name)
	return nil
}

type fakeCompute struct {
	log *callLog

	lastDelta float32
	submits   int
	submitErr error
}

func (c *fakeCompute) UpdateUniform(slot int, delta float32) {
	c.lastDelta = delta
	c.log.add("compute.update[%d]", slot)
}

func (c *fakeCompute) Submit(slot int) error {
	c.submits++
	c.log.add("compute.submit[%d]", slot)
	return c.submitErr
}

type fakeGraphics struct {
	log *callLog

	submits    int
	lastImage  uint32
	submitErr  error
	submitSlot int
}

func (g *fakeGraphics) Submit(slot int, imageIndex uint32) error {
	g.submits++
	g.submitSlot = slot
	g.lastImage = imageIndex
	g.log.add("graphics.submit[%d]", slot)
	return g.submitErr
}

// fakeSurface plays back a scripted sequence of acquire and present
// statuses, repeating the last entry once the script runs out.
type fakeSurface struct {
	log *callLog

	acquireScript []Status
	presentScript []Status
	acquires      int
	presents      int
}

func scriptAt(script []Status, n int) Status {
	if len(script) == 0 {
		return StatusOK
	}
	if n >= len(script) {
		return script[len(script)-1]
	}
	return script[n]
}

func (s *fakeSurface) Acquire(slot int) (uint32, Status, error) {
	status := scriptAt(s.acquireScript, s.acquires)
	s.acquires++
	s.log.add("surface.acquire[%d]", slot)
	if status == StatusOutdated {
		return 0, status, nil
	}
	return uint32(s.acquires), status, nil
}

func (s *fakeSurface) Present(slot int, imageIndex uint32) (Status, error) {
	status := scriptAt(s.presentScript, s.presents)
	s.presents++
	s.log.add("surface.present[%d]", slot)
	return status, nil
}

type fakeDevice struct {
	waits int
}

func (d *fakeDevice) WaitIdle() error {
	d.waits++
	return nil
}

// harness bundles a scheduler with all its fakes.
type harness struct {
	log      *callLog
	compute  *fakeCompute
	graphics *fakeGraphics
	surface  *fakeSurface
	device   *fakeDevice

	computeFences  []*fakeFence
	graphicsFences []*fakeFence

	rebuilds int

	scheduler *Scheduler
}

func newHarness(t *testing.T, slots int) *harness {
	t.Helper()

	log := &callLog{}
	h := &harness{
		log:      log,
		compute:  &fakeCompute{log: log},
		graphics: &fakeGraphics{log: log},
		surface:  &fakeSurface{log: log},
		device:   &fakeDevice{},
	}

	computeFences := make([]Fence, slots)
	graphicsFences := make([]Fence, slots)
	for i := 0; i < slots; i++ {
		cf := &fakeFence{log: log, name: fmt.Sprintf("computeFence[%d]", i)}
		gf := &fakeFence{log: log, name: fmt.Sprintf("graphicsFence[%d]", i)}
		h.computeFences = append(h.computeFences, cf)
		h.graphicsFences = append(h.graphicsFences, gf)
		computeFences[i] = cf
		graphicsFences[i] = gf
	}

	sync, err := NewSyncSet(computeFences, graphicsFences)
	require.NoError(t, err)

	h.scheduler, err = NewScheduler(Options{
		Sync:     sync,
		Compute:  h.compute,
		Graphics: h.graphics,
		Surface:  h.surface,
		Device:   h.device,
		Rebuild: func() error {
			h.rebuilds++
			h.log.add("rebuild")
			return nil
		},
	})
	require.NoError(t, err)

	return h
}

func TestAdvanceFrameOrdering(t *testing.T) {
	h := newHarness(t, 2)

	result, err := h.scheduler.AdvanceFrame(16.6)
	require.NoError(t, err)
	assert.Equal(t, ResultRendered, result)

	// The compute side of the slot must be fully submitted before the
	// graphics side touches anything, and the graphics fence may only be
	// reset once an image was actually acquired.
	assert.Equal(t, []string{
		"computeFence[0].wait",
		"compute.update[0]",
		"computeFence[0].reset",
		"compute.submit[0]",
		"graphicsFence[0].wait",
		"surface.acquire[0]",
		"graphicsFence[0].reset",
		"graphics.submit[0]",
		"surface.present[0]",
	}, h.log.calls)
}

func TestSlotRotation(t *testing.T) {
	for _, slots := range []int{2, 3} {
		t.Run(fmt.Sprintf("%d_slots", slots), func(t *testing.T) {
			h := newHarness(t, slots)

			for i := 0; i < slots*3; i++ {
				require.Equal(t, i%slots, h.scheduler.Slot())

				result, err := h.scheduler.AdvanceFrame(1)
				require.NoError(t, err)
				require.Equal(t, ResultRendered, result)
			}
		})
	}
}

func TestFenceUseIsOnePerFrame(t *testing.T) {
	h := newHarness(t, 2)

	const frames = 6
	for i := 0; i < frames; i++ {
		_, err := h.scheduler.AdvanceFrame(1)
		require.NoError(t, err)
	}

	for i, fence := range h.computeFences {
		assert.Equal(t, frames/2, fence.waits, "compute fence %d waits", i)
		assert.Equal(t, frames/2, fence.resets, "compute fence %d resets", i)
	}
	for i, fence := range h.graphicsFences {
		assert.Equal(t, frames/2, fence.waits, "graphics fence %d waits", i)
		assert.Equal(t, frames/2, fence.resets, "graphics fence %d resets", i)
	}
}

func TestAcquireOutdatedAbortsFrame(t *testing.T) {
	h := newHarness(t, 2)

	// Four clean frames, then the surface reports outdated on acquire.
	h.surface.acquireScript = []Status{
		StatusOK, StatusOK, StatusOK, StatusOK, StatusOutdated, StatusOK,
	}

	for i := 0; i < 4; i++ {
		_, err := h.scheduler.AdvanceFrame(1)
		require.NoError(t, err)
	}

	slotBefore := h.scheduler.Slot()
	graphicsSubmitsBefore := h.graphics.submits
	graphicsResetsBefore := h.graphicsFences[slotBefore].resets

	result, err := h.scheduler.AdvanceFrame(1)
	require.NoError(t, err)
	assert.Equal(t, ResultSwapchainRebuilt, result)
	assert.Equal(t, 1, h.rebuilds)

	// The aborted frame must not submit graphics work, must not reset the
	// graphics fence and must not advance the slot.
	assert.Equal(t, graphicsSubmitsBefore, h.graphics.submits)
	assert.Equal(t, graphicsResetsBefore, h.graphicsFences[slotBefore].resets)
	assert.Equal(t, slotBefore, h.scheduler.Slot())

	// The retry renders the same slot.
	result, err = h.scheduler.AdvanceFrame(1)
	require.NoError(t, err)
	assert.Equal(t, ResultRendered, result)
	assert.Equal(t, slotBefore, h.graphics.submitSlot)
}

func TestPresentSuboptimalRebuildsAndAdvances(t *testing.T) {
	h := newHarness(t, 2)
	h.surface.presentScript = []Status{StatusSuboptimal, StatusOK}

	result, err := h.scheduler.AdvanceFrame(1)
	require.NoError(t, err)
	assert.Equal(t, ResultSwapchainRebuilt, result)
	assert.Equal(t, 1, h.rebuilds)

	// Unlike an acquire failure the frame completed, so the slot moves on.
	assert.Equal(t, 1, h.graphics.submits)
	assert.Equal(t, 1, h.scheduler.Slot())
}

func TestResizeNotificationRebuildsAfterPresent(t *testing.T) {
	h := newHarness(t, 2)

	h.scheduler.NotifyResize()

	result, err := h.scheduler.AdvanceFrame(1)
	require.NoError(t, err)
	assert.Equal(t, ResultSwapchainRebuilt, result)
	assert.Equal(t, 1, h.rebuilds)
	assert.Equal(t, 1, h.scheduler.Slot())

	// The flag is consumed; the next frame renders normally.
	result, err = h.scheduler.AdvanceFrame(1)
	require.NoError(t, err)
	assert.Equal(t, ResultRendered, result)
	assert.Equal(t, 1, h.rebuilds)
}

func TestResizeFlagConsumedByPresentRebuild(t *testing.T) {
	h := newHarness(t, 2)
	h.surface.presentScript = []Status{StatusOutdated, StatusOK}

	// A resize lands while the frame whose present comes back outdated is
	// in flight. The outdated present already rebuilds, which covers the
	// resize as well.
	h.scheduler.NotifyResize()

	result, err := h.scheduler.AdvanceFrame(1)
	require.NoError(t, err)
	assert.Equal(t, ResultSwapchainRebuilt, result)
	assert.Equal(t, 1, h.rebuilds)

	result, err = h.scheduler.AdvanceFrame(1)
	require.NoError(t, err)
	assert.Equal(t, ResultRendered, result)
	assert.Equal(t, 1, h.rebuilds, "healthy frame must not rebuild again")
}

func TestZeroDeltaStillSimulates(t *testing.T) {
	h := newHarness(t, 2)

	result, err := h.scheduler.AdvanceFrame(0)
	require.NoError(t, err)
	assert.Equal(t, ResultRendered, result)

	assert.Equal(t, float32(0), h.compute.lastDelta)
	assert.Equal(t, 1, h.compute.submits)
	assert.Equal(t, 1, h.graphics.submits)
}

func TestFenceTimeoutIsDeviceLost(t *testing.T) {
	h := newHarness(t, 2)
	h.computeFences[0].waitErr = ErrDeviceLost

	_, err := h.scheduler.AdvanceFrame(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceLost))

	// Nothing was submitted for the failed frame.
	assert.Equal(t, 0, h.compute.submits)
	assert.Equal(t, 0, h.graphics.submits)
}

func TestSubmitErrorsAreFatal(t *testing.T) {
	submitErr := errors.New("submit failed")

	t.Run("compute", func(t *testing.T) {
		h := newHarness(t, 2)
		h.compute.submitErr = submitErr

		_, err := h.scheduler.AdvanceFrame(1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, submitErr))
		assert.Equal(t, 0, h.graphics.submits)
	})

	t.Run("graphics", func(t *testing.T) {
		h := newHarness(t, 2)
		h.graphics.submitErr = submitErr

		_, err := h.scheduler.AdvanceFrame(1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, submitErr))
		assert.Equal(t, 0, h.surface.presents)
	})
}

func TestShutdownDrainsDevice(t *testing.T) {
	h := newHarness(t, 2)

	_, err := h.scheduler.AdvanceFrame(1)
	require.NoError(t, err)

	require.NoError(t, h.scheduler.Shutdown())
	assert.Equal(t, 1, h.device.waits)
}

func TestNewSchedulerValidation(t *testing.T) {
	h := newHarness(t, 2)
	valid := Options{
		Sync:     h.scheduler.sync,
		Compute:  h.compute,
		Graphics: h.graphics,
		Surface:  h.surface,
		Device:   h.device,
		Rebuild:  func() error { return nil },
	}

	_, err := NewScheduler(valid)
	require.NoError(t, err)

	mutations := map[string]func(*Options){
		"sync":     func(o *Options) { o.Sync = nil },
		"compute":  func(o *Options) { o.Compute = nil },
		"graphics": func(o *Options) { o.Graphics = nil },
		"surface":  func(o *Options) { o.Surface = nil },
		"device":   func(o *Options) { o.Device = nil },
		"rebuild":  func(o *Options) { o.Rebuild = nil },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			opts := valid
			mutate(&opts)

			_, err := NewScheduler(opts)
			assert.Error(t, err)
		})
	}
}
