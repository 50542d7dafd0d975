package main

import (
	"fmt"
	"math"
	"time"

	"gpuparticles/frame"
	"gpuparticles/particle"
	"gpuparticles/unsafer"

	vk "github.com/vulkan-go/vulkan"
)

// vkFence adapts a Vulkan fence to the frame package's Fence interface.
type vkFence struct {
	device vk.Device
	fence  vk.Fence
}

func (f *vkFence) Wait(timeout time.Duration) error {
	timeoutNs := uint64(math.MaxUint64)
	if timeout > 0 {
		timeoutNs = uint64(timeout.Nanoseconds())
	}

	res := vk.WaitForFences(f.device, 1, []vk.Fence{f.fence}, vk.True, timeoutNs)
	if res == vk.Timeout {
		return frame.ErrDeviceLost
	}
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("waiting for fence: %w", err)
	}

	return nil
}

func (f *vkFence) Reset() error {
	res := vk.ResetFences(f.device, 1, []vk.Fence{f.fence})
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("resetting fence: %w", err)
	}

	return nil
}

// computeStage owns the simulation side of a frame: the uniform updates, the
// compute command buffers and the compute queue submissions.
type computeStage struct {
	app *ParticleApp
}

func (c *computeStage) UpdateUniform(slot int, delta float32) {
	a := c.app

	ubo := UniformBufferObject{
		deltaTime:     delta,
		particleCount: uint32(a.cfg.Particles.Count),
	}

	vk.Memcopy(a.uniformBuffersMapped.At(slot), unsafer.StructToBytes(&ubo))
}

func (c *computeStage) Submit(slot int) error {
	a := c.app

	commandBuffer := a.computeCommandBuffers.At(slot)

	vk.ResetCommandBuffer(commandBuffer, 0)
	if err := c.recordCommandBuffer(commandBuffer, slot); err != nil {
		return fmt.Errorf("recording compute command buffer: %w", err)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores: []vk.Semaphore{
			a.computeFinishedSems.At(slot),
		},
	}

	res := vk.QueueSubmit(
		a.computeQueue,
		1,
		[]vk.SubmitInfo{submitInfo},
		a.computeInFlightFences.At(slot),
	)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("compute queue submit error: %w", err)
	}

	return nil
}

func (c *computeStage) recordCommandBuffer(
	commandBuffer vk.CommandBuffer,
	slot int,
) error {
	a := c.app

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}

	res := vk.BeginCommandBuffer(commandBuffer, &beginInfo)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("cannot add begin command to the buffer: %w", err)
	}

	vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointCompute, a.computePipeline)
	vk.CmdBindDescriptorSets(
		commandBuffer,
		vk.PipelineBindPointCompute,
		a.computePipelineLayout,
		0,
		1,
		[]vk.DescriptorSet{a.computeDescriptorSets.At(slot)},
		0,
		nil,
	)

	groups := particle.GroupCount(a.cfg.Particles.Count, a.cfg.Particles.WorkgroupSize)
	vk.CmdDispatch(commandBuffer, uint32(groups), 1, 1)

	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return fmt.Errorf("recording commands to buffer failed: %w", err)
	}
	return nil
}

// graphicsStage owns the draw side of a frame. Its submission waits on the
// slot's compute-done semaphore before vertex input so the draw reads a fully
// written particle buffer, and on the image-available semaphore before any
// color output.
type graphicsStage struct {
	app *ParticleApp
}

func (g *graphicsStage) Submit(slot int, imageIndex uint32) error {
	a := g.app

	commandBuffer := a.commandBuffers.At(slot)

	vk.ResetCommandBuffer(commandBuffer, 0)
	if err := g.recordCommandBuffer(commandBuffer, slot, imageIndex); err != nil {
		return fmt.Errorf("recording graphics command buffer: %w", err)
	}

	waitSemaphores := []vk.Semaphore{
		a.computeFinishedSems.At(slot),
		a.imageAvailableSems.At(slot),
	}
	waitStages := []vk.PipelineStageFlags{
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
	}

	signalSemaphores := []vk.Semaphore{
		a.renderFinishedSems.At(slot),
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer},
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	res := vk.QueueSubmit(
		a.graphicsQueue,
		1,
		[]vk.SubmitInfo{submitInfo},
		a.inFlightFences.At(slot),
	)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("graphics queue submit error: %w", err)
	}

	return nil
}

func (g *graphicsStage) recordCommandBuffer(
	commandBuffer vk.CommandBuffer,
	slot int,
	imageIndex uint32,
) error {
	a := g.app

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}

	res := vk.BeginCommandBuffer(commandBuffer, &beginInfo)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("cannot add begin command to the buffer: %w", err)
	}

	clearColor := vk.NewClearValue([]float32{0, 0, 0, 1})

	renderPassInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  a.renderPass,
		Framebuffer: a.swapChainFramebuffers[imageIndex],
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{
				X: 0,
				Y: 0,
			},
			Extent: a.swapChainExtend,
		},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{clearColor},
	}

	vk.CmdBeginRenderPass(commandBuffer, &renderPassInfo, vk.SubpassContentsInline)
	vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, a.graphicsPipeline)

	viewport := vk.Viewport{
		X: 0, Y: 0,
		Width:    float32(a.swapChainExtend.Width),
		Height:   float32(a.swapChainExtend.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{viewport})

	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: a.swapChainExtend,
	}
	vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{scissor})

	// The particle buffer the compute pass of this slot just wrote doubles
	// as the vertex buffer.
	vertexBuffers := []vk.Buffer{a.particleBuffers.At(slot)}
	offsets := []vk.DeviceSize{0}
	vk.CmdBindVertexBuffers(commandBuffer, 0, 1, vertexBuffers, offsets)

	vk.CmdDraw(commandBuffer, uint32(a.cfg.Particles.Count), 1, 0, 0)
	vk.CmdEndRenderPass(commandBuffer)

	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return fmt.Errorf("recording commands to buffer failed: %w", err)
	}
	return nil
}

// vkSurface adapts swapchain image acquisition and presentation to the frame
// package's Surface interface, translating Vulkan result codes into surface
// statuses.
type vkSurface struct {
	app *ParticleApp
}

func (s *vkSurface) Acquire(slot int) (uint32, frame.Status, error) {
	a := s.app

	var imageIndex uint32
	res := vk.AcquireNextImage(
		a.device,
		a.swapChain,
		math.MaxUint64,
		a.imageAvailableSems.At(slot),
		vk.NullFence,
		&imageIndex,
	)

	switch res {
	case vk.Success:
		return imageIndex, frame.StatusOK, nil
	case vk.Suboptimal:
		// A suboptimal image was still acquired and the image-available
		// semaphore will be signaled, so the frame proceeds.
		return imageIndex, frame.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return 0, frame.StatusOutdated, nil
	default:
		return 0, frame.StatusOK, fmt.Errorf(
			"failed to acquire swap chain image: %w", vk.Error(res),
		)
	}
}

func (s *vkSurface) Present(slot int, imageIndex uint32) (frame.Status, error) {
	a := s.app

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores: []vk.Semaphore{
			a.renderFinishedSems.At(slot),
		},
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{a.swapChain},
		PImageIndices:  []uint32{imageIndex},
	}

	res := vk.QueuePresent(a.presentQueue, &presentInfo)

	switch res {
	case vk.Success:
		return frame.StatusOK, nil
	case vk.Suboptimal:
		return frame.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return frame.StatusOutdated, nil
	default:
		return frame.StatusOK, fmt.Errorf(
			"failed to present swap chain image: %w", vk.Error(res),
		)
	}
}

// vkDevice adapts the whole-device drain to the frame package.
type vkDevice struct {
	device vk.Device
}

func (d *vkDevice) WaitIdle() error {
	res := vk.DeviceWaitIdle(d.device)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("device wait idle: %w", err)
	}
	return nil
}

// createScheduler assembles the frame scheduler from the per-slot fences and
// the stage adapters. It must run after createSyncObjects.
func (a *ParticleApp) createScheduler() error {
	slots := a.cfg.Frames.InFlight

	computeFences := make([]frame.Fence, slots)
	graphicsFences := make([]frame.Fence, slots)
	for i := 0; i < slots; i++ {
		computeFences[i] = &vkFence{
			device: a.device,
			fence:  a.computeInFlightFences.At(i),
		}
		graphicsFences[i] = &vkFence{
			device: a.device,
			fence:  a.inFlightFences.At(i),
		}
	}

	syncSet, err := frame.NewSyncSet(computeFences, graphicsFences)
	if err != nil {
		return fmt.Errorf("building sync set: %w", err)
	}

	scheduler, err := frame.NewScheduler(frame.Options{
		Sync:        syncSet,
		Compute:     &computeStage{app: a},
		Graphics:    &graphicsStage{app: a},
		Surface:     &vkSurface{app: a},
		Device:      &vkDevice{device: a.device},
		Rebuild:     a.recreateSwapChain,
		WaitTimeout: a.cfg.Frames.FenceTimeout(),
		Log:         a.log,
	})
	if err != nil {
		return fmt.Errorf("building frame scheduler: %w", err)
	}

	a.scheduler = scheduler
	return nil
}
