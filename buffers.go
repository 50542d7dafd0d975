package main

import (
	"fmt"
	"math/rand"
	"unsafe"

	"gpuparticles/frame"
	"gpuparticles/models"
	"gpuparticles/particle"
	"gpuparticles/unsafer"

	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

func (a *ParticleApp) createBuffer(
	size vk.DeviceSize,
	usage vk.BufferUsageFlags,
	properties vk.MemoryPropertyFlags,
	buffer *vk.Buffer,
	bufferMemory *vk.DeviceMemory,
) error {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	res := vk.CreateBuffer(a.device, &bufferInfo, nil, buffer)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to create buffer: %w", err)
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(a.device, *buffer, &memRequirements)
	memRequirements.Deref()

	memTypeIndex, err := a.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		return err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}

	res = vk.AllocateMemory(a.device, &allocInfo, nil, bufferMemory)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to allocate buffer memory: %w", err)
	}

	res = vk.BindBufferMemory(a.device, *buffer, *bufferMemory, 0)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to bind buffer memory: %w", err)
	}

	return nil
}

func (a *ParticleApp) findMemoryType(
	typeFilter uint32,
	properties vk.MemoryPropertyFlags,
) (uint32, error) {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(a.physicalDevice, &memProperties)
	memProperties.Deref()

	for i := uint32(0); i < memProperties.MemoryTypeCount; i++ {
		memType := memProperties.MemoryTypes[i]
		memType.Deref()

		if typeFilter&(1<<i) == 0 {
			continue
		}

		if memType.PropertyFlags&properties != properties {
			continue
		}

		return i, nil
	}

	return 0, fmt.Errorf("failed to find suitable memory type")
}

func (a *ParticleApp) beginSingleTimeCommands() (vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        a.commandPool,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(a.device, &allocInfo, commandBuffers)
	if err := vk.Error(res); err != nil {
		return nil, fmt.Errorf("failed to allocate command buffer: %w", err)
	}

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}

	res = vk.BeginCommandBuffer(commandBuffers[0], &beginInfo)
	if err := vk.Error(res); err != nil {
		return nil, fmt.Errorf("failed to begin command buffer: %w", err)
	}

	return commandBuffers[0], nil
}

func (a *ParticleApp) endSingleTimeCommands(commandBuffer vk.CommandBuffer) error {
	res := vk.EndCommandBuffer(commandBuffer)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to end command buffer: %w", err)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer},
	}

	res = vk.QueueSubmit(a.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to submit command buffer: %w", err)
	}

	res = vk.QueueWaitIdle(a.graphicsQueue)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed waiting for the graphics queue: %w", err)
	}

	vk.FreeCommandBuffers(a.device, a.commandPool, 1, []vk.CommandBuffer{commandBuffer})

	return nil
}

func (a *ParticleApp) copyBuffer(
	srcBuffer vk.Buffer,
	dstBuffer vk.Buffer,
	size vk.DeviceSize,
) error {
	commandBuffer, err := a.beginSingleTimeCommands()
	if err != nil {
		return err
	}

	copyRegion := vk.BufferCopy{
		Size: size,
	}
	vk.CmdCopyBuffer(commandBuffer, srcBuffer, dstBuffer, 1, []vk.BufferCopy{copyRegion})

	return a.endSingleTimeCommands(commandBuffer)
}

// seedParticles produces the initial particle state, either on a disc around
// the screen centre or sampled from the vertices of the embedded emitter
// model, depending on the configuration.
func (a *ParticleApp) seedParticles() ([]particle.Particle, error) {
	aspect := float32(a.cfg.Screen.Height) / float32(a.cfg.Screen.Width)
	rnd := rand.New(rand.NewSource(rand.Int63()))

	if !a.cfg.Emitter.FromModel {
		return particle.Seed(a.cfg.Particles.Count, aspect, rnd), nil
	}

	fh, err := models.FS.Open("emitter.obj")
	if err != nil {
		return nil, fmt.Errorf("failed to open emitter model: %w", err)
	}
	defer fh.Close()

	particles, err := particle.SeedFromMesh(fh, a.cfg.Particles.Count, aspect, rnd)
	if err != nil {
		return nil, fmt.Errorf("seeding particles from emitter model: %w", err)
	}

	return particles, nil
}

// createParticleBuffers uploads the seeded particle state into one
// device-local storage buffer per frame slot. Every buffer starts with the
// same contents so the first dispatch in any slot reads a fully initialised
// previous-frame state.
func (a *ParticleApp) createParticleBuffers() error {
	particles, err := a.seedParticles()
	if err != nil {
		return err
	}

	a.log.Info("seeded particle state",
		zap.Int("particles", len(particles)),
		zap.Bool("fromModel", a.cfg.Emitter.FromModel),
	)

	bufferSize := vk.DeviceSize(len(particles)) * vk.DeviceSize(getParticleSize())

	var (
		stagingBuffer       vk.Buffer
		stagingBufferMemory vk.DeviceMemory
	)

	err = a.createBuffer(
		bufferSize,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(
			vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit,
		),
		&stagingBuffer,
		&stagingBufferMemory,
	)
	if err != nil {
		return fmt.Errorf("creating particle staging buffer: %w", err)
	}
	defer func() {
		vk.DestroyBuffer(a.device, stagingBuffer, nil)
		vk.FreeMemory(a.device, stagingBufferMemory, nil)
	}()

	var pData unsafe.Pointer
	res := vk.MapMemory(a.device, stagingBufferMemory, 0, bufferSize, 0, &pData)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to map staging buffer memory: %w", err)
	}
	vk.Memcopy(pData, unsafer.SliceToBytes(particles))
	vk.UnmapMemory(a.device, stagingBufferMemory)

	slots := a.cfg.Frames.InFlight
	buffers := make([]vk.Buffer, slots)
	memories := make([]vk.DeviceMemory, slots)

	for i := 0; i < slots; i++ {
		err = a.createBuffer(
			bufferSize,
			vk.BufferUsageFlags(
				vk.BufferUsageStorageBufferBit|
					vk.BufferUsageVertexBufferBit|
					vk.BufferUsageTransferDstBit,
			),
			vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
			&buffers[i],
			&memories[i],
		)
		if err != nil {
			return fmt.Errorf("creating particle buffer %d: %w", i, err)
		}

		if err := a.copyBuffer(stagingBuffer, buffers[i], bufferSize); err != nil {
			return fmt.Errorf("uploading particle buffer %d: %w", i, err)
		}
	}

	a.particleBuffers = frame.NewRing(buffers)
	a.particleBuffersMemory = frame.NewRing(memories)

	return nil
}

// createUniformBuffers allocates one persistently mapped uniform buffer per
// frame slot. The mapping is held for the lifetime of the application so
// per-frame parameter updates are a single memcopy.
func (a *ParticleApp) createUniformBuffers() error {
	bufferSize := vk.DeviceSize(unsafe.Sizeof(UniformBufferObject{}))

	slots := a.cfg.Frames.InFlight
	buffers := make([]vk.Buffer, slots)
	memories := make([]vk.DeviceMemory, slots)
	mapped := make([]unsafe.Pointer, slots)

	for i := 0; i < slots; i++ {
		err := a.createBuffer(
			bufferSize,
			vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
			vk.MemoryPropertyFlags(
				vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit,
			),
			&buffers[i],
			&memories[i],
		)
		if err != nil {
			return fmt.Errorf("creating uniform buffer %d: %w", i, err)
		}

		res := vk.MapMemory(a.device, memories[i], 0, bufferSize, 0, &mapped[i])
		if err := vk.Error(res); err != nil {
			return fmt.Errorf("failed to map uniform buffer %d: %w", i, err)
		}
	}

	a.uniformBuffers = frame.NewRing(buffers)
	a.uniformBuffersMemory = frame.NewRing(memories)
	a.uniformBuffersMapped = frame.NewRing(mapped)

	return nil
}

func (a *ParticleApp) createDescriptorPool() error {
	slots := uint32(a.cfg.Frames.InFlight)

	poolSizes := []vk.DescriptorPoolSize{
		{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: slots,
		},
		{
			// Every set references two storage buffers: the previous
			// slot's particles and its own.
			Type:            vk.DescriptorTypeStorageBuffer,
			DescriptorCount: slots * 2,
		},
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       slots,
	}

	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(a.device, &poolInfo, nil, &pool)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to create descriptor pool: %w", err)
	}
	a.descriptorPool = pool

	return nil
}

// createComputeDescriptorSets allocates and writes one descriptor set per
// frame slot. The set for slot i binds slot i-1's particle buffer as the
// read buffer and slot i's as the write buffer, which is what lets the
// simulation ping-pong between buffers without any per-frame descriptor
// updates.
func (a *ParticleApp) createComputeDescriptorSets() error {
	slots := a.cfg.Frames.InFlight

	layouts := make([]vk.DescriptorSetLayout, slots)
	for i := range layouts {
		layouts[i] = a.computeDescriptorSetLayout
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     a.descriptorPool,
		DescriptorSetCount: uint32(slots),
		PSetLayouts:        layouts,
	}

	sets := make([]vk.DescriptorSet, slots)
	res := vk.AllocateDescriptorSets(a.device, &allocInfo, &sets[0])
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to allocate compute descriptor sets: %w", err)
	}

	uboSize := vk.DeviceSize(unsafe.Sizeof(UniformBufferObject{}))
	particlesSize := vk.DeviceSize(a.cfg.Particles.Count) *
		vk.DeviceSize(getParticleSize())

	for i := 0; i < slots; i++ {
		uniformBufferInfo := vk.DescriptorBufferInfo{
			Buffer: a.uniformBuffers.At(i),
			Offset: 0,
			Range:  uboSize,
		}

		prevParticleBufferInfo := vk.DescriptorBufferInfo{
			Buffer: a.particleBuffers.Prev(i),
			Offset: 0,
			Range:  particlesSize,
		}

		currParticleBufferInfo := vk.DescriptorBufferInfo{
			Buffer: a.particleBuffers.At(i),
			Offset: 0,
			Range:  particlesSize,
		}

		descriptorWrites := []vk.WriteDescriptorSet{
			{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          sets[i],
				DstBinding:      0,
				DstArrayElement: 0,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				PBufferInfo:     []vk.DescriptorBufferInfo{uniformBufferInfo},
			},
			{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          sets[i],
				DstBinding:      1,
				DstArrayElement: 0,
				DescriptorType:  vk.DescriptorTypeStorageBuffer,
				DescriptorCount: 1,
				PBufferInfo:     []vk.DescriptorBufferInfo{prevParticleBufferInfo},
			},
			{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          sets[i],
				DstBinding:      2,
				DstArrayElement: 0,
				DescriptorType:  vk.DescriptorTypeStorageBuffer,
				DescriptorCount: 1,
				PBufferInfo:     []vk.DescriptorBufferInfo{currParticleBufferInfo},
			},
		}

		vk.UpdateDescriptorSets(
			a.device,
			uint32(len(descriptorWrites)),
			descriptorWrites,
			0,
			nil,
		)
	}

	a.computeDescriptorSets = frame.NewRing(sets)

	return nil
}

func (a *ParticleApp) createCommandBuffers() error {
	slots := a.cfg.Frames.InFlight

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        a.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(slots),
	}

	graphicsBuffers := make([]vk.CommandBuffer, slots)
	res := vk.AllocateCommandBuffers(a.device, &allocInfo, graphicsBuffers)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to allocate graphics command buffers: %w", err)
	}

	computeBuffers := make([]vk.CommandBuffer, slots)
	res = vk.AllocateCommandBuffers(a.device, &allocInfo, computeBuffers)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to allocate compute command buffers: %w", err)
	}

	a.commandBuffers = frame.NewRing(graphicsBuffers)
	a.computeCommandBuffers = frame.NewRing(computeBuffers)

	return nil
}

// createSyncObjects creates the per-slot synchronisation primitives. Both
// fence families start signalled so the first pass through each slot does
// not block on work that was never submitted.
func (a *ParticleApp) createSyncObjects() error {
	slots := a.cfg.Frames.InFlight

	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	imageAvailable := make([]vk.Semaphore, slots)
	renderFinished := make([]vk.Semaphore, slots)
	computeFinished := make([]vk.Semaphore, slots)
	inFlight := make([]vk.Fence, slots)
	computeInFlight := make([]vk.Fence, slots)

	for i := 0; i < slots; i++ {
		res := vk.CreateSemaphore(a.device, &semaphoreInfo, nil, &imageAvailable[i])
		if err := vk.Error(res); err != nil {
			return fmt.Errorf("failed to create imageAvailable semaphore: %w", err)
		}

		res = vk.CreateSemaphore(a.device, &semaphoreInfo, nil, &renderFinished[i])
		if err := vk.Error(res); err != nil {
			return fmt.Errorf("failed to create renderFinished semaphore: %w", err)
		}

		res = vk.CreateSemaphore(a.device, &semaphoreInfo, nil, &computeFinished[i])
		if err := vk.Error(res); err != nil {
			return fmt.Errorf("failed to create computeFinished semaphore: %w", err)
		}

		res = vk.CreateFence(a.device, &fenceInfo, nil, &inFlight[i])
		if err := vk.Error(res); err != nil {
			return fmt.Errorf("failed to create inFlight fence: %w", err)
		}

		res = vk.CreateFence(a.device, &fenceInfo, nil, &computeInFlight[i])
		if err := vk.Error(res); err != nil {
			return fmt.Errorf("failed to create computeInFlight fence: %w", err)
		}
	}

	a.imageAvailableSems = frame.NewRing(imageAvailable)
	a.renderFinishedSems = frame.NewRing(renderFinished)
	a.computeFinishedSems = frame.NewRing(computeFinished)
	a.inFlightFences = frame.NewRing(inFlight)
	a.computeInFlightFences = frame.NewRing(computeInFlight)

	return nil
}
