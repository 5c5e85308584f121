package vulkan

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/accel"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type frameResources struct {
	commandBuffer  *VulkanCommandBuffer
	inFlight       *VulkanFence
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	imageIndex     uint32
}

// Backend runs the ray tracing frame loop as a compute shader. The
// acceleration structures are built and refit on the CPU into host visible
// buffers the shader traverses.
type Backend struct {
	context     *VulkanContext
	surface     metadata.VulkanSurface
	timeout     time.Duration
	timeline    fenceTimeline
	uploadFence *VulkanFence
	descriptors *VulkanDescriptorSets
	frames      []*frameResources

	addresses        addressSpace
	blas             map[uint64]*blasResources
	tlasGeneration   uint64
	targetGeneration uint64
	swapchainDirty   bool
}

func New() *Backend {
	return &Backend{blas: make(map[uint64]*blasResources)}
}

func (b *Backend) Initialize(surface metadata.Surface, config *metadata.BackendConfig) error {
	vs, ok := surface.(metadata.VulkanSurface)
	if !ok {
		return core.CapabilityError("surface %T cannot back a Vulkan swapchain", surface)
	}
	b.surface = vs
	b.timeout = config.FenceTimeout

	context := NewVulkanContext()
	b.context = context
	if err := context.CreateInstance(config.ApplicationName, vs.RequiredInstanceExtensions(), config.Validation); err != nil {
		return err
	}

	core.LogDebug("Creating Vulkan surface...")
	handle, err := vs.CreateVulkanSurface(context.Instance)
	if err != nil {
		return errors.Wrap(err, "creating window surface")
	}
	context.Surface = vk.SurfaceFromPointer(handle)

	context.Device = &VulkanDevice{ComputeQueueIndex: -1, PresentQueueIndex: -1}
	if err := DeviceCreate(context); err != nil {
		return err
	}

	width, height := vs.FramebufferSize()
	context.FramebufferWidth, context.FramebufferHeight = max(width, 1), max(height, 1)
	if context.Swapchain, err = SwapchainCreate(context, context.FramebufferWidth, context.FramebufferHeight); err != nil {
		return err
	}

	slots := uint32(max(config.FramesInFlight, 1))
	if b.descriptors, err = NewDescriptorSets(context, slots); err != nil {
		return err
	}
	if b.uploadFence, err = NewFence(context, false); err != nil {
		return err
	}
	core.LogInfo("vulkan backend initialized on %s: %dx%d, %d frames in flight", context.Device.Name, width, height, slots)
	return nil
}

func (b *Backend) Info() metadata.DeviceInfo {
	info := metadata.DeviceInfo{
		Backend:                "vulkan",
		DeviceName:             "not initialized",
		MaxTraceRecursionDepth: metadata.MaxTraceRecursionLimit,
		MinUpdateScratchSize:   UpdateScratchRequirement,
	}
	if b.context != nil && b.context.Device != nil && b.context.Device.Name != "" {
		info.DeviceName = b.context.Device.Name
		info.MemoryBudget = b.context.Device.LocalMemory
	}
	return info
}

func (b *Backend) timeoutNS() uint64 {
	if b.timeout <= 0 {
		return ^uint64(0)
	}
	return uint64(b.timeout.Nanoseconds())
}

// flushHostWrites submits a host to compute barrier and waits for it, which
// makes writes to mapped buffers visible before the next dispatch.
func (b *Backend) flushHostWrites() error {
	device := b.context.Device
	cb, err := AllocateAndBeginSingleUse(b.context, device.ComputeCommandPool)
	if err != nil {
		return err
	}
	cmdHostWriteBarrier(cb)
	return cb.EndSingleUse(b.context, device.ComputeCommandPool, device.ComputeQueue, b.uploadFence, b.timeoutNS())
}

func (b *Backend) CreateGeometry(desc *metadata.GeometryDesc) (*metadata.GeometryBuffer, error) {
	res, err := createGeometryResources(b.context, desc)
	if err != nil {
		return nil, err
	}
	g := &metadata.GeometryBuffer{
		VertexCount:   res.vertexCount,
		IndexCount:    res.indexCount,
		IndexFormat:   desc.IndexFormat,
		TriangleCount: desc.TriangleCount(),
		Opaque:        desc.Opaque,
		VertexAddress: b.addresses.allocate(res.vertices.Size),
		Bounds:        desc.Bounds(),
		InternalData:  res,
	}
	if res.indices != nil {
		g.IndexAddress = b.addresses.allocate(res.indices.Size)
	}
	context := b.context
	g.Bind(res.vertices.ID, desc.Name, func() { res.destroy(context) })
	return g, nil
}

func (b *Backend) BuildBLAS(geometry ...*metadata.GeometryBuffer) (*metadata.AccelerationStructure, error) {
	positions, indices, err := mergeGeometry(geometry)
	if err != nil {
		return nil, err
	}
	tris, err := accel.GatherTriangles(positions, indices)
	if err != nil {
		return nil, err
	}
	name := geometry[0].Name + "-blas"
	info := bottomLevelPrebuild(uint64(len(tris)))

	scratch, err := NewBuffer(b.context, name+"-scratch", info.ScratchDataSize, vk.BufferUsageStorageBufferBit)
	if err != nil {
		return nil, err
	}
	defer scratch.Destroy(b.context)

	bottom, err := buildBottomLevel(scratch.Data, tris)
	if err != nil {
		return nil, err
	}

	result, err := NewBuffer(b.context, name, info.ResultDataMaxSize, vk.BufferUsageStorageBufferBit)
	if err != nil {
		return nil, err
	}
	data, nodeBytes := flattenBottomLevel(bottom)
	result.Write(0, data)
	if err := b.flushHostWrites(); err != nil {
		result.Destroy(b.context)
		return nil, err
	}

	address := b.addresses.allocate(result.Size)
	b.blas[address] = &blasResources{bottom: bottom, result: result, nodeBytes: nodeBytes}
	as := &metadata.AccelerationStructure{
		Kind:           metadata.AccelerationStructureBottomLevel,
		Address:        address,
		ResultSize:     result.Size,
		Flags:          metadata.BuildFlagPreferFastTrace,
		PrimitiveCount: uint32(len(bottom.Triangles)),
		InternalData:   b.blas[address],
	}
	context := b.context
	as.Bind(result.ID, name, func() {
		delete(b.blas, address)
		result.Destroy(context)
	})
	return as, nil
}

func (b *Backend) CreateInstanceBuffer(count uint32) (*metadata.InstanceBuffer, error) {
	if count == 0 {
		return nil, errors.New("instance buffer needs at least one instance")
	}
	buf, err := NewBuffer(b.context, "instances", uint64(count)*metadata.InstanceDescriptorSize, vk.BufferUsageStorageBufferBit)
	if err != nil {
		return nil, err
	}
	ib := &metadata.InstanceBuffer{
		Count:        count,
		Address:      b.addresses.allocate(buf.Size),
		Mapped:       buf.Data[:uint64(count)*metadata.InstanceDescriptorSize],
		InternalData: buf,
	}
	context := b.context
	ib.Bind(buf.ID, buf.Name, func() { buf.Destroy(context) })
	return ib, nil
}

func (b *Backend) TLASPrebuildInfo(instances *metadata.InstanceBuffer) (metadata.PrebuildInfo, error) {
	if err := instances.Check(); err != nil {
		return metadata.PrebuildInfo{}, err
	}
	return topLevelPrebuild(uint64(instances.Count)), nil
}

func (b *Backend) MinimumUpdateScratchSize() uint64 {
	return UpdateScratchRequirement
}

func (b *Backend) BuildTLAS(instances *metadata.InstanceBuffer, updateScratchSize uint64) (*metadata.AccelerationStructure, error) {
	if err := instances.Check(); err != nil {
		return nil, err
	}
	if updateScratchSize < UpdateScratchRequirement {
		return nil, errors.Newf("update scratch of %d bytes, a refit needs %d", updateScratchSize, UpdateScratchRequirement)
	}
	decoded, addresses, err := decodeInstances(instances, b.blas)
	if err != nil {
		return nil, err
	}
	top, err := accel.BuildTopLevel(decoded, true)
	if err != nil {
		return nil, err
	}
	info := topLevelPrebuild(uint64(instances.Count))

	res := &tlasResources{top: top}
	var arenaSize uint64
	res.offsets, arenaSize = layoutArena(addresses, b.blas)
	usage := vk.BufferUsageStorageBufferBit
	n := uint64(instances.Count)
	if res.nodes, err = NewBuffer(b.context, "tlas-nodes", 2*n*accel.NodeStride, usage); err == nil {
		if res.arena, err = NewBuffer(b.context, "blas-arena", arenaSize, usage); err == nil {
			if res.instances, err = NewBuffer(b.context, "tlas-instances", n*accel.GPUInstanceStride, usage); err == nil {
				res.updateScratch, err = NewBuffer(b.context, "tlas-update-scratch", updateScratchSize, usage)
			}
		}
	}
	if err != nil {
		res.destroy(b.context)
		return nil, err
	}
	res.writeArena(b.blas)
	res.writeScene(addresses)
	if err := b.flushHostWrites(); err != nil {
		res.destroy(b.context)
		return nil, err
	}

	b.tlasGeneration++
	res.generation = b.tlasGeneration
	as := &metadata.AccelerationStructure{
		Kind:              metadata.AccelerationStructureTopLevel,
		Address:           b.addresses.allocate(info.ResultDataMaxSize),
		ResultSize:        info.ResultDataMaxSize,
		UpdateScratchSize: updateScratchSize,
		Flags:             metadata.BuildFlagAllowUpdate | metadata.BuildFlagPreferFastTrace,
		PrimitiveCount:    instances.Count,
		InternalData:      res,
	}
	context := b.context
	as.Bind(res.nodes.ID, "tlas", func() { res.destroy(context) })
	return as, nil
}

func (b *Backend) frame(frame *metadata.FrameSyncState) (*frameResources, error) {
	fr, ok := frame.InternalData.(*frameResources)
	if !ok {
		return nil, errors.Newf("frame slot %d was not created by this backend", frame.Slot)
	}
	return fr, nil
}

func (b *Backend) RefitTLAS(frame *metadata.FrameSyncState, tlas *metadata.AccelerationStructure, instances *metadata.InstanceBuffer) error {
	fr, err := b.frame(frame)
	if err != nil {
		return err
	}
	if err := tlas.Check(); err != nil {
		return err
	}
	if err := instances.Check(); err != nil {
		return err
	}
	res, ok := tlas.InternalData.(*tlasResources)
	if !ok || tlas.Kind != metadata.AccelerationStructureTopLevel {
		return errors.Newf("%s is not a refittable top level structure", tlas.Name)
	}
	if tlas.Flags&metadata.BuildFlagAllowUpdate == 0 {
		return errors.Newf("%s was built without allow-update", tlas.Name)
	}
	decoded, addresses, err := decodeInstances(instances, b.blas)
	if err != nil {
		return err
	}
	for i, addr := range addresses {
		if _, ok := res.offsets[addr]; !ok {
			return errors.Wrapf(ErrUnknownBLAS, "instance %d switched to 0x%x, which was not part of the build", i, addr)
		}
	}
	if err := res.top.Refit(decoded); err != nil {
		return err
	}
	res.writeScene(addresses)
	tlas.RefitCount++
	res.writeRefitCount(tlas.RefitCount)
	cmdHostWriteBarrier(fr.commandBuffer)
	return nil
}

func (b *Backend) CreatePipeline(library []byte, config metadata.PipelineConfig) (*metadata.Pipeline, error) {
	if err := ValidatePipelineConfig(config, metadata.MaxTraceRecursionLimit); err != nil {
		return nil, err
	}
	stage, err := NewShaderModule(b.context, library, metadata.ExportComputeMain)
	if err != nil {
		return nil, err
	}
	// the module is only needed while the pipeline is created
	defer stage.Destroy(b.context)

	vp, err := NewComputePipeline(b.context, stage, b.descriptors.Layout, config.MaxTraceRecursionDepth)
	if err != nil {
		return nil, err
	}
	id := b.context.Objects.Acquire(vp)
	p := &metadata.Pipeline{
		Config:       config,
		InternalData: vp,
	}
	context := b.context
	p.Bind(id, config.Name, func() {
		vp.Destroy(context)
		context.Objects.Release(id)
	})
	return p, nil
}

func (b *Backend) CreateRenderTarget(width, height uint32) (*metadata.RenderTarget, error) {
	usage := vk.ImageUsageFlags(vk.ImageUsageStorageBit | vk.ImageUsageTransferSrcBit)
	img, err := ImageCreate(b.context, width, height, vk.FormatR8g8b8a8Unorm, usage)
	if err != nil {
		return nil, err
	}

	device := b.context.Device
	cb, err := AllocateAndBeginSingleUse(b.context, device.ComputeCommandPool)
	if err != nil {
		img.Destroy(b.context)
		return nil, err
	}
	cmdImageBarriers(cb, vk.PipelineStageTopOfPipeBit, vk.PipelineStageComputeShaderBit,
		imageBarrier(img.Handle, vk.ImageLayoutUndefined, vk.ImageLayoutGeneral, 0, vk.AccessShaderWriteBit))
	if err := cb.EndSingleUse(b.context, device.ComputeCommandPool, device.ComputeQueue, b.uploadFence, b.timeoutNS()); err != nil {
		img.Destroy(b.context)
		return nil, err
	}
	img.Layout = vk.ImageLayoutGeneral

	b.targetGeneration++
	rt := &metadata.RenderTarget{
		Width:        width,
		Height:       height,
		Format:       metadata.PixelFormatRGBA8,
		UAVIndex:     BindingOutputImage,
		UAVValid:     true,
		Generation:   b.targetGeneration,
		InternalData: img,
	}
	context := b.context
	rt.Bind(img.ID, fmt.Sprintf("render-target-%dx%d", width, height), func() {
		rt.UAVValid = false
		img.Destroy(context)
	})
	return rt, nil
}

func (b *Backend) ResizeSurface(width, height uint32) error {
	b.context.FramebufferWidth, b.context.FramebufferHeight = width, height
	return b.recreateSwapchain()
}

func (b *Backend) recreateSwapchain() error {
	if err := b.WaitIdle(); err != nil {
		return err
	}
	next, err := b.context.Swapchain.SwapchainRecreate(b.context, b.context.FramebufferWidth, b.context.FramebufferHeight)
	if err != nil {
		return err
	}
	b.context.Swapchain = next
	b.swapchainDirty = false
	return nil
}

func (b *Backend) CreateFrameSync(slot uint8) (*metadata.FrameSyncState, error) {
	if int(slot) >= len(b.descriptors.Sets) {
		return nil, errors.Newf("slot %d exceeds the %d frames in flight", slot, len(b.descriptors.Sets))
	}
	device := b.context.Device
	fr := &frameResources{}
	var err error
	if fr.commandBuffer, err = NewVulkanCommandBuffer(b.context, device.ComputeCommandPool); err != nil {
		return nil, err
	}
	if fr.inFlight, err = NewFence(b.context, false); err != nil {
		b.destroyFrame(fr)
		return nil, err
	}
	semaphoreInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	for _, sem := range []*vk.Semaphore{&fr.imageAvailable, &fr.renderFinished} {
		if err := resultError(vk.CreateSemaphore(device.LogicalDevice, &semaphoreInfo, b.context.Allocator, sem), "vkCreateSemaphore"); err != nil {
			b.destroyFrame(fr)
			return nil, err
		}
	}
	b.frames = append(b.frames, fr)
	return &metadata.FrameSyncState{Slot: slot, State: metadata.FrameStateIdle, InternalData: fr}, nil
}

func (b *Backend) destroyFrame(fr *frameResources) {
	device := b.context.Device
	if fr.commandBuffer != nil {
		fr.commandBuffer.Free(b.context, device.ComputeCommandPool)
	}
	if fr.inFlight != nil {
		fr.inFlight.Destroy(b.context)
	}
	for _, sem := range []vk.Semaphore{fr.imageAvailable, fr.renderFinished} {
		if sem != vk.NullSemaphore {
			vk.DestroySemaphore(device.LogicalDevice, sem, b.context.Allocator)
		}
	}
}

func (b *Backend) CompletedFenceValue() uint64 {
	return b.timeline.completedValue()
}

func (b *Backend) WaitForFence(value uint64, timeout time.Duration) error {
	return b.timeline.waitFor(value, timeout)
}

func (b *Backend) WaitIdle() error {
	if b.context == nil || b.context.Device == nil || b.context.Device.LogicalDevice == nil {
		return nil
	}
	err := b.context.Locks.SafeCall(QueueManagement, func() error {
		return resultError(vk.DeviceWaitIdle(b.context.Device.LogicalDevice), "vkDeviceWaitIdle")
	})
	if err != nil {
		return errors.Mark(err, core.ErrDeviceLost)
	}
	b.timeline.drain()
	return nil
}

func (b *Backend) BeginFrame(frame *metadata.FrameSyncState) error {
	fr, err := b.frame(frame)
	if err != nil {
		return err
	}
	if completed := b.timeline.completedValue(); frame.FenceValue > completed {
		return errors.Wrapf(ErrCommandBufferState, "slot %d reset at fence %d, its last submission signals %d", frame.Slot, completed, frame.FenceValue)
	}
	if b.swapchainDirty {
		if err := b.recreateSwapchain(); err != nil {
			return err
		}
	}
	if err := fr.inFlight.Reset(b.context); err != nil {
		return err
	}
	if err := fr.commandBuffer.Reset(); err != nil {
		return err
	}

	index, err := b.context.Swapchain.SwapchainAcquireNextImageIndex(b.context, b.timeoutNS(), fr.imageAvailable)
	if errors.Is(err, core.ErrSwapchainBooting) {
		core.LogDebug("swapchain out of date, recreating")
		if err := b.recreateSwapchain(); err != nil {
			return err
		}
		index, err = b.context.Swapchain.SwapchainAcquireNextImageIndex(b.context, b.timeoutNS(), fr.imageAvailable)
	}
	if err != nil {
		return err
	}
	fr.imageIndex = index
	return fr.commandBuffer.Begin(true)
}

func (b *Backend) Dispatch(frame *metadata.FrameSyncState, pipeline *metadata.Pipeline, target *metadata.RenderTarget, tlas *metadata.AccelerationStructure) error {
	fr, err := b.frame(frame)
	if err != nil {
		return err
	}
	for _, h := range []*metadata.Handle{&pipeline.Handle, &target.Handle, &tlas.Handle} {
		if err := h.Check(); err != nil {
			return err
		}
	}
	if !target.UAVValid {
		return errors.Newf("render target %s has no valid output binding", target.Name)
	}
	vp, ok := pipeline.InternalData.(*VulkanPipeline)
	if !ok {
		return errors.Newf("pipeline %s was not created by this backend", pipeline.Name)
	}
	img, ok := target.InternalData.(*VulkanImage)
	if !ok {
		return errors.Newf("render target %s was not created by this backend", target.Name)
	}
	scene, ok := tlas.InternalData.(*tlasResources)
	if !ok {
		return errors.Newf("%s was not created by this backend", tlas.Name)
	}

	b.descriptors.Update(b.context, frame.Slot, img, target.Generation, scene)
	constants := PushConstants{
		Width:    target.Width,
		Height:   target.Height,
		MaxDepth: vp.MaxDepth,
	}
	if b.context.Swapchain.swizzles() {
		constants.Swizzle = 1
	}
	vp.Bind(fr.commandBuffer, b.descriptors.Sets[frame.Slot], &constants)
	groupsX, groupsY := DispatchGroups(target.Width, target.Height)
	vk.CmdDispatch(fr.commandBuffer.Handle, groupsX, groupsY, 1)
	return nil
}

func (b *Backend) CopyToSurface(frame *metadata.FrameSyncState, target *metadata.RenderTarget) error {
	fr, err := b.frame(frame)
	if err != nil {
		return err
	}
	img, ok := target.InternalData.(*VulkanImage)
	if !ok {
		return errors.Newf("render target %s was not created by this backend", target.Name)
	}
	swapchain := b.context.Swapchain
	back := swapchain.Images[fr.imageIndex]
	cb := fr.commandBuffer

	cmdImageBarriers(cb, vk.PipelineStageComputeShaderBit, vk.PipelineStageTransferBit,
		imageBarrier(img.Handle, vk.ImageLayoutGeneral, vk.ImageLayoutTransferSrcOptimal, vk.AccessShaderWriteBit, vk.AccessTransferReadBit),
		imageBarrier(back, swapchain.currentLayout(fr.imageIndex), vk.ImageLayoutTransferDstOptimal, 0, vk.AccessTransferWriteBit),
	)

	layers := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	region := vk.ImageCopy{
		SrcSubresource: layers,
		DstSubresource: layers,
		Extent: vk.Extent3D{
			Width:  min(target.Width, swapchain.Extent.Width),
			Height: min(target.Height, swapchain.Extent.Height),
			Depth:  1,
		},
	}
	vk.CmdCopyImage(cb.Handle, img.Handle, vk.ImageLayoutTransferSrcOptimal, back, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageCopy{region})

	cmdImageBarriers(cb, vk.PipelineStageTransferBit, vk.PipelineStageComputeShaderBit|vk.PipelineStageBottomOfPipeBit,
		imageBarrier(back, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc, vk.AccessTransferWriteBit, 0),
		imageBarrier(img.Handle, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutGeneral, vk.AccessTransferReadBit, vk.AccessShaderWriteBit),
	)
	return nil
}

func (b *Backend) Submit(frame *metadata.FrameSyncState) (uint64, error) {
	fr, err := b.frame(frame)
	if err != nil {
		return 0, err
	}
	if err := fr.commandBuffer.End(); err != nil {
		return 0, err
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{fr.imageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{fr.commandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{fr.renderFinished},
	}
	err = b.context.Locks.SafeCall(QueueManagement, func() error {
		return resultError(vk.QueueSubmit(b.context.Device.ComputeQueue, 1, []vk.SubmitInfo{submitInfo}, fr.inFlight.Handle), "vkQueueSubmit")
	})
	if err != nil {
		return 0, errors.Mark(err, core.ErrDeviceLost)
	}
	fr.commandBuffer.UpdateSubmitted()
	context := b.context
	return b.timeline.next(func(timeoutNS uint64) error {
		return fr.inFlight.Wait(context, timeoutNS)
	}), nil
}

// Present waits on the frame's render finished semaphore. An out of date
// swapchain is recreated before the next frame instead of failing this one.
func (b *Backend) Present(frame *metadata.FrameSyncState) error {
	fr, err := b.frame(frame)
	if err != nil {
		return err
	}
	err = b.context.Swapchain.SwapchainPresent(b.context, fr.renderFinished, fr.imageIndex)
	if errors.Is(err, core.ErrSwapchainBooting) {
		b.swapchainDirty = true
		return nil
	}
	return err
}

func (b *Backend) Shutdown() error {
	if b.context == nil {
		return nil
	}
	context := b.context
	if context.Device != nil && context.Device.LogicalDevice != nil {
		if err := b.WaitIdle(); err != nil {
			core.LogError("vulkan backend did not go idle before shutdown: %s", err)
		}
		for _, fr := range b.frames {
			b.destroyFrame(fr)
		}
		b.frames = nil
		if b.uploadFence != nil {
			b.uploadFence.Destroy(context)
		}
		if b.descriptors != nil {
			b.descriptors.Destroy(context)
		}
		if context.Swapchain != nil {
			context.Swapchain.SwapchainDestroy(context)
		}
		b.reportLiveObjects()
		DeviceDestroy(context)
	}
	context.DestroyInstance()
	b.context = nil
	core.LogInfo("vulkan backend shut down")
	return nil
}

func (b *Backend) reportLiveObjects() {
	owners := b.context.Objects.Owners()
	if len(owners) == 0 {
		return
	}
	core.LogWarn("%d device objects still alive at shutdown", len(owners))
	for _, o := range owners {
		switch obj := o.(type) {
		case *VulkanBuffer:
			core.LogWarn("  buffer %s, %d bytes", obj.Name, obj.Size)
		case *VulkanImage:
			core.LogWarn("  image %dx%d", obj.Width, obj.Height)
		case *VulkanPipeline:
			core.LogWarn("  compute pipeline")
		}
	}
}
