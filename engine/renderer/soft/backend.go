package soft

import (
	"encoding/binary"
	"fmt"
	gomath "math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type geometryResources struct {
	vertices *Buffer
	indices  *Buffer
}

type accelResources struct {
	result        *Buffer
	updateScratch *Buffer
}

type pipelineResources struct {
	pso   *PipelineState
	table *Buffer
}

type frameResources struct {
	allocator  *CommandAllocator
	list       *CommandList
	backBuffer uint32
}

// Backend runs the renderer on the software device.
type Backend struct {
	device        *Device
	surface       metadata.Surface
	swapchain     *Swapchain
	heap          *DescriptorHeap
	rootSignature *RootSignature

	uploadAllocator *CommandAllocator
	uploadList      *CommandList

	frames           []*frameResources
	timeout          time.Duration
	targetGeneration uint64
}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Initialize(surface metadata.Surface, config *metadata.BackendConfig) error {
	device, err := NewDevice(DeviceOptions{
		Workers:                 config.Workers,
		MemoryBudget:            config.MemoryBudget,
		TileSize:                config.TileSize,
		ReportZeroUpdateScratch: config.ReportZeroUpdateScratch,
	})
	if err != nil {
		return err
	}
	b.device = device
	b.surface = surface
	b.timeout = config.FenceTimeout

	width, height := surface.FramebufferSize()
	if b.swapchain, err = device.CreateSwapchain(surface, max(width, 1), max(height, 1)); err != nil {
		return err
	}
	b.heap = device.CreateDescriptorHeap("shader-visible", DescriptorHeapSize)
	b.rootSignature = device.CreateRootSignature("global", RootParameterDescriptorTable, RootParameterShaderResourceView)

	b.uploadAllocator = device.CreateCommandAllocator("upload")
	if b.uploadList, err = device.CreateCommandList("upload", nil); err != nil {
		return err
	}
	core.LogInfo("soft backend initialized: %dx%d, %d workers", width, height, device.options.Workers)
	return nil
}

func (b *Backend) Info() metadata.DeviceInfo {
	info := metadata.DeviceInfo{
		Backend:                "soft",
		DeviceName:             "Lumen software ray tracer",
		MaxTraceRecursionDepth: MaxTraceRecursionDepth,
		ShaderIdentifierSize:   metadata.ShaderIdentifierSize,
		ShaderTableAlignment:   metadata.ShaderTableAlignment,
		MinUpdateScratchSize:   UpdateScratchRequirement,
	}
	if b.device != nil {
		info.MemoryBudget = b.device.options.MemoryBudget
		info.Workers = b.device.options.Workers
	}
	return info
}

// Device exposes the software device, mostly for diagnostics and tests.
func (b *Backend) Device() *Device {
	return b.device
}

func (b *Backend) beginSingleUse() (*CommandList, error) {
	if err := b.uploadAllocator.Reset(); err != nil {
		return nil, err
	}
	if err := b.uploadList.Reset(b.uploadAllocator); err != nil {
		return nil, err
	}
	return b.uploadList, nil
}

func (b *Backend) endSingleUse(list *CommandList) error {
	if err := list.Close(); err != nil {
		return err
	}
	if err := b.device.queue.ExecuteCommandLists(list); err != nil {
		return err
	}
	value, err := b.device.queue.SignalNext()
	if err != nil {
		return err
	}
	return b.device.queue.fence.Wait(value, b.timeout)
}

func (b *Backend) CreateGeometry(desc *metadata.GeometryDesc) (*metadata.GeometryBuffer, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	alloc := b.device.allocator

	vertexBytes := uint64(len(desc.Vertices)) * 4
	indexBytes := uint64(len(desc.Indices)) * uint64(desc.IndexFormat.Size())

	staging, err := alloc.CreateBuffer(desc.Name+"-staging", vertexBytes+indexBytes, metadata.HeapTypeUpload, metadata.ResourceStateGenericRead)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	data, _ := staging.Map()
	for i, f := range desc.Vertices {
		binary.LittleEndian.PutUint32(data[i*4:], gomath.Float32bits(f))
	}
	for i, idx := range desc.Indices {
		off := vertexBytes + uint64(i)*uint64(desc.IndexFormat.Size())
		if desc.IndexFormat == metadata.IndexFormatUint16 {
			binary.LittleEndian.PutUint16(data[off:], uint16(idx))
		} else {
			binary.LittleEndian.PutUint32(data[off:], idx)
		}
	}

	res := &geometryResources{}
	if res.vertices, err = alloc.CreateBuffer(desc.Name+"-vertices", vertexBytes, metadata.HeapTypeDefault, metadata.ResourceStateCopyDest); err != nil {
		return nil, err
	}
	if indexBytes > 0 {
		if res.indices, err = alloc.CreateBuffer(desc.Name+"-indices", indexBytes, metadata.HeapTypeDefault, metadata.ResourceStateCopyDest); err != nil {
			res.vertices.Release()
			return nil, err
		}
	}
	release := func() {
		res.vertices.Release()
		if res.indices != nil {
			res.indices.Release()
		}
	}

	list, err := b.beginSingleUse()
	if err != nil {
		release()
		return nil, err
	}
	list.CopyBufferRegion(res.vertices, 0, staging, 0, vertexBytes)
	list.ResourceBarrier(TransitionBarrier(res.vertices, metadata.ResourceStateCopyDest, metadata.ResourceStateGenericRead))
	if res.indices != nil {
		list.CopyBufferRegion(res.indices, 0, staging, vertexBytes, indexBytes)
		list.ResourceBarrier(TransitionBarrier(res.indices, metadata.ResourceStateCopyDest, metadata.ResourceStateGenericRead))
	}
	if err := b.endSingleUse(list); err != nil {
		release()
		return nil, err
	}

	g := &metadata.GeometryBuffer{
		VertexCount:   desc.VertexCount(),
		IndexCount:    uint32(len(desc.Indices)),
		IndexFormat:   desc.IndexFormat,
		TriangleCount: desc.TriangleCount(),
		Opaque:        desc.Opaque,
		VertexAddress: res.vertices.Address,
		Bounds:        desc.Bounds(),
		InternalData:  res,
	}
	if res.indices != nil {
		g.IndexAddress = res.indices.Address
	}
	g.Bind(res.vertices.ID, desc.Name, release)
	return g, nil
}

func (b *Backend) BuildBLAS(geometry ...*metadata.GeometryBuffer) (*metadata.AccelerationStructure, error) {
	inputs := BuildInputs{
		Kind:  metadata.AccelerationStructureBottomLevel,
		Flags: metadata.BuildFlagPreferFastTrace,
	}
	var triangles uint32
	for _, g := range geometry {
		if err := g.Check(); err != nil {
			return nil, err
		}
		inputs.Geometries = append(inputs.Geometries, GeometryTriangles{
			VertexBuffer: g.VertexAddress,
			VertexCount:  g.VertexCount,
			VertexStride: uint64(metadata.VertexStride),
			IndexBuffer:  g.IndexAddress,
			IndexCount:   g.IndexCount,
			IndexFormat:  g.IndexFormat,
			Opaque:       g.Opaque,
		})
		triangles += g.TriangleCount
	}

	info, err := b.device.GetRaytracingAccelerationStructurePrebuildInfo(&inputs)
	if err != nil {
		return nil, err
	}
	name := "blas"
	if len(geometry) > 0 {
		name = geometry[0].Name + "-blas"
	}
	alloc := b.device.allocator
	scratch, err := alloc.CreateBuffer(name+"-scratch", info.ScratchDataSize, metadata.HeapTypeDefault, metadata.ResourceStateUnorderedAccess)
	if err != nil {
		return nil, err
	}
	defer scratch.Release()
	result, err := alloc.CreateBuffer(name, info.ResultDataMaxSize, metadata.HeapTypeDefault, metadata.ResourceStateAccelerationStructure)
	if err != nil {
		return nil, err
	}

	list, err := b.beginSingleUse()
	if err != nil {
		result.Release()
		return nil, err
	}
	list.BuildRaytracingAccelerationStructure(&BuildDesc{Inputs: inputs, Dest: result.Address, Scratch: scratch.Address})
	list.ResourceBarrier(UAVBarrier(result))
	if err := b.endSingleUse(list); err != nil {
		result.Release()
		return nil, err
	}

	as := &metadata.AccelerationStructure{
		Kind:           metadata.AccelerationStructureBottomLevel,
		Address:        result.Address,
		ResultSize:     result.Size,
		Flags:          inputs.Flags,
		PrimitiveCount: triangles,
		InternalData:   &accelResources{result: result},
	}
	as.Bind(result.ID, name, result.Release)
	return as, nil
}

func (b *Backend) CreateInstanceBuffer(count uint32) (*metadata.InstanceBuffer, error) {
	if count == 0 {
		return nil, errors.New("instance buffer needs at least one instance")
	}
	buf, err := b.device.allocator.CreateBuffer("instances", uint64(count)*metadata.InstanceDescriptorSize, metadata.HeapTypeUpload, metadata.ResourceStateGenericRead)
	if err != nil {
		return nil, err
	}
	mapped, _ := buf.Map()
	ib := &metadata.InstanceBuffer{
		Count:        count,
		Address:      buf.Address,
		Mapped:       mapped,
		InternalData: buf,
	}
	ib.Bind(buf.ID, buf.Name, buf.Release)
	return ib, nil
}

func topLevelInputs(instances *metadata.InstanceBuffer, flags metadata.BuildFlags) BuildInputs {
	return BuildInputs{
		Kind:          metadata.AccelerationStructureTopLevel,
		Flags:         flags,
		InstanceDescs: instances.Address,
		NumDescs:      instances.Count,
	}
}

func (b *Backend) TLASPrebuildInfo(instances *metadata.InstanceBuffer) (metadata.PrebuildInfo, error) {
	if err := instances.Check(); err != nil {
		return metadata.PrebuildInfo{}, err
	}
	inputs := topLevelInputs(instances, metadata.BuildFlagAllowUpdate|metadata.BuildFlagPreferFastTrace)
	return b.device.GetRaytracingAccelerationStructurePrebuildInfo(&inputs)
}

func (b *Backend) MinimumUpdateScratchSize() uint64 {
	return UpdateScratchRequirement
}

func (b *Backend) BuildTLAS(instances *metadata.InstanceBuffer, updateScratchSize uint64) (*metadata.AccelerationStructure, error) {
	if err := instances.Check(); err != nil {
		return nil, err
	}
	if updateScratchSize == 0 {
		return nil, errors.New("update scratch size is zero, the TLAS could never be refit")
	}
	inputs := topLevelInputs(instances, metadata.BuildFlagAllowUpdate|metadata.BuildFlagPreferFastTrace)
	info, err := b.device.GetRaytracingAccelerationStructurePrebuildInfo(&inputs)
	if err != nil {
		return nil, err
	}

	alloc := b.device.allocator
	scratch, err := alloc.CreateBuffer("tlas-build-scratch", info.ScratchDataSize, metadata.HeapTypeDefault, metadata.ResourceStateUnorderedAccess)
	if err != nil {
		return nil, err
	}
	defer scratch.Release()

	res := &accelResources{}
	if res.result, err = alloc.CreateBuffer("tlas", info.ResultDataMaxSize, metadata.HeapTypeDefault, metadata.ResourceStateAccelerationStructure); err != nil {
		return nil, err
	}
	if res.updateScratch, err = alloc.CreateBuffer("tlas-update-scratch", updateScratchSize, metadata.HeapTypeDefault, metadata.ResourceStateUnorderedAccess); err != nil {
		res.result.Release()
		return nil, err
	}
	release := func() {
		res.result.Release()
		res.updateScratch.Release()
	}

	list, err := b.beginSingleUse()
	if err != nil {
		release()
		return nil, err
	}
	list.BuildRaytracingAccelerationStructure(&BuildDesc{Inputs: inputs, Dest: res.result.Address, Scratch: scratch.Address})
	list.ResourceBarrier(UAVBarrier(res.result))
	if err := b.endSingleUse(list); err != nil {
		release()
		return nil, err
	}

	as := &metadata.AccelerationStructure{
		Kind:              metadata.AccelerationStructureTopLevel,
		Address:           res.result.Address,
		ResultSize:        res.result.Size,
		UpdateScratchSize: updateScratchSize,
		Flags:             inputs.Flags,
		PrimitiveCount:    instances.Count,
		InternalData:      res,
	}
	as.Bind(res.result.ID, "tlas", release)
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
	res, ok := tlas.InternalData.(*accelResources)
	if !ok || tlas.Kind != metadata.AccelerationStructureTopLevel || res.updateScratch == nil {
		return errors.Newf("%s is not a refittable top level structure", tlas.Name)
	}
	if tlas.Flags&metadata.BuildFlagAllowUpdate == 0 {
		return errors.Newf("%s was built without allow-update", tlas.Name)
	}

	fr.list.BuildRaytracingAccelerationStructure(&BuildDesc{
		Inputs:  topLevelInputs(instances, tlas.Flags|metadata.BuildFlagPerformUpdate),
		Dest:    res.result.Address,
		Source:  res.result.Address,
		Scratch: res.updateScratch.Address,
	})
	fr.list.ResourceBarrier(UAVBarrier(res.result))
	tlas.RefitCount++
	return nil
}

func (b *Backend) CreatePipeline(library []byte, config metadata.PipelineConfig) (*metadata.Pipeline, error) {
	pso, err := b.device.CreateStateObject(config.Name, &StateObjectDesc{
		Library:             library,
		Config:              config,
		GlobalRootSignature: b.rootSignature,
	})
	if err != nil {
		return nil, err
	}

	size := metadata.ShaderRecordCount * metadata.ShaderTableAlignment
	table, err := b.device.allocator.CreateBuffer(config.Name+"-shader-table", size, metadata.HeapTypeUpload, metadata.ResourceStateGenericRead)
	if err != nil {
		pso.Release()
		return nil, err
	}
	data, _ := table.Map()
	for i, export := range []string{config.RayGenerationExport, config.MissExport, config.HitGroupExport} {
		id, err := pso.ShaderIdentifier(export)
		if err != nil {
			pso.Release()
			table.Release()
			return nil, err
		}
		copy(data[uint64(i)*metadata.ShaderTableAlignment:], id[:])
	}

	layout := metadata.NewShaderTableLayout(table.Address)
	p := &metadata.Pipeline{
		Config:       config,
		ShaderTable:  &layout,
		InternalData: &pipelineResources{pso: pso, table: table},
	}
	p.Bind(pso.ID, config.Name, func() {
		table.Release()
		pso.Release()
	})
	return p, nil
}

func (b *Backend) CreateRenderTarget(width, height uint32) (*metadata.RenderTarget, error) {
	img, err := b.device.allocator.CreateImage(fmt.Sprintf("render-target-%dx%d", width, height), width, height, metadata.ResourceStateUnorderedAccess)
	if err != nil {
		return nil, err
	}
	const uavIndex = 0
	if err := b.heap.CreateUnorderedAccessView(img, uavIndex); err != nil {
		img.Release()
		return nil, err
	}
	b.targetGeneration++
	rt := &metadata.RenderTarget{
		Width:        width,
		Height:       height,
		Format:       metadata.PixelFormatRGBA8,
		UAVIndex:     uavIndex,
		UAVValid:     true,
		Generation:   b.targetGeneration,
		InternalData: img,
	}
	rt.Bind(img.ID, img.Name, func() {
		rt.UAVValid = false
		b.heap.ClearView(img, uavIndex)
		img.Release()
	})
	return rt, nil
}

func (b *Backend) ResizeSurface(width, height uint32) error {
	return b.swapchain.ResizeBuffers(width, height)
}

func (b *Backend) CreateFrameSync(slot uint8) (*metadata.FrameSyncState, error) {
	fr := &frameResources{
		allocator: b.device.CreateCommandAllocator(fmt.Sprintf("frame-%d", slot)),
	}
	list, err := b.device.CreateCommandList(fmt.Sprintf("frame-%d", slot), nil)
	if err != nil {
		fr.allocator.Release()
		return nil, err
	}
	fr.list = list
	b.frames = append(b.frames, fr)
	return &metadata.FrameSyncState{Slot: slot, State: metadata.FrameStateIdle, InternalData: fr}, nil
}

func (b *Backend) CompletedFenceValue() uint64 {
	return b.device.queue.fence.CompletedValue()
}

func (b *Backend) WaitForFence(value uint64, timeout time.Duration) error {
	return b.device.queue.fence.Wait(value, timeout)
}

func (b *Backend) WaitIdle() error {
	if b.device == nil {
		return nil
	}
	value, err := b.device.queue.SignalNext()
	if err != nil {
		return err
	}
	return b.device.queue.fence.Wait(value, b.timeout)
}

func (b *Backend) BeginFrame(frame *metadata.FrameSyncState) error {
	fr, err := b.frame(frame)
	if err != nil {
		return err
	}
	if err := fr.allocator.Reset(); err != nil {
		return err
	}
	if err := fr.list.Reset(fr.allocator); err != nil {
		return err
	}
	fr.backBuffer = b.swapchain.CurrentBackBufferIndex()
	return nil
}

func (b *Backend) Dispatch(frame *metadata.FrameSyncState, pipeline *metadata.Pipeline, target *metadata.RenderTarget, tlas *metadata.AccelerationStructure) error {
	fr, err := b.frame(frame)
	if err != nil {
		return err
	}
	if err := pipeline.Check(); err != nil {
		return err
	}
	if err := target.Check(); err != nil {
		return err
	}
	if !target.UAVValid {
		return errors.Newf("render target %s has no valid output binding", target.Name)
	}
	pr, ok := pipeline.InternalData.(*pipelineResources)
	if !ok {
		return errors.Newf("pipeline %s was not created by this backend", pipeline.Name)
	}

	table := pipeline.ShaderTable
	fr.list.SetPipelineState1(pr.pso)
	fr.list.SetComputeRootSignature(b.rootSignature)
	fr.list.SetDescriptorHeaps(b.heap)
	fr.list.SetComputeRootDescriptorTable(uint32(metadata.RootParameterOutputTable), target.UAVIndex)
	fr.list.SetComputeRootShaderResourceView(uint32(metadata.RootParameterSceneBVH), tlas.Address)
	fr.list.DispatchRays(&DispatchRaysDesc{
		RayGeneration: table.RayGen,
		Miss:          table.Miss,
		HitGroup:      table.HitGroup,
		Width:         target.Width,
		Height:        target.Height,
		Depth:         1,
	})
	return nil
}

func (b *Backend) CopyToSurface(frame *metadata.FrameSyncState, target *metadata.RenderTarget) error {
	fr, err := b.frame(frame)
	if err != nil {
		return err
	}
	img, ok := target.InternalData.(*Image)
	if !ok {
		return errors.Newf("render target %s was not created by this backend", target.Name)
	}
	back := b.swapchain.BackBuffer(fr.backBuffer)

	fr.list.ResourceBarrier(
		TransitionBarrier(img, metadata.ResourceStateUnorderedAccess, metadata.ResourceStateCopySource),
		TransitionBarrier(back, metadata.ResourceStatePresent, metadata.ResourceStateCopyDest),
	)
	fr.list.CopyResource(back, img)
	fr.list.ResourceBarrier(
		TransitionBarrier(back, metadata.ResourceStateCopyDest, metadata.ResourceStatePresent),
		TransitionBarrier(img, metadata.ResourceStateCopySource, metadata.ResourceStateUnorderedAccess),
	)
	return nil
}

func (b *Backend) Submit(frame *metadata.FrameSyncState) (uint64, error) {
	fr, err := b.frame(frame)
	if err != nil {
		return 0, err
	}
	if err := fr.list.Close(); err != nil {
		return 0, err
	}
	if err := b.device.queue.ExecuteCommandLists(fr.list); err != nil {
		return 0, err
	}
	return b.device.queue.SignalNext()
}

func (b *Backend) Present(frame *metadata.FrameSyncState) error {
	return b.swapchain.Present()
}

func (b *Backend) Shutdown() error {
	if b.device == nil {
		return nil
	}
	if err := b.WaitIdle(); err != nil {
		core.LogError("soft backend did not go idle before shutdown: %s", err)
	}
	for _, fr := range b.frames {
		fr.list.Release()
		fr.allocator.Release()
	}
	b.frames = nil
	b.uploadList.Release()
	b.uploadAllocator.Release()
	b.swapchain.Release()
	b.heap.Release()
	b.rootSignature.Release()

	err := b.device.Close()
	b.device = nil
	return err
}
