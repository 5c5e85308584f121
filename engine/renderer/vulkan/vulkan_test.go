package vulkan

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/accel"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestDispatchGroups(t *testing.T) {
	specs := []struct {
		w, h   uint32
		gx, gy uint32
	}{
		{1, 1, 1, 1},
		{8, 8, 1, 1},
		{9, 8, 2, 1},
		{1280, 720, 160, 90},
		{1366, 768, 171, 96},
	}
	for specIndex, spec := range specs {
		gx, gy := DispatchGroups(spec.w, spec.h)
		if gx != spec.gx || gy != spec.gy {
			t.Fatalf("[spec %d] expected %dx%d groups; got %dx%d", specIndex, spec.gx, spec.gy, gx, gy)
		}
	}
}

func TestValidatePipelineConfig(t *testing.T) {
	specs := []struct {
		depth   uint32
		payload uint32
		valid   bool
	}{
		{1, 16, true},
		{31, 16, true},
		{0, 16, false},
		{32, 16, false},
		{3, 0, false},
	}
	for specIndex, spec := range specs {
		config := metadata.DefaultPipelineConfig()
		config.MaxTraceRecursionDepth = spec.depth
		config.MaxPayloadSize = spec.payload
		err := ValidatePipelineConfig(config, metadata.MaxTraceRecursionLimit)
		if spec.valid && err != nil {
			t.Fatalf("[spec %d] expected config to be valid; got %v", specIndex, err)
		}
		if !spec.valid && !errors.Is(err, ErrInvalidPipeline) {
			t.Fatalf("[spec %d] expected ErrInvalidPipeline; got %v", specIndex, err)
		}
	}
}

func TestAddressSpaceAlignment(t *testing.T) {
	var space addressSpace
	first := space.allocate(100)
	second := space.allocate(0)
	third := space.allocate(257)
	fourth := space.allocate(1)

	if first != addressBase {
		t.Fatalf("expected first address 0x%x; got 0x%x", addressBase, first)
	}
	for i, addr := range []uint64{first, second, third, fourth} {
		if addr%addressAlignment != 0 {
			t.Fatalf("expected address %d to be %d byte aligned; got 0x%x", i, addressAlignment, addr)
		}
	}
	if second != first+256 || third != second+256 || fourth != third+512 {
		t.Fatalf("expected packed allocations; got 0x%x 0x%x 0x%x 0x%x", first, second, third, fourth)
	}
}

func TestResultErrorCategories(t *testing.T) {
	specs := []struct {
		result vk.Result
		marker error
	}{
		{vk.Timeout, core.ErrTimeout},
		{vk.ErrorDeviceLost, core.ErrDeviceLost},
		{vk.ErrorSurfaceLost, core.ErrDeviceLost},
		{vk.ErrorOutOfDate, core.ErrSwapchainBooting},
		{vk.ErrorExtensionNotPresent, core.ErrCapability},
		{vk.ErrorIncompatibleDriver, core.ErrCapability},
	}
	for specIndex, spec := range specs {
		err := resultError(spec.result, "vkTest")
		if !errors.Is(err, spec.marker) {
			t.Fatalf("[spec %d] expected %s to be marked %v; got %v", specIndex, VulkanResultString(spec.result), spec.marker, err)
		}
	}

	if err := resultError(vk.Success, "vkTest"); err != nil {
		t.Fatalf("expected success to return nil; got %v", err)
	}
	if err := resultError(vk.Suboptimal, "vkTest"); err != nil {
		t.Fatalf("expected suboptimal to count as success; got %v", err)
	}
	err := resultError(vk.ErrorOutOfHostMemory, "vkTest")
	if err == nil || errors.Is(err, core.ErrDeviceLost) || errors.Is(err, core.ErrCapability) {
		t.Fatalf("expected an unmarked error; got %v", err)
	}
}

func TestCString(t *testing.T) {
	name := make([]byte, 16)
	copy(name, "llvmpipe")
	if got := cString(name); got != "llvmpipe" {
		t.Fatalf("expected llvmpipe; got %q", got)
	}
	if got := cString([]byte("full")); got != "full" {
		t.Fatalf("expected an unterminated name to be kept whole; got %q", got)
	}
	if got := VulkanSafeString("layer"); got != "layer\x00" {
		t.Fatalf("expected a terminated string; got %q", got)
	}
}

func TestFenceTimelineWaitsInOrder(t *testing.T) {
	var tl fenceTimeline
	var waited []uint64
	for i := 0; i < 3; i++ {
		value := uint64(i + 1)
		if got := tl.next(func(uint64) error {
			waited = append(waited, value)
			return nil
		}); got != value {
			t.Fatalf("expected value %d; got %d", value, got)
		}
	}

	if err := tl.waitFor(2, time.Second); err != nil {
		t.Fatalf("expected wait to succeed; got %v", err)
	}
	if tl.completedValue() != 2 {
		t.Fatalf("expected completed value 2; got %d", tl.completedValue())
	}
	// reaching 2 retires 1 as well
	if err := tl.waitFor(1, time.Second); err != nil {
		t.Fatalf("expected completed value to return at once; got %v", err)
	}
	if len(waited) != 1 || waited[0] != 2 {
		t.Fatalf("expected only value 2 to be waited on; got %v", waited)
	}

	if err := tl.waitFor(4, time.Second); !errors.Is(err, ErrFenceValue) {
		t.Fatalf("expected ErrFenceValue for a value never submitted; got %v", err)
	}

	tl.drain()
	if tl.completedValue() != 3 {
		t.Fatalf("expected drain to complete value 3; got %d", tl.completedValue())
	}
	if len(waited) != 1 {
		t.Fatalf("expected drain not to wait; got %v", waited)
	}
}

func TestFenceTimelineFailures(t *testing.T) {
	var tl fenceTimeline
	tl.next(func(uint64) error {
		return errors.Mark(errors.New("vkWaitForFences failed: VK_TIMEOUT"), core.ErrTimeout)
	})
	tl.next(func(uint64) error {
		return errors.New("vkWaitForFences failed: VK_ERROR_OUT_OF_DEVICE_MEMORY")
	})

	err := tl.waitFor(1, time.Millisecond)
	if !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("expected a timeout; got %v", err)
	}
	if tl.completedValue() != 0 {
		t.Fatalf("expected nothing completed after a timeout; got %d", tl.completedValue())
	}

	err = tl.waitFor(2, time.Millisecond)
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("expected a failed wait to be fatal; got %v", err)
	}
}

func TestTopLevelPrebuild(t *testing.T) {
	info := topLevelPrebuild(3)
	if info.UpdateScratchDataSize < UpdateScratchRequirement {
		t.Fatalf("expected update scratch of at least %d; got %d", UpdateScratchRequirement, info.UpdateScratchDataSize)
	}
	for _, size := range []uint64{info.ResultDataMaxSize, info.ScratchDataSize, info.UpdateScratchDataSize} {
		if size%addressAlignment != 0 {
			t.Fatalf("expected sizes aligned to %d; got %d", addressAlignment, size)
		}
	}
	if floor := uint64(2*3*accel.NodeStride + 3*accel.GPUInstanceStride); info.ResultDataMaxSize < floor {
		t.Fatalf("expected result size of at least %d; got %d", floor, info.ResultDataMaxSize)
	}
}

func TestBottomLevelBuildsFromStagedBounds(t *testing.T) {
	positions := []math.Vec3{
		{-1, -1, -1}, {1, -1, -1}, {-1, 1, -1}, {1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {-1, 1, 1}, {1, 1, 1},
	}
	indices := []uint32{0, 1, 2, 3, 2, 1, 4, 6, 5, 7, 5, 6, 0, 4, 1, 5, 1, 4}
	tris, err := accel.GatherTriangles(positions, indices)
	if err != nil {
		t.Fatal(err)
	}

	info := bottomLevelPrebuild(uint64(len(tris)))
	scratch := make([]byte, info.ScratchDataSize)
	bottom, err := buildBottomLevel(scratch, tris)
	if err != nil {
		t.Fatalf("expected the staged build to succeed; got %v", err)
	}

	staged := readPrimitiveBounds(scratch, len(tris))
	if !reflect.DeepEqual(staged, accel.TriangleBounds(tris)) {
		t.Fatalf("expected scratch to hold one box per triangle; got %v", staged)
	}
	direct, err := accel.BuildBottomLevel(positions, indices)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(bottom.BVH.Nodes, direct.BVH.Nodes) || !reflect.DeepEqual(bottom.BVH.Order, direct.BVH.Order) {
		t.Fatalf("expected the staged build to match a direct build")
	}

	if _, err := buildBottomLevel(scratch[:primitiveScratch], tris); err == nil {
		t.Fatalf("expected a scratch buffer too small for %d triangles to be rejected", len(tris))
	}
}

func hostBuffer(size uint64) *VulkanBuffer {
	return &VulkanBuffer{Name: "host", Size: size, Data: make([]byte, size)}
}

func testBLAS(t *testing.T, positions []math.Vec3) *blasResources {
	t.Helper()
	bottom, err := accel.BuildBottomLevel(positions, nil)
	if err != nil {
		t.Fatalf("expected bottom level to build; got %v", err)
	}
	data, nodeBytes := flattenBottomLevel(bottom)
	info := bottomLevelPrebuild(uint64(len(bottom.Triangles)))
	if uint64(len(data)) > info.ResultDataMaxSize {
		t.Fatalf("expected %d bytes to fit the prebuild size %d", len(data), info.ResultDataMaxSize)
	}
	result := hostBuffer(info.ResultDataMaxSize)
	result.Write(0, data)
	return &blasResources{bottom: bottom, result: result, nodeBytes: nodeBytes}
}

func TestSceneUploadAndRefit(t *testing.T) {
	quad := testBLAS(t, []math.Vec3{
		{-1, 0, -1}, {1, 0, -1}, {-1, 0, 1},
		{1, 0, -1}, {1, 0, 1}, {-1, 0, 1},
	})
	tri := testBLAS(t, []math.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	blas := map[uint64]*blasResources{0x10000: quad, 0x10100: tri}

	ib := &metadata.InstanceBuffer{Count: 3, Mapped: make([]byte, 3*metadata.InstanceDescriptorSize)}
	for i, addr := range []uint64{0x10000, 0x10100, 0x10000} {
		d := metadata.InstanceDescriptor{
			Transform:             math.Identity3x4(),
			InstanceID:            uint32(i),
			Mask:                  0xFF,
			AccelerationStructure: addr,
		}
		if err := ib.Write(uint32(i), &d); err != nil {
			t.Fatalf("expected instance %d to be written; got %v", i, err)
		}
	}

	decoded, addresses, err := decodeInstances(ib, blas)
	if err != nil {
		t.Fatalf("expected instances to decode; got %v", err)
	}
	top, err := accel.BuildTopLevel(decoded, true)
	if err != nil {
		t.Fatalf("expected top level to build; got %v", err)
	}

	res := &tlasResources{top: top}
	var arenaSize uint64
	res.offsets, arenaSize = layoutArena(addresses, blas)
	if exp := quad.resultSize() + tri.resultSize(); arenaSize != exp {
		t.Fatalf("expected each BLAS once in a %d byte arena; got %d", exp, arenaSize)
	}
	if off := res.offsets[0x10100]; uint64(off[0])*vec4Size != quad.resultSize() {
		t.Fatalf("expected the second BLAS after the first; got node offset %d", off[0])
	}

	res.nodes = hostBuffer(2 * 3 * accel.NodeStride)
	res.arena = hostBuffer(arenaSize)
	res.instances = hostBuffer(3 * accel.GPUInstanceStride)
	res.updateScratch = hostBuffer(UpdateScratchRequirement)
	res.writeArena(blas)
	res.writeScene(addresses)

	if !bytes.Equal(res.arena.Data[:quad.resultSize()], quad.result.Data[:quad.resultSize()]) {
		t.Fatalf("expected the arena to start with the quad BLAS")
	}
	slot := -1
	for k, i := range top.BVH.Order {
		if i == 1 {
			slot = k
		}
	}
	if slot < 0 {
		t.Fatalf("expected instance 1 in the leaf order %v", top.BVH.Order)
	}
	rec := res.instances.Data[slot*accel.GPUInstanceStride:]
	triOff := res.offsets[0x10100]
	if got := binary.LittleEndian.Uint32(rec[48:]); got != triOff[0] {
		t.Fatalf("expected instance 1 node offset %d; got %d", triOff[0], got)
	}
	if got := binary.LittleEndian.Uint32(rec[52:]); got != triOff[1] {
		t.Fatalf("expected instance 1 triangle offset %d; got %d", triOff[1], got)
	}
	if got := binary.LittleEndian.Uint32(rec[56:]); got != 1|0xFF<<24 {
		t.Fatalf("expected instance id and mask packed; got 0x%x", got)
	}

	before := append([]byte(nil), res.nodes.Data...)
	moved := math.Identity3x4()
	moved[3] = 10
	if err := ib.WriteTransform(2, moved); err != nil {
		t.Fatalf("expected transform write; got %v", err)
	}
	decoded, addresses, err = decodeInstances(ib, blas)
	if err != nil {
		t.Fatalf("expected instances to decode; got %v", err)
	}
	if err := res.top.Refit(decoded); err != nil {
		t.Fatalf("expected refit to succeed; got %v", err)
	}
	res.writeScene(addresses)
	res.writeRefitCount(1)
	if bytes.Equal(before, res.nodes.Data) {
		t.Fatalf("expected refit to rewrite the node bounds")
	}
	if got := binary.LittleEndian.Uint64(res.updateScratch.Data); got != 1 {
		t.Fatalf("expected refit count 1 in the update scratch; got %d", got)
	}
}

func TestDecodeInstancesUnknownBLAS(t *testing.T) {
	ib := &metadata.InstanceBuffer{Count: 1, Mapped: make([]byte, metadata.InstanceDescriptorSize)}
	d := metadata.InstanceDescriptor{Transform: math.Identity3x4(), Mask: 1, AccelerationStructure: 0xdead00}
	if err := ib.Write(0, &d); err != nil {
		t.Fatalf("expected instance to be written; got %v", err)
	}
	if _, _, err := decodeInstances(ib, map[uint64]*blasResources{}); !errors.Is(err, ErrUnknownBLAS) {
		t.Fatalf("expected ErrUnknownBLAS; got %v", err)
	}
}
