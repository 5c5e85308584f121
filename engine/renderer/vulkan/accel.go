package vulkan

import (
	"encoding/binary"
	gomath "math"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/accel"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	// An update writes the refit counter into the persistent scratch.
	UpdateScratchRequirement uint64 = 8
	refitScratchEntry        uint64 = 16
	primitiveScratch         uint64 = 32
	vec4Size                 uint64 = 16
)

var ErrUnknownBLAS = errors.New("instance references an address that is not a bottom level structure")

/**
 * @brief A BLAS flattened into its result buffer: nodes first, triangles after.
 */
type blasResources struct {
	bottom    *accel.BottomLevel
	result    *VulkanBuffer
	nodeBytes uint64
}

/**
 * @brief Buffers the compute shader traces against. The arena holds a copy
 * of every BLAS the instances reference.
 */
type tlasResources struct {
	top           *accel.TopLevel
	nodes         *VulkanBuffer
	arena         *VulkanBuffer
	instances     *VulkanBuffer
	updateScratch *VulkanBuffer
	// BLAS address to its node and triangle offsets in the arena, in vec4s
	offsets    map[uint64][2]uint32
	generation uint64
}

func (t *tlasResources) destroy(context *VulkanContext) {
	for _, b := range []*VulkanBuffer{t.nodes, t.arena, t.instances, t.updateScratch} {
		if b != nil {
			b.Destroy(context)
		}
	}
}

func bottomLevelPrebuild(triangles uint64) metadata.PrebuildInfo {
	return metadata.PrebuildInfo{
		ResultDataMaxSize: math.AlignUp(2*triangles*accel.NodeStride+triangles*accel.TriangleStride, addressAlignment),
		ScratchDataSize:   math.AlignUp(triangles*primitiveScratch, addressAlignment),
	}
}

func topLevelPrebuild(instances uint64) metadata.PrebuildInfo {
	return metadata.PrebuildInfo{
		ResultDataMaxSize:     math.AlignUp(2*instances*accel.NodeStride+instances*accel.GPUInstanceStride, addressAlignment),
		ScratchDataSize:       math.AlignUp(instances*primitiveScratch, addressAlignment),
		UpdateScratchDataSize: math.AlignUp(UpdateScratchRequirement+instances*refitScratchEntry, addressAlignment),
	}
}

// buildBottomLevel stages one box per triangle in scratch and builds the
// BVH from what was staged.
func buildBottomLevel(scratch []byte, tris [][3]math.Vec3) (*accel.BottomLevel, error) {
	if need := uint64(len(tris)) * primitiveScratch; uint64(len(scratch)) < need {
		return nil, errors.Newf("scratch of %d bytes, %d triangles need %d", len(scratch), len(tris), need)
	}
	writePrimitiveBounds(scratch, accel.TriangleBounds(tris))
	return accel.NewBottomLevel(tris, readPrimitiveBounds(scratch, len(tris)))
}

func writePrimitiveBounds(scratch []byte, bounds []math.AABB) {
	for i, b := range bounds {
		rec := scratch[uint64(i)*primitiveScratch:]
		for c := 0; c < 3; c++ {
			binary.LittleEndian.PutUint32(rec[c*4:], gomath.Float32bits(b.Min[c]))
			binary.LittleEndian.PutUint32(rec[16+c*4:], gomath.Float32bits(b.Max[c]))
		}
	}
}

func readPrimitiveBounds(scratch []byte, count int) []math.AABB {
	bounds := make([]math.AABB, count)
	for i := range bounds {
		rec := scratch[uint64(i)*primitiveScratch:]
		for c := 0; c < 3; c++ {
			bounds[i].Min[c] = gomath.Float32frombits(binary.LittleEndian.Uint32(rec[c*4:]))
			bounds[i].Max[c] = gomath.Float32frombits(binary.LittleEndian.Uint32(rec[16+c*4:]))
		}
	}
	return bounds
}

func flattenBottomLevel(bottom *accel.BottomLevel) ([]byte, uint64) {
	data := bottom.BVH.AppendNodes(nil)
	nodeBytes := uint64(len(data))
	return bottom.AppendTriangles(data), nodeBytes
}

// decodeInstances reads the instance records and resolves their BLAS addresses.
func decodeInstances(buffer *metadata.InstanceBuffer, blas map[uint64]*blasResources) ([]accel.Instance, []uint64, error) {
	out := make([]accel.Instance, buffer.Count)
	addresses := make([]uint64, buffer.Count)
	for i := uint32(0); i < buffer.Count; i++ {
		d, err := buffer.Read(i)
		if err != nil {
			return nil, nil, err
		}
		res, ok := blas[d.AccelerationStructure]
		if !ok {
			return nil, nil, errors.Wrapf(ErrUnknownBLAS, "instance %d, address 0x%x", i, d.AccelerationStructure)
		}
		out[i] = accel.Instance{
			Transform:     d.Transform,
			InstanceID:    d.InstanceID,
			Mask:          d.Mask,
			HitGroupIndex: d.HitGroupIndex,
			Flags:         d.Flags,
			BLAS:          res.bottom,
		}
		addresses[i] = d.AccelerationStructure
	}
	return out, addresses, nil
}

// layoutArena assigns every distinct BLAS a place in the arena, in order of
// first use, and returns the arena size in bytes.
func layoutArena(addresses []uint64, blas map[uint64]*blasResources) (map[uint64][2]uint32, uint64) {
	offsets := make(map[uint64][2]uint32)
	var size uint64
	for _, addr := range addresses {
		if _, ok := offsets[addr]; ok {
			continue
		}
		res := blas[addr]
		offsets[addr] = [2]uint32{uint32(size / vec4Size), uint32((size + res.nodeBytes) / vec4Size)}
		size += res.resultSize()
	}
	return offsets, size
}

func (b *blasResources) resultSize() uint64 {
	return b.nodeBytes + uint64(len(b.bottom.Triangles))*accel.TriangleStride
}

// writeScene rewrites the TLAS nodes and the per instance records. Records
// are stored in leaf order so a leaf's First indexes them directly. Called
// after a build and after every refit.
func (t *tlasResources) writeScene(addresses []uint64) {
	t.nodes.Write(0, t.top.BVH.AppendNodes(nil))
	records := make([]byte, 0, len(addresses)*accel.GPUInstanceStride)
	for _, i := range t.top.BVH.Order {
		off := t.offsets[addresses[i]]
		records = accel.AppendGPUInstance(records, &t.top.Instances[i], off[0], off[1])
	}
	t.instances.Write(0, records)
}

// writeArena copies every referenced BLAS to its arena offset.
func (t *tlasResources) writeArena(blas map[uint64]*blasResources) {
	for addr, off := range t.offsets {
		res := blas[addr]
		t.arena.Write(uint64(off[0])*vec4Size, res.result.Data[:res.resultSize()])
	}
}

func (t *tlasResources) writeRefitCount(count uint64) {
	binary.LittleEndian.PutUint64(t.updateScratch.Data, count)
}
