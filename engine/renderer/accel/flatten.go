package accel

import (
	"encoding/binary"
	gomath "math"

	"github.com/spaghettifunk/lumen/engine/math"
)

// std430 strides of the flattened structures consumed by compute shaders.
const (
	NodeStride        = 32
	TriangleStride    = 48
	GPUInstanceStride = 64
)

func putVec4(dst []byte, v math.Vec3, w uint32) {
	binary.LittleEndian.PutUint32(dst[0:], gomath.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(dst[4:], gomath.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(dst[8:], gomath.Float32bits(v[2]))
	binary.LittleEndian.PutUint32(dst[12:], w)
}

// AppendNodes writes nodes as pairs of vec4: (min, right or first) and
// (max, count). Indices stay relative to the structure.
func (bvh *BVH) AppendNodes(dst []byte) []byte {
	for i := range bvh.Nodes {
		n := &bvh.Nodes[i]
		var rec [NodeStride]byte
		link := uint32(n.Right)
		if n.IsLeaf() {
			link = n.First
		}
		putVec4(rec[0:], n.Bounds.Min, link)
		putVec4(rec[16:], n.Bounds.Max, n.Count)
		dst = append(dst, rec[:]...)
	}
	return dst
}

// AppendTriangles writes triangles in leaf order so node First indexes them directly.
func (b *BottomLevel) AppendTriangles(dst []byte) []byte {
	for _, p := range b.BVH.Order {
		tri := &b.Triangles[p]
		var rec [TriangleStride]byte
		putVec4(rec[0:], tri[0], p)
		putVec4(rec[16:], tri[1], 0)
		putVec4(rec[32:], tri[2], 0)
		dst = append(dst, rec[:]...)
	}
	return dst
}

// AppendGPUInstance writes the inverse transform rows followed by
// (node offset, triangle offset, id|mask<<24, hit group).
func AppendGPUInstance(dst []byte, inst *Instance, nodeOffset, triangleOffset uint32) []byte {
	var rec [GPUInstanceStride]byte
	inv := inst.inverse
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			binary.LittleEndian.PutUint32(rec[row*16+col*4:], gomath.Float32bits(inv[row*4+col]))
		}
	}
	binary.LittleEndian.PutUint32(rec[48:], nodeOffset)
	binary.LittleEndian.PutUint32(rec[52:], triangleOffset)
	binary.LittleEndian.PutUint32(rec[56:], inst.InstanceID&0xFFFFFF|uint32(inst.Mask)<<24)
	binary.LittleEndian.PutUint32(rec[60:], inst.HitGroupIndex)
	return append(dst, rec[:]...)
}
