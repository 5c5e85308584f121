package vulkan

import (
	"encoding/binary"
	gomath "math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Device addresses are virtual: compute shaders see offsets into bound
// buffers, the addresses only identify resources inside instance records.
const (
	addressBase      uint64 = 0x10000
	addressAlignment uint64 = 256
)

type addressSpace struct {
	next uint64
}

func (a *addressSpace) allocate(size uint64) uint64 {
	if a.next == 0 {
		a.next = addressBase
	}
	addr := a.next
	a.next = math.AlignUp(addr+max(size, 1), addressAlignment)
	return addr
}

/**
 * @brief Internal buffer data for geometry. Vertices and indices live in
 * host visible storage buffers.
 */
type geometryResources struct {
	vertices    *VulkanBuffer
	indices     *VulkanBuffer
	indexFormat metadata.IndexFormat
	vertexCount uint32
	indexCount  uint32
}

func (g *geometryResources) destroy(context *VulkanContext) {
	g.vertices.Destroy(context)
	if g.indices != nil {
		g.indices.Destroy(context)
	}
}

// positions decodes the vertex buffer back into vectors.
func (g *geometryResources) positions() []math.Vec3 {
	out := make([]math.Vec3, g.vertexCount)
	data := g.vertices.Data
	for i := range out {
		for c := 0; c < 3; c++ {
			out[i][c] = gomath.Float32frombits(binary.LittleEndian.Uint32(data[(i*3+c)*4:]))
		}
	}
	return out
}

// triangleIndices returns the index list, synthesizing one for non indexed geometry.
func (g *geometryResources) triangleIndices() []uint32 {
	if g.indices == nil {
		out := make([]uint32, g.vertexCount)
		for i := range out {
			out[i] = uint32(i)
		}
		return out
	}
	out := make([]uint32, g.indexCount)
	data := g.indices.Data
	for i := range out {
		if g.indexFormat == metadata.IndexFormatUint16 {
			out[i] = uint32(binary.LittleEndian.Uint16(data[i*2:]))
		} else {
			out[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
	}
	return out
}

func createGeometryResources(context *VulkanContext, desc *metadata.GeometryDesc) (*geometryResources, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	res := &geometryResources{
		indexFormat: desc.IndexFormat,
		vertexCount: desc.VertexCount(),
		indexCount:  uint32(len(desc.Indices)),
	}
	var err error
	usage := vk.BufferUsageStorageBufferBit
	if res.vertices, err = NewBuffer(context, desc.Name+"-vertices", uint64(len(desc.Vertices))*4, usage); err != nil {
		return nil, err
	}
	for i, f := range desc.Vertices {
		binary.LittleEndian.PutUint32(res.vertices.Data[i*4:], gomath.Float32bits(f))
	}
	if desc.IndexFormat == metadata.IndexFormatNone {
		return res, nil
	}

	size := uint64(len(desc.Indices)) * uint64(desc.IndexFormat.Size())
	if res.indices, err = NewBuffer(context, desc.Name+"-indices", size, usage); err != nil {
		res.vertices.Destroy(context)
		return nil, err
	}
	for i, idx := range desc.Indices {
		if desc.IndexFormat == metadata.IndexFormatUint16 {
			binary.LittleEndian.PutUint16(res.indices.Data[i*2:], uint16(idx))
		} else {
			binary.LittleEndian.PutUint32(res.indices.Data[i*4:], idx)
		}
	}
	return res, nil
}

// mergeGeometry concatenates the triangles of every geometry into one list.
func mergeGeometry(geometry []*metadata.GeometryBuffer) ([]math.Vec3, []uint32, error) {
	var positions []math.Vec3
	var indices []uint32
	for _, g := range geometry {
		if err := g.Check(); err != nil {
			return nil, nil, err
		}
		res, ok := g.InternalData.(*geometryResources)
		if !ok {
			return nil, nil, errors.Newf("geometry %s was not created by this backend", g.Name)
		}
		base := uint32(len(positions))
		positions = append(positions, res.positions()...)
		for _, idx := range res.triangleIndices() {
			indices = append(indices, base+idx)
		}
	}
	if len(indices) == 0 {
		return nil, nil, errors.Wrap(metadata.ErrMalformedGeometry, "bottom level build without geometry")
	}
	return positions, indices, nil
}
