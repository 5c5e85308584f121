package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
)

/** @brief Size in bytes of one position (3 x float32). */
const VertexStride uint32 = 12

type IndexFormat uint8

const (
	IndexFormatNone IndexFormat = iota
	IndexFormatUint16
	IndexFormatUint32
)

func (f IndexFormat) Size() uint32 {
	switch f {
	case IndexFormatUint16:
		return 2
	case IndexFormatUint32:
		return 4
	}
	return 0
}

var ErrMalformedGeometry = errors.New("malformed geometry")

/**
 * @brief Describes triangle geometry to upload. Vertices are packed xyz
 * float triplets. Indices are optional and stored on the device using
 * IndexFormat.
 */
type GeometryDesc struct {
	Name        string
	Vertices    []float32
	Indices     []uint32
	IndexFormat IndexFormat
	Opaque      bool
}

func (g *GeometryDesc) VertexCount() uint32 {
	return uint32(len(g.Vertices) / 3)
}

func (g *GeometryDesc) TriangleCount() uint32 {
	if g.IndexFormat != IndexFormatNone {
		return uint32(len(g.Indices) / 3)
	}
	return g.VertexCount() / 3
}

// Validate reports geometry no backend can build from.
func (g *GeometryDesc) Validate() error {
	if len(g.Vertices) == 0 {
		return errors.Wrapf(ErrMalformedGeometry, "%s: no vertices", g.Name)
	}
	if len(g.Vertices)%3 != 0 {
		return errors.Wrapf(ErrMalformedGeometry, "%s: %d floats is not a whole number of positions", g.Name, len(g.Vertices))
	}
	vertexCount := g.VertexCount()
	switch g.IndexFormat {
	case IndexFormatNone:
		if len(g.Indices) != 0 {
			return errors.Wrapf(ErrMalformedGeometry, "%s: indices given without an index format", g.Name)
		}
		if vertexCount%3 != 0 {
			return errors.Wrapf(ErrMalformedGeometry, "%s: %d vertices is not a triangle list", g.Name, vertexCount)
		}
	case IndexFormatUint16, IndexFormatUint32:
		if len(g.Indices) == 0 || len(g.Indices)%3 != 0 {
			return errors.Wrapf(ErrMalformedGeometry, "%s: index count %d is not a multiple of 3", g.Name, len(g.Indices))
		}
		for i, idx := range g.Indices {
			if idx >= vertexCount {
				return errors.Wrapf(ErrMalformedGeometry, "%s: index %d at position %d exceeds vertex count %d", g.Name, idx, i, vertexCount)
			}
			if g.IndexFormat == IndexFormatUint16 && idx > 0xFFFF {
				return errors.Wrapf(ErrMalformedGeometry, "%s: index %d does not fit in 16 bits", g.Name, idx)
			}
		}
	default:
		return errors.Wrapf(ErrMalformedGeometry, "%s: unknown index format %d", g.Name, g.IndexFormat)
	}
	return nil
}

// Position returns vertex i.
func (g *GeometryDesc) Position(i uint32) math.Vec3 {
	return math.Vec3{g.Vertices[i*3], g.Vertices[i*3+1], g.Vertices[i*3+2]}
}

// Bounds returns the bounding box of all vertices.
func (g *GeometryDesc) Bounds() math.AABB {
	b := math.EmptyAABB()
	for i := uint32(0); i < g.VertexCount(); i++ {
		b = b.Extend(g.Position(i))
	}
	return b
}

/**
 * @brief Immutable vertex and optional index data resident on the device.
 */
type GeometryBuffer struct {
	Handle
	VertexCount   uint32
	IndexCount    uint32
	IndexFormat   IndexFormat
	TriangleCount uint32
	Opaque        bool
	/** @brief Device address of the first vertex. */
	VertexAddress uint64
	/** @brief Device address of the first index, 0 when not indexed. */
	IndexAddress uint64
	Bounds       math.AABB
	InternalData interface{}
}
