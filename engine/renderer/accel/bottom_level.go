package accel

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Maximum triangles per BLAS leaf.
const blasLeafSize = 4

// BottomLevel is a BVH over one mesh's triangles, in object space.
type BottomLevel struct {
	Triangles [][3]math.Vec3
	BVH       *BVH
}

type TriangleHit struct {
	T         float32
	U, V      float32
	Primitive uint32
	// Geometric normal in object space.
	Normal math.Vec3
}

// BuildBottomLevel builds from positions and an optional triangle list of indices.
func BuildBottomLevel(positions []math.Vec3, indices []uint32) (*BottomLevel, error) {
	tris, err := GatherTriangles(positions, indices)
	if err != nil {
		return nil, err
	}
	return NewBottomLevel(tris, TriangleBounds(tris))
}

// GatherTriangles resolves an optional index list into triangles.
func GatherTriangles(positions []math.Vec3, indices []uint32) ([][3]math.Vec3, error) {
	if len(indices) > 0 {
		if len(indices)%3 != 0 {
			return nil, errors.Wrapf(metadata.ErrMalformedGeometry, "index count %d is not a multiple of 3", len(indices))
		}
		tris := make([][3]math.Vec3, 0, len(indices)/3)
		for i := 0; i < len(indices); i += 3 {
			var tri [3]math.Vec3
			for k := 0; k < 3; k++ {
				idx := indices[i+k]
				if int(idx) >= len(positions) {
					return nil, errors.Wrapf(metadata.ErrMalformedGeometry, "index %d exceeds vertex count %d", idx, len(positions))
				}
				tri[k] = positions[idx]
			}
			tris = append(tris, tri)
		}
		return tris, nil
	}

	if len(positions) == 0 || len(positions)%3 != 0 {
		return nil, errors.Wrapf(metadata.ErrMalformedGeometry, "%d vertices is not a triangle list", len(positions))
	}
	tris := make([][3]math.Vec3, 0, len(positions)/3)
	for i := 0; i < len(positions); i += 3 {
		tris = append(tris, [3]math.Vec3{positions[i], positions[i+1], positions[i+2]})
	}
	return tris, nil
}

func TriangleBounds(tris [][3]math.Vec3) []math.AABB {
	bounds := make([]math.AABB, len(tris))
	for i, tri := range tris {
		bounds[i] = math.EmptyAABB().Extend(tri[0]).Extend(tri[1]).Extend(tri[2])
	}
	return bounds
}

// NewBottomLevel builds the BVH over bounds, one box per triangle.
func NewBottomLevel(tris [][3]math.Vec3, bounds []math.AABB) (*BottomLevel, error) {
	if len(bounds) != len(tris) {
		return nil, errors.Wrapf(metadata.ErrMalformedGeometry, "%d bounds for %d triangles", len(bounds), len(tris))
	}
	return &BottomLevel{
		Triangles: tris,
		BVH:       Build(bounds, blasLeafSize),
	}, nil
}

// BuildBottomLevelFromDesc validates and builds from a geometry description.
func BuildBottomLevelFromDesc(desc *metadata.GeometryDesc) (*BottomLevel, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	positions := make([]math.Vec3, desc.VertexCount())
	for i := range positions {
		positions[i] = desc.Position(uint32(i))
	}
	var indices []uint32
	if desc.IndexFormat != metadata.IndexFormatNone {
		indices = desc.Indices
	}
	return BuildBottomLevel(positions, indices)
}

func (b *BottomLevel) Bounds() math.AABB {
	return b.BVH.Bounds()
}

func (b *BottomLevel) Intersect(r math.Ray, tMin, tMax float32, anyHit bool) (TriangleHit, bool) {
	var hit TriangleHit
	prim, t, ok := b.BVH.Traverse(r, tMin, tMax, anyHit, func(p uint32, lo, hi float32) (float32, bool) {
		tri := &b.Triangles[p]
		th, u, v, ok := math.IntersectTriangle(r, tri[0], tri[1], tri[2], lo, hi)
		if ok {
			hit.U, hit.V = u, v
		}
		return th, ok
	})
	if !ok {
		return TriangleHit{}, false
	}
	// every accepted candidate is closer than the previous one, so U and V
	// already belong to prim
	tri := &b.Triangles[prim]
	hit.T = t
	hit.Primitive = prim
	hit.Normal = math.TriangleNormal(tri[0], tri[1], tri[2])
	return hit, true
}
