package accel

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var (
	ErrNotUpdatable      = errors.New("acceleration structure was not built with allow-update")
	ErrInstanceCount     = errors.New("instance count changed since build")
	ErrSingularTransform = errors.New("instance transform is not invertible")
	ErrMissingBLAS       = errors.New("instance references no bottom level structure")
)

type Instance struct {
	Transform     math.Mat3x4
	InstanceID    uint32
	Mask          uint8
	HitGroupIndex uint32
	Flags         metadata.InstanceFlags
	BLAS          *BottomLevel

	inverse math.Mat3x4
	bounds  math.AABB
}

func (i *Instance) Inverse() math.Mat3x4 {
	return i.inverse
}

func (i *Instance) WorldBounds() math.AABB {
	return i.bounds
}

func (i *Instance) prepare(index int) error {
	if i.BLAS == nil {
		return errors.Wrapf(ErrMissingBLAS, "instance %d", index)
	}
	inv, ok := i.Transform.Inverse()
	if !ok {
		return errors.Wrapf(ErrSingularTransform, "instance %d", index)
	}
	i.inverse = inv
	i.bounds = i.BLAS.Bounds().Transform(i.Transform)
	return nil
}

// TopLevel is a BVH over instance world bounds.
type TopLevel struct {
	Instances   []Instance
	BVH         *BVH
	AllowUpdate bool
	RefitCount  uint64
}

type Hit struct {
	T             float32
	U, V          float32
	InstanceIndex uint32
	InstanceID    uint32
	HitGroupIndex uint32
	Primitive     uint32
	// World space geometric normal, normalized.
	Normal math.Vec3
}

func BuildTopLevel(instances []Instance, allowUpdate bool) (*TopLevel, error) {
	tl := &TopLevel{
		Instances:   append([]Instance(nil), instances...),
		AllowUpdate: allowUpdate,
	}
	bounds := make([]math.AABB, len(tl.Instances))
	for i := range tl.Instances {
		if err := tl.Instances[i].prepare(i); err != nil {
			return nil, err
		}
		bounds[i] = tl.Instances[i].bounds
	}
	tl.BVH = Build(bounds, 1)
	return tl, nil
}

// Refit replaces the instance data and refits the bounds in place. The
// tree topology from the build is kept, so trace quality may degrade as
// instances move but the result stays correct.
func (tl *TopLevel) Refit(instances []Instance) error {
	if !tl.AllowUpdate {
		return ErrNotUpdatable
	}
	if len(instances) != len(tl.Instances) {
		return errors.Wrapf(ErrInstanceCount, "built with %d, got %d", len(tl.Instances), len(instances))
	}

	next := make([]Instance, len(instances))
	copy(next, instances)
	bounds := make([]math.AABB, len(next))
	for i := range next {
		if err := next[i].prepare(i); err != nil {
			return err
		}
		bounds[i] = next[i].bounds
	}
	tl.Instances = next
	tl.BVH.Refit(bounds)
	tl.RefitCount++
	return nil
}

// Intersect traces r against every instance whose mask shares a bit with mask.
func (tl *TopLevel) Intersect(r math.Ray, tMin, tMax float32, mask uint8, anyHit bool) (Hit, bool) {
	var best Hit
	_, _, found := tl.BVH.Traverse(r, tMin, tMax, anyHit, func(p uint32, lo, hi float32) (float32, bool) {
		inst := &tl.Instances[p]
		if inst.Mask&mask == 0 {
			return 0, false
		}
		objRay := r.Transform(inst.inverse)
		th, ok := inst.BLAS.Intersect(objRay, lo, hi, anyHit)
		if !ok {
			return 0, false
		}
		best = Hit{
			T:             th.T,
			U:             th.U,
			V:             th.V,
			InstanceIndex: p,
			InstanceID:    inst.InstanceID,
			HitGroupIndex: inst.HitGroupIndex,
			Primitive:     th.Primitive,
			Normal:        inst.inverse.TransformNormal(th.Normal).Normalize(),
		}
		return th.T, true
	})
	return best, found
}
