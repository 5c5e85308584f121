package scene

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var ErrInvalidScene = errors.New("invalid scene")

// Animation returns the object to world transform at time t, in seconds.
type Animation func(t float32) mgl32.Mat4

// Static holds a fixed transform.
func Static(m mgl32.Mat4) Animation {
	return func(float32) mgl32.Mat4 { return m }
}

// Object is one instance of a mesh.
type Object struct {
	Name          string
	Mesh          string
	InstanceID    uint32
	Mask          uint8
	HitGroupIndex uint32
	Flags         metadata.InstanceFlags
	Animate       Animation
}

// Scene is a flat list of meshes and the objects placing them. The object
// count is fixed once the renderer is initialized.
type Scene struct {
	Name    string
	Meshes  []*metadata.GeometryDesc
	Objects []Object
}

func (s *Scene) Mesh(name string) (int, bool) {
	for i, m := range s.Meshes {
		if m.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (s *Scene) Validate() error {
	if len(s.Objects) == 0 {
		return errors.Wrapf(ErrInvalidScene, "%s has no objects", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Meshes))
	for _, m := range s.Meshes {
		if _, dup := seen[m.Name]; dup {
			return errors.Wrapf(ErrInvalidScene, "mesh %q defined twice", m.Name)
		}
		seen[m.Name] = struct{}{}
		if err := m.Validate(); err != nil {
			return err
		}
	}
	for i, o := range s.Objects {
		if _, ok := seen[o.Mesh]; !ok {
			return errors.Wrapf(ErrInvalidScene, "object %d (%s) uses unknown mesh %q", i, o.Name, o.Mesh)
		}
		if o.Mask == 0 {
			return errors.Wrapf(ErrInvalidScene, "object %d (%s) has an empty mask and can never be hit", i, o.Name)
		}
		if o.InstanceID > metadata.MaxInstanceField || o.HitGroupIndex > metadata.MaxInstanceField {
			return errors.Wrapf(ErrInvalidScene, "object %d (%s): instance id %#x or hit group %#x does not fit in 24 bits", i, o.Name, o.InstanceID, o.HitGroupIndex)
		}
	}
	return nil
}

// Transform evaluates the object's animation, identity when it has none.
func (o *Object) Transform(t float32) math.Mat3x4 {
	if o.Animate == nil {
		return math.Identity3x4()
	}
	return math.Mat3x4FromMat4(o.Animate(t))
}
