package scene

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// InstanceTable writes instance records straight into the mapped instance
// buffer. Callers must make sure the GPU is done reading the previous
// contents before updating.
type InstanceTable struct {
	buffer     *metadata.InstanceBuffer
	animations []Animation
	updates    uint64
}

func NewInstanceTable(buffer *metadata.InstanceBuffer) (*InstanceTable, error) {
	if err := buffer.Check(); err != nil {
		return nil, err
	}
	return &InstanceTable{
		buffer:     buffer,
		animations: make([]Animation, buffer.Count),
	}, nil
}

func (t *InstanceTable) Count() uint32 {
	return t.buffer.Count
}

func (t *InstanceTable) Set(index uint32, d *metadata.InstanceDescriptor) error {
	return t.buffer.Write(index, d)
}

func (t *InstanceTable) SetAnimation(index uint32, a Animation) error {
	if index >= t.Count() {
		return errors.Wrapf(metadata.ErrInstanceOutOfRange, "index %d, count %d", index, t.Count())
	}
	t.animations[index] = a
	return nil
}

func (t *InstanceTable) Get(index uint32) (metadata.InstanceDescriptor, error) {
	return t.buffer.Read(index)
}

// UpdateTransforms evaluates every animation at time and overwrites only the
// transform part of the records.
func (t *InstanceTable) UpdateTransforms(time float32) error {
	for i, a := range t.animations {
		if a == nil {
			continue
		}
		if err := t.buffer.WriteTransform(uint32(i), math.Mat3x4FromMat4(a(time))); err != nil {
			return err
		}
	}
	t.updates++
	return nil
}

func (t *InstanceTable) Updates() uint64 {
	return t.updates
}

// Load fills the table from the scene objects, resolving each mesh to the
// device address of its bottom level structure.
func (t *InstanceTable) Load(s *Scene, blasAddress func(mesh string) (uint64, error)) error {
	if uint32(len(s.Objects)) != t.Count() {
		return errors.Wrapf(ErrInvalidScene, "%d objects for a table of %d", len(s.Objects), t.Count())
	}
	for i := range s.Objects {
		o := &s.Objects[i]
		addr, err := blasAddress(o.Mesh)
		if err != nil {
			return err
		}
		d := metadata.InstanceDescriptor{
			Transform:             o.Transform(0),
			InstanceID:            o.InstanceID,
			Mask:                  o.Mask,
			HitGroupIndex:         o.HitGroupIndex,
			Flags:                 o.Flags,
			AccelerationStructure: addr,
		}
		if err := t.Set(uint32(i), &d); err != nil {
			return err
		}
		if err := t.SetAnimation(uint32(i), o.Animate); err != nil {
			return err
		}
	}
	return nil
}
