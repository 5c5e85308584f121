package metadata

import (
	"encoding/binary"
	gomath "math"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
)

/** @brief Size in bytes of one encoded instance record. */
const InstanceDescriptorSize = 64

/** @brief Largest InstanceID or HitGroupIndex that fits its 24 bit field. */
const MaxInstanceField uint32 = 0xFFFFFF

var ErrInstanceOutOfRange = errors.New("instance index out of range")

type InstanceFlags uint8

const (
	InstanceFlagNone                InstanceFlags = 0
	InstanceFlagTriangleCullDisable InstanceFlags = 0x1
	InstanceFlagTriangleFrontCCW    InstanceFlags = 0x2
	InstanceFlagForceOpaque         InstanceFlags = 0x4
	InstanceFlagForceNonOpaque      InstanceFlags = 0x8
)

/**
 * @brief One TLAS entry. Encodes to a 64 byte little endian record:
 * 12 floats of transform, then InstanceID:24|Mask:8, then
 * HitGroupIndex:24|Flags:8, then the BLAS device address.
 */
type InstanceDescriptor struct {
	Transform     math.Mat3x4
	InstanceID    uint32
	Mask          uint8
	HitGroupIndex uint32
	Flags         InstanceFlags
	/** @brief Device address of the referenced BLAS. */
	AccelerationStructure uint64
}

func (d *InstanceDescriptor) Encode(dst []byte) {
	_ = dst[InstanceDescriptorSize-1]
	for i, f := range d.Transform {
		binary.LittleEndian.PutUint32(dst[i*4:], gomath.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(dst[48:], d.InstanceID&MaxInstanceField|uint32(d.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], d.HitGroupIndex&MaxInstanceField|uint32(d.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], d.AccelerationStructure)
}

func DecodeInstanceDescriptor(src []byte) InstanceDescriptor {
	_ = src[InstanceDescriptorSize-1]
	var d InstanceDescriptor
	for i := range d.Transform {
		d.Transform[i] = gomath.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	idMask := binary.LittleEndian.Uint32(src[48:])
	d.InstanceID = idMask & 0xFFFFFF
	d.Mask = uint8(idMask >> 24)
	hitFlags := binary.LittleEndian.Uint32(src[52:])
	d.HitGroupIndex = hitFlags & 0xFFFFFF
	d.Flags = InstanceFlags(hitFlags >> 24)
	d.AccelerationStructure = binary.LittleEndian.Uint64(src[56:])
	return d
}

// WriteTransform only touches the 48 transform bytes of a record.
func WriteTransform(dst []byte, m math.Mat3x4) {
	_ = dst[47]
	for i, f := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], gomath.Float32bits(f))
	}
}

/**
 * @brief Upload heap buffer holding a fixed number of instance records.
 * Mapped stays valid until Release and is the only CPU write path.
 */
type InstanceBuffer struct {
	Handle
	Count        uint32
	Address      uint64
	Mapped       []byte
	InternalData interface{}
}

func (b *InstanceBuffer) record(index uint32) ([]byte, error) {
	if err := b.Check(); err != nil {
		return nil, err
	}
	if index >= b.Count {
		return nil, errors.Wrapf(ErrInstanceOutOfRange, "index %d, count %d", index, b.Count)
	}
	off := int(index) * InstanceDescriptorSize
	return b.Mapped[off : off+InstanceDescriptorSize], nil
}

func (b *InstanceBuffer) Write(index uint32, d *InstanceDescriptor) error {
	rec, err := b.record(index)
	if err != nil {
		return err
	}
	d.Encode(rec)
	return nil
}

func (b *InstanceBuffer) WriteTransform(index uint32, m math.Mat3x4) error {
	rec, err := b.record(index)
	if err != nil {
		return err
	}
	WriteTransform(rec, m)
	return nil
}

func (b *InstanceBuffer) Read(index uint32) (InstanceDescriptor, error) {
	rec, err := b.record(index)
	if err != nil {
		return InstanceDescriptor{}, err
	}
	return DecodeInstanceDescriptor(rec), nil
}
