package soft

import (
	"encoding/binary"
	gomath "math"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/accel"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Sizes of the serialized structures the prebuild info accounts for.
const (
	accelHeaderSize   uint64 = 64
	accelAlignment    uint64 = 256
	triangleSize      uint64 = accel.TriangleStride
	nodeSize          uint64 = accel.NodeStride
	instanceSize      uint64 = accel.GPUInstanceStride
	primitiveScratch  uint64 = 32
	refitScratchEntry uint64 = 16
)

var ErrScratchTooSmall = errors.New("scratch buffer smaller than the build requires")

func (in *BuildInputs) primitiveCount() (uint64, error) {
	switch in.Kind {
	case metadata.AccelerationStructureBottomLevel:
		var tris uint64
		for i, g := range in.Geometries {
			n := g.VertexCount
			if g.IndexFormat != metadata.IndexFormatNone {
				n = g.IndexCount
			}
			if n == 0 || n%3 != 0 {
				return 0, errors.Wrapf(metadata.ErrMalformedGeometry, "geometry %d has %d vertices or indices", i, n)
			}
			tris += uint64(n / 3)
		}
		if tris == 0 {
			return 0, errors.New("bottom level build without geometry")
		}
		return tris, nil
	case metadata.AccelerationStructureTopLevel:
		if in.NumDescs == 0 {
			return 0, errors.New("top level build without instances")
		}
		return uint64(in.NumDescs), nil
	}
	return 0, errors.Newf("unknown acceleration structure kind %d", in.Kind)
}

func (d *Device) requirements(in *BuildInputs) (metadata.PrebuildInfo, error) {
	n, err := in.primitiveCount()
	if err != nil {
		return metadata.PrebuildInfo{}, err
	}
	var info metadata.PrebuildInfo
	nodes := 2 * n * nodeSize
	if in.Kind == metadata.AccelerationStructureBottomLevel {
		info.ResultDataMaxSize = math.AlignUp(accelHeaderSize+n*triangleSize+nodes, accelAlignment)
	} else {
		info.ResultDataMaxSize = math.AlignUp(accelHeaderSize+n*instanceSize+nodes, accelAlignment)
	}
	info.ScratchDataSize = math.AlignUp(accelHeaderSize+n*primitiveScratch, accelAlignment)
	if in.Flags&metadata.BuildFlagAllowUpdate != 0 {
		info.UpdateScratchDataSize = math.AlignUp(UpdateScratchRequirement+n*refitScratchEntry, accelAlignment)
	}
	return info, nil
}

// GetRaytracingAccelerationStructurePrebuildInfo reports buffer sizes for a
// build of inputs. With ReportZeroUpdateScratch set the update scratch is
// reported as 0 even though an update still needs UpdateScratchRequirement bytes.
func (d *Device) GetRaytracingAccelerationStructurePrebuildInfo(in *BuildInputs) (metadata.PrebuildInfo, error) {
	info, err := d.requirements(in)
	if err != nil {
		return info, err
	}
	if d.options.ReportZeroUpdateScratch {
		info.UpdateScratchDataSize = 0
	}
	return info, nil
}

func (c *buildCommand) execute(ctx *executionContext) error {
	desc := &c.desc
	alloc := ctx.device.allocator
	update := desc.Inputs.Flags&metadata.BuildFlagPerformUpdate != 0

	dest, off, err := alloc.Resolve(desc.Dest)
	if err != nil {
		return errors.Wrap(err, "build destination")
	}
	if off != 0 {
		return errors.Newf("build destination 0x%x is not the start of %s", desc.Dest, dest.Name)
	}
	if err := expectState(dest, metadata.ResourceStateAccelerationStructure); err != nil {
		return err
	}

	info, err := ctx.device.requirements(&desc.Inputs)
	if err != nil {
		return err
	}
	if dest.Size < info.ResultDataMaxSize {
		return errors.Newf("destination %s has %d bytes, build needs %d", dest.Name, dest.Size, info.ResultDataMaxSize)
	}

	need := info.ScratchDataSize
	if update {
		need = UpdateScratchRequirement
	}
	scratch, scratchOff, err := alloc.Resolve(desc.Scratch)
	if err != nil {
		return errors.Wrap(err, "build scratch")
	}
	if err := expectState(scratch, metadata.ResourceStateUnorderedAccess); err != nil {
		return err
	}
	if scratch.Size-scratchOff < need {
		return errors.Wrapf(ErrScratchTooSmall, "%s has %d bytes, %d needed", scratch.Name, scratch.Size-scratchOff, need)
	}

	switch desc.Inputs.Kind {
	case metadata.AccelerationStructureBottomLevel:
		if update {
			return errors.New("bottom level structures are built once and never updated")
		}
		bl, err := buildBottomLevel(ctx, desc.Inputs.Geometries)
		if err != nil {
			return err
		}
		dest.payload = bl
	case metadata.AccelerationStructureTopLevel:
		instances, err := readInstances(ctx, desc.Inputs.InstanceDescs, desc.Inputs.NumDescs)
		if err != nil {
			return err
		}
		if update {
			if desc.Source != desc.Dest {
				return errors.New("only in place top level updates are supported")
			}
			tl, ok := dest.payload.(*accel.TopLevel)
			if !ok {
				return errors.Newf("update source %s holds no top level structure", dest.Name)
			}
			if err := tl.Refit(instances); err != nil {
				return err
			}
			binary.LittleEndian.PutUint64(scratch.data[scratchOff:], tl.RefitCount)
		} else {
			tl, err := accel.BuildTopLevel(instances, desc.Inputs.Flags&metadata.BuildFlagAllowUpdate != 0)
			if err != nil {
				return err
			}
			dest.payload = tl
		}
	}
	ctx.pendingWrites[dest] = struct{}{}
	return nil
}

func buildBottomLevel(ctx *executionContext, geometries []GeometryTriangles) (*accel.BottomLevel, error) {
	var (
		positions []math.Vec3
		indices   []uint32
	)
	for gi, g := range geometries {
		if g.VertexStride < uint64(metadata.VertexStride) {
			return nil, errors.Newf("geometry %d: vertex stride %d is below %d", gi, g.VertexStride, metadata.VertexStride)
		}
		_, vb, err := ctx.device.allocator.ResolveRange(g.VertexBuffer, uint64(g.VertexCount)*g.VertexStride)
		if err != nil {
			return nil, errors.Wrapf(err, "geometry %d vertices", gi)
		}
		base := uint32(len(positions))
		for v := uint32(0); v < g.VertexCount; v++ {
			p := vb[uint64(v)*g.VertexStride:]
			positions = append(positions, math.Vec3{
				gomath.Float32frombits(binary.LittleEndian.Uint32(p[0:])),
				gomath.Float32frombits(binary.LittleEndian.Uint32(p[4:])),
				gomath.Float32frombits(binary.LittleEndian.Uint32(p[8:])),
			})
		}

		if g.IndexFormat == metadata.IndexFormatNone {
			for v := uint32(0); v < g.VertexCount; v++ {
				indices = append(indices, base+v)
			}
			continue
		}
		size := uint64(g.IndexFormat.Size())
		_, ib, err := ctx.device.allocator.ResolveRange(g.IndexBuffer, uint64(g.IndexCount)*size)
		if err != nil {
			return nil, errors.Wrapf(err, "geometry %d indices", gi)
		}
		for i := uint32(0); i < g.IndexCount; i++ {
			var idx uint32
			if g.IndexFormat == metadata.IndexFormatUint16 {
				idx = uint32(binary.LittleEndian.Uint16(ib[uint64(i)*size:]))
			} else {
				idx = binary.LittleEndian.Uint32(ib[uint64(i)*size:])
			}
			indices = append(indices, base+idx)
		}
	}
	return accel.BuildBottomLevel(positions, indices)
}

func readInstances(ctx *executionContext, address uint64, count uint32) ([]accel.Instance, error) {
	_, raw, err := ctx.device.allocator.ResolveRange(address, uint64(count)*metadata.InstanceDescriptorSize)
	if err != nil {
		return nil, errors.Wrap(err, "instance descriptors")
	}
	out := make([]accel.Instance, count)
	for i := range out {
		d := metadata.DecodeInstanceDescriptor(raw[i*metadata.InstanceDescriptorSize:])
		blas, off, err := ctx.device.allocator.Resolve(d.AccelerationStructure)
		if err != nil {
			return nil, errors.Wrapf(err, "instance %d", i)
		}
		bl, ok := blas.payload.(*accel.BottomLevel)
		if off != 0 || !ok {
			return nil, errors.Wrapf(accel.ErrMissingBLAS, "instance %d references 0x%x", i, d.AccelerationStructure)
		}
		if err := ctx.readable(blas); err != nil {
			return nil, errors.Wrapf(err, "instance %d", i)
		}
		out[i] = accel.Instance{
			Transform:     d.Transform,
			InstanceID:    d.InstanceID,
			Mask:          d.Mask,
			HitGroupIndex: d.HitGroupIndex,
			Flags:         d.Flags,
			BLAS:          bl,
		}
	}
	return out, nil
}
