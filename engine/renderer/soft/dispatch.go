package soft

import (
	"image/color"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/accel"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
)

var ErrRecursionDepth = errors.New("TraceRay exceeded the pipeline's maximum recursion depth")

// dispatchState is shared read-only by every ray of one DispatchRays.
type dispatchState struct {
	tlas       *accel.TopLevel
	output     *Image
	rayGen     *shaders.Program
	miss       *shaders.Program
	closestHit *shaders.Program
	dims       [3]uint32
	maxDepth   uint32
}

type rayContext struct {
	state *dispatchState
	index [3]uint32
	depth uint32
	ray   math.Ray
	hit   *shaders.HitInfo
}

func (rc *rayContext) DispatchRaysIndex() [3]uint32      { return rc.index }
func (rc *rayContext) DispatchRaysDimensions() [3]uint32 { return rc.state.dims }
func (rc *rayContext) WorldRayOrigin() math.Vec3         { return rc.ray.Origin }
func (rc *rayContext) WorldRayDirection() math.Vec3      { return rc.ray.Direction }
func (rc *rayContext) Hit() *shaders.HitInfo             { return rc.hit }

func (rc *rayContext) TraceRay(flags shaders.RayFlags, mask uint8, ray math.Ray, tMin, tMax float32, payload *shaders.Payload) error {
	if rc.depth >= rc.state.maxDepth {
		return errors.Wrapf(ErrRecursionDepth, "depth %d at pixel %v", rc.depth+1, rc.index)
	}
	child := &rayContext{state: rc.state, index: rc.index, depth: rc.depth + 1, ray: ray}

	hit, ok := rc.state.tlas.Intersect(ray, tMin, tMax, mask, flags&shaders.RayFlagAcceptFirstHitAndEndSearch != 0)
	if !ok {
		return rc.state.miss.Miss(child, payload)
	}
	if flags&shaders.RayFlagSkipClosestHitShader != 0 {
		return nil
	}
	inst := &rc.state.tlas.Instances[hit.InstanceIndex]
	child.hit = &shaders.HitInfo{
		T:              hit.T,
		InstanceID:     hit.InstanceID,
		InstanceIndex:  hit.InstanceIndex,
		PrimitiveIndex: hit.Primitive,
		HitGroupIndex:  hit.HitGroupIndex,
		ObjectToWorld:  inst.Transform,
		Normal:         hit.Normal,
	}
	return rc.state.closestHit.ClosestHit(child, payload, shaders.Attributes{Barycentrics: [2]float32{hit.U, hit.V}})
}

func toByte(c float32) uint8 {
	return uint8(math.Saturate(c)*255 + 0.5)
}

func (rc *rayContext) WriteOutput(c math.Vec3) error {
	if rc.depth != 0 {
		return errors.New("only the ray generation shader writes the output")
	}
	rc.state.output.Pixels.SetRGBA(int(rc.index[0]), int(rc.index[1]), color.RGBA{
		R: toByte(c[0]), G: toByte(c[1]), B: toByte(c[2]), A: 255,
	})
	return nil
}

func (ctx *executionContext) record(r metadata.AddressRange, kind shaders.Kind) (*shaders.Program, error) {
	if r.Size < metadata.ShaderIdentifierSize {
		return nil, errors.Newf("%s record of %d bytes is smaller than an identifier", kind, r.Size)
	}
	_, raw, err := ctx.device.allocator.ResolveRange(r.Start, metadata.ShaderIdentifierSize)
	if err != nil {
		return nil, errors.Wrapf(err, "%s record", kind)
	}
	e, err := ctx.pso.lookup(raw, kind)
	if err != nil {
		return nil, err
	}
	return e.program, nil
}

func (c *dispatchCommand) execute(ctx *executionContext) error {
	if ctx.pso == nil || ctx.rootSignature == nil || ctx.heap == nil {
		return errors.New("dispatch without pipeline, root signature and descriptor heap bound")
	}
	if err := ctx.pso.Check(); err != nil {
		return err
	}
	if ctx.pso.RootSignature != ctx.rootSignature {
		return errors.Newf("pipeline %s was created with a different root signature", ctx.pso.Name)
	}
	if len(ctx.rootArgs) <= int(metadata.RootParameterSceneBVH) {
		return errors.New("root signature lacks the output and scene parameters")
	}
	for i, a := range ctx.rootArgs {
		if !a.set {
			return errors.Newf("root parameter %d is not set", i)
		}
	}

	output, err := ctx.heap.view(ctx.rootArgs[metadata.RootParameterOutputTable].table)
	if err != nil {
		return err
	}
	if err := expectState(output, metadata.ResourceStateUnorderedAccess); err != nil {
		return errors.Wrap(err, "dispatch output")
	}
	desc := &c.desc
	if desc.Width > output.Width || desc.Height > output.Height || desc.Depth != 1 {
		return errors.Newf("dispatch %dx%dx%d does not fit output %dx%d", desc.Width, desc.Height, desc.Depth, output.Width, output.Height)
	}

	address := ctx.rootArgs[metadata.RootParameterSceneBVH].address
	sceneBuf, off, err := ctx.device.allocator.Resolve(address)
	if err != nil {
		return errors.Wrap(err, "scene acceleration structure")
	}
	tlas, ok := sceneBuf.payload.(*accel.TopLevel)
	if off != 0 || !ok {
		return errors.Newf("address 0x%x holds no top level structure", address)
	}
	if err := expectState(sceneBuf, metadata.ResourceStateAccelerationStructure); err != nil {
		return err
	}
	if err := ctx.readable(sceneBuf); err != nil {
		return err
	}

	state := &dispatchState{
		tlas:     tlas,
		output:   output,
		dims:     [3]uint32{desc.Width, desc.Height, desc.Depth},
		maxDepth: ctx.pso.Config.MaxTraceRecursionDepth,
	}
	if state.rayGen, err = ctx.record(desc.RayGeneration, shaders.KindRayGeneration); err != nil {
		return err
	}
	if state.miss, err = ctx.record(desc.Miss, shaders.KindMiss); err != nil {
		return err
	}
	if state.closestHit, err = ctx.record(desc.HitGroup, shaders.KindHitGroup); err != nil {
		return err
	}

	tile := ctx.device.options.TileSize
	tilesX := math.DivCeil(desc.Width, tile)
	tilesY := math.DivCeil(desc.Height, tile)
	return ctx.device.jobs.Run(int(tilesX*tilesY), func(i int) error {
		x0 := uint32(i) % tilesX * tile
		y0 := uint32(i) / tilesX * tile
		for y := y0; y < y0+tile && y < desc.Height; y++ {
			for x := x0; x < x0+tile && x < desc.Width; x++ {
				rc := &rayContext{state: state, index: [3]uint32{x, y, 0}}
				if err := state.rayGen.RayGeneration(rc); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
