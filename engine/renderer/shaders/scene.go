package shaders

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Instance ids the scene's closest hit shader dispatches on.
const (
	InstanceCube   uint32 = 0
	InstanceMirror uint32 = 1
	InstanceFloor  uint32 = 2
)

var (
	cameraPosition = math.Vec3{0, 1.5, -7}
	lightPosition  = math.Vec3{0, 200, 0}
	skyTop         = math.Vec3{0.24, 0.44, 0.72}
	skyBottom      = math.Vec3{0.75, 0.86, 0.93}
	errorColor     = math.Vec3{1, 0, 1}
)

const (
	rayTMin = 0.001
	rayTMax = 1000
)

// SceneLibrary lists the exports of the demo scene.
func SceneLibrary() *Library {
	return &Library{Exports: []Export{
		{Kind: KindRayGeneration, Name: metadata.ExportRayGeneration},
		{Kind: KindMiss, Name: metadata.ExportMiss},
		{Kind: KindClosestHit, Name: metadata.ExportClosestHit},
		{Kind: KindHitGroup, Name: metadata.ExportHitGroup, Import: metadata.ExportClosestHit},
	}}
}

func init() {
	for _, p := range []*Program{
		{Name: metadata.ExportRayGeneration, Kind: KindRayGeneration, PayloadSize: PayloadSize, RayGeneration: rayGeneration},
		{Name: metadata.ExportMiss, Kind: KindMiss, PayloadSize: PayloadSize, Miss: miss},
		{Name: metadata.ExportClosestHit, Kind: KindClosestHit, PayloadSize: PayloadSize, AttributeSize: AttributeSize, ClosestHit: closestHit},
	} {
		if err := Register(p); err != nil {
			panic(err)
		}
	}
}

// PrimaryRay returns the camera ray through pixel (x, y) of a w by h image.
func PrimaryRay(x, y, w, h uint32) math.Ray {
	u := float32(x) / float32(w)
	v := float32(y) / float32(h)
	aspect := float32(w) / float32(h)
	target := math.Vec3{
		(u*2 - 1) * 1.8 * aspect,
		(1-v)*4 - 2 + cameraPosition[1],
		0,
	}
	return math.Ray{Origin: cameraPosition, Direction: target.Sub(cameraPosition)}
}

func rayGeneration(ctx RayContext) error {
	idx := ctx.DispatchRaysIndex()
	dim := ctx.DispatchRaysDimensions()
	payload := Payload{AllowReflection: 1}
	if err := ctx.TraceRay(RayFlagNone, 0xFF, PrimaryRay(idx[0], idx[1], dim[0], dim[1]), rayTMin, rayTMax, &payload); err != nil {
		return err
	}
	return ctx.WriteOutput(payload.Color)
}

func miss(ctx RayContext, payload *Payload) error {
	slope := ctx.WorldRayDirection().Normalize()[1]
	payload.Color = math.LerpVec3(skyBottom, skyTop, math.Saturate(slope*5+0.5))
	payload.Missed = 1
	return nil
}

func closestHit(ctx RayContext, payload *Payload, attr Attributes) error {
	switch ctx.Hit().InstanceID {
	case InstanceCube:
		hitCube(ctx, payload, attr)
	case InstanceMirror:
		return hitMirror(ctx, payload)
	case InstanceFloor:
		return hitFloor(ctx, payload)
	default:
		payload.Color = errorColor
	}
	return nil
}

func hitPosition(ctx RayContext) math.Vec3 {
	return ctx.WorldRayOrigin().Add(ctx.WorldRayDirection().Mul(ctx.Hit().T))
}

func hitCube(ctx RayContext, payload *Payload, attr Attributes) {
	hit := ctx.Hit()
	// two triangles per face, faces ordered -x -y -z +x +y +z
	face := hit.PrimitiveIndex / 2
	var normal math.Vec3
	normal[face%3] = 1
	if face < 3 {
		normal[face%3] = -1
	}
	world := hit.ObjectToWorld.TransformVector(normal).Normalize()

	color := math.Vec3{
		abs(normal[0])/3 + 0.5,
		abs(normal[1])/3 + 0.5,
		abs(normal[2])/3 + 0.5,
	}
	if attr.Barycentrics[0] < 0.03 || attr.Barycentrics[1] < 0.03 {
		color = math.Vec3{0.25, 0.25, 0.25}
	}
	color = color.Mul(math.Saturate(world.Dot(lightPosition.Normalize())) + 0.33)
	payload.Color = color
}

func hitMirror(ctx RayContext, payload *Payload) error {
	if payload.AllowReflection == 0 {
		return nil
	}
	normal := ctx.Hit().ObjectToWorld.TransformVector(math.Vec3{0, 1, 0}).Normalize()
	reflected := math.Reflect(ctx.WorldRayDirection().Normalize(), normal)
	payload.AllowReflection = 0
	return ctx.TraceRay(RayFlagNone, 0xFF, math.Ray{Origin: hitPosition(ctx), Direction: reflected}, rayTMin, rayTMax, payload)
}

func hitFloor(ctx RayContext, payload *Payload) error {
	pos := hitPosition(ctx)
	checker := (math.Frac(pos[0]) > 0.5) != (math.Frac(pos[2]) > 0.5)
	shade := float32(0.4)
	if checker {
		shade = 0.6
	}
	payload.Color = math.Vec3{shade, shade, shade}

	var shadow Payload
	if err := ctx.TraceRay(RayFlagNone, 0xFF, math.Ray{Origin: pos, Direction: lightPosition.Sub(pos)}, rayTMin, 1, &shadow); err != nil {
		return err
	}
	if shadow.Missed == 0 {
		payload.Color = payload.Color.Mul(0.5)
	}
	return nil
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
