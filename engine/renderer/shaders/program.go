package shaders

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
)

type RayFlags uint32

const (
	RayFlagNone                       RayFlags = 0
	RayFlagAcceptFirstHitAndEndSearch RayFlags = 0x4
	RayFlagSkipClosestHitShader       RayFlags = 0x8
)

// Payload travels with a ray through TraceRay. Its size is checked against
// the pipeline's maximum payload size.
type Payload struct {
	Color           math.Vec3
	AllowReflection uint32
	Missed          uint32
}

// Attributes are the triangle barycentrics reported on a hit.
type Attributes struct {
	Barycentrics [2]float32
}

var (
	PayloadSize   = uint32(unsafe.Sizeof(Payload{}))
	AttributeSize = uint32(unsafe.Sizeof(Attributes{}))
)

// HitInfo exposes the intersection to a closest hit shader.
type HitInfo struct {
	T              float32
	InstanceID     uint32
	InstanceIndex  uint32
	PrimitiveIndex uint32
	HitGroupIndex  uint32
	ObjectToWorld  math.Mat3x4
	// World space geometric normal.
	Normal math.Vec3
}

// RayContext is what the device hands to every program invocation.
type RayContext interface {
	DispatchRaysIndex() [3]uint32
	DispatchRaysDimensions() [3]uint32
	WorldRayOrigin() math.Vec3
	WorldRayDirection() math.Vec3
	Hit() *HitInfo
	TraceRay(flags RayFlags, mask uint8, ray math.Ray, tMin, tMax float32, payload *Payload) error
	WriteOutput(color math.Vec3) error
}

type (
	RayGenerationFunc func(ctx RayContext) error
	MissFunc          func(ctx RayContext, payload *Payload) error
	ClosestHitFunc    func(ctx RayContext, payload *Payload, attr Attributes) error
)

// Program is the executable body behind a library export.
type Program struct {
	Name          string
	Kind          Kind
	PayloadSize   uint32
	AttributeSize uint32

	RayGeneration RayGenerationFunc
	Miss          MissFunc
	ClosestHit    ClosestHitFunc
}

var ErrUnknownProgram = errors.New("no program registered under that name")

type registry struct {
	mu       sync.RWMutex
	programs map[string]*Program
}

var programs = &registry{programs: make(map[string]*Program)}

// Register makes a program resolvable by library exports of the same name.
// Registering a name twice replaces the earlier program.
func Register(p *Program) error {
	if p == nil || p.Name == "" {
		return errors.New("program must have a name")
	}
	switch p.Kind {
	case KindRayGeneration:
		if p.RayGeneration == nil {
			return errors.Newf("ray generation program %q has no body", p.Name)
		}
	case KindMiss:
		if p.Miss == nil {
			return errors.Newf("miss program %q has no body", p.Name)
		}
	case KindClosestHit:
		if p.ClosestHit == nil {
			return errors.Newf("closest hit program %q has no body", p.Name)
		}
	default:
		return errors.Newf("program %q has unsupported kind %s", p.Name, p.Kind)
	}
	programs.mu.Lock()
	defer programs.mu.Unlock()
	programs.programs[p.Name] = p
	return nil
}

func Lookup(name string) (*Program, error) {
	programs.mu.RLock()
	defer programs.mu.RUnlock()
	p, ok := programs.programs[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProgram, "%q", name)
	}
	return p, nil
}
