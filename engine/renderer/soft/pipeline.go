package soft

import (
	"crypto/sha256"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
)

var ErrInvalidPipeline = errors.New("invalid pipeline state description")

type ShaderIdentifier [metadata.ShaderIdentifierSize]byte

type StateObjectDesc struct {
	Library             []byte
	Config              metadata.PipelineConfig
	GlobalRootSignature *RootSignature
}

type shaderEntry struct {
	export  string
	kind    shaders.Kind
	program *shaders.Program
}

// PipelineState is a compiled ray tracing pipeline. Its shader identifiers
// are only meaningful to this object.
type PipelineState struct {
	metadata.Handle
	Config        metadata.PipelineConfig
	RootSignature *RootSignature

	entries     map[ShaderIdentifier]shaderEntry
	identifiers map[string]ShaderIdentifier
}

func invalidPipeline(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidPipeline, format, args...)
}

func resolveExport(lib *shaders.Library, name string, kind shaders.Kind) (*shaders.Program, error) {
	e, ok := lib.Find(name)
	if !ok {
		return nil, invalidPipeline("library has no export %q", name)
	}
	if e.Kind != kind {
		return nil, invalidPipeline("export %q is a %s shader, expected %s", name, e.Kind, kind)
	}
	p, err := shaders.Lookup(name)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidPipeline, "export %q: %s", name, err)
	}
	if p.Kind != kind {
		return nil, invalidPipeline("program %q is a %s shader, expected %s", name, p.Kind, kind)
	}
	return p, nil
}

func (d *Device) CreateStateObject(name string, desc *StateObjectDesc) (*PipelineState, error) {
	cfg := desc.Config
	if desc.GlobalRootSignature == nil {
		return nil, invalidPipeline("no global root signature")
	}
	if cfg.MaxTraceRecursionDepth == 0 || cfg.MaxTraceRecursionDepth > MaxTraceRecursionDepth {
		return nil, invalidPipeline("recursion depth %d outside [1, %d]", cfg.MaxTraceRecursionDepth, MaxTraceRecursionDepth)
	}
	if cfg.MaxAttributeSize > MaxAttributeSize {
		return nil, invalidPipeline("attribute size %d above the device limit %d", cfg.MaxAttributeSize, MaxAttributeSize)
	}
	if cfg.MaxPayloadSize == 0 {
		return nil, invalidPipeline("payload size must be greater than zero")
	}

	lib, err := shaders.DecodeLibrary(desc.Library)
	if err != nil {
		return nil, err
	}

	rayGen, err := resolveExport(lib, cfg.RayGenerationExport, shaders.KindRayGeneration)
	if err != nil {
		return nil, err
	}
	miss, err := resolveExport(lib, cfg.MissExport, shaders.KindMiss)
	if err != nil {
		return nil, err
	}
	group, ok := lib.Find(cfg.HitGroupExport)
	if !ok || group.Kind != shaders.KindHitGroup {
		return nil, invalidPipeline("library has no hit group %q", cfg.HitGroupExport)
	}
	if group.Import != cfg.ClosestHitExport {
		return nil, invalidPipeline("hit group %q uses %q, expected %q", group.Name, group.Import, cfg.ClosestHitExport)
	}
	closestHit, err := resolveExport(lib, group.Import, shaders.KindClosestHit)
	if err != nil {
		return nil, err
	}

	for _, p := range []*shaders.Program{rayGen, miss, closestHit} {
		if p.PayloadSize > cfg.MaxPayloadSize {
			return nil, invalidPipeline("%s uses a %d byte payload, limit is %d", p.Name, p.PayloadSize, cfg.MaxPayloadSize)
		}
		if p.AttributeSize > cfg.MaxAttributeSize {
			return nil, invalidPipeline("%s uses %d bytes of attributes, limit is %d", p.Name, p.AttributeSize, cfg.MaxAttributeSize)
		}
	}

	pso := &PipelineState{
		Config:        cfg,
		RootSignature: desc.GlobalRootSignature,
		entries:       make(map[ShaderIdentifier]shaderEntry),
		identifiers:   make(map[string]ShaderIdentifier),
	}
	d.register(&pso.Handle, pso, name, func() {
		pso.entries = nil
	})
	pso.add(cfg.RayGenerationExport, shaders.KindRayGeneration, rayGen)
	pso.add(cfg.MissExport, shaders.KindMiss, miss)
	pso.add(cfg.HitGroupExport, shaders.KindHitGroup, closestHit)
	return pso, nil
}

func (p *PipelineState) add(export string, kind shaders.Kind, program *shaders.Program) {
	h := sha256.New()
	h.Write(p.ID[:])
	h.Write([]byte(export))
	var id ShaderIdentifier
	copy(id[:], h.Sum(nil))
	p.entries[id] = shaderEntry{export: export, kind: kind, program: program}
	p.identifiers[export] = id
}

// ShaderIdentifier returns the opaque identifier of a ray generation shader,
// miss shader or hit group export.
func (p *PipelineState) ShaderIdentifier(export string) (ShaderIdentifier, error) {
	if err := p.Check(); err != nil {
		return ShaderIdentifier{}, err
	}
	id, ok := p.identifiers[export]
	if !ok {
		return ShaderIdentifier{}, errors.Newf("pipeline %s has no identifier for %q", p.Name, export)
	}
	return id, nil
}

func (p *PipelineState) lookup(raw []byte, kind shaders.Kind) (shaderEntry, error) {
	var id ShaderIdentifier
	copy(id[:], raw)
	e, ok := p.entries[id]
	if !ok {
		return shaderEntry{}, errors.Newf("shader record %x does not belong to pipeline %s", id[:8], p.Name)
	}
	if e.kind != kind {
		return shaderEntry{}, errors.Newf("shader record for %s is a %s, expected %s", e.export, e.kind, kind)
	}
	return e, nil
}
