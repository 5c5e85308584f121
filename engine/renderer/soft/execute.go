package soft

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var (
	ErrStateMismatch  = errors.New("resource is not in the state the command expects")
	ErrMissingBarrier = errors.New("acceleration structure read before a UAV barrier after its write")
)

type rootArgument struct {
	set     bool
	isTable bool
	table   uint32
	address uint64
}

// executionContext is the state of one command list while it runs on the
// queue timeline.
type executionContext struct {
	device        *Device
	pso           *PipelineState
	rootSignature *RootSignature
	heap          *DescriptorHeap
	rootArgs      []rootArgument
	// buffers written by a build and not yet fenced by a UAV barrier
	pendingWrites map[*Buffer]struct{}
}

func newExecutionContext(device *Device) *executionContext {
	return &executionContext{
		device:        device,
		pendingWrites: make(map[*Buffer]struct{}),
	}
}

func expectState(r resource, want metadata.ResourceState) error {
	if err := r.alive(); err != nil {
		return err
	}
	if got := r.state(); got != want {
		return errors.Wrapf(ErrStateMismatch, "%s is %s, expected %s", r.name(), got, want)
	}
	return nil
}

// readable fails when b was written in this list without a UAV barrier since.
func (ctx *executionContext) readable(b *Buffer) error {
	if _, pending := ctx.pendingWrites[b]; pending {
		return errors.Wrapf(ErrMissingBarrier, "buffer %s", b.Name)
	}
	return nil
}

func (c *barrierCommand) execute(ctx *executionContext) error {
	for _, b := range c.barriers {
		switch b.Type {
		case BarrierTransition:
			if err := expectState(b.Resource, b.Before); err != nil {
				return errors.Wrap(err, "transition barrier")
			}
			b.Resource.setState(b.After)
		case BarrierUAV:
			if err := b.Resource.alive(); err != nil {
				return err
			}
			if buf, ok := b.Resource.(*Buffer); ok {
				delete(ctx.pendingWrites, buf)
			}
		}
	}
	return nil
}

func (c *copyBufferCommand) execute(ctx *executionContext) error {
	if err := expectState(c.dst, metadata.ResourceStateCopyDest); err != nil {
		return errors.Wrap(err, "copy destination")
	}
	if err := c.src.alive(); err != nil {
		return err
	}
	if s := c.src.state(); s != metadata.ResourceStateCopySource && s != metadata.ResourceStateGenericRead {
		return errors.Wrapf(ErrStateMismatch, "copy source %s is %s", c.src.Name, s)
	}
	copy(c.dst.data[c.dstOff:c.dstOff+c.size], c.src.data[c.srcOff:c.srcOff+c.size])
	return nil
}

func (c *copyImageCommand) execute(ctx *executionContext) error {
	if err := expectState(c.dst, metadata.ResourceStateCopyDest); err != nil {
		return errors.Wrap(err, "copy destination")
	}
	if err := expectState(c.src, metadata.ResourceStateCopySource); err != nil {
		return errors.Wrap(err, "copy source")
	}
	copy(c.dst.Pixels.Pix, c.src.Pixels.Pix)
	return nil
}

func (c *setPipelineCommand) execute(ctx *executionContext) error {
	if err := c.pso.Check(); err != nil {
		return err
	}
	ctx.pso = c.pso
	return nil
}

func (c *setRootSignatureCommand) execute(ctx *executionContext) error {
	if err := c.rs.Check(); err != nil {
		return err
	}
	ctx.rootSignature = c.rs
	ctx.rootArgs = make([]rootArgument, len(c.rs.Parameters))
	return nil
}

func (c *setDescriptorHeapCommand) execute(ctx *executionContext) error {
	if err := c.heap.Check(); err != nil {
		return err
	}
	ctx.heap = c.heap
	return nil
}

func (c *setRootArgumentCommand) execute(ctx *executionContext) error {
	if ctx.rootSignature == nil {
		return errors.New("root argument set before a root signature")
	}
	if int(c.index) >= len(ctx.rootArgs) {
		return errors.Newf("root parameter %d outside signature of %d", c.index, len(ctx.rootArgs))
	}
	want := RootParameterShaderResourceView
	if c.isTable {
		want = RootParameterDescriptorTable
	}
	if ctx.rootSignature.Parameters[c.index] != want {
		return errors.Newf("root parameter %d has a different type", c.index)
	}
	ctx.rootArgs[c.index] = rootArgument{set: true, isTable: c.isTable, table: c.table, address: c.address}
	return nil
}
