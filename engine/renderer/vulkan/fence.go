package vulkan

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{IsSignaled: createSignaled}
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	if err := resultError(vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &fence.Handle), "vkCreateFence"); err != nil {
		return nil, err
	}
	return fence, nil
}

func (vf *VulkanFence) Destroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait returns an error marked core.ErrTimeout or core.ErrDeviceLost when
// the fence does not signal.
func (vf *VulkanFence) Wait(context *VulkanContext, timeoutNS uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNS)
	if err := resultError(result, "vkWaitForFences"); err != nil {
		return err
	}
	vf.IsSignaled = true
	return nil
}

// Reset always goes to the driver: a device wide idle can signal the fence
// without IsSignaled seeing it.
func (vf *VulkanFence) Reset(context *VulkanContext) error {
	if err := resultError(vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}), "vkResetFences"); err != nil {
		return err
	}
	vf.IsSignaled = false
	return nil
}

var ErrFenceValue = errors.New("fence value was never signaled")

type pendingSignal struct {
	value uint64
	wait  func(timeoutNS uint64) error
}

// fenceTimeline gives binary Vulkan fences the monotonic value semantics
// the renderer expects. Each submit takes the next value; the queue runs
// submissions in order, so reaching a value also completes every earlier one.
type fenceTimeline struct {
	mu           sync.Mutex
	lastSignaled uint64
	completed    uint64
	pending      []pendingSignal
}

// next registers a submission retired by wait and returns its value.
func (t *fenceTimeline) next(wait func(timeoutNS uint64) error) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSignaled++
	t.pending = append(t.pending, pendingSignal{value: t.lastSignaled, wait: wait})
	return t.lastSignaled
}

func (t *fenceTimeline) completedValue() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

func (t *fenceTimeline) waitFor(value uint64, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if value <= t.completed {
		return nil
	}
	if value > t.lastSignaled {
		return errors.Wrapf(ErrFenceValue, "value %d, last signaled %d", value, t.lastSignaled)
	}
	timeoutNS := uint64(timeout.Nanoseconds())
	if timeout <= 0 {
		timeoutNS = ^uint64(0)
	}
	for i, p := range t.pending {
		if p.value < value {
			continue
		}
		if err := p.wait(timeoutNS); err != nil {
			if errors.Is(err, core.ErrTimeout) {
				return errors.Wrapf(err, "fence value %d after %s", value, timeout)
			}
			return errors.Mark(errors.Wrapf(err, "fence value %d", value), core.ErrDeviceLost)
		}
		t.completed = p.value
		t.pending = append(t.pending[:0], t.pending[i+1:]...)
		return nil
	}
	return errors.Wrapf(ErrFenceValue, "value %d is not pending", value)
}

// drain marks everything signaled after a device wide idle.
func (t *fenceTimeline) drain() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = t.lastSignaled
	t.pending = t.pending[:0]
}
