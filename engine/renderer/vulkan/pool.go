package vulkan

import "sync"

type LockGroup string

const (
	QueueManagement  LockGroup = "queue_management"
	MemoryManagement LockGroup = "memory_management"
)

// VulkanLockPool serializes access to objects Vulkan requires to be
// externally synchronized. The queue is the main one: the swapchain and the
// frame loop both submit to it.
type VulkanLockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{locks: make(map[LockGroup]*sync.Mutex)}
}

func (p *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	return l
}

// SafeCall runs fn while holding the group's lock.
func (p *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := p.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}
