package soft

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
)

// Fence is a monotonic counter signaled from the queue timeline.
type Fence struct {
	mu        sync.Mutex
	cond      *sync.Cond
	completed uint64
	err       error
}

func NewFence() *Fence {
	f := &Fence{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// signal never moves the counter backwards.
func (f *Fence) signal(value uint64) {
	f.mu.Lock()
	if value > f.completed {
		f.completed = value
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

// fail wakes every waiter with err. Values that already completed stay completed.
func (f *Fence) fail(err error) {
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Wait blocks until the fence reaches value. A zero timeout waits forever.
func (f *Fence) Wait(value uint64, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		})
		defer timer.Stop()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for f.completed < value {
		if f.err != nil {
			return f.err
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return errors.Mark(errors.Newf("fence value %d not reached after %s, completed %d", value, timeout, f.completed), core.ErrTimeout)
		}
		f.cond.Wait()
	}
	return nil
}
