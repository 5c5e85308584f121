package soft

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
)

const queueDepth = 16

type submission struct {
	commands [][]command
	signal   uint64
	present  func() error
}

// Queue executes submitted command lists in order on its own goroutine, which
// plays the role of the GPU timeline.
type Queue struct {
	device      *Device
	fence       *Fence
	submissions chan submission
	done        chan struct{}

	// sendMu serializes producers and may be held while the channel is full,
	// so the queue goroutine must never take it
	sendMu sync.Mutex
	closed bool

	mu           sync.Mutex
	lastSignaled uint64
	pending      []*CommandAllocator
	lost         error
}

func newQueue(device *Device) *Queue {
	q := &Queue{
		device:      device,
		fence:       NewFence(),
		submissions: make(chan submission, queueDepth),
		done:        make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for sub := range q.submissions {
		if q.Lost() != nil {
			continue
		}
		if err := q.execute(sub); err != nil {
			lost := errors.Mark(errors.Wrap(err, "queue execution failed"), core.ErrDeviceLost)
			core.LogError(lost.Error())
			q.mu.Lock()
			q.lost = lost
			q.mu.Unlock()
			q.fence.fail(lost)
			continue
		}
		if sub.signal > 0 {
			q.fence.signal(sub.signal)
		}
	}
}

func (q *Queue) execute(sub submission) error {
	for _, cmds := range sub.commands {
		ctx := newExecutionContext(q.device)
		for _, c := range cmds {
			if err := c.execute(ctx); err != nil {
				return err
			}
		}
	}
	if sub.present != nil {
		return sub.present()
	}
	return nil
}

func (q *Queue) Lost() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lost
}

func (q *Queue) send(sub submission) error {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	if err := q.Lost(); err != nil {
		return err
	}
	if q.closed {
		return errors.New("queue is shut down")
	}
	q.submissions <- sub
	return nil
}

// ExecuteCommandLists submits closed lists. Their allocators stay busy until
// the next Signal completes.
func (q *Queue) ExecuteCommandLists(lists ...*CommandList) error {
	sub := submission{commands: make([][]command, 0, len(lists))}
	for _, cl := range lists {
		if err := cl.Check(); err != nil {
			return err
		}
		if cl.State != COMMAND_LIST_STATE_RECORDING_ENDED {
			return errors.Wrapf(ErrInvalidListState, "submitting list %s in state %s", cl.Name, cl.State)
		}
		sub.commands = append(sub.commands, append([]command(nil), cl.commands...))
	}
	if err := q.send(sub); err != nil {
		return err
	}

	q.mu.Lock()
	for _, cl := range lists {
		cl.State = COMMAND_LIST_STATE_SUBMITTED
		cl.allocator.retireValue = math.MaxUint64
		q.pending = append(q.pending, cl.allocator)
	}
	q.mu.Unlock()
	return nil
}

// Signal sets the fence to value once everything submitted before it ran.
func (q *Queue) Signal(value uint64) error {
	q.mu.Lock()
	if value <= q.lastSignaled {
		last := q.lastSignaled
		q.mu.Unlock()
		return errors.Newf("fence value %d is not above the last signaled value %d", value, last)
	}
	q.lastSignaled = value
	for _, a := range q.pending {
		a.retireValue = value
	}
	q.pending = q.pending[:0]
	q.mu.Unlock()

	return q.send(submission{signal: value})
}

// SignalNext signals one above the last signaled value and returns it.
func (q *Queue) SignalNext() (uint64, error) {
	value := q.LastSignaled() + 1
	return value, q.Signal(value)
}

func (q *Queue) LastSignaled() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastSignaled
}

func (q *Queue) Fence() *Fence {
	return q.fence
}

func (q *Queue) enqueuePresent(fn func() error) error {
	return q.send(submission{present: fn})
}

func (q *Queue) close() {
	q.sendMu.Lock()
	if q.closed {
		q.sendMu.Unlock()
		return
	}
	q.closed = true
	close(q.submissions)
	q.sendMu.Unlock()
	<-q.done
}
