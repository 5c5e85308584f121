package containers

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestRingQueueOrder(t *testing.T) {
	rq := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("unexpected error enqueueing %d: %v", i, err)
		}
	}
	if err := rq.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull; got %v", err)
	}
	for exp := 1; exp <= 3; exp++ {
		v, err := rq.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if v != exp {
			t.Fatalf("expected %d; got %d", exp, v)
		}
	}
	if _, err := rq.Peek(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty; got %v", err)
	}
}

func TestRingQueuePushDropsOldest(t *testing.T) {
	rq := NewRingQueue[float64](2)
	rq.Push(1)
	rq.Push(2)
	rq.Push(3)

	var got []float64
	rq.Each(func(v float64) { got = append(got, v) })
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected [2 3]; got %v", got)
	}
}
