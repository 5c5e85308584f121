package systems

import (
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestNewJobSystemValidation(t *testing.T) {
	if _, err := NewJobSystem(0, 1); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("expected ErrNoWorkers; got %v", err)
	}
	if _, err := NewJobSystem(1, -1); !errors.Is(err, ErrNegativeChannelSize) {
		t.Fatalf("expected ErrNegativeChannelSize; got %v", err)
	}
}

func TestRunVisitsEveryIndex(t *testing.T) {
	js, err := NewJobSystem(4, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer js.Shutdown()

	var sum atomic.Int64
	if err := js.Run(100, func(i int) error {
		sum.Add(int64(i))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if exp := int64(99 * 100 / 2); sum.Load() != exp {
		t.Fatalf("expected sum %d; got %d", exp, sum.Load())
	}
}

func TestRunReportsError(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer js.Shutdown()

	boom := errors.New("boom")
	err = js.Run(10, func(i int) error {
		if i == 7 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom; got %v", err)
	}
}
