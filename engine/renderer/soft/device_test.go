package soft

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestAllocatorAddresses(t *testing.T) {
	a := NewAllocator(core.NewRegistry(), 4096)

	first, err := a.CreateBuffer("first", 100, metadata.HeapTypeUpload, metadata.ResourceStateGenericRead)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.CreateBuffer("second", 1000, metadata.HeapTypeDefault, metadata.ResourceStateCommon)
	if err != nil {
		t.Fatal(err)
	}
	if first.Address%addressAlignment != 0 || second.Address%addressAlignment != 0 || second.Address <= first.Address {
		t.Fatalf("expected increasing aligned addresses; got 0x%x 0x%x", first.Address, second.Address)
	}

	if buf, off, err := a.Resolve(second.Address + 10); err != nil || buf != second || off != 10 {
		t.Fatalf("expected second+10; got %v %d %v", buf, off, err)
	}
	if _, _, err := a.Resolve(first.Address + 100); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected the alignment gap to fault; got %v", err)
	}
	if _, err := second.Map(); !errors.Is(err, ErrNotMappable) {
		t.Fatalf("expected default heap buffers to be unmappable; got %v", err)
	}

	if _, err := a.CreateBuffer("too-big", 4096, metadata.HeapTypeDefault, metadata.ResourceStateCommon); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory; got %v", err)
	}

	addr := first.Address
	first.Release()
	first.Release()
	if _, _, err := a.Resolve(addr); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected a released buffer to fault; got %v", err)
	}
	third, _ := a.CreateBuffer("third", 16, metadata.HeapTypeUpload, metadata.ResourceStateGenericRead)
	if third.Address <= second.Address {
		t.Fatalf("expected addresses never to be reused; got 0x%x", third.Address)
	}
	if a.Used() != 1016 {
		t.Fatalf("expected 1016 bytes in use; got %d", a.Used())
	}
}

func TestFenceWait(t *testing.T) {
	f := NewFence()
	if err := f.Wait(1, 10*time.Millisecond); !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("expected ErrTimeout; got %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		f.signal(3)
	}()
	if err := f.Wait(2, time.Second); err != nil {
		t.Fatal(err)
	}
	f.signal(1)
	if v := f.CompletedValue(); v != 3 {
		t.Fatalf("expected the fence to stay at 3; got %d", v)
	}

	f.fail(errors.Mark(errors.New("boom"), core.ErrDeviceLost))
	if err := f.Wait(3, time.Second); err != nil {
		t.Fatalf("expected completed values to stay reachable; got %v", err)
	}
	if err := f.Wait(4, time.Second); !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("expected ErrDeviceLost; got %v", err)
	}
}

func TestTransitionMismatchLosesDevice(t *testing.T) {
	d, err := NewDevice(DeviceOptions{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := d.allocator.CreateBuffer("buf", 64, metadata.HeapTypeDefault, metadata.ResourceStateCommon)
	alloc := d.CreateCommandAllocator("alloc")
	list, err := d.CreateCommandList("list", alloc)
	if err != nil {
		t.Fatal(err)
	}

	list.ResourceBarrier(TransitionBarrier(buf, metadata.ResourceStateCopyDest, metadata.ResourceStateGenericRead))
	if err := list.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.queue.ExecuteCommandLists(list); err != nil {
		t.Fatal(err)
	}
	if err := alloc.Reset(); !errors.Is(err, ErrAllocatorInUse) {
		t.Fatalf("expected an unsignaled submission to keep the allocator busy; got %v", err)
	}
	if err := d.WaitIdle(); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch; got %v", err)
	}

	list.ResourceBarrier(UAVBarrier(buf))
	if err := list.Close(); !errors.Is(err, ErrInvalidListState) {
		t.Fatalf("expected recording into a submitted list to fail; got %v", err)
	}

	buf.Release()
	list.Release()
	alloc.Release()
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}
