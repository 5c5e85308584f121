package core

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

func TestErrorCategories(t *testing.T) {
	base := errors.New("vkCreateDevice failed")

	specs := []struct {
		err      error
		category error
		fatal    bool
	}{
		{InitError(base, "creating device"), ErrFatalInit, true},
		{FrameError(base, "submitting frame %d", 3), ErrFatalFrame, true},
		{CapabilityError("missing %s", "ray query"), ErrCapability, true},
		{errors.Mark(base, ErrTimeout), ErrTimeout, true},
		{errors.Mark(base, ErrSwapchainBooting), ErrSwapchainBooting, false},
	}
	for specIndex, spec := range specs {
		if !errors.Is(spec.err, spec.category) {
			t.Fatalf("[spec %d] expected %v to be marked %v", specIndex, spec.err, spec.category)
		}
		if got := IsFatal(spec.err); got != spec.fatal {
			t.Fatalf("[spec %d] expected IsFatal %t; got %t", specIndex, spec.fatal, got)
		}
	}

	if InitError(nil, "nothing") != nil || FrameError(nil, "nothing") != nil {
		t.Fatal("expected nil errors to stay nil")
	}
}

func TestEventQueueDispatchesOnDrain(t *testing.T) {
	EventSystemInitialize()
	defer EventSystemShutdown()

	var keys []KeyCode
	if !EventRegister(EVENT_CODE_KEY_PRESSED, func(ctx EventContext) {
		keys = append(keys, ctx.Data.(*KeyEvent).KeyCode)
	}) {
		t.Fatal("expected the listener to register")
	}
	if EventRegister(MAX_EVENT_CODE+1, func(EventContext) {}) {
		t.Fatal("expected codes past the maximum to be rejected")
	}

	EventFire(EventContext{Type: EVENT_CODE_KEY_PRESSED, Data: &KeyEvent{KeyCode: KEY_I}})
	EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 10, WindowHeight: 10}})
	if len(keys) != 0 {
		t.Fatalf("expected listeners to wait for a dispatch; got %v", keys)
	}

	if got := EventDispatch(); got != 2 {
		t.Fatalf("expected 2 dispatched events; got %d", got)
	}
	if len(keys) != 1 || keys[0] != KEY_I {
		t.Fatalf("expected one KEY_I press; got %v", keys)
	}
	if got := EventDispatch(); got != 0 {
		t.Fatalf("expected an empty queue; got %d events", got)
	}
}

func TestEventQueueFull(t *testing.T) {
	EventSystemInitialize()
	defer EventSystemShutdown()

	for i := 0; i < eventQueueSize; i++ {
		if !EventFire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}) {
			t.Fatalf("expected event %d to be queued", i)
		}
	}
	if EventFire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}) {
		t.Fatal("expected a full queue to drop the event")
	}
}

func TestRegistryKeepsAcquisitionOrder(t *testing.T) {
	r := NewRegistry()
	a := r.Acquire("tlas")
	b := r.Acquire("pipeline")
	r.Acquire("target")

	if err := r.Release(b); err != nil {
		t.Fatalf("expected release to succeed; got %v", err)
	}
	if err := r.Release(b); err == nil {
		t.Fatal("expected a second release to fail")
	}
	if err := r.Release(uuid.New()); err == nil {
		t.Fatal("expected releasing an unknown id to fail")
	}

	owners := r.Owners()
	if r.Len() != 2 || len(owners) != 2 || owners[0] != "tlas" || owners[1] != "target" {
		t.Fatalf("expected [tlas target]; got %v", owners)
	}
	if o, ok := r.Owner(a); !ok || o != "tlas" {
		t.Fatalf("expected owner tlas for %s; got %v", a, o)
	}
	if _, ok := r.Owner(b); ok {
		t.Fatalf("expected %s to be released", b)
	}
}
