package platform

import (
	"image"
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
)

type countingSink struct{ frames []*image.RGBA }

func (s *countingSink) PresentImage(frame *image.RGBA) { s.frames = append(s.frames, frame) }

func TestHeadlessForwardsFrames(t *testing.T) {
	sink := &countingSink{}
	h := NewHeadless(4, 2, sink)
	h.PresentImage(image.NewRGBA(image.Rect(0, 0, 4, 2)))
	h.PresentImage(image.NewRGBA(image.Rect(0, 0, 4, 2)))
	if h.Presented() != 2 || len(sink.frames) != 2 {
		t.Fatalf("expected 2 presented frames; got %d and %d forwarded", h.Presented(), len(sink.frames))
	}
	NewHeadless(1, 1, nil).PresentImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
}

func TestHeadlessResizeFiresEvent(t *testing.T) {
	core.EventSystemInitialize()
	defer core.EventSystemShutdown()

	var got *core.SystemEvent
	core.EventRegister(core.EVENT_CODE_RESIZED, func(ctx core.EventContext) {
		got = ctx.Data.(*core.SystemEvent)
	})

	h := NewHeadless(4, 2, nil)
	h.SetSize(0, 7)
	if n := core.EventDispatch(); n != 1 {
		t.Fatalf("expected one event; got %d", n)
	}
	if got == nil || got.WindowWidth != 0 || got.WindowHeight != 7 {
		t.Fatalf("expected a 0x7 resize event; got %+v", got)
	}
	if w, h := h.FramebufferSize(); w != 0 || h != 7 {
		t.Fatalf("expected size 0x7; got %dx%d", w, h)
	}
}
