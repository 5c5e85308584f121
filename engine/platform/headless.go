package platform

import (
	"image"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Headless is an offscreen surface. Presented frames are forwarded to sink,
// which may be nil.
type Headless struct {
	mu        sync.Mutex
	width     uint32
	height    uint32
	sink      metadata.Presenter
	presented uint64
}

func NewHeadless(width, height uint32, sink metadata.Presenter) *Headless {
	return &Headless{width: width, height: height, sink: sink}
}

func (h *Headless) FramebufferSize() (uint32, uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// SetSize changes the surface size and fires the same resize event a
// window would.
func (h *Headless) SetSize(width, height uint32) {
	h.mu.Lock()
	h.width, h.height = width, height
	h.mu.Unlock()
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{WindowWidth: width, WindowHeight: height},
	})
}

// PresentImage runs on the device timeline.
func (h *Headless) PresentImage(frame *image.RGBA) {
	h.mu.Lock()
	h.presented++
	sink := h.sink
	h.mu.Unlock()
	if sink != nil {
		sink.PresentImage(frame)
	}
}

func (h *Headless) Presented() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presented
}

// PumpMessages never asks to close.
func (h *Headless) PumpMessages() bool {
	return true
}
