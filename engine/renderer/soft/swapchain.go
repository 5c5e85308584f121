package soft

import (
	"fmt"
	"image"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const SwapchainBufferCount = 2

// Swapchain flips between back buffers. Present is recorded on the queue so
// frames reach the surface in submission order.
type Swapchain struct {
	metadata.Handle
	device  *Device
	surface metadata.Surface
	buffers []*Image
	current uint32

	PresentCount uint64
}

func (d *Device) CreateSwapchain(surface metadata.Surface, width, height uint32) (*Swapchain, error) {
	sc := &Swapchain{device: d, surface: surface}
	if err := sc.createBuffers(width, height); err != nil {
		return nil, err
	}
	d.register(&sc.Handle, sc, "swapchain", sc.releaseBuffers)
	return sc, nil
}

func (sc *Swapchain) createBuffers(width, height uint32) error {
	for i := 0; i < SwapchainBufferCount; i++ {
		img, err := sc.device.allocator.CreateImage(fmt.Sprintf("back-buffer-%d", i), width, height, metadata.ResourceStatePresent)
		if err != nil {
			sc.releaseBuffers()
			return err
		}
		sc.buffers = append(sc.buffers, img)
	}
	sc.current = 0
	return nil
}

func (sc *Swapchain) releaseBuffers() {
	for _, b := range sc.buffers {
		b.Release()
	}
	sc.buffers = nil
}

func (sc *Swapchain) CurrentBackBufferIndex() uint32 {
	return sc.current
}

func (sc *Swapchain) BackBuffer(index uint32) *Image {
	return sc.buffers[index]
}

func (sc *Swapchain) Size() (uint32, uint32) {
	if len(sc.buffers) == 0 {
		return 0, 0
	}
	return sc.buffers[0].Width, sc.buffers[0].Height
}

// ResizeBuffers recreates the back buffers. The queue must be idle.
func (sc *Swapchain) ResizeBuffers(width, height uint32) error {
	if err := sc.Check(); err != nil {
		return err
	}
	q := sc.device.queue
	if q.fence.CompletedValue() < q.LastSignaled() {
		return errors.New("swapchain resized while the queue still has work in flight")
	}
	sc.releaseBuffers()
	return sc.createBuffers(width, height)
}

// Present queues the current back buffer for display and advances to the next one.
func (sc *Swapchain) Present() error {
	if err := sc.Check(); err != nil {
		return err
	}
	img := sc.buffers[sc.current]
	sc.current = (sc.current + 1) % uint32(len(sc.buffers))
	sc.PresentCount++

	presenter, _ := sc.surface.(metadata.Presenter)
	return sc.device.queue.enqueuePresent(func() error {
		if err := expectState(img, metadata.ResourceStatePresent); err != nil {
			return errors.Wrap(err, "present")
		}
		if presenter != nil {
			frame := image.NewRGBA(img.Pixels.Rect)
			copy(frame.Pix, img.Pixels.Pix)
			presenter.PresentImage(frame)
		}
		core.LogDebug("present %s", img.Name)
		return nil
	})
}
