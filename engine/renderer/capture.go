package renderer

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"golang.org/x/image/bmp"
)

// WriteBMP encodes img as a BMP file at path.
func WriteBMP(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bmp.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	return f.Close()
}

// FrameRecorder receives presented frames. It keeps the latest one and,
// when EveryN is set, writes every Nth frame to Directory.
type FrameRecorder struct {
	Directory string
	EveryN    uint64

	mu      sync.Mutex
	frames  uint64
	last    *image.RGBA
	written []string
	err     error
}

func NewFrameRecorder(directory string, everyN uint64) *FrameRecorder {
	return &FrameRecorder{Directory: directory, EveryN: everyN}
}

// PresentImage is called from the device timeline.
func (r *FrameRecorder) PresentImage(frame *image.RGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last = frame
	r.frames++
	if r.EveryN == 0 || r.Directory == "" || r.frames%r.EveryN != 0 {
		return
	}
	path := filepath.Join(r.Directory, fmt.Sprintf("frame-%05d.bmp", r.frames))
	if err := WriteBMP(path, frame); err != nil {
		if r.err == nil {
			r.err = err
		}
		core.LogError("frame capture to %s failed: %s", path, err)
		return
	}
	r.written = append(r.written, path)
}

func (r *FrameRecorder) Last() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *FrameRecorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Written lists the files written so far, and the first write error if any.
func (r *FrameRecorder) Written() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.written...), r.err
}

// Flush writes the last presented frame to name inside Directory.
func (r *FrameRecorder) Flush(name string) (string, error) {
	last := r.Last()
	if last == nil {
		return "", errors.New("no frame was presented")
	}
	path := filepath.Join(r.Directory, name)
	if err := WriteBMP(path, last); err != nil {
		return "", err
	}
	return path, nil
}
