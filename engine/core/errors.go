package core

import (
	"github.com/cockroachdb/errors"
)

// Error categories. Concrete errors are marked with one of these so callers
// can classify them with errors.Is without matching on messages.
var (
	ErrFatalInit  = errors.New("fatal initialization error")
	ErrFatalFrame = errors.New("fatal frame error")
	ErrCapability = errors.New("required capability missing")
	ErrTimeout    = errors.New("wait timed out")
	ErrDeviceLost = errors.New("device lost")

	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")
)

// InitError marks err as fatal for startup.
func InitError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrFatalInit)
}

// FrameError marks err as fatal for the render loop.
func FrameError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrFatalFrame)
}

// CapabilityError reports a missing device feature or extension.
func CapabilityError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCapability)
}

// IsFatal reports whether err belongs to any of the fatal categories.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalInit) ||
		errors.Is(err, ErrFatalFrame) ||
		errors.Is(err, ErrCapability) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrDeviceLost)
}
