// Package audio defines the frame types, PCM helpers and device interfaces
// shared by every stage of the voice pipeline.
//
// The device abstractions are:
//
//   - [InputDevice]: a microphone delivering one fixed-length [Frame] per
//     blocking read. Owned exclusively by the capture loop.
//   - [OutputDevice]: a speaker accepting one frame per blocking write. The
//     blocking write is the pacing clock for playback.
//   - [Platform]: opens both kinds of device for a [Format].
//
// Implementations live in sub-packages (audio/portaudio for real hardware,
// audio/mock for tests). This package lives under pkg/ because third-party
// device backends are expected to implement these interfaces.
package audio

import (
	"errors"
	"fmt"
)

// ErrDeviceClosed is returned by devices used after Close.
var ErrDeviceClosed = errors.New("audio: device closed")

// InputDevice is a capture device producing fixed-length mono frames.
//
// ReadFrame blocks until one frame of Format.FrameSize samples is available.
// Implementations are not required to be safe for concurrent ReadFrame calls;
// the capture loop is the only reader.
type InputDevice interface {
	// ReadFrame returns the next captured frame.
	ReadFrame() (Frame, error)

	// Close stops the stream and releases the device. Close may be called
	// while a ReadFrame is blocked; that read then returns an error.
	Close() error
}

// OutputDevice is a playback device. A session opens it, calls Start, writes
// frames, then Stop and Close.
type OutputDevice interface {
	// Start begins playback. Writes before Start are an error.
	Start() error

	// WriteFrame blocks until the device has accepted the frame, pacing the
	// caller to real time.
	WriteFrame(Frame) error

	// Stop halts playback. Stop on a stopped device is a no-op.
	Stop() error

	// Close releases the device.
	Close() error
}

// InputOpener opens capture devices.
type InputOpener interface {
	OpenInput(Format) (InputDevice, error)
}

// OutputOpener opens playback devices.
type OutputOpener interface {
	OpenOutput(Format) (OutputDevice, error)
}

// Platform is a device backend able to open both directions.
type Platform interface {
	InputOpener
	OutputOpener

	// Close releases backend-wide resources (e.g. library termination).
	Close() error
}

// DeviceError reports an input or output hardware failure. It is fatal once
// the owning component has exhausted its retries.
type DeviceError struct {
	// Op is the failed operation: "open", "start", "read", "write", "stop", "close".
	Op string

	// Device is "input" or "output".
	Device string

	Err error
}

// Error implements error.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: %s device %s: %v", e.Device, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error { return e.Err }

// IsDeviceError reports whether err wraps a [*DeviceError].
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
