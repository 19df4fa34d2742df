// Package portaudio provides an [audio.Platform] backed by the system's
// default PortAudio input and output devices via github.com/gordonklaus/portaudio.
//
// Both directions use blocking streams: the input stream fills one frame
// buffer per Read, and the output stream's Write blocks until the device has
// consumed the buffer, which is what paces playback to real time.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/vocalis/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform     = (*Platform)(nil)
	_ audio.InputDevice  = (*Input)(nil)
	_ audio.OutputDevice = (*Output)(nil)
)

// Platform owns the PortAudio library lifetime. Create one per process.
type Platform struct {
	closeOnce sync.Once
}

// New initialises PortAudio. Call [Platform.Close] to terminate it.
func New() (*Platform, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Platform{}, nil
}

// Close terminates PortAudio. Open streams must be closed first.
func (p *Platform) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if e := pa.Terminate(); e != nil {
			err = fmt.Errorf("portaudio: terminate: %w", e)
		}
	})
	return err
}

// OpenInput opens and starts the default mono capture stream.
func (p *Platform) OpenInput(f audio.Format) (audio.InputDevice, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]int16, f.FrameSize)
	stream, err := pa.OpenDefaultStream(1, 0, float64(f.SampleRate), f.FrameSize, buf)
	if err != nil {
		return nil, &audio.DeviceError{Op: "open", Device: "input", Err: err}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, &audio.DeviceError{Op: "start", Device: "input", Err: err}
	}
	return &Input{stream: stream, buf: buf, format: f}, nil
}

// OpenOutput opens the default mono playback stream. The stream is not
// started until [Output.Start].
func (p *Platform) OpenOutput(f audio.Format) (audio.OutputDevice, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]int16, f.FrameSize)
	stream, err := pa.OpenDefaultStream(0, 1, float64(f.SampleRate), f.FrameSize, buf)
	if err != nil {
		return nil, &audio.DeviceError{Op: "open", Device: "output", Err: err}
	}
	return &Output{stream: stream, buf: buf}, nil
}

// ─── Input ────────────────────────────────────────────────────────────────────

// Input is a started PortAudio capture stream.
type Input struct {
	stream *pa.Stream
	buf    []int16
	format audio.Format

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// ReadFrame blocks for one frame. Input overflows are logged and the frame
// is still delivered, since PortAudio has filled the buffer.
func (in *Input) ReadFrame() (audio.Frame, error) {
	in.mu.Lock()
	closed := in.closed
	in.mu.Unlock()
	if closed {
		return audio.Frame{}, audio.ErrDeviceClosed
	}

	if err := in.stream.Read(); err != nil {
		if !errors.Is(err, pa.InputOverflowed) {
			return audio.Frame{}, err
		}
		slog.Debug("portaudio: input overflowed")
	}

	samples := make([]int16, len(in.buf))
	copy(samples, in.buf)

	in.mu.Lock()
	in.seq++
	seq := in.seq
	in.mu.Unlock()

	return audio.Frame{
		Samples:   samples,
		Seq:       seq,
		Timestamp: time.Duration(seq-1) * in.format.FrameDuration(),
	}, nil
}

// Close stops and closes the stream.
func (in *Input) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	in.mu.Unlock()

	stopErr := in.stream.Stop()
	closeErr := in.stream.Close()
	if err := errors.Join(stopErr, closeErr); err != nil {
		return &audio.DeviceError{Op: "close", Device: "input", Err: err}
	}
	return nil
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is a PortAudio playback stream.
type Output struct {
	stream  *pa.Stream
	buf     []int16
	started bool
}

// Start starts the stream.
func (o *Output) Start() error {
	if err := o.stream.Start(); err != nil {
		return err
	}
	o.started = true
	return nil
}

// WriteFrame copies f into the stream buffer and blocks until PortAudio has
// accepted it. Short frames are zero-padded. Underflows are not errors.
func (o *Output) WriteFrame(f audio.Frame) error {
	n := copy(o.buf, f.Samples)
	clear(o.buf[n:])
	if err := o.stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
		return err
	}
	return nil
}

// Stop halts the stream. Stopping a stopped stream is a no-op.
func (o *Output) Stop() error {
	if !o.started {
		return nil
	}
	o.started = false
	return o.stream.Stop()
}

// Close closes the stream.
func (o *Output) Close() error {
	return o.stream.Close()
}
