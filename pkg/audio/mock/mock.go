// Package mock provides in-memory implementations of the [audio.InputDevice],
// [audio.OutputDevice] and [audio.Platform] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	feed := make(chan audio.Frame, 16)
//	in := &mock.InputDevice{Feed: feed}
//	out := &mock.OutputDevice{}
//	platform := &mock.Platform{Input: in, Output: out}
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
)

// ─── InputDevice ──────────────────────────────────────────────────────────────

// Read is one scripted result of [InputDevice.ReadFrame].
type Read struct {
	Frame audio.Frame
	Err   error
}

// InputDevice is a mock implementation of [audio.InputDevice].
//
// ReadFrame first consumes Script in order, then receives from Feed. When Feed
// is nil or closed, ReadFrame blocks until Close and then returns
// [audio.ErrDeviceClosed].
type InputDevice struct {
	mu sync.Mutex

	// Script is consumed first, one entry per read.
	Script []Read

	// Feed supplies frames once Script is exhausted.
	Feed <-chan audio.Frame

	// CloseErr is returned by Close.
	CloseErr error

	// CallCountReadFrame records how many times ReadFrame was called.
	CallCountReadFrame int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	pos    int
	done   chan struct{}
	closed bool
}

func (d *InputDevice) doneCh() chan struct{} {
	if d.done == nil {
		d.done = make(chan struct{})
	}
	return d.done
}

// ReadFrame implements [audio.InputDevice].
func (d *InputDevice) ReadFrame() (audio.Frame, error) {
	d.mu.Lock()
	d.CallCountReadFrame++
	if d.closed {
		d.mu.Unlock()
		return audio.Frame{}, audio.ErrDeviceClosed
	}
	if d.pos < len(d.Script) {
		r := d.Script[d.pos]
		d.pos++
		d.mu.Unlock()
		return r.Frame, r.Err
	}
	feed := d.Feed
	done := d.doneCh()
	d.mu.Unlock()

	if feed != nil {
		select {
		case f, ok := <-feed:
			if ok {
				return f, nil
			}
		case <-done:
			return audio.Frame{}, audio.ErrDeviceClosed
		}
	}
	<-done
	return audio.Frame{}, audio.ErrDeviceClosed
}

// Close implements [audio.InputDevice]. It unblocks pending reads.
func (d *InputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	if !d.closed {
		d.closed = true
		close(d.doneCh())
	}
	return d.CloseErr
}

// Reads returns how many times ReadFrame was called.
func (d *InputDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountReadFrame
}

// ─── OutputDevice ─────────────────────────────────────────────────────────────

// OutputDevice is a mock implementation of [audio.OutputDevice]. Written
// frames are recorded in order.
type OutputDevice struct {
	mu sync.Mutex

	// StartErr is returned by Start.
	StartErr error

	// WriteErr is returned by WriteFrame once FailAfter frames were accepted.
	WriteErr error

	// FailAfter is the number of successful writes before WriteErr applies.
	FailAfter int

	// WriteDelay simulates the blocking real-time write.
	WriteDelay time.Duration

	// OnWrite, if set, is called after each accepted frame with its 1-based
	// index. It runs outside the mock's lock.
	OnWrite func(n int, f audio.Frame)

	// Written holds every accepted frame in write order.
	Written []audio.Frame

	// CallCountStart, CallCountStop and CallCountClose record lifecycle calls.
	CallCountStart int
	CallCountStop  int
	CallCountClose int

	started bool
	closed  bool
}

// Start implements [audio.OutputDevice].
func (d *OutputDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	if d.StartErr != nil {
		return d.StartErr
	}
	d.started = true
	return nil
}

// WriteFrame implements [audio.OutputDevice].
func (d *OutputDevice) WriteFrame(f audio.Frame) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return audio.ErrDeviceClosed
	}
	if d.WriteErr != nil && len(d.Written) >= d.FailAfter {
		err := d.WriteErr
		d.mu.Unlock()
		return err
	}
	delay := d.WriteDelay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	d.Written = append(d.Written, f)
	n := len(d.Written)
	cb := d.OnWrite
	d.mu.Unlock()

	if cb != nil {
		cb(n, f)
	}
	return nil
}

// Stop implements [audio.OutputDevice].
func (d *OutputDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	d.started = false
	return nil
}

// Close implements [audio.OutputDevice].
func (d *OutputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	d.started = false
	d.closed = true
	return nil
}

// Frames returns a copy of the frames written so far.
func (d *OutputDevice) Frames() []audio.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]audio.Frame, len(d.Written))
	copy(out, d.Written)
	return out
}

// Released reports whether the device ended up stopped and closed.
func (d *OutputDevice) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.started && d.closed
}

func (d *OutputDevice) reopen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = false
}

func (d *OutputDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// Input is returned by OpenInput.
	Input audio.InputDevice

	// Output is returned by OpenOutput when NewOutput is nil. A closed
	// Output is reopened, so one device can serve several sessions.
	Output *OutputDevice

	// NewOutput, if set, creates a fresh device per OpenOutput call.
	NewOutput func() *OutputDevice

	// OpenInputErr and OpenOutputErr are returned by the respective opener.
	OpenInputErr  error
	OpenOutputErr error

	// Outputs records every device handed out by OpenOutput.
	Outputs []*OutputDevice

	// Formats records the format passed to each open call.
	Formats []audio.Format

	// MaxConcurrentOutputs is the highest number of simultaneously open
	// (not yet closed) outputs observed at open time.
	MaxConcurrentOutputs int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// OpenInput implements [audio.InputOpener].
func (p *Platform) OpenInput(f audio.Format) (audio.InputDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Formats = append(p.Formats, f)
	if p.OpenInputErr != nil {
		return nil, p.OpenInputErr
	}
	return p.Input, nil
}

// OpenOutput implements [audio.OutputOpener].
func (p *Platform) OpenOutput(f audio.Format) (audio.OutputDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Formats = append(p.Formats, f)
	if p.OpenOutputErr != nil {
		return nil, p.OpenOutputErr
	}
	dev := p.Output
	if p.NewOutput != nil {
		dev = p.NewOutput()
	}
	if dev == nil {
		dev = &OutputDevice{}
		p.Output = dev
	}
	dev.reopen()
	p.Outputs = append(p.Outputs, dev)

	open := 0
	seen := make(map[*OutputDevice]bool, len(p.Outputs))
	for _, o := range p.Outputs {
		if !seen[o] && !o.isClosed() {
			open++
		}
		seen[o] = true
	}
	if open > p.MaxConcurrentOutputs {
		p.MaxConcurrentOutputs = open
	}
	return dev, nil
}

// Close implements [audio.Platform].
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return nil
}

// MaxConcurrent returns MaxConcurrentOutputs under the lock.
func (p *Platform) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.MaxConcurrentOutputs
}

// Compile-time interface assertions.
var (
	_ audio.InputDevice  = (*InputDevice)(nil)
	_ audio.OutputDevice = (*OutputDevice)(nil)
	_ audio.Platform     = (*Platform)(nil)
)
