// Package mock provides a test double for the aec.Canceller interface.
package mock

import (
	"sync"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/aec"
)

// Call records the arguments of one Cancel invocation.
type Call struct {
	Captured  audio.Frame
	Reference audio.Frame
}

// Canceller is a mock aec.Canceller. By default it returns the captured frame
// unchanged.
type Canceller struct {
	mu sync.Mutex

	// Fn, if set, computes the result instead of the passthrough default.
	Fn func(captured, reference audio.Frame) (audio.Frame, error)

	// Err, if non-nil, is returned from every call.
	Err error

	Calls []Call
}

// Cancel implements aec.Canceller.
func (c *Canceller) Cancel(captured, reference audio.Frame) (audio.Frame, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, Call{Captured: captured, Reference: reference})
	fn, err := c.Fn, c.Err
	c.mu.Unlock()

	if err != nil {
		return audio.Frame{}, err
	}
	if fn != nil {
		return fn(captured, reference)
	}
	return captured, nil
}

// CallCount returns how many times Cancel was called.
func (c *Canceller) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

var _ aec.Canceller = (*Canceller)(nil)
