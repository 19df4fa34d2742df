// Package nlms implements a normalised least-mean-squares adaptive echo
// canceller.
//
// The filter models the echo path as an FIR of Taps coefficients applied to
// recent reference samples, and adapts the coefficients on every sample so
// the residual (captured minus estimated echo) shrinks. Adaptation is frozen
// while the near-end signal dominates the reference (double talk) so that the
// user's voice does not corrupt the echo model.
package nlms

import (
	"fmt"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/aec"
)

const (
	// DefaultTaps covers 16 ms of echo tail at 16 kHz.
	DefaultTaps = 256

	// DefaultStep is the adaptation rate mu, in (0, 2).
	DefaultStep = 0.3

	// regularisation added to the input power to avoid division by zero
	epsilon = 1e-6

	// near-end energy above this multiple of the reference energy freezes
	// adaptation
	doubleTalkRatio = 2.0
)

// Option is a functional option for [Canceller].
type Option func(*Canceller)

// WithTaps sets the filter length in samples.
func WithTaps(n int) Option {
	return func(c *Canceller) { c.taps = n }
}

// WithStep sets the adaptation rate.
func WithStep(mu float64) Option {
	return func(c *Canceller) { c.step = mu }
}

// Canceller is an NLMS echo canceller. It is not safe for concurrent use.
type Canceller struct {
	taps int
	step float64

	weights []float64
	history []float64 // circular buffer of past reference samples
	pos     int
	power   float64 // running sum of squares over history
}

var _ aec.Canceller = (*Canceller)(nil)

// New returns a Canceller with zeroed coefficients.
func New(opts ...Option) (*Canceller, error) {
	c := &Canceller{taps: DefaultTaps, step: DefaultStep}
	for _, o := range opts {
		o(c)
	}
	if c.taps <= 0 {
		return nil, fmt.Errorf("nlms: taps must be positive, got %d", c.taps)
	}
	if c.step <= 0 || c.step >= 2 {
		return nil, fmt.Errorf("nlms: step must be in (0, 2), got %g", c.step)
	}
	c.weights = make([]float64, c.taps)
	c.history = make([]float64, c.taps)
	return c, nil
}

// Cancel implements [aec.Canceller]. The returned frame keeps the captured
// frame's metadata.
func (c *Canceller) Cancel(captured, reference audio.Frame) (audio.Frame, error) {
	if len(captured.Samples) != len(reference.Samples) {
		return audio.Frame{}, aec.ErrLengthMismatch
	}

	freeze := doubleTalk(captured.Samples, reference.Samples)

	out := make([]int16, len(captured.Samples))
	for i, s := range captured.Samples {
		x := float64(reference.Samples[i]) / 32768
		d := float64(s) / 32768

		old := c.history[c.pos]
		c.power += x*x - old*old
		if c.power < 0 {
			c.power = 0
		}
		c.history[c.pos] = x

		var y float64
		for k := 0; k < c.taps; k++ {
			y += c.weights[k] * c.history[c.index(k)]
		}
		e := d - y

		if !freeze {
			g := c.step * e / (c.power + epsilon)
			for k := 0; k < c.taps; k++ {
				c.weights[k] += g * c.history[c.index(k)]
			}
		}

		c.pos = (c.pos + 1) % c.taps
		out[i] = audio.ClampInt16(e * 32768)
	}

	res := captured
	res.Samples = out
	return res, nil
}

// Reset zeroes the filter state.
func (c *Canceller) Reset() {
	clear(c.weights)
	clear(c.history)
	c.pos = 0
	c.power = 0
}

// index returns the history slot holding the sample k steps before the
// current one.
func (c *Canceller) index(k int) int {
	i := c.pos - k
	if i < 0 {
		i += c.taps
	}
	return i
}

func doubleTalk(captured, reference []int16) bool {
	var near, far float64
	for i := range captured {
		near += float64(captured[i]) * float64(captured[i])
		far += float64(reference[i]) * float64(reference[i])
	}
	if far == 0 {
		return true
	}
	return near > doubleTalkRatio*far
}
