package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Default pipeline format: 16 kHz mono, 30 ms frames.
const (
	DefaultSampleRate = 16000
	DefaultFrameMs    = 30
)

// Format describes the PCM layout shared by every stage of the pipeline.
// Samples are always signed 16-bit mono; only the rate and the frame length
// vary. Capture, playback, VAD, wake-word detection and echo cancellation
// must all agree on the same Format.
type Format struct {
	// SampleRate in Hz.
	SampleRate int

	// FrameSize is the number of samples per frame.
	FrameSize int
}

// NewFormat returns the Format for the given sample rate and frame length in
// milliseconds.
func NewFormat(sampleRate, frameMs int) Format {
	return Format{SampleRate: sampleRate, FrameSize: sampleRate * frameMs / 1000}
}

// DefaultFormat is 16 kHz with 30 ms frames (480 samples).
func DefaultFormat() Format {
	return NewFormat(DefaultSampleRate, DefaultFrameMs)
}

// FrameDuration returns the wall-clock length of one frame.
func (f Format) FrameDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.FrameSize) * time.Second / time.Duration(f.SampleRate)
}

// FramesIn returns how many whole frames cover d, never less than one.
func (f Format) FramesIn(d time.Duration) int {
	fd := f.FrameDuration()
	if fd <= 0 {
		return 1
	}
	n := int((d + fd - 1) / fd)
	if n < 1 {
		return 1
	}
	return n
}

// Validate reports whether the format is usable.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.FrameSize <= 0 {
		return fmt.Errorf("audio: frame size must be positive, got %d", f.FrameSize)
	}
	return nil
}

// String returns e.g. "16000Hz/480".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%d", f.SampleRate, f.FrameSize)
}

// Frame is a fixed-length block of signed 16-bit mono samples, the atomic
// unit of processing throughout the pipeline. A Frame is treated as
// immutable once produced; consumers that need to modify samples copy them.
type Frame struct {
	// Samples holds exactly Format.FrameSize samples.
	Samples []int16

	// Seq is the capture sequence number, starting at 1.
	Seq uint64

	// Epoch is assigned by the frame bus on push. Zero for frames that never
	// passed through a bus (e.g. synthesized playback frames).
	Epoch uint64

	// Timestamp is the capture offset relative to stream start.
	Timestamp time.Duration
}

// Len returns the number of samples in the frame.
func (f Frame) Len() int { return len(f.Samples) }

// PCM returns the samples as little-endian int16 bytes.
func (f Frame) PCM() []byte {
	return SamplesToPCM(f.Samples)
}

// Utterance is an ordered sequence of frames collected between speech onset
// and speech end (or a timeout). It is finalized once, flattened and handed
// to transcription.
type Utterance struct {
	Frames     []Frame
	SampleRate int
}

// Empty reports whether the utterance holds no frames.
func (u Utterance) Empty() bool { return len(u.Frames) == 0 }

// Samples flattens the utterance into one contiguous buffer preserving frame
// order.
func (u Utterance) Samples() []int16 {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Duration returns the audio length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	return time.Duration(n) * time.Second / time.Duration(u.SampleRate)
}

// SamplesToPCM encodes samples as little-endian int16 bytes.
func SamplesToPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// PCMToSamples decodes little-endian int16 bytes. A trailing odd byte is
// ignored.
func PCMToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
