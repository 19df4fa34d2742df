package audio

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// RMS returns the root-mean-square amplitude of samples, normalised to
// [0, 1]. An empty slice yields 0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ClampInt16 saturates v to the int16 range.
func ClampInt16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}

// Framer cuts an arbitrary stream of PCM byte chunks into fixed-length frames.
// Chunks are resampled from SourceRate to the target format first. Partial
// samples and partial frames are carried over to the next Write; Flush
// zero-pads the tail.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	target     Format
	sourceRate int
	pending    []int16
	oddByte    []byte
	seq        uint64
	warnOnce   sync.Once
}

// NewFramer returns a Framer producing frames in target format from PCM at
// sourceRate. A sourceRate of 0 means the source already matches the target.
func NewFramer(target Format, sourceRate int) *Framer {
	if sourceRate <= 0 {
		sourceRate = target.SampleRate
	}
	return &Framer{target: target, sourceRate: sourceRate}
}

// Write appends a chunk and returns every complete frame now available.
func (f *Framer) Write(chunk []byte) []Frame {
	if len(f.oddByte) > 0 {
		chunk = append(f.oddByte, chunk...)
		f.oddByte = nil
	}
	if len(chunk)%2 != 0 {
		f.oddByte = []byte{chunk[len(chunk)-1]}
		chunk = chunk[:len(chunk)-1]
	}
	if f.sourceRate != f.target.SampleRate {
		f.warnOnce.Do(func() {
			slog.Debug("audio framer: resampling synthesis output",
				"from", f.sourceRate, "to", f.target.SampleRate)
		})
		chunk = ResampleMono16(chunk, f.sourceRate, f.target.SampleRate)
	}
	f.pending = append(f.pending, PCMToSamples(chunk)...)

	var frames []Frame
	for len(f.pending) >= f.target.FrameSize {
		frames = append(frames, f.next(f.pending[:f.target.FrameSize]))
		f.pending = f.pending[f.target.FrameSize:]
	}
	return frames
}

// Flush returns the remaining samples as one zero-padded frame. ok is false
// when nothing is pending.
func (f *Framer) Flush() (frame Frame, ok bool) {
	if len(f.pending) == 0 {
		return Frame{}, false
	}
	buf := make([]int16, f.target.FrameSize)
	copy(buf, f.pending)
	f.pending = nil
	return f.next(buf), true
}

func (f *Framer) next(samples []int16) Frame {
	f.seq++
	cp := make([]int16, len(samples))
	copy(cp, samples)
	return Frame{
		Samples:   cp,
		Seq:       f.seq,
		Timestamp: time.Duration(f.seq-1) * f.target.FrameDuration(),
	}
}
