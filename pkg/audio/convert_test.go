package audio_test

import (
	"testing"

	"github.com/MrWong99/vocalis/pkg/audio"
)

func TestPCMRoundTrip(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	got := audio.PCMToSamples(audio.SamplesToPCM(in))
	if len(got) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
}

func TestPCMToSamples_OddTrailingByte(t *testing.T) {
	t.Parallel()
	got := audio.PCMToSamples([]byte{0x10, 0x00, 0xFF})
	if len(got) != 1 || got[0] != 16 {
		t.Fatalf("got %v, want [16]", got)
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	t.Parallel()
	pcm := audio.SamplesToPCM([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 16000, 16000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	t.Parallel()
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	out := audio.ResampleMono16(audio.SamplesToPCM([]int16{1000, 2000}), 16000, 48000)
	got := audio.PCMToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	if last := got[len(got)-1]; last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	t.Parallel()
	out := audio.ResampleMono16(audio.SamplesToPCM([]int16{100, 200, 300, 400, 500, 600}), 48000, 16000)
	if got := audio.PCMToSamples(out); len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	t.Parallel()
	pcm := audio.SamplesToPCM([]int16{1, 2})
	if out := audio.ResampleMono16(pcm, 0, 16000); len(out) != len(pcm) {
		t.Errorf("zero source rate should return input unchanged")
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		samples []int16
		min     float64
		max     float64
	}{
		{name: "empty", samples: nil, min: 0, max: 0},
		{name: "silence", samples: make([]int16, 160), min: 0, max: 0},
		{name: "full scale", samples: []int16{-32768, -32768}, min: 0.999, max: 1.001},
		{name: "half scale", samples: []int16{16384, -16384}, min: 0.49, max: 0.51},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.RMS(tc.samples)
			if got < tc.min || got > tc.max {
				t.Errorf("RMS = %f, want in [%f, %f]", got, tc.min, tc.max)
			}
		})
	}
}

func TestClampInt16(t *testing.T) {
	t.Parallel()
	if got := audio.ClampInt16(40000); got != 32767 {
		t.Errorf("ClampInt16(40000) = %d, want 32767", got)
	}
	if got := audio.ClampInt16(-40000); got != -32768 {
		t.Errorf("ClampInt16(-40000) = %d, want -32768", got)
	}
	if got := audio.ClampInt16(12.6); got != 13 {
		t.Errorf("ClampInt16(12.6) = %d, want 13", got)
	}
}

func TestFramer_SplitsAndCarries(t *testing.T) {
	t.Parallel()
	f := audio.NewFramer(audio.Format{SampleRate: 16000, FrameSize: 4}, 0)

	// 6 samples → one frame, 2 pending.
	frames := f.Write(audio.SamplesToPCM([]int16{1, 2, 3, 4, 5, 6}))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Samples[3] != 4 {
		t.Errorf("frame[0] last sample = %d, want 4", frames[0].Samples[3])
	}

	// 2 more samples complete the second frame.
	frames = f.Write(audio.SamplesToPCM([]int16{7, 8}))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	want := []int16{5, 6, 7, 8}
	for i, s := range want {
		if frames[0].Samples[i] != s {
			t.Errorf("sample %d = %d, want %d", i, frames[0].Samples[i], s)
		}
	}
	if frames[0].Seq != 2 {
		t.Errorf("Seq = %d, want 2", frames[0].Seq)
	}
	if _, ok := f.Flush(); ok {
		t.Error("Flush on empty framer should report nothing pending")
	}
}

func TestFramer_OddByteChunks(t *testing.T) {
	t.Parallel()
	f := audio.NewFramer(audio.Format{SampleRate: 16000, FrameSize: 2}, 0)
	pcm := audio.SamplesToPCM([]int16{300, -300})

	if got := f.Write(pcm[:1]); len(got) != 0 {
		t.Fatalf("frames after 1 byte = %d, want 0", len(got))
	}
	got := f.Write(pcm[1:])
	if len(got) != 1 {
		t.Fatalf("frames = %d, want 1", len(got))
	}
	if got[0].Samples[0] != 300 || got[0].Samples[1] != -300 {
		t.Errorf("samples = %v, want [300 -300]", got[0].Samples)
	}
}

func TestFramer_FlushPadsWithSilence(t *testing.T) {
	t.Parallel()
	f := audio.NewFramer(audio.Format{SampleRate: 16000, FrameSize: 4}, 0)
	f.Write(audio.SamplesToPCM([]int16{9}))
	frame, ok := f.Flush()
	if !ok {
		t.Fatal("expected a flushed frame")
	}
	if frame.Len() != 4 {
		t.Fatalf("Len = %d, want 4", frame.Len())
	}
	if frame.Samples[0] != 9 || frame.Samples[1] != 0 || frame.Samples[3] != 0 {
		t.Errorf("samples = %v, want [9 0 0 0]", frame.Samples)
	}
}

func TestFramer_Resamples(t *testing.T) {
	t.Parallel()
	// 8 samples at 32kHz become 4 samples at 16kHz: exactly one frame.
	f := audio.NewFramer(audio.Format{SampleRate: 16000, FrameSize: 4}, 32000)
	frames := f.Write(audio.SamplesToPCM(make([]int16, 8)))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
}
