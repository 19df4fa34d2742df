package webrtc

import "testing"

func TestValidFrameLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate, n int
		want    bool
	}{
		{16000, 160, true},
		{16000, 320, true},
		{16000, 480, true},
		{16000, 400, false},
		{8000, 240, true},
		{48000, 1440, true},
		{16000, 0, false},
	}
	for _, tt := range tests {
		if got := validFrameLength(tt.rate, tt.n); got != tt.want {
			t.Errorf("validFrameLength(%d, %d) = %v, want %v", tt.rate, tt.n, got, tt.want)
		}
	}
	if validRate(44100) {
		t.Error("44100 Hz must be rejected")
	}
}
