package stt_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/vocalis/pkg/provider/stt"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: " What time is it?", want: "What time is it?"},
		{raw: "[BLANK_AUDIO]", wantErr: true},
		{raw: "  (wind blowing)  ", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "hello [music] world", want: "hello world"},
		{raw: "*coughs* stop", want: "stop"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := stt.Clean(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, stt.ErrEmptyTranscript) {
					t.Fatalf("err = %v, want ErrEmptyTranscript", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
