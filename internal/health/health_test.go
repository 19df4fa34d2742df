package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/vocalis/internal/health"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func get(t *testing.T, h *health.Handler, path string) (int, body) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	var b body
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, b
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	h := health.New(health.Checker{Name: "broken", Check: func(context.Context) error {
		return errors.New("down")
	}})
	if code, b := get(t, h, "/healthz"); code != http.StatusOK || b.Status != "ok" {
		t.Errorf("healthz = %d %q", code, b.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	var capturing, ended, available atomic.Bool
	capturing.Store(true)
	available.Store(true)
	h := health.New(
		health.CaptureRunning(capturing.Load),
		health.DialogueActive(ended.Load),
		health.ProviderAvailable("llm", available.Load),
	)

	code, b := get(t, h, "/readyz")
	if code != http.StatusOK || b.Status != "ok" {
		t.Fatalf("readyz = %d %+v", code, b)
	}
	for _, name := range []string{"capture", "dialogue", "provider.llm"} {
		if b.Checks[name] != "ok" {
			t.Errorf("check %q = %q", name, b.Checks[name])
		}
	}

	tests := []struct {
		name  string
		set   func(bool)
		check string
		want  error
	}{
		{name: "capture stopped", set: func(v bool) { capturing.Store(!v) }, check: "capture", want: health.ErrCaptureStopped},
		{name: "dialogue ended", set: ended.Store, check: "dialogue", want: health.ErrDialogueEnded},
		{name: "providers open", set: func(v bool) { available.Store(!v) }, check: "provider.llm", want: health.ErrNoProvider},
	}
	// Subtests share the flags and run in order.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.set(true)
			defer tt.set(false)

			code, b := get(t, h, "/readyz")
			if code != http.StatusServiceUnavailable || b.Status != "fail" {
				t.Fatalf("readyz = %d %q", code, b.Status)
			}
			if got, want := b.Checks[tt.check], "fail: "+tt.want.Error(); got != want {
				t.Errorf("check %q = %q, want %q", tt.check, got, want)
			}
		})
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	t.Parallel()

	if code, b := get(t, health.New(), "/readyz"); code != http.StatusOK || b.Status != "ok" {
		t.Errorf("readyz = %d %q", code, b.Status)
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	h := health.New(health.Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
