package classify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/vocalis/internal/classify"
	"github.com/MrWong99/vocalis/internal/observe"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestCall_Success(t *testing.T) {
	t.Parallel()
	r := classify.Call(classify.StageVAD, func() (bool, error) { return true, nil })
	if !r.OK() || !r.Value {
		t.Fatalf("Result = %+v, want OK true", r)
	}
}

func TestCall_Error(t *testing.T) {
	t.Parallel()
	cause := errors.New("bad frame length")
	r := classify.Call(classify.StageAEC, func() (int, error) { return 7, cause })
	if r.OK() {
		t.Fatal("expected failure")
	}
	if r.Value != 0 {
		t.Errorf("Value = %d, want zero on failure", r.Value)
	}
	if r.Err.Stage != classify.StageAEC {
		t.Errorf("Stage = %q, want %q", r.Err.Stage, classify.StageAEC)
	}
	if !errors.Is(r.Err, cause) {
		t.Error("Error should unwrap to cause")
	}
}

func TestCall_RecoversPanic(t *testing.T) {
	t.Parallel()
	r := classify.Call(classify.StageWakeWord, func() (bool, error) { panic("model exploded") })
	if r.OK() {
		t.Fatal("panic should surface as an error")
	}
	if !strings.Contains(r.Err.Error(), "model exploded") {
		t.Errorf("Error = %q, want panic message", r.Err.Error())
	}
}

func TestApply(t *testing.T) {
	t.Parallel()
	p := classify.NewPolicy(classify.WithMetrics(testMetrics(t)))
	ctx := context.Background()

	v, ok := classify.Apply(ctx, p, classify.Result[bool]{Value: true})
	if !ok || !v {
		t.Errorf("Apply(success) = (%v, %v), want (true, true)", v, ok)
	}

	v, ok = classify.Apply(ctx, p, classify.Result[bool]{
		Value: true,
		Err:   &classify.Error{Stage: classify.StageVAD, Err: errors.New("x")},
	})
	if ok || v {
		t.Errorf("Apply(failure) = (%v, %v), want (false, false)", v, ok)
	}
}

// Not parallel: swaps the default logger.
func TestPolicy_RateLimitsLogs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	p := classify.NewPolicy(
		classify.WithMetrics(testMetrics(t)),
		classify.WithLogInterval(time.Hour),
	)
	ctx := context.Background()
	for range 10 {
		p.Skip(ctx, &classify.Error{Stage: classify.StageVAD, Err: errors.New("boom")})
	}
	p.Skip(ctx, &classify.Error{Stage: classify.StageAEC, Err: errors.New("boom")})

	lines := strings.Count(buf.String(), "classifier failed")
	if lines != 2 {
		t.Errorf("logged %d lines, want 2 (one per stage):\n%s", lines, buf.String())
	}
}

func TestPolicy_SkipNilIsNoop(t *testing.T) {
	t.Parallel()
	p := classify.NewPolicy(classify.WithMetrics(testMetrics(t)))
	p.Skip(context.Background(), nil)
}
