// Package observe holds the pipeline's telemetry: OTel instruments for every
// stage, span and correlation helpers, and the HTTP middleware.
//
// [Setup] installs the providers and exposes a Prometheus scrape handler.
// Components take a *[Metrics]; tests build one with [NewMetrics] over a
// manual reader or a noop provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vocalis metrics.
const meterName = "github.com/MrWong99/vocalis"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Capture and bus ---

	// CapturedFrames counts frames read from the input device.
	CapturedFrames metric.Int64Counter

	// CaptureReadErrors counts failed device reads.
	CaptureReadErrors metric.Int64Counter

	// BusDropped counts frames evicted from a full frame bus.
	BusDropped metric.Int64Counter

	// BusStale counts frames discarded because their epoch had passed.
	BusStale metric.Int64Counter

	// --- Classifiers ---

	// ClassifierErrors counts skipped frames. Use with attribute:
	//   attribute.String("stage", "vad"|"wakeword"|"aec")
	ClassifierErrors metric.Int64Counter

	// WakeDetections counts wake-word hits. Use with attribute:
	//   attribute.String("mode", "idle"|"barge_in")
	WakeDetections metric.Int64Counter

	// --- Recorder ---

	// Utterances counts finished recordings. Use with attribute:
	//   attribute.String("outcome", "speech"|"empty")
	Utterances metric.Int64Counter

	// UtteranceDuration tracks recorded audio length in seconds.
	UtteranceDuration metric.Float64Histogram

	// --- Playback ---

	// PlaybackSessions counts finished sessions. Use with attribute:
	//   attribute.String("result", "completed"|"interrupted"|"failed")
	PlaybackSessions metric.Int64Counter

	// PlaybackFrames counts frames written to the output device.
	PlaybackFrames metric.Int64Counter

	// --- Providers ---

	// ProviderDuration tracks provider call latency. Use with attribute:
	//   attribute.String("kind", "stt"|"llm"|"tts")
	ProviderDuration metric.Float64Histogram

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Dialogue ---

	// DialogueTransitions counts state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	DialogueTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// utteranceBuckets covers spoken requests from a word to a paragraph.
var utteranceBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 5, 8, 12, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.CapturedFrames, "vocalis.capture.frames", "Frames read from the input device."},
		{&met.CaptureReadErrors, "vocalis.capture.read_errors", "Failed input device reads."},
		{&met.BusDropped, "vocalis.bus.dropped", "Frames evicted from a full frame bus."},
		{&met.BusStale, "vocalis.bus.stale", "Frames discarded after an epoch change."},
		{&met.ClassifierErrors, "vocalis.classifier.errors", "Frames skipped after a classifier error, by stage."},
		{&met.WakeDetections, "vocalis.wakeword.detections", "Wake-word detections by mode."},
		{&met.Utterances, "vocalis.utterances", "Finished recordings by outcome."},
		{&met.PlaybackSessions, "vocalis.playback.sessions", "Finished playback sessions by result."},
		{&met.PlaybackFrames, "vocalis.playback.frames", "Frames written to the output device."},
		{&met.ProviderRequests, "vocalis.provider.requests", "Provider calls by provider, kind, and status."},
		{&met.DialogueTransitions, "vocalis.dialogue.transitions", "Dialogue state transitions."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.UtteranceDuration, err = m.Float64Histogram("vocalis.utterance.duration",
		metric.WithDescription("Length of recorded utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("vocalis.provider.duration",
		metric.WithDescription("Latency of STT, LLM and TTS calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocalis.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider call with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderDuration records the latency of one provider call.
func (m *Metrics) RecordProviderDuration(ctx context.Context, kind string, seconds float64) {
	m.ProviderDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordClassifierError counts one skipped frame for stage.
func (m *Metrics) RecordClassifierError(ctx context.Context, stage string) {
	m.ClassifierErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordWakeDetection counts one wake-word hit.
func (m *Metrics) RecordWakeDetection(ctx context.Context, mode string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordUtterance counts a finished recording and, when it holds speech,
// its duration.
func (m *Metrics) RecordUtterance(ctx context.Context, seconds float64) {
	outcome := "speech"
	if seconds <= 0 {
		outcome = "empty"
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if seconds > 0 {
		m.UtteranceDuration.Record(ctx, seconds)
	}
}

// RecordPlaybackSession counts a finished session by result.
func (m *Metrics) RecordPlaybackSession(ctx context.Context, result string) {
	m.PlaybackSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordTransition counts a dialogue state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.DialogueTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// BusObserver adapts m to the frame bus observer interface.
func (m *Metrics) BusObserver() *BusObserver {
	return &BusObserver{m: m}
}

// BusObserver counts frame bus drops and stale discards.
type BusObserver struct {
	m *Metrics
}

// FrameDropped implements bus.Observer.
func (o *BusObserver) FrameDropped() { o.m.BusDropped.Add(context.Background(), 1) }

// FrameStale implements bus.Observer.
func (o *BusObserver) FrameStale() { o.m.BusStale.Add(context.Background(), 1) }
