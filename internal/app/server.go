package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/vocalis/internal/health"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/orchestrator"
)

const (
	readHeaderTimeout = 5 * time.Second
	serverStopTimeout = 3 * time.Second
)

// availability is implemented by providers that track their own backends,
// such as fallback groups.
type availability interface {
	Available() bool
}

// Handler returns the HTTP surface: /healthz, /readyz and /metrics.
func (a *App) Handler() http.Handler {
	checks := []health.Checker{
		health.CaptureRunning(a.CaptureRunning),
		health.DialogueActive(func() bool { return a.orch.State() == orchestrator.Terminal }),
	}
	for kind, p := range map[string]any{"stt": a.providers.STT, "llm": a.providers.LLM, "tts": a.providers.TTS} {
		if av, ok := p.(availability); ok {
			checks = append(checks, health.ProviderAvailable(kind, av.Available))
		}
	}

	mux := http.NewServeMux()
	health.New(checks...).Register(mux)
	scrape := a.scrape
	if scrape == nil {
		scrape = promhttp.Handler()
	}
	mux.Handle("GET /metrics", scrape)
	return mux
}

// serve runs the HTTP surface until ctx is done.
func (a *App) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return err
	}
	return a.serveOn(ctx, ln)
}

func (a *App) serveOn(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           observe.Middleware(a.metrics)(a.Handler()),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
	})
	defer stop()

	slog.Info("http listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
