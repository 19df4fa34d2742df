// Command vocalis runs the hands-free voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/vocalis/internal/app"
	"github.com/MrWong99/vocalis/internal/config"
	"github.com/MrWong99/vocalis/internal/observe"
)

const shutdownTimeout = 15 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	reload := flag.Duration("reload", config.DefaultPollInterval, "config poll interval for hot reload; 0 disables it")
	flag.Parse()

	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		if application != nil {
			application.Reconfigure(old, next)
		}
	}, config.WithInterval(*reload))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocalis: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocalis: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("vocalis starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.Setup(observe.TelemetryConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := tel.Metrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.Handler()),
		app.WithLogLevel(level),
	}
	if *reload > 0 {
		opts = append(opts, app.WithConfigWatcher(watcher))
	}
	application, err = app.New(cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("say the wake word to start; press Ctrl+C to quit")
	code := 0
	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	slog.Info("goodbye")
	return code
}
