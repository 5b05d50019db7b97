// Command parley is the main entry point for the parley voice session engine.
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

	"github.com/parleylabs/parley/internal/app"
	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/observe"
	"github.com/parleylabs/parley/pkg/capture/ffmpeg"
	capturemock "github.com/parleylabs/parley/pkg/capture/mock"
	transcribemock "github.com/parleylabs/parley/pkg/provider/transcribe/mock"
	"github.com/parleylabs/parley/pkg/provider/transcribe/openai"
	"github.com/parleylabs/parley/pkg/provider/transcribe/whisper"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	logLevel := &slog.LevelVar{}
	logger := newLogger(cfg.Server.LogLevel, logLevel)
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"mode", cfg.Conversation.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(cfg, providers,
		app.WithLogger(logger),
		app.WithLogLevelVar(logLevel),
		app.WithConfigFile(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise engine", "err", err)
		return 1
	}

	slog.Info("engine ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildProviders constructs the capture and transcription adapters named in
// the config.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	p := &app.Providers{}

	switch cfg.Capture.Name {
	case "ffmpeg":
		var opts []ffmpeg.Option
		if cfg.Capture.Binary != "" {
			opts = append(opts, ffmpeg.WithBinary(cfg.Capture.Binary))
		}
		if cfg.Capture.InputFormat != "" || cfg.Capture.InputDevice != "" {
			opts = append(opts, ffmpeg.WithInput(cfg.Capture.InputFormat, cfg.Capture.InputDevice))
		}
		dev, err := ffmpeg.New(cfg.Capture.SpoolDir, opts...)
		if err != nil {
			return nil, fmt.Errorf("capture adapter %q: %w", cfg.Capture.Name, err)
		}
		p.Capture = dev
	case "mock":
		p.Capture = &capturemock.Device{}
	default:
		return nil, fmt.Errorf("unknown capture adapter %q", cfg.Capture.Name)
	}

	switch cfg.Transcriber.Name {
	case "whisper":
		var opts []whisper.Option
		if cfg.Transcriber.Model != "" {
			opts = append(opts, whisper.WithModel(cfg.Transcriber.Model))
		}
		tr, err := whisper.New(cfg.Transcriber.ServerURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("transcribe backend %q: %w", cfg.Transcriber.Name, err)
		}
		p.Transcriber = tr
	case "openai":
		tr, err := openai.New(cfg.Transcriber.APIKey, cfg.Transcriber.Model)
		if err != nil {
			return nil, fmt.Errorf("transcribe backend %q: %w", cfg.Transcriber.Name, err)
		}
		p.Transcriber = tr
	case "mock":
		p.Transcriber = &transcribemock.Provider{}
	default:
		return nil, fmt.Errorf("unknown transcribe backend %q", cfg.Transcriber.Name)
	}

	return p, nil
}

// newLogger builds the process logger with a dynamic level so config
// hot-swaps can change verbosity at runtime.
func newLogger(level config.LogLevel, lv *slog.LevelVar) *slog.Logger {
	switch level {
	case config.LogDebug:
		lv.Set(slog.LevelDebug)
	case config.LogWarn:
		lv.Set(slog.LevelWarn)
	case config.LogError:
		lv.Set(slog.LevelError)
	default:
		lv.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
