// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/galdr/internal/api"
	"github.com/starford/galdr/internal/blobstore"
	"github.com/starford/galdr/internal/converter"
	"github.com/starford/galdr/internal/mcpserver"
	"github.com/starford/galdr/internal/noteservice"
	"github.com/starford/galdr/internal/notestore"
	"github.com/starford/galdr/internal/notifier"
	"github.com/starford/galdr/internal/reconcile"
	"github.com/starford/galdr/internal/synthesis"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("audio_dir", cfg.Audio.Dir),
		slog.String("synthesis_provider", cfg.Synthesis.Provider),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure audio directory exists.
	if err := os.MkdirAll(cfg.Audio.Dir, 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}

	// Initialize the audio blob store.
	blobs, err := blobstore.NewFS(cfg.Audio.Dir)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	// Initialize the SQLite note store.
	db, err := notestore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init note store: %w", err)
	}
	defer db.Close()

	// Speech synthesis provider.
	synth, err := buildSynthesizer(cfg.Synthesis)
	if err != nil {
		return fmt.Errorf("init synthesizer: %w", err)
	}

	// Event notifier with the conversion worker subscribed.
	broker := notifier.NewBroker(notifier.Config{
		QueueSize:   cfg.Notifier.QueueSize,
		Workers:     cfg.Notifier.Workers,
		MaxAttempts: cfg.Conversion.MaxAttempts,
		BackoffBase: cfg.Conversion.RetryBackoffBase.Std(),
		BackoffMax:  cfg.Conversion.RetryBackoffMax.Std(),
	}, logger)

	worker := converter.New(db, blobs, synth, converter.Config{
		MaxAttempts:      cfg.Conversion.MaxAttempts,
		SynthesisTimeout: cfg.Synthesis.Timeout.Std(),
	}, logger)
	broker.Subscribe(worker.Handle)

	// Ingestion/query service and the stale-PENDING sweeper.
	svc := noteservice.NewService(db, broker, cfg.Ingest.MaxNoteBytes, logger)
	sweeper := reconcile.New(db, broker, cfg.Reconcile.StaleAfter.Std(), cfg.Reconcile.Batch, logger)

	router := api.NewRouter(svc, blobs, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: router,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Event delivery loop.
	g.Go(func() error {
		return broker.Run(gCtx)
	})

	// Reconciliation sweep for PENDING notes whose event was lost.
	g.Go(func() error {
		return sweeper.Run(gCtx, cfg.Reconcile.Interval.Std())
	})

	if app.mcpStdio {
		// Serve MCP tools on stdin/stdout instead of HTTP.
		g.Go(func() error {
			logger.Info("Starting MCP server on stdio")
			return mcpserver.New(svc).ServeStdio()
		})
	} else {
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// buildSynthesizer constructs the configured speech synthesis provider.
func buildSynthesizer(cfg SynthesisConfig) (synthesis.Synthesizer, error) {
	switch cfg.Provider {
	case synthesis.ProviderOpenAI:
		return synthesis.NewOpenAI(synthesis.OpenAIConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
			Voice:  cfg.Voice,
		})
	case synthesis.ProviderTone:
		return synthesis.NewTone(), nil
	default:
		return nil, fmt.Errorf("unknown synthesis provider: %q", cfg.Provider)
	}
}
