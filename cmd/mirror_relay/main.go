package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mirrorleech/mirror_relay/internal/bot"
	"github.com/mirrorleech/mirror_relay/internal/chat/telegram"
	"github.com/mirrorleech/mirror_relay/internal/cleanup"
	"github.com/mirrorleech/mirror_relay/internal/config"
	"github.com/mirrorleech/mirror_relay/internal/logctx"
	"github.com/mirrorleech/mirror_relay/internal/media"
	"github.com/mirrorleech/mirror_relay/internal/orchestrator"
	"github.com/mirrorleech/mirror_relay/internal/relay"
	"github.com/mirrorleech/mirror_relay/internal/swarm"
	"github.com/mirrorleech/mirror_relay/internal/swarm/putio"
	"github.com/mirrorleech/mirror_relay/internal/task"
	"github.com/mirrorleech/mirror_relay/internal/telemetry"
	"github.com/mirrorleech/mirror_relay/internal/web"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("mirror relay starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer shutdownCancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	if cfg.Telemetry.Enabled {
		if err := otelruntime.Start(); err != nil {
			logger.Warn("failed to start runtime instrumentation", "err", err)
		}
	}

	// =========================================================================
	// Start Staging Area
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}

	fetchClient := &http.Client{
		Transport: otelhttp.NewTransport(&http.Transport{
			ResponseHeaderTimeout: cfg.FetchTimeout,
		}),
	}

	// =========================================================================
	// Start Chat Client

	// The chat client carries long polls and document uploads, both of which
	// legitimately outlive any whole-request deadline. Bound only the wait
	// for response headers, past the long-poll window.
	chatClient := &http.Client{
		Transport: otelhttp.NewTransport(&http.Transport{
			ResponseHeaderTimeout: cfg.UpdateTimeout + cfg.FetchTimeout,
		}),
	}

	tgClient := telegram.NewClient(cfg.TelegramBaseURL, cfg.TelegramToken, chatClient)

	// =========================================================================
	// Start Swarm Engine
	putioClient := putio.NewClient(cfg.PutioToken, fetchClient)
	if err := putioClient.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication error: %w", err)
	}

	engine := swarm.NewInstrumentedEngine(putioClient, tel, "putio")

	// =========================================================================
	// Start Orchestrator
	registry := task.NewRegistry()
	relayEngine := relay.NewEngine(media.NewFFProber(), tel, cfg.EditInterval)
	orch := orchestrator.New(registry, relayEngine, tel, cfg.DownloadDir, cfg.PollInterval, cfg.EditInterval)

	// =========================================================================
	// Start API Service

	// Buffered so the goroutine can exit if the error is never collected.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, registry, tel, cfg)

	go func() {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// =========================================================================
	// Start Cleanup
	setupCleanup(ctx, registry, cfg)

	// =========================================================================
	// Start Command Loop
	relayBot := bot.New(tgClient, orch, engine, fetchClient, cfg.DefaultFileName, cfg.MaxParallel, cfg.UpdateTimeout)

	botErrors := make(chan error, 1)

	go func() {
		logger.Info("waiting for commands...",
			"staging_dir", cfg.DownloadDir,
			"edit_interval", cfg.EditInterval.String(),
			"poll_interval", cfg.PollInterval.String(),
		)
		botErrors <- relayBot.Run(ctx)
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case err := <-botErrors:
		if ctx.Err() == nil {
			return fmt.Errorf("bot error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("start shutdown")

	// Give outstanding requests a deadline for completion.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to gracefully shutdown the server", "err", err)

		if err = server.Close(); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

func setupServer(ctx context.Context, registry *task.Registry, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	handler := web.NewHandler(registry, tel)

	r := chi.NewRouter()
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupCleanup(ctx context.Context, registry *task.Registry, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-ticker.C:
				if err := cleanup.SweepStagingDir(ctx, registry, cfg.DownloadDir, cfg.KeepStagedFor); err != nil {
					logger.Error("failed to sweep staging dir", "err", err)
				}
			}
		}
	}()
}
