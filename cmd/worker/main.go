package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	httpadapter "github.com/kirillkom/provider-intel/internal/adapters/http"
	"github.com/kirillkom/provider-intel/internal/bootstrap"
	"github.com/kirillkom/provider-intel/internal/config"
	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, "worker", cfg.LogLevel, cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(2)
	}
	if cfg.TransitChannel != config.ChannelNATS {
		slog.Error("config_invalid", "error", "worker requires TRANSIT_CHANNEL=nats", "channel", cfg.TransitChannel)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(app.Pipeline, app.Consumer, app.Metrics.Handler())
	server := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.Metrics.Middleware(router.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		slog.Info("worker_http_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_http_server_failed", "error", err)
		}
	}()

	ttl := time.Duration(cfg.WorkerRunTTL) * time.Minute
	go func() {
		ticker := time.NewTicker(ttl / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				app.Consumer.EvictStale(ttl)
			}
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeChunks(ctx, func(handlerCtx context.Context, envelope domain.ChunkEnvelope) error {
		chunkCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()
		return app.Consumer.HandleChunk(chunkCtx, envelope)
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker_http_shutdown_failed", "error", err)
	}
}
