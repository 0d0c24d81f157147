package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/kirillkom/provider-intel/internal/bootstrap"
	"github.com/kirillkom/provider-intel/internal/config"
	"github.com/kirillkom/provider-intel/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, "scraper", cfg.LogLevel, cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("scraper_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	app, err := bootstrap.New(ctx, cfg, "scraper")
	if err != nil {
		return err
	}
	defer app.Close()

	summary, runErr := app.Pipeline.Run(ctx)
	if runErr == nil && app.Queue != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		runErr = app.Queue.Flush(flushCtx)
		cancel()
	}

	if cfg.MetricsTextfile != "" {
		if err := app.Metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			slog.Warn("metrics_textfile_failed", "path", cfg.MetricsTextfile, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	slog.Info("scraper_finished",
		"run_id", summary.RunID,
		"providers", summary.Total,
		"chunks", summary.Chunks,
		"channel", cfg.TransitChannel,
	)
	return nil
}
