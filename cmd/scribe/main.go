package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recallio/scribe/internal/api"
	"github.com/recallio/scribe/internal/chunkstore"
	"github.com/recallio/scribe/internal/config"
	"github.com/recallio/scribe/internal/costs"
	"github.com/recallio/scribe/internal/metrics"
	"github.com/recallio/scribe/internal/results"
	"github.com/recallio/scribe/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("scribe starting",
		"port", cfg.Port,
		"nats_url", cfg.NatsURL,
		"chunk_data_dir", cfg.ChunkDataDir,
		"nominal_chunk_ms", cfg.NominalChunkMs,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	chunks, err := chunkstore.Open(cfg.ChunkDataDir)
	if err != nil {
		slog.Error("failed to open chunk store", "error", err)
		os.Exit(1)
	}
	defer chunks.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	costRec := costs.NewRecorder(db)

	consumer, err := results.New(cfg.NatsURL, db, costRec, m)
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.Start(); err != nil {
		slog.Error("failed to start result consumer", "error", err)
		os.Exit(1)
	}
	slog.Info("transcription result consumer started")

	srv := api.NewServer(db, chunks, consumer.EventLog(), costRec, m, promhttp.Handler(), api.Options{
		Port:           cfg.Port,
		NominalChunkMs: cfg.NominalChunkMs,
		PageSize:       cfg.ChunkPageSize,
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("scribe ready", "port", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("shutting down", "signal", sig)
	cancel()
	slog.Info("scribe stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
