package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/station-qc/internal/adapter/diagnosis"
	"github.com/couchcryptid/station-qc/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/station-qc/internal/adapter/kafka"
	"github.com/couchcryptid/station-qc/internal/config"
	"github.com/couchcryptid/station-qc/internal/diagnostics"
	"github.com/couchcryptid/station-qc/internal/history"
	"github.com/couchcryptid/station-qc/internal/observability"
	"github.com/couchcryptid/station-qc/internal/pipeline"
	"github.com/couchcryptid/station-qc/internal/qc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	thresholds := qc.DefaultThresholds()
	if cfg.ThresholdsFile != "" {
		thresholds, err = qc.LoadThresholds(cfg.ThresholdsFile)
		if err != nil {
			logger.Error("failed to load thresholds", "error", err, "path", cfg.ThresholdsFile)
			os.Exit(1)
		}
		logger.Info("thresholds loaded", "path", cfg.ThresholdsFile)
	}

	// Remote diagnosis is feature-flagged via DIAG_ENABLED; rule-based always backs it.
	var remote diagnostics.Diagnoser
	if cfg.Diagnosis.Enabled {
		client := diagnosis.NewClient(cfg.Diagnosis.URL, cfg.Diagnosis.Token, cfg.Diagnosis.Timeout, metrics, logger)
		remote = client
		if cfg.Diagnosis.CacheSize > 0 {
			remote = diagnosis.NewCachedDiagnoser(client, cfg.Diagnosis.CacheSize, metrics)
		}
		metrics.DiagnosisRemoteEnabled.Set(1)
		logger.Info("remote diagnosis enabled", "url", cfg.Diagnosis.URL, "cache_size", cfg.Diagnosis.CacheSize, "timeout", cfg.Diagnosis.Timeout)
	} else {
		logger.Info("remote diagnosis disabled, using rule-based classifier")
	}

	orch, err := pipeline.NewOrchestrator(pipeline.Options{
		Thresholds: thresholds,
		History: history.Config{
			MaxEntries: cfg.HistoryMaxEntries,
			MaxAge:     cfg.HistoryMaxAge,
			Shards:     cfg.HistoryShards,
		},
		Diagnoser:   remote,
		DiagTimeout: cfg.Diagnosis.Timeout,
	}, logger, metrics)
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(orch)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, orch, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := orch.Close(); err != nil {
		logger.Error("orchestrator close error", "error", err)
	}

	logger.Info("shutdown complete")
}
