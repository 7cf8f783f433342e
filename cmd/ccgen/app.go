package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"ccgen/internal/config"
	"ccgen/internal/engine"
	"ccgen/internal/logging"
	"ccgen/internal/metrics"
	"ccgen/internal/models"
	"ccgen/internal/runner"
	"ccgen/internal/subtitles"
	"ccgen/internal/tasks"
)

const modelIndexFile = "index.db"

// app holds the long-lived services a command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *tasks.Registry
	index    *models.Index
	store    *models.Store
	runner   *runner.Runner
	metrics  *metrics.Metrics
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	idx, err := models.OpenIndex(filepath.Join(cfg.Paths.ModelsDir, modelIndexFile))
	if err != nil {
		logging.WarnWithContext(logger, "model index unavailable", "model_index_open",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on paths.models_dir"),
			logging.String(logging.FieldImpact, "model listings omit download metadata"),
		)
	} else {
		a.index = idx
	}

	var storeOpts []models.StoreOption
	if a.index != nil {
		storeOpts = append(storeOpts, models.WithIndex(a.index))
	}
	if cfg.Downloader.MinFreeGiB > 0 {
		storeOpts = append(storeOpts, models.WithMinFreeBytes(uint64(cfg.Downloader.MinFreeGiB)<<30))
	}
	downloader := models.NewHFDownloader(cfg.Downloader.Command, cfg.Downloader.HFToken, cfg.DownloadTimeout())
	a.store = models.NewStore(cfg.Paths.ModelsDir, downloader, logger, storeOpts...)

	if cfg.Metrics.Enabled {
		m, err := metrics.New()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		a.metrics = m
	}

	a.registry = tasks.NewRegistry(logger)
	segmenter := subtitles.NewSegmenter(subtitles.Options{
		MaxChars:       cfg.Captions.MaxChars,
		MaxWords:       cfg.Captions.MaxWords,
		PauseThreshold: cfg.Captions.PauseThresholdSeconds,
	})
	a.runner = runner.New(a.registry, a.store, engine.NewCommandEngine(cfg.Engine, logger), segmenter, logger,
		runner.OptionsFromConfig(cfg, a.metrics))
	return a, nil
}

func (a *app) metricsHandler() http.Handler {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Handler()
}

// close stops the runner (waiting for in-flight tasks) and releases resources.
func (a *app) close() {
	if a.runner != nil {
		a.runner.Stop()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Debug("metrics shutdown failed", logging.Error(err))
		}
		cancel()
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.logger.Debug("model index close failed", logging.Error(err))
		}
	}
}
