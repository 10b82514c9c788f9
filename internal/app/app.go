// Package app wires configuration into the image core components.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"vignette/internal/binding"
	"vignette/internal/blobstore"
	"vignette/internal/cache"
	"vignette/internal/config"
	"vignette/internal/derivative"
	"vignette/internal/images"
	"vignette/internal/metrics"
	"vignette/internal/models"
	"vignette/internal/presets"
	"vignette/internal/store"
	"vignette/internal/transform"
)

// App is a fully wired image core.
type App struct {
	Config      *config.Config
	Store       *store.Store
	Backend     blobstore.Backend
	Index       cache.Index
	Presets     *presets.Registry
	Images      *images.Manager
	Derivatives *derivative.Generator
	Binder      *binding.Binder
	Metrics     *metrics.Metrics

	logger *slog.Logger
}

// New opens storage and builds every component from cfg. Close releases what
// New opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := derivative.ParseMissingPolicy(cfg.Generation.MissingPolicy)
	if err != nil {
		return nil, err
	}

	reg, holders, err := LoadPresets(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Presets: reg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	logger.Info("opening database", "path", cfg.DBPath)
	if a.Store, err = store.Open(cfg.DBPath); err != nil {
		return nil, err
	}

	if a.Backend, err = blobstore.New(ctx, blobOptions(cfg), logger.With("component", "blobstore")); err != nil {
		return nil, err
	}

	if a.Index, err = newIndex(ctx, cfg.Cache); err != nil {
		return nil, err
	}

	if a.Metrics, err = metrics.New(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	engine := transform.NewImagingEngine()
	a.Images, err = images.New(images.Deps{
		Store:       a.Store,
		Derivatives: a.Store,
		Backend:     a.Backend,
		Engine:      engine,
		Metrics:     a.Metrics,
		Logger:      logger.With("component", "images"),
	}, images.Options{
		MaxUploadBytes:    cfg.Uploads.MaxUploadBytes,
		AllowedMediaTypes: cfg.Uploads.AllowedMediaTypes,
		GCBatchSize:       cfg.GC.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	a.Derivatives, err = derivative.New(derivative.Deps{
		Presets: reg,
		Records: a.Images,
		Store:   a.Store,
		Backend: a.Backend,
		Engine:  engine,
		Index:   a.Index,
		Metrics: a.Metrics,
		Logger:  logger.With("component", "derivative"),
	}, derivative.Options{
		PublicBaseURL:      cfg.Generation.PublicBaseURL,
		MissingPolicy:      policy,
		Placeholders:       holders,
		DefaultPlaceholder: cfg.Generation.DefaultPlaceholder,
		MaxConcurrent:      cfg.Generation.MaxConcurrent,
		WaitTimeout:        cfg.Generation.WaitTimeout.Duration,
		GenerateTimeout:    cfg.Generation.Timeout.Duration,
	})
	if err != nil {
		return nil, err
	}
	a.Images.SetPurger(a.Derivatives)

	if a.Binder, err = binding.New(a.Images, logger.With("component", "binding")); err != nil {
		return nil, err
	}

	logger.Info("image core ready",
		"storage", a.Backend.Name(),
		"cache", cfg.Cache.Type,
		"presets", reg.Len(),
		"missing_policy", string(policy),
	)
	return a, nil
}

// LoadPresets merges presets from the config file and the optional presets
// file into a registry.
func LoadPresets(cfg *config.Config) (*presets.Registry, map[string]string, error) {
	specs := []map[string]models.PresetSpec{cfg.Presets}
	holders := []map[string]string{cfg.Placeholders}

	if path := cfg.Generation.PresetsFile; path != "" {
		if !filepath.IsAbs(path) && cfg.DBPath != "" {
			path = filepath.Join(filepath.Dir(cfg.DBPath), path)
		}
		file, err := presets.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		specs = append(specs, file.Presets)
		holders = append(holders, file.Placeholders)
	}

	merged, err := presets.Merge(specs...)
	if err != nil {
		return nil, nil, err
	}
	placeholders := presets.MergePlaceholders(holders...)
	reg, err := presets.New(merged, placeholders)
	if err != nil {
		return nil, nil, err
	}
	return reg, placeholders, nil
}

// Start finishes deletes interrupted by a previous run and, when configured,
// runs garbage collection on a timer until ctx ends.
func (a *App) Start(ctx context.Context) {
	done, failed, err := a.Images.ResumeDeletes(ctx, 0)
	switch {
	case err != nil:
		a.logger.Error("resume deletes", "error", err)
	case done > 0 || len(failed) > 0:
		a.logger.Info("resumed interrupted deletes", "done", done, "failed", len(failed))
	}

	interval := a.Config.GC.Interval.Duration
	if interval <= 0 {
		return
	}
	go a.gcLoop(ctx, interval)
}

func (a *App) gcLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := a.Images.CollectGarbage(ctx, images.GCOptions{Apply: true})
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					a.logger.Error("scheduled gc", "error", err)
				}
				continue
			}
			a.logger.Info("scheduled gc",
				"resumed_deletes", result.ResumedDeletes,
				"stale_deleted", result.Stale.Deleted,
				"orphans_deleted", result.OrphansDeleted,
				"reclaimed_bytes", result.Stale.ReclaimedBytes,
			)
		}
	}
}

// CacheName names the configured derivative index.
func (a *App) CacheName() string {
	return a.Config.Cache.Type
}

// Close releases the index, backend and database.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.Backend != nil {
		errs = append(errs, blobstore.Close(a.Backend))
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

func blobOptions(cfg *config.Config) blobstore.Options {
	root := ""
	if cfg.Storage.Type == string(blobstore.TypeFS) || cfg.Storage.Type == "" {
		root = cfg.BlobRoot()
	}
	return blobstore.Options{
		Type:             blobstore.Type(cfg.Storage.Type),
		Root:             root,
		Bucket:           cfg.Storage.Bucket,
		Region:           cfg.Storage.Region,
		Endpoint:         cfg.Storage.Endpoint,
		Prefix:           cfg.Storage.Prefix,
		RetryMaxTries:    int(cfg.Storage.RetryMaxTries),
		RetryInitialWait: cfg.Storage.RetryInitialWait.Duration,
		RetryMaxWait:     cfg.Storage.RetryMaxWait.Duration,
	}
}

func newIndex(ctx context.Context, cfg config.CacheConfig) (cache.Index, error) {
	switch cfg.Type {
	case "redis":
		return cache.NewRedis(ctx, cache.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			TTL:       cfg.TTL.Duration,
			KeyPrefix: cfg.RedisPrefix,
		})
	case "memory":
		return cache.NewMemory(), nil
	default:
		return cache.NoOp{}, nil
	}
}
