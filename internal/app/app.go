package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"PaperTriage/internal/batch"
	"PaperTriage/internal/catalog"
	"PaperTriage/internal/config"
	"PaperTriage/internal/infrastructure/etagcache"
	"PaperTriage/internal/infrastructure/llm"
	"PaperTriage/internal/infrastructure/scheduler"
	"PaperTriage/internal/infrastructure/storage"
	"PaperTriage/internal/infrastructure/telegram"
	"PaperTriage/internal/ingest"
	"PaperTriage/internal/logging"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/ranking"
	"PaperTriage/internal/scoring"
	"PaperTriage/internal/tagging"
	"PaperTriage/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	models   *llm.Registry
	closers  []func()
}

// New builds the application. An empty database DSN keeps records in memory
// and an empty Redis URL keeps ETags in memory.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	cache, err := a.etagCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	records, checkpoints, err := a.stores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	transport := catalog.NewTransport(catalog.TransportOptions{
		Client: &http.Client{Timeout: cfg.Catalog.Timeout},
		Gate:   catalog.NewIntervalGate(cfg.Catalog.RequestInterval),
		Cache:  cache,
		Retry: catalog.RetryPolicy{
			MaxRetries: cfg.Catalog.Retry.MaxRetries,
			BaseDelay:  cfg.Catalog.Retry.BaseDelay,
			Factor:     cfg.Catalog.Retry.Factor,
			MaxDelay:   cfg.Catalog.Retry.MaxDelay,
		},
		UserAgent: cfg.Catalog.UserAgent,
		Logger:    baseLogger.With("component", "catalog.transport"),
	})

	arxiv := catalog.NewArxivSource(transport, cfg.Catalog.APIURL, cfg.Catalog.PageSize,
		baseLogger.With("component", "catalog.arxiv"))
	sources := catalog.NewRegistry()
	sources.Register(arxiv)
	sources.Register(catalog.NewOAISource(transport, cfg.Catalog.OAIURL,
		baseLogger.With("component", "catalog.oai")))

	a.models = llm.NewRegistryFromConfig(cfg.LLM)
	scorer := scoring.NewScorer(a.models,
		scoring.Calibration{Shrink: cfg.Scoring.Shrink, Baseline: cfg.Scoring.Baseline},
		cfg.Scoring.Interests, baseLogger.With("component", "scoring"))
	suggester := tagging.NewSuggester(a.models, cfg.Tagging.MaxTags, baseLogger.With("component", "tagging"))

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram); tg.Configured() {
		notifier = tg
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Sources:     sources,
		ByID:        arxiv,
		Invalidator: transport,
		Normalizer:  ingest.NewNormalizer(cfg.Catalog.Location()),
		Store:       records,
		Checkpoints: checkpoints,
		Ranker:      ranking.NewBM25(),
		Scorer:      scorer,
		Suggester:   suggester,
		Batches:     batch.NewOrchestrator(scorer, suggester, records, baseLogger.With("component", "batch")),
		Notifier:    notifier,
		Defaults: usecase.Defaults{
			Source:     cfg.Catalog.Source,
			Categories: cfg.Catalog.Categories,
			WindowDays: cfg.Catalog.WindowDays,
			MaxResults: cfg.Catalog.MaxResults,
			BatchLimit: cfg.Batch.Limit,
		},
		Logger: baseLogger.With("component", "pipeline"),
	})

	return a, nil
}

func (a *Application) etagCache(ctx context.Context) (ports.ETagCache, error) {
	if a.cfg.Redis.URL == "" {
		return etagcache.NewMemory(), nil
	}
	cache, err := etagcache.NewRedisFromURL(a.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = cache.Close() })
	if err := cache.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return cache, nil
}

func (a *Application) stores(ctx context.Context) (ports.RecordStore, ports.CheckpointStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database configured, records are kept in memory")
		mem := storage.NewMemoryRepository()
		return mem, mem, nil
	}
	repo, err := storage.OpenPostgres(ctx, a.cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, repo.Close)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	return repo, repo, nil
}

// Pipeline exposes the use cases to the command layer.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Providers lists configured language models and whether each is callable.
func (a *Application) Providers() map[string]bool {
	return a.models.Availability()
}

// Config returns the effective configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// Watch ingests on the configured interval and serves Prometheus metrics
// until ctx ends.
func (a *Application) Watch(ctx context.Context, req usecase.IngestRequest) error {
	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.logger.Info("serving metrics", "addr", addr)
	}

	sched := usecase.NewScheduler(scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval), a.pipeline, req)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("watching", "interval", a.cfg.Scheduler.Interval)

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Close releases database and cache connections.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
