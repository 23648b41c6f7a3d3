package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"CaseCurator/internal/bulk"
	"CaseCurator/internal/config"
	"CaseCurator/internal/generation"
	"CaseCurator/internal/infrastructure/httpapi"
	"CaseCurator/internal/infrastructure/llm"
	"CaseCurator/internal/infrastructure/parser"
	"CaseCurator/internal/infrastructure/scheduler"
	"CaseCurator/internal/infrastructure/storage"
	"CaseCurator/internal/infrastructure/telegram"
	"CaseCurator/internal/ingest"
	"CaseCurator/internal/interchange"
	"CaseCurator/internal/logging"
	"CaseCurator/internal/ports"
	"CaseCurator/internal/quota"
	"CaseCurator/internal/scoring"
	"CaseCurator/internal/seeds"
	"CaseCurator/internal/taxonomy"
	"CaseCurator/internal/usecase"
)

// ErrNoCredentials is returned by generation entry points when no completion API key is set.
var ErrNoCredentials = errors.New("completion api key is not configured")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	Config    config.Config
	Registry  *taxonomy.Registry
	Store     *storage.SQLStore
	Engine    *scoring.Engine
	Exporter  *interchange.Exporter
	Importer  *interchange.Importer
	generator *usecase.Generator
	poller    *usecase.Scheduler
	logger    *slog.Logger
}

// New opens the store and builds every service. Close releases the store.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry, err := loadRegistry(cfg.Taxonomy)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var completion ports.CompletionClient
	var batch ports.BatchClient
	if cfg.Completion.APIKey != "" {
		completion = llm.NewChatClient(cfg.Completion)
		batch = llm.NewBatchClient(cfg.Completion)
	}

	engine := scoring.NewEngine(registry, store, completion, scoring.Options{
		Model:       cfg.Completion.JudgeModel,
		Temperature: cfg.Completion.JudgeTemperature,
		Threshold:   cfg.Scoring.ConfidenceThreshold,
	}, baseLogger)

	a := &Application{
		Config:   cfg,
		Registry: registry,
		Store:    store,
		Engine:   engine,
		Exporter: interchange.NewExporter(store),
		Importer: interchange.NewImporter(registry, store, interchange.ImportOptions{
			Dataset:   cfg.Generation.Dataset,
			Author:    cfg.Generation.Author,
			CleanText: parser.PlainText,
		}, baseLogger),
		logger: baseLogger,
	}

	if completion != nil {
		var notifier ports.Notifier
		if tg := telegram.NewNotifier(cfg.Notifications.Telegram); tg.Enabled() {
			notifier = tg
		}
		a.generator = usecase.NewGenerator(usecase.GeneratorDeps{
			Registry:   registry,
			Cases:      store,
			Completion: completion,
			Orchestrator: bulk.NewOrchestrator(store, batch, bulk.Options{
				Endpoint:         cfg.Bulk.Endpoint,
				CompletionWindow: cfg.Bulk.CompletionWindow,
			}, baseLogger),
			Ingester: ingest.NewIngester(registry, store, ingest.Options{
				Dataset: cfg.Generation.Dataset,
				Author:  cfg.Generation.Author,
			}, baseLogger),
			Builder: generation.NewBuilder(generation.Options{
				Model:       cfg.Completion.Model,
				Temperature: cfg.Completion.Temperature,
			}),
			Notifier: notifier,
			Seeds: seeds.Options{
				Model:       cfg.Completion.Model,
				Temperature: cfg.Completion.Temperature,
				BatchSize:   cfg.Generation.SeedBatchSize,
				Capacity:    cfg.Generation.TrackerCapacity,
			},
			Dataset: cfg.Generation.Dataset,
			Logger:  baseLogger,
		})
		a.poller = usecase.NewScheduler(scheduler.NewTickerScheduler(cfg.Bulk.PollInterval), a.generator, baseLogger)
	}
	return a, nil
}

func loadRegistry(cfg config.TaxonomyConfig) (*taxonomy.Registry, error) {
	if cfg.File != "" {
		reg, err := taxonomy.LoadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("load taxonomy %s: %w", cfg.File, err)
		}
		return reg, nil
	}
	return taxonomy.Default(cfg.CorpusSize)
}

// Generator returns the generation use case or ErrNoCredentials.
func (a *Application) Generator() (*usecase.Generator, error) {
	if a.generator == nil {
		return nil, ErrNoCredentials
	}
	return a.generator, nil
}

// Serve runs the control API and, when generation is configured, the bulk poller
// until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if a.poller != nil {
		if err := a.poller.Start(ctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
		defer func() {
			if err := a.poller.Stop(context.Background()); err != nil {
				a.logger.Warn("stop poller", "component", "app", "error", err)
			}
		}()
	}

	server := httpapi.NewServer(a.Config.HTTP, httpapi.Deps{
		Registry:    a.Registry,
		Cases:       a.Store,
		Engine:      a.Engine,
		Generator:   a.generator,
		Exporter:    a.Exporter,
		Importer:    a.Importer,
		Dataset:     a.Config.Generation.Dataset,
		Concurrency: a.Config.Scoring.Concurrency,
		Logger:      a.logger,
	})
	return server.Run(ctx)
}

// Progress reads per-cell counts for the configured dataset against their targets.
func (a *Application) Progress(ctx context.Context) (quota.Needs, error) {
	rows, err := a.Store.CountByCell(ctx, a.Config.Generation.Dataset)
	if err != nil {
		return nil, fmt.Errorf("count cells: %w", err)
	}
	return quota.NeedsFromCounts(a.Registry, quota.CountMap(rows)), nil
}

// Close releases the store.
func (a *Application) Close() error {
	return a.Store.Close()
}
