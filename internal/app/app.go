// Package app wires the report pipeline from configuration. The API server
// and the reportctl tool share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sitereport/sitereport/internal/aggregate"
	"github.com/sitereport/sitereport/internal/cache"
	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/events"
	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/render"
	"github.com/sitereport/sitereport/internal/repository"
	"github.com/sitereport/sitereport/internal/service"
	"github.com/sitereport/sitereport/internal/source"
	"github.com/sitereport/sitereport/internal/storage"
	"github.com/sitereport/sitereport/internal/tracker"
	"github.com/sitereport/sitereport/internal/webhook"
)

// webhookDrainTimeout bounds how long Close waits for queued notifications.
const webhookDrainTimeout = 15 * time.Second

// App holds the long-lived collaborators of a process.
type App struct {
	Config    *config.Config
	Clients   *config.Registry
	Repo      *repository.Repository
	Runs      *tracker.Repository
	Cache     *cache.Cache
	Blobs     storage.BlobStore
	Webhook   *webhook.Notifier
	Converter *render.PDFConverter
	Generator *service.Generator

	logger  *slog.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New connects to every dependency named by cfg and assembles the generator.
// Redis is optional: without it run events, the snapshot cache and the
// trigger rate limit are disabled. The run webhook is optional too.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, recorder metrics.Recorder) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	a := &App{Config: cfg, logger: logger}
	if err := a.build(ctx, recorder); err != nil {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("cleanup after failed start", "error", cerr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, recorder metrics.Recorder) error {
	cfg := a.Config

	clients, err := config.LoadClients(cfg.ClientsFile)
	if err != nil {
		return fmt.Errorf("load clients: %w", err)
	}
	a.Clients = clients
	a.logger.Info("loaded client registry", "clients", len(clients.All()), "file", cfg.ClientsFile)

	repo, err := repository.New(ctx, cfg.DatabaseURL, PoolOptions(cfg))
	if err != nil {
		return fmt.Errorf("connect to database: %s", SanitizeError(err, cfg.DatabaseURL))
	}
	a.Repo = repo
	a.onClose("postgres pool", func() error { repo.Close(); return nil })
	a.logger.Info("connected to database", "database_url", RedactURL(cfg.DatabaseURL))

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open run store: %s", SanitizeError(err, cfg.DatabaseURL))
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	a.Runs = tracker.NewRepository(db)
	a.onClose("run store", db.Close)

	// Interface values stay nil when the optional dependency is absent.
	var stream, hook tracker.Notifier
	var snapCache service.SnapshotCache
	if cfg.RedisURL != "" {
		c, err := cache.New(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %s", SanitizeError(err, cfg.RedisURL))
		}
		a.Cache = c
		a.onClose("redis", c.Close)
		stream = events.NewPublisher(c.Client(), a.logger, recorder)
		snapCache = c
		a.logger.Info("connected to Redis", "redis_url", RedactURL(cfg.RedisURL))
	} else {
		a.logger.Warn("REDIS_URL not set: run events, snapshot cache and trigger rate limit disabled")
	}

	if cfg.RunWebhookURL != "" {
		n, err := webhook.NewNotifier(webhook.Config{
			TargetURL:    cfg.RunWebhookURL,
			Secret:       cfg.RunWebhookSecret,
			OnlyFailures: cfg.RunWebhookOnlyFailures,
			AllowPrivate: cfg.IsDevelopment(),
		}, nil, a.logger, recorder)
		if err != nil {
			return err
		}
		n.Start()
		a.Webhook = n
		hook = n
		a.onClose("run webhook", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), webhookDrainTimeout)
			defer cancel()
			return n.Shutdown(ctx)
		})
		a.logger.Info("run webhook enabled", "target_host", webhook.ExtractHost(cfg.RunWebhookURL), "only_failures", cfg.RunWebhookOnlyFailures)
	}

	blobs, err := storage.New(ctx, StorageOptions(cfg))
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	a.Blobs = blobs
	if c, ok := blobs.(io.Closer); ok {
		a.onClose("blob store", c.Close)
	}

	httpClient := source.NewHTTPClient(cfg.UpstreamTimeout)
	gql := source.NewGraphQLClient(cfg.AnalyticsAPIURL, cfg.AnalyticsAPIToken, httpClient)
	agg := aggregate.New(
		source.NewTrafficAdapter(gql),
		source.NewSecurityAdapter(gql),
		source.NewPerformanceAdapter(cfg.PageSpeedAPIURL, cfg.PageSpeedAPIKey, httpClient, cfg.PageSpeedRPS, cfg.PageSpeedDetailed),
		AggregateOptions(cfg),
		a.logger,
		recorder,
	)

	renderer, err := render.NewHTMLRenderer()
	if err != nil {
		return fmt.Errorf("load report template: %w", err)
	}
	a.Converter = render.NewPDFConverter(cfg.PDFConverterURL, source.NewHTTPClient(cfg.UpstreamTimeout), a.logger)

	a.Generator = service.NewGenerator(service.Deps{
		Clients:    clients,
		Aggregator: agg,
		Renderer:   renderer,
		Converter:  a.Converter,
		Blobs:      blobs,
		Snapshots:  repo,
		Cache:      snapCache,
		Runs:       a.Runs,
		Tracker:    tracker.New(a.Runs, tracker.Notifiers(stream, hook), a.logger, recorder),
	}, a.logger, recorder)

	return nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Close releases dependencies in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// PoolOptions maps configuration onto snapshot database pool settings.
func PoolOptions(cfg *config.Config) repository.PoolOptions {
	return repository.PoolOptions{
		MaxConns:         cfg.DBMaxConns,
		MinConns:         cfg.DBMinConns,
		StatementTimeout: cfg.DBStatementTimeout,
	}
}

// StorageOptions maps configuration onto blob store options.
func StorageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Backend:            cfg.BlobBackend,
		S3Bucket:           cfg.S3Bucket,
		S3Region:           cfg.S3Region,
		S3Endpoint:         cfg.S3Endpoint,
		GCSBucket:          cfg.GCSBucket,
		GCSCredentialsFile: cfg.GCSCredentialsFile,
	}
}

// AggregateOptions maps configuration onto report shaping options.
func AggregateOptions(cfg *config.Config) aggregate.Options {
	opts := aggregate.DefaultOptions()
	opts.TopCategories = cfg.TopCategories
	opts.TopPaths = cfg.TopPaths
	opts.MaxWarningLength = cfg.MaxWarningLength
	return opts
}
