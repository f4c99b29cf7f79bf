// Package service runs the report generation pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitereport/sitereport/internal/aggregate"
	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/period"
	"github.com/sitereport/sitereport/internal/snapshot"
	"github.com/sitereport/sitereport/internal/storage"
	"github.com/sitereport/sitereport/internal/tracker"
)

const tracerName = "github.com/sitereport/sitereport/internal/service"

// Service errors.
var (
	ErrUnknownClient  = errors.New("unknown client")
	ErrInvalidTrigger = errors.New("invalid trigger type")
	ErrReportNotFound = errors.New("report not found")
	ErrRunNotFound    = errors.New("run not found")
)

// Aggregator collects the source data of one client month.
type Aggregator interface {
	Run(ctx context.Context, client config.Client, p model.MonthPeriod) (*aggregate.Result, error)
}

// Renderer turns a snapshot into an HTML document.
type Renderer interface {
	Render(s *model.ReportSnapshot) ([]byte, error)
}

// Converter turns an HTML document into a PDF.
type Converter interface {
	Convert(ctx context.Context, html []byte) ([]byte, error)
}

// SnapshotStore persists and reads snapshot rows.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, rec *model.SnapshotRecord) error
	GetSnapshot(ctx context.Context, clientID, monthKey string) (*model.SnapshotRecord, error)
	ListSnapshotMonths(ctx context.Context, clientID string) ([]string, error)
}

// RunReader reads run history.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*model.ReportRun, error)
	ListRuns(ctx context.Context, clientID, monthKey string, limit int) ([]*model.ReportRun, error)
}

// SnapshotCache is an optional read-through cache in front of SnapshotStore.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, clientID, monthKey string) (*model.SnapshotRecord, error)
	SetSnapshot(ctx context.Context, rec *model.SnapshotRecord) error
	DeleteSnapshot(ctx context.Context, clientID, monthKey string) error
}

// GenerateRequest describes one generation attempt.
type GenerateRequest struct {
	Client config.Client
	// Month overrides the default previous calendar month (YYYY-MM).
	Month   string
	Trigger model.TriggerType
	// Reference is "now" for the default month; zero means the current time.
	Reference time.Time
}

// GenerateResult is returned by a successful run.
type GenerateResult struct {
	RunID    string
	ClientID string
	Month    string
	Keys     model.ArtifactKeys
	Warnings []string
	Snapshot *model.ReportSnapshot
}

// Deps holds the collaborators of a Generator.
type Deps struct {
	Clients    *config.Registry
	Aggregator Aggregator
	Renderer   Renderer
	Converter  Converter
	Blobs      storage.BlobStore
	Snapshots  SnapshotStore
	Cache      SnapshotCache
	Runs       RunReader
	Tracker    *tracker.Tracker
}

// Generator assembles, renders and persists monthly reports.
type Generator struct {
	deps    Deps
	logger  *slog.Logger
	metrics metrics.Recorder
	tracer  trace.Tracer
	now     func() time.Time
}

// NewGenerator creates a new Generator.
func NewGenerator(deps Deps, logger *slog.Logger, recorder metrics.Recorder) *Generator {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = tracker.New(nil, nil, logger, recorder)
	}
	return &Generator{
		deps:    deps,
		logger:  logger.With("component", "generator"),
		metrics: recorder,
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for reference and generation times.
func (g *Generator) SetClock(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// SetTracerProvider replaces the global tracer provider.
func (g *Generator) SetTracerProvider(tp trace.TracerProvider) {
	if tp != nil {
		g.tracer = tp.Tracer(tracerName)
	}
}

// Client resolves a configured client by ID.
func (g *Generator) Client(id string) (config.Client, error) {
	if g.deps.Clients == nil {
		return config.Client{}, fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	c, err := g.deps.Clients.Get(id)
	if err != nil {
		return config.Client{}, fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	return c, nil
}

// Clients returns every configured client.
func (g *Generator) Clients() []config.Client {
	if g.deps.Clients == nil {
		return nil
	}
	return g.deps.Clients.All()
}

// Generate runs the pipeline for one client month. A malformed month is
// rejected before a run is opened; every later failure is recorded on the
// run and returned. Nothing is written until both artifacts exist.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ref := req.Reference
	if ref.IsZero() {
		ref = g.now()
	}
	p, err := period.Compute(ref, req.Month)
	if err != nil {
		return nil, err
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = model.TriggerManual
	}
	if !model.IsValidTriggerType(trigger) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrigger, trigger)
	}

	ctx, span := g.tracer.Start(ctx, "report.Generate",
		trace.WithAttributes(
			attribute.String("client.id", req.Client.ID),
			attribute.String("report.month", p.MonthKey),
			attribute.String("report.trigger", string(trigger)),
		),
	)
	defer span.End()

	run := g.deps.Tracker.Begin(ctx, req.Client.ID, p.MonthKey, trigger)
	span.SetAttributes(attribute.String("run.id", run.ID()))
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			_ = run.Finish(ctx, tracker.Outcome{Err: err})
			panic(r)
		}
	}()

	res, err := g.generate(ctx, req.Client, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = run.Finish(ctx, tracker.Outcome{Err: err})
		return nil, err
	}
	res.RunID = run.ID()

	_ = run.Finish(ctx, tracker.Outcome{Keys: res.Keys, WarningCount: len(res.Warnings)})
	span.SetAttributes(attribute.Int("report.warnings", len(res.Warnings)))
	return res, nil
}

func (g *Generator) generate(ctx context.Context, client config.Client, p model.MonthPeriod) (*GenerateResult, error) {
	var agg *aggregate.Result
	err := g.stage(ctx, "aggregate", func(ctx context.Context) error {
		var err error
		agg, err = g.deps.Aggregator.Run(ctx, client, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	snap := snapshot.Build(client, p, agg, g.now())
	g.metrics.ObserveReportWarnings(len(snap.Warnings))

	var html, pdf []byte
	err = g.stage(ctx, "render", func(ctx context.Context) error {
		var err error
		if html, err = g.deps.Renderer.Render(snap); err != nil {
			return fmt.Errorf("render html: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = g.stage(ctx, "convert", func(ctx context.Context) error {
		var err error
		pdf, err = g.deps.Converter.Convert(ctx, html)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.metrics.ObservePDFSize(len(pdf))

	keys := storage.ArtifactKeys(client.ID, p.MonthKey)
	err = g.stage(ctx, "persist", func(ctx context.Context) error {
		return g.persist(ctx, snap, keys, html, pdf)
	})
	if err != nil {
		return nil, err
	}

	return &GenerateResult{
		ClientID: client.ID,
		Month:    p.MonthKey,
		Keys:     keys,
		Warnings: snap.Warnings,
		Snapshot: snap,
	}, nil
}

// persist writes HTML, then PDF, then the snapshot row. Re-running the
// same month overwrites all three.
func (g *Generator) persist(ctx context.Context, snap *model.ReportSnapshot, keys model.ArtifactKeys, html, pdf []byte) error {
	if err := g.deps.Blobs.Put(ctx, keys.HTML, html, storage.ContentTypeHTML); err != nil {
		return fmt.Errorf("store html: %w", err)
	}
	g.metrics.IncArtifactStored("html")

	if err := g.deps.Blobs.Put(ctx, keys.PDF, pdf, storage.ContentTypePDF); err != nil {
		return fmt.Errorf("store pdf: %w", err)
	}
	g.metrics.IncArtifactStored("pdf")

	rec := model.NewSnapshotRecord(snap, keys)
	if err := g.deps.Snapshots.UpsertSnapshot(ctx, rec); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	if g.deps.Cache != nil {
		if err := g.deps.Cache.DeleteSnapshot(ctx, snap.ClientID, snap.MonthKey); err != nil {
			g.logger.Warn("failed to invalidate cached snapshot",
				"client_id", snap.ClientID,
				"month", snap.MonthKey,
				"error", err,
			)
		}
	}
	return nil
}

func (g *Generator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := g.tracer.Start(ctx, "report."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	g.logger.Debug("stage complete", "stage", name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
	return err
}
