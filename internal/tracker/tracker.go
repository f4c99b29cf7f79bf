// Package tracker records the lifecycle of report generation runs.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/model"
)

const (
	// MaxErrorLength bounds the stored error message in runes.
	MaxErrorLength = 500
	// DefaultFinishTimeout bounds the terminal write.
	DefaultFinishTimeout = 10 * time.Second
)

// ErrAlreadyFinished is returned when Finish is called on a terminal run.
var ErrAlreadyFinished = errors.New("run already finished")

// Store persists run records.
type Store interface {
	InsertRun(ctx context.Context, run *model.ReportRun) error
	// FinishRun writes the terminal record, creating it if the start record
	// was never written.
	FinishRun(ctx context.Context, run *model.ReportRun) error
}

// Notifier is told about run transitions. Failures are logged only.
type Notifier interface {
	PublishRun(ctx context.Context, run model.ReportRun) error
}

// Notifiers fans a transition out to every non-nil notifier and joins
// their errors.
func Notifiers(ns ...Notifier) Notifier {
	var out multiNotifier
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

type multiNotifier []Notifier

func (m multiNotifier) PublishRun(ctx context.Context, run model.ReportRun) error {
	var errs []error
	for _, n := range m {
		if err := n.PublishRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Outcome is the result of a run attempt.
type Outcome struct {
	Keys         model.ArtifactKeys
	WarningCount int
	Err          error
}

// Tracker opens and closes run records.
type Tracker struct {
	store         Store
	notifier      Notifier
	logger        *slog.Logger
	metrics       metrics.Recorder
	now           func() time.Time
	finishTimeout time.Duration
}

// New creates a Tracker. store and notifier may be nil.
func New(store Store, notifier Notifier, logger *slog.Logger, recorder metrics.Recorder) *Tracker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:         store,
		notifier:      notifier,
		logger:        logger.With("component", "tracker"),
		metrics:       recorder,
		now:           func() time.Time { return time.Now().UTC() },
		finishTimeout: DefaultFinishTimeout,
	}
}

// SetClock overrides the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Begin opens a run in the started state. Writing the start record is best
// effort: a failure is logged and the run proceeds.
func (t *Tracker) Begin(ctx context.Context, clientID, monthKey string, trigger model.TriggerType) *Run {
	run := &Run{
		tracker: t,
		record: model.ReportRun{
			ID:          ulid.Make().String(),
			ClientID:    clientID,
			ReportMonth: monthKey,
			Trigger:     trigger,
			Status:      model.RunStatusStarted,
			StartedAt:   t.now(),
		},
	}

	logger := t.logger.With("run_id", run.record.ID, "client_id", clientID, "month", monthKey)
	if t.store != nil {
		if err := t.store.InsertRun(ctx, &run.record); err != nil {
			logger.Warn("failed to record run start", "error", err)
		}
	}
	t.notify(ctx, run.record)
	logger.Info("run started", "trigger", trigger)
	return run
}

func (t *Tracker) notify(ctx context.Context, rec model.ReportRun) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.PublishRun(ctx, rec); err != nil {
		t.logger.Warn("failed to publish run event", "run_id", rec.ID, "status", rec.Status, "error", err)
	}
}

// Run is one open generation attempt.
type Run struct {
	tracker *Tracker

	mu       sync.Mutex
	record   model.ReportRun
	finished bool
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.record.ID
}

// Record returns a copy of the current run record.
func (r *Run) Record() model.ReportRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record
}

// Finish moves the run to success, or to failed when outcome.Err is set. It
// may be called once; later calls return ErrAlreadyFinished. The terminal
// write is detached from ctx cancellation so an aborted request still
// records its failure.
func (r *Run) Finish(ctx context.Context, outcome Outcome) error {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return ErrAlreadyFinished
	}
	r.finished = true

	t := r.tracker
	finishedAt := t.now()
	r.record.FinishedAt = &finishedAt
	r.record.WarningCount = outcome.WarningCount
	if outcome.Err != nil {
		r.record.Status = model.RunStatusFailed
		r.record.Error = TruncateError(outcome.Err.Error())
	} else {
		r.record.Status = model.RunStatusSuccess
		r.record.HTMLKey = outcome.Keys.HTML
		r.record.PDFKey = outcome.Keys.PDF
	}
	rec := r.record
	r.mu.Unlock()

	t.metrics.IncReportRun(string(rec.Trigger), string(rec.Status))
	t.metrics.ObserveReportDuration(finishedAt.Sub(rec.StartedAt))

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.finishTimeout)
	defer cancel()

	logger := t.logger.With("run_id", rec.ID, "client_id", rec.ClientID, "month", rec.ReportMonth)
	var storeErr error
	if t.store != nil {
		if storeErr = t.store.FinishRun(wctx, &rec); storeErr != nil {
			logger.Error("failed to record run finish", "status", rec.Status, "error", storeErr)
		}
	}
	t.notify(wctx, rec)

	if rec.Status == model.RunStatusFailed {
		logger.Error("run failed", "error", rec.Error, "duration_ms", finishedAt.Sub(rec.StartedAt).Milliseconds())
	} else {
		logger.Info("run succeeded", "warnings", rec.WarningCount, "duration_ms", finishedAt.Sub(rec.StartedAt).Milliseconds())
	}
	return storeErr
}

// TruncateError shortens an error message to MaxErrorLength runes.
func TruncateError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxErrorLength {
		return msg
	}
	return string(r[:MaxErrorLength])
}
