// Package events publishes report run lifecycle events to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/model"
)

const (
	// StreamKey is the Redis stream for run events.
	StreamKey = "stream:report_runs"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 10000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 2 * time.Second
)

// RunEventPayload is the compact event format written to the stream.
type RunEventPayload struct {
	RunID        string   `json:"rid"`
	ClientID     string   `json:"cid"`
	ReportMonth  string   `json:"m"`
	Trigger      string   `json:"tr"`
	Status       string   `json:"st"`
	OutputKeys   []string `json:"k,omitempty"`
	WarningCount int      `json:"w"`
	Error        string   `json:"e,omitempty"`
	At           int64    `json:"t"` // Unix milliseconds
}

// NewRunEventPayload converts a run row into its stream payload. At is the
// finish time for terminal runs and the start time otherwise.
func NewRunEventPayload(run model.ReportRun) RunEventPayload {
	at := run.StartedAt
	if run.FinishedAt != nil {
		at = *run.FinishedAt
	}
	return RunEventPayload{
		RunID:        run.ID,
		ClientID:     run.ClientID,
		ReportMonth:  run.ReportMonth,
		Trigger:      string(run.Trigger),
		Status:       string(run.Status),
		OutputKeys:   run.OutputKeys(),
		WarningCount: run.WarningCount,
		Error:        run.Error,
		At:           at.UnixMilli(),
	}
}

// Publisher appends run events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new run event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// PublishRun adds a run event to the stream. Failures are counted as dropped
// and returned; callers treat them as non-fatal.
func (p *Publisher) PublishRun(ctx context.Context, run model.ReportRun) error {
	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	data, err := json.Marshal(NewRunEventPayload(run))
	if err != nil {
		p.metrics.IncRunEventPublished("dropped")
		return fmt.Errorf("marshal event: %w", err)
	}

	streamID, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		p.logger.Warn("failed to publish run event",
			"run_id", run.ID,
			"status", run.Status,
			"error", err,
		)
		p.metrics.IncRunEventPublished("dropped")
		return fmt.Errorf("xadd: %w", err)
	}

	p.logger.Debug("run event published",
		"run_id", run.ID,
		"status", run.Status,
		"stream_id", streamID,
	)
	p.metrics.IncRunEventPublished("success")
	return nil
}
