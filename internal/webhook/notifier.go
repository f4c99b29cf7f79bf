package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/model"
)

// DefaultQueueSize bounds notifications waiting for delivery.
const DefaultQueueSize = 64

// ErrQueueFull is returned when a notification is dropped.
var ErrQueueFull = errors.New("webhook queue full")

// Event types.
const (
	EventRunSucceeded = "report_run.succeeded"
	EventRunFailed    = "report_run.failed"
)

// Payload is the JSON body posted for a finished run.
type Payload struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Run        model.ReportRun `json:"run"`
}

// NewPayload builds the notification of a terminal run.
func NewPayload(run model.ReportRun) Payload {
	eventType := EventRunSucceeded
	if run.Status == model.RunStatusFailed {
		eventType = EventRunFailed
	}
	at := run.StartedAt
	if run.FinishedAt != nil {
		at = *run.FinishedAt
	}
	return Payload{
		EventID:    ulid.Make().String(),
		EventType:  eventType,
		OccurredAt: at,
		Run:        run,
	}
}

// Config configures a Notifier.
type Config struct {
	TargetURL string
	Secret    string
	// OnlyFailures limits notifications to failed runs.
	OnlyFailures bool
	// AllowPrivate accepts plain HTTP and internal hosts.
	AllowPrivate bool
	QueueSize    int
}

type delivery struct {
	id   string
	body []byte
}

// Notifier posts signed notifications for finished runs. It queues in
// memory and delivers from one background goroutine, so PublishRun never
// blocks a run on the endpoint.
type Notifier struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	metrics metrics.Recorder
	sleep   func(ctx context.Context, d time.Duration) error

	queue chan delivery
	// ctx is cancelled when Shutdown gives up on draining.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// NewNotifier validates the endpoint and creates a Notifier. Call Start to
// begin delivering.
func NewNotifier(cfg Config, client *http.Client, logger *slog.Logger, recorder metrics.Recorder) (*Notifier, error) {
	if err := ValidateTargetURL(cfg.TargetURL, cfg.AllowPrivate); err != nil {
		return nil, fmt.Errorf("webhook url: %w", err)
	}
	if cfg.Secret == "" {
		return nil, errors.New("webhook secret is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if client == nil {
		client = NewHTTPClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		client:  client,
		logger:  logger.With("component", "webhook", "target_host", ExtractHost(cfg.TargetURL)),
		metrics: recorder,
		sleep:   sleepContext,
		queue:   make(chan delivery, cfg.QueueSize),
		done:    make(chan struct{}),
	}, nil
}

// PublishRun queues a notification for a terminal run. Started runs, and
// successes when OnlyFailures is set, are ignored.
func (n *Notifier) PublishRun(ctx context.Context, run model.ReportRun) error {
	if !run.Status.IsTerminal() {
		return nil
	}
	if n.cfg.OnlyFailures && run.Status != model.RunStatusFailed {
		return nil
	}

	payload := NewPayload(run)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.metrics.IncWebhookDelivery("dropped")
		return ErrQueueFull
	}
	select {
	case n.queue <- delivery{id: payload.EventID, body: body}:
		return nil
	default:
		n.metrics.IncWebhookDelivery("dropped")
		return ErrQueueFull
	}
}

// Start launches the delivery goroutine.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return
	}
	n.started = true
	go n.loop()
}

func (n *Notifier) loop() {
	defer close(n.done)
	for d := range n.queue {
		if n.ctx.Err() != nil {
			n.metrics.IncWebhookDelivery("dropped")
			continue
		}
		n.deliver(n.ctx, d)
	}
}

// Shutdown stops accepting notifications and waits until the queue drains
// or ctx expires. On expiry the in-flight delivery and any retry wait are
// cancelled and the remaining queue is dropped.
func (n *Notifier) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.queue)
	started := n.started
	n.mu.Unlock()

	if !started {
		n.cancel()
		return nil
	}
	select {
	case <-n.done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.logger.Warn("webhook shutdown timed out", "pending", len(n.queue))
		n.cancel()
		<-n.done
		return ctx.Err()
	}
}

// deliver attempts one notification until it succeeds, hits a permanent
// failure or runs out of attempts.
func (n *Notifier) deliver(ctx context.Context, d delivery) {
	for attempt := 1; ; attempt++ {
		status, err := n.post(ctx, d)
		if err == nil {
			n.logger.Info("webhook delivered", "delivery_id", d.id, "attempt", attempt, "http_status", status)
			n.metrics.IncWebhookDelivery("delivered")
			return
		}

		if !retryable(status) || IsExhausted(attempt) {
			n.logger.Warn("webhook delivery failed",
				"delivery_id", d.id,
				"attempt", attempt,
				"http_status", status,
				"error", err,
			)
			n.metrics.IncWebhookDelivery("failed")
			return
		}

		n.metrics.IncWebhookDelivery("retried")
		if err := n.sleep(ctx, NextRetryDelay(attempt)); err != nil {
			n.logger.Warn("webhook retry abandoned", "delivery_id", d.id, "attempt", attempt, "error", err)
			n.metrics.IncWebhookDelivery("failed")
			return
		}
	}
}

// post sends one attempt. status is 0 when no response arrived and
// statusNotSent when the request could not be built.
func (n *Notifier) post(ctx context.Context, d delivery) (int, error) {
	timestamp := time.Now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.TargetURL, bytes.NewReader(d.body))
	if err != nil {
		return statusNotSent, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, Sign(n.cfg.Secret, timestamp, d.body))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderDeliveryID, d.id)

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
