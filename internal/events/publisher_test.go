package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/model"
)

func TestNewRunEventPayload_Started(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	run := model.ReportRun{
		ID:          "01JABCDEF",
		ClientID:    "demo-client",
		ReportMonth: "2026-01",
		Trigger:     model.TriggerScheduled,
		Status:      model.RunStatusStarted,
		StartedAt:   started,
	}

	p := NewRunEventPayload(run)
	if p.Trigger != "scheduled" || p.Status != "started" {
		t.Errorf("expected scheduled/started, got %s/%s", p.Trigger, p.Status)
	}
	if p.At != started.UnixMilli() {
		t.Errorf("expected at %d, got %d", started.UnixMilli(), p.At)
	}
	if len(p.OutputKeys) != 0 {
		t.Errorf("expected no output keys, got %v", p.OutputKeys)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{`"k"`, `"e"`} {
		if strings.Contains(string(data), field) {
			t.Errorf("expected %s to be omitted, got %s", field, data)
		}
	}
}

func TestNewRunEventPayload_Finished(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	run := model.ReportRun{
		ID:           "01JABCDEF",
		ClientID:     "demo-client",
		ReportMonth:  "2026-01",
		Trigger:      model.TriggerManual,
		Status:       model.RunStatusSuccess,
		StartedAt:    started,
		FinishedAt:   &finished,
		HTMLKey:      "reports/demo-client/2026-01.html",
		PDFKey:       "reports/demo-client/2026-01.pdf",
		WarningCount: 2,
	}

	p := NewRunEventPayload(run)
	if p.At != finished.UnixMilli() {
		t.Errorf("expected at %d, got %d", finished.UnixMilli(), p.At)
	}
	wantKeys := []string{"reports/demo-client/2026-01.html", "reports/demo-client/2026-01.pdf"}
	if !slices.Equal(p.OutputKeys, wantKeys) {
		t.Errorf("expected keys %v, got %v", wantKeys, p.OutputKeys)
	}
	if p.WarningCount != 2 {
		t.Errorf("expected 2 warnings, got %d", p.WarningCount)
	}
}

func TestPublisher_DroppedWhenRedisDown(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	rec := metrics.NewInMemory()
	p := NewPublisher(client, slog.New(slog.NewTextHandler(io.Discard, nil)), rec)

	if err := p.PublishRun(context.Background(), model.ReportRun{ID: "r1", Status: model.RunStatusStarted}); err == nil {
		t.Fatal("expected error with redis down, got nil")
	}
	snap := rec.Snapshot()
	if snap.RunEventsDropped != 1 {
		t.Errorf("expected 1 dropped event, got %d", snap.RunEventsDropped)
	}
	if snap.RunEventsPublished != 0 {
		t.Errorf("expected 0 published events, got %d", snap.RunEventsPublished)
	}
}
