package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	SourceCalls         map[string]uint64
	SourceFailures      map[string]uint64 // keyed "source/outcome"
	ReportRuns          map[string]uint64 // keyed "trigger/status"
	ReportDurationCount uint64
	ReportDurationTotal time.Duration
	WarningsTotal       uint64
	ArtifactsStored     map[string]uint64
	RunEventsPublished  uint64
	RunEventsDropped    uint64
	WebhookDeliveries   map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu              sync.Mutex
	sourceCalls     map[string]uint64
	sourceFailures  map[string]uint64
	reportRuns      map[string]uint64
	artifactsStored map[string]uint64
	webhooks        map[string]uint64

	reportDurationCount   uint64
	reportDurationTotalNs int64
	warningsTotal         uint64
	runEventsPublished    uint64
	runEventsDropped      uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		sourceCalls:     make(map[string]uint64),
		sourceFailures:  make(map[string]uint64),
		reportRuns:      make(map[string]uint64),
		artifactsStored: make(map[string]uint64),
		webhooks:        make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		SourceCalls:         maps.Clone(m.sourceCalls),
		SourceFailures:      maps.Clone(m.sourceFailures),
		ReportRuns:          maps.Clone(m.reportRuns),
		ReportDurationCount: atomic.LoadUint64(&m.reportDurationCount),
		ReportDurationTotal: time.Duration(atomic.LoadInt64(&m.reportDurationTotalNs)),
		WarningsTotal:       atomic.LoadUint64(&m.warningsTotal),
		ArtifactsStored:     maps.Clone(m.artifactsStored),
		RunEventsPublished:  atomic.LoadUint64(&m.runEventsPublished),
		RunEventsDropped:    atomic.LoadUint64(&m.runEventsDropped),
		WebhookDeliveries:   maps.Clone(m.webhooks),
	}
}

// ObserveSourceDuration counts a completed source call.
func (m *InMemoryRecorder) ObserveSourceDuration(source string, duration time.Duration) {
	m.mu.Lock()
	m.sourceCalls[source]++
	m.mu.Unlock()
}

// IncSourceFailure counts a failed source call.
func (m *InMemoryRecorder) IncSourceFailure(source, outcome string) {
	m.mu.Lock()
	m.sourceFailures[source+"/"+outcome]++
	m.mu.Unlock()
}

// IncReportRun counts a finished run.
func (m *InMemoryRecorder) IncReportRun(trigger, status string) {
	m.mu.Lock()
	m.reportRuns[trigger+"/"+status]++
	m.mu.Unlock()
}

// ObserveReportDuration records run duration.
func (m *InMemoryRecorder) ObserveReportDuration(duration time.Duration) {
	atomic.AddUint64(&m.reportDurationCount, 1)
	atomic.AddInt64(&m.reportDurationTotalNs, duration.Nanoseconds())
}

// ObserveReportWarnings adds to the warning total.
func (m *InMemoryRecorder) ObserveReportWarnings(count int) {
	if count > 0 {
		atomic.AddUint64(&m.warningsTotal, uint64(count))
	}
}

// IncArtifactStored counts a stored artifact.
func (m *InMemoryRecorder) IncArtifactStored(kind string) {
	m.mu.Lock()
	m.artifactsStored[kind]++
	m.mu.Unlock()
}

// ObservePDFSize is not tracked in memory.
func (m *InMemoryRecorder) ObservePDFSize(bytes int) {}

// IncRunEventPublished counts published or dropped run events.
func (m *InMemoryRecorder) IncRunEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.runEventsPublished, 1)
		return
	}
	atomic.AddUint64(&m.runEventsDropped, 1)
}

// IncWebhookDelivery counts webhook attempts by status.
func (m *InMemoryRecorder) IncWebhookDelivery(status string) {
	m.mu.Lock()
	m.webhooks[status]++
	m.mu.Unlock()
}
