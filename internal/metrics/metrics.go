// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Source adapter metrics
	ObserveSourceDuration(source string, duration time.Duration)
	IncSourceFailure(source, outcome string) // outcome: "degraded" or "fatal"

	// Report pipeline metrics
	IncReportRun(trigger, status string) // status: "success" or "failed"
	ObserveReportDuration(duration time.Duration)
	ObserveReportWarnings(count int)
	IncArtifactStored(kind string) // kind: "html" or "pdf"
	ObservePDFSize(bytes int)

	// Run event metrics
	IncRunEventPublished(status string) // status: "success" or "dropped"

	// Run notification webhooks
	IncWebhookDelivery(status string) // status: "delivered", "retried", "failed" or "dropped"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
