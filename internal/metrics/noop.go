package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveSourceDuration is a no-op.
func (n *NoopRecorder) ObserveSourceDuration(source string, duration time.Duration) {}

// IncSourceFailure is a no-op.
func (n *NoopRecorder) IncSourceFailure(source, outcome string) {}

// IncReportRun is a no-op.
func (n *NoopRecorder) IncReportRun(trigger, status string) {}

// ObserveReportDuration is a no-op.
func (n *NoopRecorder) ObserveReportDuration(duration time.Duration) {}

// ObserveReportWarnings is a no-op.
func (n *NoopRecorder) ObserveReportWarnings(count int) {}

// IncArtifactStored is a no-op.
func (n *NoopRecorder) IncArtifactStored(kind string) {}

// ObservePDFSize is a no-op.
func (n *NoopRecorder) ObservePDFSize(bytes int) {}

// IncRunEventPublished is a no-op.
func (n *NoopRecorder) IncRunEventPublished(status string) {}

// IncWebhookDelivery is a no-op.
func (n *NoopRecorder) IncWebhookDelivery(status string) {}
