package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports metrics through a Prometheus registry.
type PrometheusRecorder struct {
	sourceDuration  *prometheus.HistogramVec
	sourceFailures  *prometheus.CounterVec
	reportRuns      *prometheus.CounterVec
	reportDuration  prometheus.Histogram
	reportWarnings  prometheus.Histogram
	artifactsStored *prometheus.CounterVec
	pdfSize         prometheus.Histogram
	runEvents       *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
}

// NewPrometheus registers the report metrics with reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		sourceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitereport_source_duration_seconds",
			Help:    "Time spent fetching from an upstream source.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		sourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitereport_source_failures_total",
			Help: "Upstream source failures by outcome.",
		}, []string{"source", "outcome"}),
		reportRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitereport_report_runs_total",
			Help: "Finished report runs by trigger and status.",
		}, []string{"trigger", "status"}),
		reportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitereport_report_duration_seconds",
			Help:    "End-to-end report generation time.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		reportWarnings: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitereport_report_warnings",
			Help:    "Warnings attached to each generated report.",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		}),
		artifactsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitereport_artifacts_stored_total",
			Help: "Artifacts written to the blob store.",
		}, []string{"kind"}),
		pdfSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitereport_pdf_bytes",
			Help:    "Size of converted PDF documents.",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),
		runEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitereport_run_events_total",
			Help: "Run lifecycle events published to the event stream.",
		}, []string{"status"}),
		webhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitereport_webhook_deliveries_total",
			Help: "Run notification webhook attempts by status.",
		}, []string{"status"}),
	}
}

// ObserveSourceDuration records the duration of a source call.
func (p *PrometheusRecorder) ObserveSourceDuration(source string, duration time.Duration) {
	p.sourceDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// IncSourceFailure counts a failed source call.
func (p *PrometheusRecorder) IncSourceFailure(source, outcome string) {
	p.sourceFailures.WithLabelValues(source, outcome).Inc()
}

// IncReportRun counts a finished run.
func (p *PrometheusRecorder) IncReportRun(trigger, status string) {
	p.reportRuns.WithLabelValues(trigger, status).Inc()
}

// ObserveReportDuration records run duration.
func (p *PrometheusRecorder) ObserveReportDuration(duration time.Duration) {
	p.reportDuration.Observe(duration.Seconds())
}

// ObserveReportWarnings records the warning count of one report.
func (p *PrometheusRecorder) ObserveReportWarnings(count int) {
	p.reportWarnings.Observe(float64(count))
}

// IncArtifactStored counts a stored artifact.
func (p *PrometheusRecorder) IncArtifactStored(kind string) {
	p.artifactsStored.WithLabelValues(kind).Inc()
}

// ObservePDFSize records the size of a converted PDF.
func (p *PrometheusRecorder) ObservePDFSize(bytes int) {
	p.pdfSize.Observe(float64(bytes))
}

// IncRunEventPublished counts run events.
func (p *PrometheusRecorder) IncRunEventPublished(status string) {
	p.runEvents.WithLabelValues(status).Inc()
}

// IncWebhookDelivery counts webhook delivery attempts.
func (p *PrometheusRecorder) IncWebhookDelivery(status string) {
	p.webhooks.WithLabelValues(status).Inc()
}
