package model

// Device is a page-performance probe strategy.
type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
)

// Devices lists probe strategies in report order.
var Devices = []Device{DeviceMobile, DeviceDesktop}

// WebVitals holds optional lab readings from a probe.
type WebVitals struct {
	LargestContentfulPaintMs *float64 `json:"lcp_ms,omitempty"`
	FirstContentfulPaintMs   *float64 `json:"fcp_ms,omitempty"`
	TotalBlockingTimeMs      *float64 `json:"tbt_ms,omitempty"`
	CumulativeLayoutShift    *float64 `json:"cls,omitempty"`
	SpeedIndexMs             *float64 `json:"speed_index_ms,omitempty"`
}

// Opportunity is a suggested improvement ranked by estimated savings.
type Opportunity struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	SavingsMs float64 `json:"savings_ms"`
}

// DeviceScores holds the normalized 0-100 category scores for one device.
// A nil score means the probe did not produce that category.
type DeviceScores struct {
	Performance   *int          `json:"performance"`
	Accessibility *int          `json:"accessibility"`
	BestPractices *int          `json:"best_practices"`
	SEO           *int          `json:"seo"`
	Vitals        *WebVitals    `json:"vitals,omitempty"`
	Opportunities []Opportunity `json:"opportunities,omitempty"`
}

// IsEmpty reports whether no category score is present.
func (d DeviceScores) IsEmpty() bool {
	return d.Performance == nil && d.Accessibility == nil && d.BestPractices == nil && d.SEO == nil
}

// PageSpeedResult holds mobile and desktop scores for one URL.
type PageSpeedResult struct {
	URL     string       `json:"url"`
	Mobile  DeviceScores `json:"mobile"`
	Desktop DeviceScores `json:"desktop"`
}

// PerformanceSnapshot is the performance section of a report.
type PerformanceSnapshot struct {
	Results []PageSpeedResult `json:"results"`
}
