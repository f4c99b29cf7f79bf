package model

import "time"

// SnapshotSchemaVersion is bumped whenever the serialized snapshot changes shape.
const SnapshotSchemaVersion = 1

// ReportSnapshot is the full immutable payload of one generated report.
// Identity is (ClientID, MonthKey).
type ReportSnapshot struct {
	SchemaVersion int    `json:"schema_version"`
	ClientID      string `json:"client_id"`
	ZoneID        string `json:"zone_id"`
	Domain        string `json:"domain"`
	Timezone      string `json:"timezone"`

	MonthKey   string      `json:"month_key"`
	MonthLabel string      `json:"month_label"`
	Period     MonthPeriod `json:"period"`

	Traffic     TrafficSnapshot     `json:"traffic"`
	Security    SecuritySnapshot    `json:"security"`
	Performance PerformanceSnapshot `json:"performance"`

	Warnings    []string  `json:"warnings"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ArtifactKeys are the deterministic blob keys of a report's rendered files.
type ArtifactKeys struct {
	HTML string `json:"html_key"`
	PDF  string `json:"pdf_key"`
}

// SnapshotRecord is the persisted row for a report month.
type SnapshotRecord struct {
	ClientID    string          `json:"client_id"`
	ZoneID      string          `json:"zone_id"`
	Domain      string          `json:"domain"`
	ReportMonth string          `json:"report_month"`
	Timezone    string          `json:"timezone"`
	GeneratedAt time.Time       `json:"generated_at"`
	Artifacts   ArtifactKeys    `json:"artifacts"`
	Snapshot    *ReportSnapshot `json:"snapshot"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewSnapshotRecord builds the persisted row for a snapshot.
func NewSnapshotRecord(s *ReportSnapshot, keys ArtifactKeys) *SnapshotRecord {
	return &SnapshotRecord{
		ClientID:    s.ClientID,
		ZoneID:      s.ZoneID,
		Domain:      s.Domain,
		ReportMonth: s.MonthKey,
		Timezone:    s.Timezone,
		GeneratedAt: s.GeneratedAt,
		Artifacts:   keys,
		Snapshot:    s,
	}
}
