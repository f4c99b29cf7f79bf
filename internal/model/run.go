package model

import (
	"slices"
	"time"
)

// TriggerType identifies what started a generation run.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
)

// ValidTriggerTypes contains all valid trigger types.
var ValidTriggerTypes = []TriggerType{TriggerManual, TriggerScheduled}

// IsValidTriggerType checks if a trigger type is valid.
func IsValidTriggerType(t TriggerType) bool {
	return slices.Contains(ValidTriggerTypes, t)
}

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusStarted RunStatus = "started"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// ReportRun records one generation attempt.
type ReportRun struct {
	ID           string      `json:"id"` // ULID
	ClientID     string      `json:"client_id"`
	ReportMonth  string      `json:"report_month"`
	Trigger      TriggerType `json:"trigger"`
	Status       RunStatus   `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	HTMLKey      string      `json:"html_key,omitempty"`
	PDFKey       string      `json:"pdf_key,omitempty"`
	WarningCount int         `json:"warning_count"`
	Error        string      `json:"error,omitempty"`
}

// OutputKeys returns the non-empty artifact keys of the run.
func (r *ReportRun) OutputKeys() []string {
	keys := make([]string, 0, 2)
	if r.HTMLKey != "" {
		keys = append(keys, r.HTMLKey)
	}
	if r.PDFKey != "" {
		keys = append(keys, r.PDFKey)
	}
	return keys
}
