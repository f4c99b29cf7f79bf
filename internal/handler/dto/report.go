// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/service"
)

// GenerateReportResponse is returned by a successful generation.
type GenerateReportResponse struct {
	RunID    string   `json:"run_id"`
	ClientID string   `json:"client_id"`
	Month    string   `json:"month"`
	HTMLKey  string   `json:"html_key"`
	PDFKey   string   `json:"pdf_key"`
	Warnings []string `json:"warnings"`
}

// ReportResponse is a stored report month.
type ReportResponse struct {
	ClientID    string                `json:"client_id"`
	Month       string                `json:"month"`
	Domain      string                `json:"domain"`
	Timezone    string                `json:"timezone"`
	HTMLKey     string                `json:"html_key"`
	PDFKey      string                `json:"pdf_key"`
	GeneratedAt time.Time             `json:"generated_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Snapshot    *model.ReportSnapshot `json:"snapshot"`
}

// ClientResponse is a configured client.
type ClientResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Domain          string   `json:"domain"`
	Timezone        string   `json:"timezone"`
	PerformanceURLs []string `json:"performance_urls"`
}

// ClientListResponse lists configured clients.
type ClientListResponse struct {
	Data []ClientResponse `json:"data"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToGenerateReportResponse converts a generation result.
func ToGenerateReportResponse(res *service.GenerateResult) *GenerateReportResponse {
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return &GenerateReportResponse{
		RunID:    res.RunID,
		ClientID: res.ClientID,
		Month:    res.Month,
		HTMLKey:  res.Keys.HTML,
		PDFKey:   res.Keys.PDF,
		Warnings: warnings,
	}
}

// ToReportResponse converts a stored snapshot row.
func ToReportResponse(rec *model.SnapshotRecord) *ReportResponse {
	return &ReportResponse{
		ClientID:    rec.ClientID,
		Month:       rec.ReportMonth,
		Domain:      rec.Domain,
		Timezone:    rec.Timezone,
		HTMLKey:     rec.Artifacts.HTML,
		PDFKey:      rec.Artifacts.PDF,
		GeneratedAt: rec.GeneratedAt,
		UpdatedAt:   rec.UpdatedAt,
		Snapshot:    rec.Snapshot,
	}
}

// ToClientResponse converts a configured client. Zone IDs stay internal.
func ToClientResponse(c config.Client) ClientResponse {
	urls := c.PerformanceURLs
	if urls == nil {
		urls = []string{}
	}
	return ClientResponse{
		ID:              c.ID,
		Name:            c.Name,
		Domain:          c.Domain,
		Timezone:        c.TimezoneName(),
		PerformanceURLs: urls,
	}
}

// ReportListResponse lists the stored months of a client.
type ReportListResponse struct {
	ClientID string   `json:"client_id"`
	Months   []string `json:"months"`
}

// RunResponse is one generation attempt.
type RunResponse struct {
	ID           string     `json:"id"`
	ClientID     string     `json:"client_id"`
	Month        string     `json:"month"`
	Trigger      string     `json:"trigger"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	OutputKeys   []string   `json:"output_keys"`
	WarningCount int        `json:"warning_count"`
	Error        string     `json:"error,omitempty"`
}

// RunListResponse lists runs of a client month.
type RunListResponse struct {
	Data []RunResponse `json:"data"`
}

// ToRunResponse converts a run record.
func ToRunResponse(run *model.ReportRun) RunResponse {
	return RunResponse{
		ID:           run.ID,
		ClientID:     run.ClientID,
		Month:        run.ReportMonth,
		Trigger:      string(run.Trigger),
		Status:       string(run.Status),
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		OutputKeys:   run.OutputKeys(),
		WarningCount: run.WarningCount,
		Error:        run.Error,
	}
}

// ToRunListResponse converts a page of runs.
func ToRunListResponse(runs []*model.ReportRun) RunListResponse {
	resp := RunListResponse{Data: make([]RunResponse, 0, len(runs))}
	for _, r := range runs {
		resp.Data = append(resp.Data, ToRunResponse(r))
	}
	return resp
}
