package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/handler/dto"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/period"
	"github.com/sitereport/sitereport/internal/render"
	"github.com/sitereport/sitereport/internal/service"
	"github.com/sitereport/sitereport/internal/source"
)

// ReportService is the report pipeline as seen by HTTP handlers.
type ReportService interface {
	Client(id string) (config.Client, error)
	Clients() []config.Client
	Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
	GetReport(ctx context.Context, clientID, monthKey string) (*model.SnapshotRecord, error)
	ListReports(ctx context.Context, clientID string) ([]string, error)
	ListRuns(ctx context.Context, clientID, monthKey string, limit int) ([]*model.ReportRun, error)
	GetRun(ctx context.Context, id string) (*model.ReportRun, error)
}

// ReportHandler handles report generation and lookup.
type ReportHandler struct {
	svc    ReportService
	logger *slog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(svc ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		svc:    svc,
		logger: logger.With("component", "handler.report"),
	}
}

// Generate handles POST /api/v1/clients/{clientID}/reports?month=YYYY-MM.
// The run executes inside the request.
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	client, err := h.svc.Client(clientID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	res, err := h.svc.Generate(r.Context(), service.GenerateRequest{
		Client:  client,
		Month:   r.URL.Query().Get("month"),
		Trigger: model.TriggerManual,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("report_generated",
		"run_id", res.RunID,
		"client_id", res.ClientID,
		"month", res.Month,
		"warnings", len(res.Warnings),
	)
	writeJSON(w, http.StatusOK, dto.ToGenerateReportResponse(res))
}

// Get handles GET /api/v1/clients/{clientID}/reports/{month}.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetReport(r.Context(), chi.URLParam(r, "clientID"), chi.URLParam(r, "month"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToReportResponse(rec))
}

// List handles GET /api/v1/clients/{clientID}/reports.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	months, err := h.svc.ListReports(r.Context(), clientID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ReportListResponse{ClientID: clientID, Months: months})
}

// ListRuns handles GET /api/v1/clients/{clientID}/runs?month=YYYY-MM&limit=N.
func (h *ReportHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.svc.ListRuns(r.Context(), chi.URLParam(r, "clientID"), q.Get("month"), limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToRunListResponse(runs))
}

// GetRun handles GET /api/v1/runs/{runID}.
func (h *ReportHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToRunResponse(run))
}

// ListClients handles GET /api/v1/clients.
func (h *ReportHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients := h.svc.Clients()
	resp := dto.ClientListResponse{Data: make([]dto.ClientResponse, 0, len(clients))}
	for _, c := range clients {
		resp.Data = append(resp.Data, dto.ToClientResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleServiceError maps pipeline errors to HTTP responses.
func (h *ReportHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, period.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, "INVALID_MONTH", err.Error())
	case errors.Is(err, service.ErrInvalidTrigger):
		writeError(w, http.StatusBadRequest, "INVALID_TRIGGER", err.Error())
	case errors.Is(err, service.ErrUnknownClient):
		writeError(w, http.StatusNotFound, "CLIENT_NOT_FOUND", "Client not found")
	case errors.Is(err, service.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "REPORT_NOT_FOUND", "Report not generated for this month")
	case errors.Is(err, service.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "RUN_NOT_FOUND", "Run not found")
	case errors.Is(err, source.ErrAuth):
		h.logger.Error("upstream_auth_failed", "error", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_AUTH",
			"Analytics credentials were rejected; check the API token and its zone permissions")
	case errors.Is(err, source.ErrUpstream):
		h.logger.Error("upstream_failed", "error", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Traffic data source is unavailable; retry later")
	case errors.Is(err, render.ErrConversion):
		h.logger.Error("pdf_conversion_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "CONVERSION_FAILED", "PDF conversion failed")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
