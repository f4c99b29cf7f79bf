package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes the state of a circuit breaker.
type BreakerReporter interface {
	State() gobreaker.State
}

// Readiness states.
const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db        HealthChecker
	cache     HealthChecker
	converter BreakerReporter
}

// NewHealthHandler creates a HealthHandler. A nil cache is reported as not
// configured.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// WithConverter adds the PDF converter breaker to readiness output.
func (h *HealthHandler) WithConverter(c BreakerReporter) *HealthHandler {
	h.converter = c
	return h
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe endpoint with no dependency checks.
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: StatusOK})
}

// Readyz pings the stores and returns 503 when one fails. An open converter
// breaker only degrades the status: reads keep working while it recovers.
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, 3)
	status := StatusOK

	for _, c := range []struct {
		name    string
		checker HealthChecker
	}{{"postgres", h.db}, {"redis", h.cache}} {
		if c.checker == nil {
			checks[c.name] = "not configured"
			continue
		}
		if err := c.checker.Ping(ctx); err != nil {
			checks[c.name] = "error: " + err.Error()
			status = StatusUnhealthy
			continue
		}
		checks[c.name] = StatusOK
	}

	if h.converter != nil {
		state := h.converter.State()
		checks["pdf_converter"] = "circuit " + state.String()
		if state == gobreaker.StateOpen && status == StatusOK {
			status = StatusDegraded
		}
	}

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
}
