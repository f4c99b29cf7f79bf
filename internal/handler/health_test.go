package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) Ping(ctx context.Context) error {
	return s.err
}

type stubBreaker gobreaker.State

func (s stubBreaker) State() gobreaker.State {
	return gobreaker.State(s)
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthHandler_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil).Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusOK, decodeHealth(t, rec).Status)
}

func TestHealthHandler_Readyz(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name      string
		db        HealthChecker
		cache     HealthChecker
		converter BreakerReporter
		code      int
		status    string
		checks    map[string]string
	}{
		{
			name: "all healthy", db: &stubChecker{}, cache: &stubChecker{},
			code: http.StatusOK, status: StatusOK,
			checks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name: "database down", db: &stubChecker{err: down}, cache: &stubChecker{},
			code: http.StatusServiceUnavailable, status: StatusUnhealthy,
			checks: map[string]string{"postgres": "error: connection refused", "redis": "ok"},
		},
		{
			name: "redis down", db: &stubChecker{}, cache: &stubChecker{err: down},
			code: http.StatusServiceUnavailable, status: StatusUnhealthy,
			checks: map[string]string{"postgres": "ok", "redis": "error: connection refused"},
		},
		{
			name: "redis not configured", db: &stubChecker{},
			code: http.StatusOK, status: StatusOK,
			checks: map[string]string{"postgres": "ok", "redis": "not configured"},
		},
		{
			name: "converter closed", db: &stubChecker{}, cache: &stubChecker{}, converter: stubBreaker(gobreaker.StateClosed),
			code: http.StatusOK, status: StatusOK,
			checks: map[string]string{"postgres": "ok", "redis": "ok", "pdf_converter": "circuit closed"},
		},
		{
			name: "converter open degrades", db: &stubChecker{}, cache: &stubChecker{}, converter: stubBreaker(gobreaker.StateOpen),
			code: http.StatusOK, status: StatusDegraded,
			checks: map[string]string{"postgres": "ok", "redis": "ok", "pdf_converter": "circuit open"},
		},
		{
			name: "store failure wins over breaker", db: &stubChecker{err: down}, cache: &stubChecker{}, converter: stubBreaker(gobreaker.StateOpen),
			code: http.StatusServiceUnavailable, status: StatusUnhealthy,
			checks: map[string]string{"postgres": "error: connection refused", "redis": "ok", "pdf_converter": "circuit open"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.cache)
			if tt.converter != nil {
				h.WithConverter(tt.converter)
			}

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decodeHealth(t, rec)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.checks, resp.Checks)
		})
	}
}
