package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockHealthCheck struct {
	name string
	err  error
}

func (m *mockHealthCheck) Name() string                    { return m.name }
func (m *mockHealthCheck) Check(ctx context.Context) error { return m.err }

func serveHealth(t *testing.T, h *HealthHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler("v1.2.3", zaptest.NewLogger(t))
	h.RegisterCheck(&mockHealthCheck{name: "hub", err: errors.New("down")})

	w := serveHealth(t, h, "/healthz")

	// 存活探针不跑就绪检查
	assert.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "v1.2.3", status.Version)
	assert.Empty(t, status.Checks)
}

func TestHealthHandler_Ready(t *testing.T) {
	t.Run("all pass", func(t *testing.T) {
		h := NewHealthHandler("dev", zaptest.NewLogger(t))
		h.RegisterCheck(&mockHealthCheck{name: "hub"})
		h.RegisterCheck(NewCheck("config", func(ctx context.Context) error { return nil }))

		w := serveHealth(t, h, "/readyz")

		assert.Equal(t, http.StatusOK, w.Code)
		var status HealthStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "healthy", status.Status)
		require.Len(t, status.Checks, 2)
		assert.Equal(t, "pass", status.Checks["hub"].Status)
		assert.Equal(t, "pass", status.Checks["config"].Status)
	})

	t.Run("one fails", func(t *testing.T) {
		h := NewHealthHandler("dev", zaptest.NewLogger(t))
		h.RegisterCheck(&mockHealthCheck{name: "hub", err: errors.New("mcp server wiki not connected")})
		h.RegisterCheck(&mockHealthCheck{name: "config"})

		w := serveHealth(t, h, "/readyz")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var status HealthStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "unhealthy", status.Status)
		assert.Equal(t, "fail", status.Checks["hub"].Status)
		assert.Equal(t, "mcp server wiki not connected", status.Checks["hub"].Message)
		assert.Equal(t, "pass", status.Checks["config"].Status)
	})

	t.Run("no checks", func(t *testing.T) {
		w := serveHealth(t, NewHealthHandler("dev", nil), "/readyz")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHealthHandler_Version(t *testing.T) {
	w := serveHealth(t, NewHealthHandler("v0.3.0", nil), "/version")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]any{"version": "v0.3.0"}, resp.Data)
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler("dev", nil).Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
