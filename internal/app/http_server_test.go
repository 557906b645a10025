package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/pedidos/internal/health"
	"github.com/vladislavdragonenkov/pedidos/internal/storage/memory"
	"github.com/vladislavdragonenkov/pedidos/internal/version"
)

func TestOpsRouter_Endpoints(t *testing.T) {
	handler := healthcheck.NewHandler(version.Current())
	handler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(memory.NewOutboxRepository(), 10, 0))
	srv := httptest.NewServer(NewOpsRouter(handler))
	defer srv.Close()

	tests := []struct {
		path string
		code int
	}{
		{path: "/metrics", code: http.StatusOK},
		{path: "/healthz", code: http.StatusOK},
		{path: "/readyz", code: http.StatusOK},
		{path: "/livez", code: http.StatusOK},
		{path: "/unknown", code: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body healthcheck.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, healthcheck.StatusHealthy, body.Status)
	assert.Contains(t, body.Checks, "outbox")
}

func TestOpsRouter_UnhealthyStorage(t *testing.T) {
	handler := healthcheck.NewHandler(version.Current())
	handler.RegisterChecker("storage", healthcheck.NewFuncChecker("storage", func(context.Context) error {
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	NewOpsRouter(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpsRouter_RejectsWrongMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	NewOpsRouter(healthcheck.NewHandler(version.Current())).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
