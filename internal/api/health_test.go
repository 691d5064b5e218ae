package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/qnabot/internal/store"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is closed") }

func getHealth(t *testing.T, h *HealthHandler) (int, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterHealth(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthHealthy(t *testing.T) {
	t.Parallel()
	code, body := getHealth(t, NewHealthHandler(store.NewMemory(), true, NewSessionManager(nil)))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["qna_configured"])
	assert.EqualValues(t, 0, body["webchat_sessions"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["state_store"])
	assert.Equal(t, "configured", checks["qna"])
}

func TestHealthUnconfiguredQnAIsStillHealthy(t *testing.T) {
	t.Parallel()
	code, body := getHealth(t, NewHealthHandler(store.NewMemory(), false, nil))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["qna_configured"])
	assert.NotContains(t, body, "webchat_sessions")
}

func TestHealthDegradedStore(t *testing.T) {
	t.Parallel()
	code, body := getHealth(t, NewHealthHandler(failingPinger{}, true, nil))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unreachable", body["checks"].(map[string]any)["state_store"])
}
