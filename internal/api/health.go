package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store         Pinger
	qnaConfigured bool
	sessions      *SessionManager
	timeout       time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store Pinger, qnaConfigured bool, sessions *SessionManager) *HealthHandler {
	return &HealthHandler{
		store:         store,
		qnaConfigured: qnaConfigured,
		sessions:      sessions,
		timeout:       5 * time.Second,
	}
}

// Health returns the health status of the service and its dependencies. An
// unconfigured answer backend does not degrade health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "qna": "unconfigured"}
	if h.qnaConfigured {
		checks["qna"] = "configured"
	}
	status := map[string]interface{}{
		"status":         "healthy",
		"checks":         checks,
		"qna_configured": h.qnaConfigured,
	}
	if h.sessions != nil {
		status["webchat_sessions"] = h.sessions.Len()
	}
	statusCode := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["state_store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["state_store"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
