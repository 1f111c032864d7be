// Package web exposes the operational HTTP surface: health, live task
// listing and Prometheus metrics.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mirrorleech/mirror_relay/internal/logctx"
	"github.com/mirrorleech/mirror_relay/internal/task"
	"github.com/mirrorleech/mirror_relay/internal/telemetry"
)

// Handler serves the operational API.
type Handler struct {
	registry  *task.Registry
	telemetry *telemetry.Telemetry
}

func NewHandler(registry *task.Registry, tel *telemetry.Telemetry) *Handler {
	return &Handler{registry: registry, telemetry: tel}
}

// Routes builds the router with telemetry and request-id middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(h.telemetry).Middleware)

	r.Get("/healthz", h.health)
	r.Get("/tasks", h.tasks)
	r.Method(http.MethodGet, "/metrics", h.telemetry.Handler())

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// tasks lists every live task. Terminal tasks are evicted on completion,
// so this is the running set, not a history.
func (h *Handler) tasks(w http.ResponseWriter, r *http.Request) {
	views := h.registry.Snapshot()

	writeJSON(w, r, http.StatusOK, map[string]any{
		"count": len(views),
		"tasks": views,
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "err", err)
	}
}
