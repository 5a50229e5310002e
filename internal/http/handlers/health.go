package handlers

import (
	"net/http"

	"github.com/luckyshop/server/internal/middleware"
)

// HealthHandler answers liveness probes
type HealthHandler struct{}

// NewHealthHandler creates a new health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP handles GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	middleware.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
