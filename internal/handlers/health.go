package handlers

import (
	"net/http"
	"time"
)

// HealthCheck reports liveness plus database reachability.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.sendJSONError(w, err, "health check failed")
		return
	}

	h.sendJSONResponse(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"providers": h.registry.Len(),
	})
}
