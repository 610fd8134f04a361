package httpserver

import (
	"context"
	"net/http"
	"time"
)

// health reports service status and whether the settings backend answers.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	statusCode := http.StatusOK
	storeHealthy := true
	if h.store != nil {
		if _, err := h.store.Keys(ctx); err != nil {
			storeHealthy = false
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
			h.logger.Warn().Err(err).Msg("health.store_unreachable")
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"status":        status,
		"backend":       h.cfg.Settings.Backend,
		"store_healthy": storeHealthy,
		"headers":       h.engine.Table().Len(),
		"uptime":        time.Since(serverStartTime).Round(time.Second).String(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}
