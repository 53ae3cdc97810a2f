package api

import (
	"net/http"
	"time"
)

// healthHandler is a simple health check endpoint for container probes.
func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   version,
		})
	}
}
