// Package api exposes the knowledge base and question answering over a
// small JSON HTTP API. Every response uses the {"success": ...}
// envelope; errors carry an "error" field instead of the payload.
package api

import (
	"errors"
	"log/slog"
	"net/http"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Service    QAService // Required
	Version    string    // Reported by /health
	TrustProxy bool      // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst  int       // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dh := &documentHandler{service: cfg.Service, logger: logger}
	qh := &queryHandler{service: cfg.Service, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents", dh.list)
	mux.HandleFunc("POST /api/documents", dh.add)
	mux.HandleFunc("DELETE /api/documents/{id}", dh.delete)
	mux.HandleFunc("POST /api/query", qh.ask)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in
	// log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux keeps health probes out of the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", healthHandler(cfg.Version))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
