package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server is the voicebridge HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	// Required dependencies.
	Tokens   TokenSource
	Upstream Querier
	Logger   *slog.Logger

	// OAuth enables the delegated-auth endpoints when it reports itself
	// configured. Nil-safe.
	OAuth OAuthFlow

	// Query defaults.
	LookbackDays     int
	StrictAgentMatch bool

	// HTTP server settings.
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	AllowedOrigin string
	Version       string
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Tokens:           cfg.Tokens,
		Upstream:         cfg.Upstream,
		OAuth:            cfg.OAuth,
		LookbackDays:     cfg.LookbackDays,
		StrictAgentMatch: cfg.StrictAgentMatch,
		Logger:           cfg.Logger,
		Version:          cfg.Version,
	})

	mux := http.NewServeMux()

	// Listing endpoints.
	mux.HandleFunc("GET /api/interactions", h.HandleInteractions)
	mux.HandleFunc("GET /api/captures/recent", h.HandleRecentCaptures)

	// Playback relay.
	mux.HandleFunc("GET /api/capture/{id}/stream", h.HandleCaptureStream)

	// Legacy single-match recording lookup.
	mux.HandleFunc("GET /api/recordings", h.HandleRecordingLookup)
	mux.HandleFunc("POST /api/recordings/query", h.HandleRecordingQuery)

	// Delegated OAuth flow, only when configured.
	if cfg.OAuth != nil && cfg.OAuth.DelegatedConfigured() {
		mux.HandleFunc("GET /oauth/login", h.HandleOAuthLogin)
		mux.HandleFunc("GET /oauth/callback", h.HandleOAuthCallback)
		cfg.Logger.Info("delegated oauth flow enabled")
	}

	// Health (no auth, no CORS restrictions beyond the global middleware).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → CORS → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.AllowedOrigin, handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
