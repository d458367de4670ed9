package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/opencx/voicebridge/internal/model"
	"github.com/opencx/voicebridge/internal/normalize"
)

// TokenSource resolves a bearer token for an upstream call. forwardedAuth
// is the inbound Authorization header, which wins when present.
type TokenSource interface {
	Token(ctx context.Context, forwardedAuth string) (string, error)
}

// Querier is the upstream query engine and media relay.
type Querier interface {
	SearchInteractions(ctx context.Context, token, agentEmail string, window model.Window, limit int) ([]model.InteractionRecord, error)
	LookupCaptures(ctx context.Context, token string, ids []string, limit int) ([]model.CaptureRecord, error)
	StreamCapture(ctx context.Context, token, captureID string) (io.ReadCloser, string, error)
}

// OAuthFlow is the delegated authorization flow surface.
type OAuthFlow interface {
	DelegatedConfigured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	tokens           TokenSource
	upstream         Querier
	oauth            OAuthFlow
	lookbackDays     int
	strictAgentMatch bool
	logger           *slog.Logger
	startedAt        time.Time
	version          string
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Tokens           TokenSource
	Upstream         Querier
	OAuth            OAuthFlow
	LookbackDays     int
	StrictAgentMatch bool
	Logger           *slog.Logger
	Version          string
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	lookback := d.LookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	return &Handlers{
		tokens:           d.Tokens,
		upstream:         d.Upstream,
		oauth:            d.OAuth,
		lookbackDays:     lookback,
		strictAgentMatch: d.StrictAgentMatch,
		logger:           d.Logger,
		startedAt:        time.Now(),
		version:          d.Version,
	}
}

// HandleInteractions handles GET /api/interactions.
// Lists time+agent-filtered interaction records without the capture join.
func (h *Handlers) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	agentEmail := r.URL.Query().Get("agentEmail")
	if agentEmail == "" {
		writeAppError(w, r, &model.ValidationError{Message: "agentEmail is required"})
		return
	}

	daysBack := queryInt(r, "daysBack", h.lookbackDays)
	if daysBack <= 0 {
		daysBack = h.lookbackDays
	}
	limit := queryInt(r, "limit", model.DefaultLimit)

	now := time.Now().UTC()
	window := model.Window{Start: now.Add(-time.Duration(daysBack) * 24 * time.Hour), End: now}

	token, err := h.tokens.Token(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	items, err := h.upstream.SearchInteractions(r.Context(), token, agentEmail, window, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if items == nil {
		items = []model.InteractionRecord{}
	}

	writeJSON(w, r, http.StatusOK, model.InteractionsResponse{Items: items})
}

// HandleRecentCaptures handles GET /api/captures/recent.
// Orchestrates interaction search, chunked capture lookup, and the
// normalize/join pass.
func (h *Handlers) HandleRecentCaptures(w http.ResponseWriter, r *http.Request) {
	agentEmail := r.URL.Query().Get("agentEmail")
	if agentEmail == "" {
		writeAppError(w, r, &model.ValidationError{Message: "agentEmail is required"})
		return
	}

	hours := queryInt(r, "hours", 0)
	if hours <= 0 {
		hours = h.lookbackDays * 24
	}
	limit := model.ClampLimit(queryInt(r, "limit", 0))

	now := time.Now().UTC()
	window := model.Window{Start: now.Add(-time.Duration(hours) * time.Hour), End: now}

	token, err := h.tokens.Token(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	interactions, err := h.upstream.SearchInteractions(r.Context(), token, agentEmail, window, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	ids := make([]string, 0, len(interactions))
	for _, rec := range interactions {
		if rec.InteractionID != "" {
			ids = append(ids, rec.InteractionID)
		}
	}

	var captures []model.CaptureRecord
	if len(ids) > 0 {
		captures, err = h.upstream.LookupCaptures(r.Context(), token, ids, limit)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
	}

	items := normalize.Normalize(interactions, captures, normalize.Options{
		AgentEmail:       agentEmail,
		StrictAgentMatch: h.strictAgentMatch,
		Limit:            limit,
	})
	if items == nil {
		items = []model.NormalizedResultItem{}
	}

	writeJSON(w, r, http.StatusOK, model.CapturesResponse{Items: items, Window: window})
}

// HandleCaptureStream handles GET /api/capture/{id}/stream.
// Relays the upstream audio body as it arrives, preserving content type.
// Bytes already flushed cannot be retracted: a relay that dies mid-stream
// surfaces to the browser as a failed fetch, never as a valid short clip.
func (h *Handlers) HandleCaptureStream(w http.ResponseWriter, r *http.Request) {
	captureID := r.PathValue("id")
	if captureID == "" {
		writeAppError(w, r, &model.ValidationError{Message: "capture id is required"})
		return
	}

	token, err := h.tokens.Token(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	body, contentType, err := h.upstream.StreamCapture(r.Context(), token, captureID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("capture relay terminated mid-stream",
			"capture_id", captureID,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
