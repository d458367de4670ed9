// Package upstream implements the query engine and media relay against the
// contact-center platform's historical-data, search, and capture APIs.
//
// Search runs against a GraphQL task index first and falls back to the
// legacy REST search on tenants where it is not enabled. Capture lookups
// are batched to the platform's request-size cap. All fallbacks are driven
// by upstream status codes (404/400); any other failure propagates with the
// collaborator's status and body preserved.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opencx/voicebridge/internal/model"
)

// Client issues calls against the upstream platform.
type Client struct {
	baseURL string
	orgID   string
	logger  *slog.Logger

	queryHTTP *http.Client // search + capture lookups
	mediaHTTP *http.Client // streaming downloads, longest timeout
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the query HTTP client (tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.queryHTTP = hc }
}

// WithMediaHTTPClient overrides the media HTTP client (tests).
func WithMediaHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.mediaHTTP = hc }
}

// NewClient creates a Client for the given platform base URL. orgID may be
// empty, in which case it is derived per call from the bearer token.
func NewClient(baseURL, orgID string, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		orgID:     orgID,
		logger:    logger,
		queryHTTP: &http.Client{Timeout: 30 * time.Second},
		mediaHTTP: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// maxErrorBodyBytes caps how much of an upstream error body is kept for
// diagnostics.
const maxErrorBodyBytes = 8 * 1024

// doJSON posts body as JSON (or issues a GET when body is nil) and decodes
// a 2xx response into out. Non-2xx responses become an UpstreamError
// carrying the status and the (truncated) body.
func (c *Client) doJSON(ctx context.Context, method, url, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("upstream: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.queryHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: %s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &model.UpstreamError{Status: resp.StatusCode, URL: url, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode %s response: %w", url, err)
	}
	return nil
}

// statusIs reports whether err is an UpstreamError with the given status.
func statusIs(err error, status int) bool {
	var ue *model.UpstreamError
	return errors.As(err, &ue) && ue.Status == status
}
