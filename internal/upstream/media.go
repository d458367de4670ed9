package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/opencx/voicebridge/internal/model"
)

// defaultMediaContentType is used when the upstream download omits one.
const defaultMediaContentType = "audio/mpeg"

// StreamCapture fetches a capture's audio from the upstream download
// endpoint and hands the body back for relaying as it arrives. The caller
// owns closing the returned reader. Upstream failures are reported with
// status and body before any audio byte is produced.
func (c *Client) StreamCapture(ctx context.Context, token, captureID string) (io.ReadCloser, string, error) {
	url := c.baseURL + "/v1/captures/" + captureID + "/download"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("upstream: build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.mediaHTTP.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("upstream: GET %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		_ = resp.Body.Close()
		return nil, "", &model.UpstreamError{Status: resp.StatusCode, URL: url, Body: string(raw)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultMediaContentType
	}
	return resp.Body, contentType, nil
}
