package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencx/voicebridge/internal/model"
)

func TestStreamCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/captures/C1/download", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF....audio-bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	body, contentType, err := c.StreamCapture(context.Background(), "tok", "C1")
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	assert.Equal(t, "audio/wav", contentType)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "RIFF....audio-bytes", string(data))
}

func TestStreamCaptureDefaultContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	body, contentType, err := c.StreamCapture(context.Background(), "tok", "C1")
	require.NoError(t, err)
	_ = body.Close()

	assert.Equal(t, "audio/mpeg", contentType)
}

func TestStreamCaptureUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"capture not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	_, _, err := c.StreamCapture(context.Background(), "tok", "nope")

	var ue *model.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusNotFound, ue.Status)
	assert.Contains(t, ue.Body, "capture not found")
}
