package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencx/voicebridge/internal/model"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("T%02d", i)
	}
	return out
}

func captureItem(captureID, taskID string) map[string]any {
	return map[string]any{
		"id":          captureID,
		"taskId":      taskID,
		"downloadUrl": "https://media.example.com/" + captureID,
	}
}

func TestChunksPartitioning(t *testing.T) {
	assert.Nil(t, chunks(nil, 10))
	assert.Nil(t, chunks([]string{"a"}, 0))

	got := chunks(ids(25), 10)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 10)
	assert.Len(t, got[1], 10)
	assert.Len(t, got[2], 5)
}

func TestLookupCapturesBatchCount(t *testing.T) {
	var batchCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/captures/query", r.URL.Path)
		batchCalls++

		var req captureQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.LessOrEqual(t, len(req.Query.TaskIDs), captureBatchSize)
		assert.Equal(t, testOrgID, req.Query.OrgID)

		items := make([]map[string]any, 0, len(req.Query.TaskIDs))
		for _, id := range req.Query.TaskIDs {
			items = append(items, captureItem("C-"+id, id))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	recs, err := c.LookupCaptures(context.Background(), "tok", ids(25), 100)
	require.NoError(t, err)

	assert.Equal(t, 3, batchCalls, "25 ids with cap 10 means exactly 3 batch calls")
	assert.Len(t, recs, 25)
	assert.Equal(t, "C-T00", recs[0].CaptureID)
	assert.Equal(t, "T00", recs[0].TaskID)
}

func TestLookupCapturesEarlyStop(t *testing.T) {
	var batchCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batchCalls++
		var req captureQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		items := make([]map[string]any, 0, len(req.Query.TaskIDs))
		for _, id := range req.Query.TaskIDs {
			items = append(items, captureItem("C-"+id, id))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	recs, err := c.LookupCaptures(context.Background(), "tok", ids(30), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, batchCalls, "accumulation reached the limit after one batch")
	assert.Len(t, recs, 10)
}

func TestLookupCapturesPerIDFallback(t *testing.T) {
	var batchCalls, perIDCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/captures/query":
			batchCalls++
			http.Error(w, `{"error":"no such endpoint"}`, http.StatusNotFound)
		case "/v1/captures":
			perIDCalls++
			taskID := r.URL.Query().Get("taskId")
			require.NotEmpty(t, taskID)
			assert.Equal(t, testOrgID, r.URL.Query().Get("orgId"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{captureItem("C-"+taskID, taskID)},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	recs, err := c.LookupCaptures(context.Background(), "tok", []string{"T1", "T2", "T3"}, 100)
	require.NoError(t, err)

	assert.Equal(t, 1, batchCalls)
	assert.Equal(t, 3, perIDCalls, "fallback issues one field-equality query per id")
	require.Len(t, recs, 3)
	assert.Equal(t, "C-T1", recs[0].CaptureID)
}

func TestLookupCapturesFallbackIsPerBatch(t *testing.T) {
	// First batch 404s and recovers per-id; second batch succeeds on the
	// primary path. The operation must not fail globally.
	var batchCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/captures/query":
			batchCalls++
			if batchCalls == 1 {
				http.Error(w, `{"error":"gone"}`, http.StatusNotFound)
				return
			}
			var req captureQueryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			items := make([]map[string]any, 0, len(req.Query.TaskIDs))
			for _, id := range req.Query.TaskIDs {
				items = append(items, captureItem("C-"+id, id))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
		case "/v1/captures":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{captureItem("C-"+r.URL.Query().Get("taskId"), r.URL.Query().Get("taskId"))},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	recs, err := c.LookupCaptures(context.Background(), "tok", ids(15), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, batchCalls)
	assert.Len(t, recs, 15)
}

func TestLookupCapturesPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	_, err := c.LookupCaptures(context.Background(), "tok", []string{"T1"}, 10)

	var ue *model.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusInternalServerError, ue.Status)
}
