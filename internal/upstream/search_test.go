package upstream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencx/voicebridge/internal/model"
)

const testOrgID = "11111111-2222-3333-4444-555555555555"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWindow() model.Window {
	end := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	return model.Window{Start: end.Add(-24 * time.Hour), End: end}
}

// gqlTask builds a GraphQL task entry.
func gqlTask(id string, start time.Time, agentEmail string) map[string]any {
	return map[string]any{
		"id":          id,
		"createdTime": start.UnixMilli(),
		"startedTime": start.UnixMilli(),
		"endedTime":   start.Add(5 * time.Minute).UnixMilli(),
		"origin":      "+15551230001",
		"destination": "+15551239999",
		"queue":       map[string]any{"name": "support"},
		"status":      "completed",
		"owner":       map[string]any{"email": agentEmail},
	}
}

func writeGQLPage(w http.ResponseWriter, tasks []map[string]any, hasNext bool, cursor string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			"task": map[string]any{
				"tasks": tasks,
				"pageInfo": map[string]any{
					"hasNextPage": hasNext,
					"endCursor":   cursor,
				},
			},
		},
	})
}

func TestSearchInteractionsGraphQL(t *testing.T) {
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeGQLPage(w, []map[string]any{gqlTask("T1", start, "a@b.com")}, false, "")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	recs, err := c.SearchInteractions(context.Background(), "tok", "a@b.com", testWindow(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, "T1", recs[0].InteractionID)
	assert.Equal(t, "+15551230001", recs[0].ANI)
	assert.Equal(t, "support", recs[0].QueueName)
	assert.Equal(t, []string{"a@b.com"}, recs[0].AgentEmails)
	require.NotNil(t, recs[0].StartTime)
	assert.True(t, recs[0].StartTime.Equal(start))
}

func TestSearchFallsBackToLegacyOn404(t *testing.T) {
	var primaryCalls, legacyCalls int
	start := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			primaryCalls++
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		case "/v1/tasks/search":
			legacyCalls++
			var req legacySearchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, testOrgID, req.OrgID)
			assert.Equal(t, "a@b.com", req.Filter["agentEmail"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{
					"id":          "T9",
					"startTime":   start.UnixMilli(),
					"endTime":     start.Add(time.Minute).UnixMilli(),
					"agentEmail":  "a@b.com",
					"queueName":   "billing",
					"disposition": "handled",
				}},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	recs, err := c.SearchInteractions(context.Background(), "tok", "a@b.com", testWindow(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, primaryCalls, "404 must trigger exactly one secondary call")
	assert.Equal(t, 1, legacyCalls)
	require.Len(t, recs, 1)
	assert.Equal(t, "T9", recs[0].InteractionID)
	assert.Equal(t, "billing", recs[0].QueueName)
}

func TestSearchRelaxesFilterOn400(t *testing.T) {
	start := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	var calls []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if _, filtered := req.Variables["agentEmail"]; filtered {
			calls = append(calls, "filtered")
			http.Error(w, `{"error":"unknown field agentEmail"}`, http.StatusBadRequest)
			return
		}
		calls = append(calls, "relaxed")
		writeGQLPage(w, []map[string]any{
			gqlTask("T1", start, "a@b.com"),
			gqlTask("T2", start.Add(time.Minute), "other@b.com"),
			gqlTask("T3", start.Add(2*time.Minute), ""),
		}, false, "")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	recs, err := c.SearchInteractions(context.Background(), "tok", "A@B.com", testWindow(), 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"filtered", "relaxed"}, calls)
	require.Len(t, recs, 2, "client-side filter keeps the match and the record with no email metadata")
	assert.Equal(t, "T3", recs[0].InteractionID, "sorted most recent first")
	assert.Equal(t, "T1", recs[1].InteractionID)
}

func TestSearchPaginationBounded(t *testing.T) {
	start := time.Date(2026, 8, 20, 7, 0, 0, 0, time.UTC)
	var pages int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		// Always claims another page; the client must stop at the bound.
		writeGQLPage(w, []map[string]any{gqlTask("T", start, "a@b.com")}, true, "cursor")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	_, err := c.SearchInteractions(context.Background(), "tok", "a@b.com", testWindow(), 500)
	require.NoError(t, err)
	assert.Equal(t, maxSearchPages, pages)
}

func TestSearchPaginationStopsAtLimit(t *testing.T) {
	start := time.Date(2026, 8, 20, 7, 0, 0, 0, time.UTC)
	var pages int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		tasks := make([]map[string]any, 0, 3)
		for i := 0; i < 3; i++ {
			tasks = append(tasks, gqlTask("T", start, "a@b.com"))
		}
		writeGQLPage(w, tasks, true, "cursor")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	recs, err := c.SearchInteractions(context.Background(), "tok", "a@b.com", testWindow(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
	assert.Len(t, recs, 3)
}

func TestSearchPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testOrgID, testLogger())
	_, err := c.SearchInteractions(context.Background(), "tok", "a@b.com", testWindow(), 10)

	var ue *model.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadGateway, ue.Status)
	assert.Contains(t, ue.Body, "boom")
}

func TestSearchMissingOrgID(t *testing.T) {
	c := NewClient("http://unused.invalid", "", testLogger())
	_, err := c.SearchInteractions(context.Background(), "opaque-token-no-org", "a@b.com", testWindow(), 10)
	assert.ErrorIs(t, err, ErrMissingOrgID)
}
