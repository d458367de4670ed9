package upstream

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/opencx/voicebridge/internal/model"
)

// maxSearchPages bounds GraphQL pagination fan-out per request.
const maxSearchPages = 5

// taskSearchQuery is the paginated GraphQL query against the task index.
// The agentEmail variable is omitted from the filter when empty.
const taskSearchQuery = `query Tasks($from: Long!, $to: Long!, $agentEmail: String, $after: String) {
  task(from: $from, to: $to, filter: { channelType: telephony, agentEmail: $agentEmail }, after: $after) {
    tasks {
      id
      interactionId
      createdTime
      startedTime
      endedTime
      origin
      destination
      queue { name }
      status
      owner { email }
      participants { role email agentEmail }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		Task struct {
			Tasks    []taskPayload `json:"tasks"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"task"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// legacySearchRequest is the filter/sort/fields body of the legacy REST
// task search.
type legacySearchRequest struct {
	OrgID  string              `json:"orgId"`
	From   int64               `json:"from"`
	To     int64               `json:"to"`
	Filter map[string]string   `json:"filter,omitempty"`
	Sort   []map[string]string `json:"sort"`
	Fields []string            `json:"fields,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
}

// itemsEnvelope covers the two list envelopes tenants return.
type itemsEnvelope struct {
	Items []capturePayload `json:"items"`
	Data  []capturePayload `json:"data"`
}

func (e itemsEnvelope) all() []capturePayload {
	if len(e.Items) > 0 {
		return e.Items
	}
	return e.Data
}

type taskItemsEnvelope struct {
	Items []taskPayload `json:"items"`
	Data  []taskPayload `json:"data"`
}

func (e taskItemsEnvelope) all() []taskPayload {
	if len(e.Items) > 0 {
		return e.Items
	}
	return e.Data
}

// SearchInteractions queries the historical task index for interactions in
// the window, most recent first, truncated to limit.
//
// Fallback chain: the GraphQL endpoint is primary; a 404 (not enabled for
// the tenant) retries the legacy REST endpoint with equivalent filters; a
// 400 (tenant schema rejects the agent-email filter) retries the same chain
// without the agent filter, matching agentEmail client-side afterwards.
func (c *Client) SearchInteractions(ctx context.Context, token, agentEmail string, window model.Window, limit int) ([]model.InteractionRecord, error) {
	orgID, err := c.resolveOrgID(token)
	if err != nil {
		return nil, err
	}
	limit = model.ClampLimit(limit)

	run := func(email string) ([]model.InteractionRecord, error) {
		recs, err := c.searchGraphQL(ctx, token, email, window, limit)
		if statusIs(err, http.StatusNotFound) {
			c.logger.Info("task search endpoint not enabled, using legacy search", "org_id", orgID)
			recs, err = c.searchLegacy(ctx, token, orgID, email, window, limit)
		}
		return recs, err
	}

	recs, err := run(agentEmail)
	if statusIs(err, http.StatusBadRequest) && agentEmail != "" {
		c.logger.Info("tenant rejected agent-email filter, matching client-side", "org_id", orgID)
		recs, err = run("")
		if err == nil {
			recs = filterByAgentEmail(recs, agentEmail)
		}
	}
	if err != nil {
		return nil, err
	}

	sortInteractionsDesc(recs)
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// searchGraphQL walks the paginated task query, at most maxSearchPages
// pages, filtering by agent email per page client-side as well: some
// tenants index agent email inconsistently and the server-side filter
// cannot be relied on alone.
func (c *Client) searchGraphQL(ctx context.Context, token, agentEmail string, window model.Window, limit int) ([]model.InteractionRecord, error) {
	url := c.baseURL + "/search"
	var out []model.InteractionRecord
	after := ""

	for page := 0; page < maxSearchPages; page++ {
		vars := map[string]any{
			"from": window.Start.UnixMilli(),
			"to":   window.End.UnixMilli(),
		}
		if agentEmail != "" {
			vars["agentEmail"] = agentEmail
		}
		if after != "" {
			vars["after"] = after
		}

		var resp graphQLResponse
		if err := c.doJSON(ctx, http.MethodPost, url, token, graphQLRequest{
			Query:     taskSearchQuery,
			Variables: vars,
		}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("upstream: task search graphql error: %s", resp.Errors[0].Message)
		}

		for _, task := range resp.Data.Task.Tasks {
			rec := task.toInteraction()
			if agentEmail != "" && len(rec.AgentEmails) > 0 && !hasAgentEmail(rec, agentEmail) {
				continue
			}
			out = append(out, rec)
		}

		if !resp.Data.Task.PageInfo.HasNextPage || len(out) >= limit {
			break
		}
		after = resp.Data.Task.PageInfo.EndCursor
	}
	return out, nil
}

// searchLegacy issues the filter/sort/fields query against the legacy
// analytics task endpoint.
func (c *Client) searchLegacy(ctx context.Context, token, orgID, agentEmail string, window model.Window, limit int) ([]model.InteractionRecord, error) {
	url := c.baseURL + "/v1/tasks/search"
	req := legacySearchRequest{
		OrgID: orgID,
		From:  window.Start.UnixMilli(),
		To:    window.End.UnixMilli(),
		Sort:  []map[string]string{{"field": "createdTime", "order": "desc"}},
		Limit: limit,
	}
	if agentEmail != "" {
		req.Filter = map[string]string{"agentEmail": agentEmail}
	}

	var resp taskItemsEnvelope
	if err := c.doJSON(ctx, http.MethodPost, url, token, req, &resp); err != nil {
		return nil, err
	}

	out := make([]model.InteractionRecord, 0, len(resp.all()))
	for _, task := range resp.all() {
		out = append(out, task.toInteraction())
	}
	return out, nil
}

// filterByAgentEmail keeps records whose candidate set contains email,
// case-insensitively. Records with no email metadata are kept: absence of
// agent-email on the upstream payload must not silently hide results.
func filterByAgentEmail(recs []model.InteractionRecord, email string) []model.InteractionRecord {
	out := recs[:0]
	for _, rec := range recs {
		if len(rec.AgentEmails) == 0 || hasAgentEmail(rec, email) {
			out = append(out, rec)
		}
	}
	return out
}

// sortInteractionsDesc orders most-recent-first; missing start times sort
// as oldest. Stable so upstream order breaks ties deterministically.
func sortInteractionsDesc(recs []model.InteractionRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		ti, tj := recs[i].StartTime, recs[j].StartTime
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
}
