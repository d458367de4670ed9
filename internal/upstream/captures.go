package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/opencx/voicebridge/internal/model"
)

// captureBatchSize is the upstream capture-query request cap.
const captureBatchSize = 10

// captureQueryRequest is the batch lookup body.
type captureQueryRequest struct {
	Query captureQuery `json:"query"`
}

type captureQuery struct {
	OrgID         string   `json:"orgId"`
	TaskIDs       []string `json:"taskIds"`
	URLExpiration int      `json:"urlExpiration,omitempty"`
}

// LookupCaptures fetches capture records for the given task/interaction
// ids. Ids are partitioned into batches of captureBatchSize, issued
// strictly sequentially; accumulation short-circuits once limit records
// have been collected. A batch whose primary lookup 404s (or is rejected
// with 400) falls back to per-id field-equality queries, unioned, so a
// partial outage degrades completeness instead of failing the request.
func (c *Client) LookupCaptures(ctx context.Context, token string, ids []string, limit int) ([]model.CaptureRecord, error) {
	orgID, err := c.resolveOrgID(token)
	if err != nil {
		return nil, err
	}
	limit = model.ClampLimit(limit)

	var out []model.CaptureRecord
	for _, batch := range chunks(ids, captureBatchSize) {
		if len(out) >= limit {
			break
		}
		recs, err := c.captureBatch(ctx, token, orgID, batch)
		if statusIs(err, http.StatusNotFound) || statusIs(err, http.StatusBadRequest) {
			c.logger.Info("capture batch lookup unavailable, falling back to per-id queries",
				"org_id", orgID, "batch_size", len(batch))
			recs, err = c.capturePerID(ctx, token, orgID, batch)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// captureBatch issues one batch query against the capture store.
func (c *Client) captureBatch(ctx context.Context, token, orgID string, ids []string) ([]model.CaptureRecord, error) {
	reqURL := c.baseURL + "/v1/captures/query"
	req := captureQueryRequest{Query: captureQuery{
		OrgID:         orgID,
		TaskIDs:       ids,
		URLExpiration: 3600,
	}}

	var resp itemsEnvelope
	if err := c.doJSON(ctx, http.MethodPost, reqURL, token, req, &resp); err != nil {
		return nil, err
	}
	return convertCaptures(resp.all()), nil
}

// capturePerID is the alternate per-field search: one field-equality query
// per id, results unioned in id order.
func (c *Client) capturePerID(ctx context.Context, token, orgID string, ids []string) ([]model.CaptureRecord, error) {
	var out []model.CaptureRecord
	for _, id := range ids {
		reqURL := c.baseURL + "/v1/captures?" + url.Values{
			"orgId":  {orgID},
			"taskId": {id},
		}.Encode()

		var resp itemsEnvelope
		if err := c.doJSON(ctx, http.MethodGet, reqURL, token, nil, &resp); err != nil {
			return nil, err
		}
		out = append(out, convertCaptures(resp.all())...)
	}
	return out, nil
}

func convertCaptures(payloads []capturePayload) []model.CaptureRecord {
	out := make([]model.CaptureRecord, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p.toCapture())
	}
	return out
}
