package server

import (
	"encoding/json"
	"net/http"

	"github.com/opencx/voicebridge/internal/model"
	"github.com/opencx/voicebridge/internal/normalize"
)

// recordingQueryRequest is the body of POST /api/recordings/query.
type recordingQueryRequest struct {
	TaskID        string `json:"taskId"`
	InteractionID string `json:"interactionId"`
}

// noRecordingResponse is the legacy empty-result shape. Older widget builds
// probe the urls array rather than the HTTP status.
type noRecordingResponse struct {
	URLs []string `json:"urls"`
}

// HandleRecordingLookup handles GET /api/recordings. It resolves a single
// best-match recording for one task or interaction id.
func (h *Handlers) HandleRecordingLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("taskId")
	if id == "" {
		id = q.Get("interactionId")
	}
	h.lookupRecording(w, r, id)
}

// HandleRecordingQuery handles POST /api/recordings/query, the body-based
// variant of the single-match lookup.
func (h *Handlers) HandleRecordingQuery(w http.ResponseWriter, r *http.Request) {
	var req recordingQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, r, &model.ValidationError{Message: "invalid request body"})
		return
	}
	id := req.TaskID
	if id == "" {
		id = req.InteractionID
	}
	h.lookupRecording(w, r, id)
}

func (h *Handlers) lookupRecording(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		writeAppError(w, r, &model.ValidationError{Message: "taskId or interactionId is required"})
		return
	}

	token, err := h.tokens.Token(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	captures, err := h.upstream.LookupCaptures(r.Context(), token, []string{id}, model.DefaultLimit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	best := bestRecording(captures)
	if best == nil {
		writeJSON(w, r, http.StatusOK, noRecordingResponse{URLs: []string{}})
		return
	}
	writeJSON(w, r, http.StatusOK, best)
}

// bestRecording picks the newest capture with a resolvable media URL.
// Captures without timestamps lose to any dated capture.
func bestRecording(captures []model.CaptureRecord) *model.RecordingMatch {
	var best *model.RecordingMatch
	for _, c := range captures {
		url := normalize.ResolveMediaURL(c)
		if url == "" {
			continue
		}
		created := c.CreatedAt
		if created == nil {
			created = c.StartTime
		}
		candidate := &model.RecordingMatch{
			RecordingID: c.CaptureID,
			URL:         url,
			StartTime:   created,
		}
		if best == nil {
			best = candidate
			continue
		}
		if created != nil && (best.StartTime == nil || created.After(*best.StartTime)) {
			best = candidate
		}
	}
	return best
}
