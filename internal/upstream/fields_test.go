package upstream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexIDStringAndNumber(t *testing.T) {
	var p struct {
		A flexID `json:"a"`
		B flexID `json:"b"`
		C flexID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"X1","b":42,"c":null}`), &p))
	assert.Equal(t, flexID("X1"), p.A)
	assert.Equal(t, flexID("42"), p.B)
	assert.Equal(t, flexID(""), p.C)
}

func TestFlexTimeEpochMillis(t *testing.T) {
	var p struct {
		T flexTime `json:"t"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"t":1755691200000}`), &p))
	require.NotNil(t, p.T.Time())
	assert.Equal(t, time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC), p.T.Time().UTC())
}

func TestFlexTimeRFC3339(t *testing.T) {
	var p struct {
		T flexTime `json:"t"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"t":"2026-08-20T12:00:00Z"}`), &p))
	require.NotNil(t, p.T.Time())
	assert.Equal(t, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC), p.T.Time().UTC())
}

func TestFlexTimeGarbageIsNil(t *testing.T) {
	var p struct {
		T flexTime `json:"t"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"t":"not-a-time"}`), &p))
	assert.Nil(t, p.T.Time())
}

func TestTaskPayloadEmailCandidateUnion(t *testing.T) {
	raw := `{
		"id": "T1",
		"agentEmail": "direct@x.com",
		"owner": {"email": "owner@x.com"},
		"participants": [
			{"role": "agent", "email": "part@x.com"},
			{"role": "agent", "agentEmail": "DIRECT@x.com"},
			{"role": "customer", "email": "cust@x.com"}
		]
	}`
	var p taskPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	rec := p.toInteraction()
	assert.Equal(t, []string{"direct@x.com", "owner@x.com", "part@x.com"}, rec.AgentEmails,
		"case-insensitive dedupe, customer-role emails excluded")
}

func TestCapturePayloadKeepsURLCandidates(t *testing.T) {
	raw := `{
		"id": 77,
		"taskId": "T1",
		"createdTime": 1755691200000,
		"duration": 300000,
		"mediaFiles": [{"filePath": "https://media/x.wav"}],
		"links": {"playback": {"href": "https://play/x"}}
	}`
	var p capturePayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	rec := p.toCapture()
	assert.Equal(t, "77", rec.CaptureID, "numeric id coerced to string")
	assert.Equal(t, "T1", rec.TaskID)
	require.NotNil(t, rec.CreatedAt)
	require.Len(t, rec.MediaFiles, 1)
	require.NotNil(t, rec.Links.Playback)
	assert.Equal(t, "https://play/x", rec.Links.Playback.Href)
	require.NotNil(t, rec.DurationMS)
	assert.Equal(t, int64(300000), *rec.DurationMS)
}
