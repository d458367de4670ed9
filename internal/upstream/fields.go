package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/opencx/voicebridge/internal/model"
)

// Tenants disagree on payload shapes: ids arrive as strings or numbers,
// timestamps as epoch milliseconds or RFC3339 strings, and most logical
// fields have two or three alternate names. flexID and flexTime absorb the
// representation differences at decode time; firstNonEmpty picks the first
// populated candidate for a logical field, left to right.

// flexID decodes a JSON string or number into a string, so numeric and
// string ids compare equal downstream.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// flexTime decodes epoch milliseconds (number or numeric string) or an
// RFC3339 string. Zero when absent or unparseable; a record is never
// rejected over a bad timestamp.
type flexTime struct {
	t *time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			f.t = &ts
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			ts := time.UnixMilli(ms).UTC()
			f.t = &ts
		}
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return nil
	}
	if ms > 0 {
		ts := time.UnixMilli(ms).UTC()
		f.t = &ts
	}
	return nil
}

// Time returns the decoded timestamp or nil.
func (f flexTime) Time() *time.Time { return f.t }

// firstNonEmpty returns the first non-empty candidate, left to right.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// firstTime returns the first non-nil timestamp, left to right.
func firstTime(candidates ...*time.Time) *time.Time {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

// unionEmails appends non-empty, case-insensitively-new emails to set.
func unionEmails(set []string, emails ...string) []string {
	for _, e := range emails {
		if e == "" {
			continue
		}
		dup := false
		for _, have := range set {
			if strings.EqualFold(have, e) {
				dup = true
				break
			}
		}
		if !dup {
			set = append(set, e)
		}
	}
	return set
}

// taskPayload is the loose shape shared by the GraphQL and legacy task
// search responses, keeping every observed field alias.
type taskPayload struct {
	ID            flexID   `json:"id"`
	TaskID        flexID   `json:"taskId"`
	InteractionID flexID   `json:"interactionId"`
	CreatedTime   flexTime `json:"createdTime"`
	StartedTime   flexTime `json:"startedTime"`
	StartTime     flexTime `json:"startTime"`
	EndedTime     flexTime `json:"endedTime"`
	EndTime       flexTime `json:"endTime"`
	Origin        string   `json:"origin"`
	ANI           string   `json:"ani"`
	Destination   string   `json:"destination"`
	DNIS          string   `json:"dnis"`
	QueueName     string   `json:"queueName"`
	Queue         *struct {
		Name string `json:"name"`
	} `json:"queue"`
	Disposition string `json:"disposition"`
	Status      string `json:"status"`
	AgentEmail  string `json:"agentEmail"`
	Owner       *struct {
		Email string `json:"email"`
	} `json:"owner"`
	Participants []struct {
		Role       string `json:"role"`
		Email      string `json:"email"`
		AgentEmail string `json:"agentEmail"`
	} `json:"participants"`
}

// toInteraction normalizes a task payload into an InteractionRecord.
func (p taskPayload) toInteraction() model.InteractionRecord {
	rec := model.InteractionRecord{
		InteractionID: firstNonEmpty(string(p.ID), string(p.TaskID), string(p.InteractionID)),
		StartTime:     firstTime(p.StartedTime.Time(), p.StartTime.Time(), p.CreatedTime.Time()),
		EndTime:       firstTime(p.EndedTime.Time(), p.EndTime.Time()),
		ANI:           firstNonEmpty(p.ANI, p.Origin),
		DNIS:          firstNonEmpty(p.DNIS, p.Destination),
		Disposition:   firstNonEmpty(p.Disposition, p.Status),
	}
	rec.QueueName = p.QueueName
	if rec.QueueName == "" && p.Queue != nil {
		rec.QueueName = p.Queue.Name
	}

	rec.AgentEmails = unionEmails(nil, p.AgentEmail)
	if p.Owner != nil {
		rec.AgentEmails = unionEmails(rec.AgentEmails, p.Owner.Email)
	}
	for _, part := range p.Participants {
		if strings.EqualFold(part.Role, "agent") {
			rec.AgentEmails = unionEmails(rec.AgentEmails, part.Email, part.AgentEmail)
		}
	}
	return rec
}

// hasAgentEmail reports a case-insensitive membership check against the
// record's candidate set.
func hasAgentEmail(rec model.InteractionRecord, email string) bool {
	for _, e := range rec.AgentEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// capturePayload is the loose capture-store shape.
type capturePayload struct {
	ID            flexID   `json:"id"`
	CaptureID     flexID   `json:"captureId"`
	RecordingID   flexID   `json:"recordingId"`
	TaskID        flexID   `json:"taskId"`
	InteractionID flexID   `json:"interactionId"`
	CreatedAt     flexTime `json:"createdAt"`
	CreatedTime   flexTime `json:"createdTime"`
	StartTime     flexTime `json:"startTime"`
	DurationMS    *int64   `json:"durationMs"`
	Duration      *int64   `json:"duration"`

	FilePath    string `json:"filePath"`
	PlaybackURL string `json:"playbackUrl"`
	DownloadURL string `json:"downloadUrl"`
	MediaFiles  []struct {
		FilePath string `json:"filePath"`
	} `json:"mediaFiles"`
	Links struct {
		Playback *struct {
			Href string `json:"href"`
		} `json:"playback"`
		Download *struct {
			Href string `json:"href"`
		} `json:"download"`
	} `json:"links"`

	AgentEmail string `json:"agentEmail"`
	Agent      *struct {
		Email string `json:"email"`
	} `json:"agent"`
	Participants []struct {
		Role       string `json:"role"`
		Email      string `json:"email"`
		AgentEmail string `json:"agentEmail"`
	} `json:"participants"`
}

// toCapture normalizes a capture payload into a CaptureRecord, preserving
// every URL candidate for the joiner's resolver.
func (p capturePayload) toCapture() model.CaptureRecord {
	rec := model.CaptureRecord{
		CaptureID:     firstNonEmpty(string(p.ID), string(p.CaptureID), string(p.RecordingID)),
		TaskID:        string(p.TaskID),
		InteractionID: string(p.InteractionID),
		CreatedAt:     firstTime(p.CreatedAt.Time(), p.CreatedTime.Time()),
		StartTime:     p.StartTime.Time(),
		FilePath:      p.FilePath,
		PlaybackURL:   p.PlaybackURL,
		DownloadURL:   p.DownloadURL,
		AgentEmail:    p.AgentEmail,
	}
	if p.DurationMS != nil {
		rec.DurationMS = p.DurationMS
	} else if p.Duration != nil {
		rec.DurationMS = p.Duration
	}
	for _, mf := range p.MediaFiles {
		rec.MediaFiles = append(rec.MediaFiles, model.MediaFile{FilePath: mf.FilePath})
	}
	if p.Links.Playback != nil {
		rec.Links.Playback = &model.Link{Href: p.Links.Playback.Href}
	}
	if p.Links.Download != nil {
		rec.Links.Download = &model.Link{Href: p.Links.Download.Href}
	}
	if p.Agent != nil {
		rec.Agent = &model.AgentRef{Email: p.Agent.Email}
	}
	for _, part := range p.Participants {
		rec.Participants = append(rec.Participants, model.Participant{
			Role:       part.Role,
			Email:      part.Email,
			AgentEmail: part.AgentEmail,
		})
	}
	return rec
}
