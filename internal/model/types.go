// Package model defines the wire types exchanged with the agent widget and
// the error taxonomy shared across the service.
package model

import "time"

// InteractionRecord is a single voice interaction (task) from the upstream
// historical store. Immutable once fetched; ID is the join key to captures.
type InteractionRecord struct {
	InteractionID string     `json:"interactionId"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	ANI           string     `json:"ani,omitempty"`
	DNIS          string     `json:"dnis,omitempty"`
	QueueName     string     `json:"queueName,omitempty"`
	Disposition   string     `json:"disposition,omitempty"`
	// AgentEmails is the candidate set unioned from the upstream payload's
	// direct, nested, and participant-tagged email fields.
	AgentEmails []string `json:"agentEmails,omitempty"`
}

// CaptureRecord is a recorded media artifact as returned by the capture
// store, keeping every candidate URL and email field the tenants were
// observed to use. Fields that did not appear in the payload stay zero.
type CaptureRecord struct {
	CaptureID     string     `json:"captureId"`
	InteractionID string     `json:"interactionId,omitempty"`
	TaskID        string     `json:"taskId,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	DurationMS    *int64     `json:"durationMs,omitempty"`

	FilePath    string       `json:"filePath,omitempty"`
	PlaybackURL string       `json:"playbackUrl,omitempty"`
	DownloadURL string       `json:"downloadUrl,omitempty"`
	MediaFiles  []MediaFile  `json:"mediaFiles,omitempty"`
	Links       CaptureLinks `json:"links,omitempty"`

	AgentEmail   string        `json:"agentEmail,omitempty"`
	Agent        *AgentRef     `json:"agent,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

// MediaFile is one entry of a capture's media-file list.
type MediaFile struct {
	FilePath string `json:"filePath,omitempty"`
}

// CaptureLinks holds the nested link shape some tenants return.
type CaptureLinks struct {
	Playback *Link `json:"playback,omitempty"`
	Download *Link `json:"download,omitempty"`
}

// Link is a single href container.
type Link struct {
	Href string `json:"href,omitempty"`
}

// AgentRef is the nested agent object variant.
type AgentRef struct {
	Email string `json:"email,omitempty"`
}

// Participant is a role-tagged party on a capture.
type Participant struct {
	Role       string `json:"role,omitempty"`
	Email      string `json:"email,omitempty"`
	AgentEmail string `json:"agentEmail,omitempty"`
}

// NormalizedResultItem is the output contract of the list endpoints.
// URL is always non-empty in emitted items; DurationSec is derived from the
// joined interaction's bounds, never copied from upstream.
type NormalizedResultItem struct {
	CaptureID     string     `json:"captureId"`
	InteractionID string     `json:"interactionId,omitempty"`
	TaskID        string     `json:"taskId,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	URL           string     `json:"url"`
	ANI           string     `json:"ani,omitempty"`
	QueueName     string     `json:"queueName,omitempty"`
	Disposition   string     `json:"disposition,omitempty"`
	DurationSec   *int64     `json:"durationSec"`
}

// Window bounds a query in time.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Result limits for list endpoints.
const (
	DefaultLimit = 200
	MaxLimit     = 1000
)

// ClampLimit bounds a caller-supplied limit to [1, MaxLimit], applying the
// default when the caller sent nothing.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// RecordingMatch is the legacy single-best-match recording response.
type RecordingMatch struct {
	RecordingID string     `json:"recordingId"`
	URL         string     `json:"url"`
	StartTime   *time.Time `json:"startTime,omitempty"`
}

// CapturesResponse is the body of GET /api/captures/recent.
type CapturesResponse struct {
	Items  []NormalizedResultItem `json:"items"`
	Window Window                 `json:"window"`
}

// InteractionsResponse is the body of GET /api/interactions.
type InteractionsResponse struct {
	Items []InteractionRecord `json:"items"`
}
