// Package normalize reconciles interaction records with capture records and
// produces the list items the widget consumes.
package normalize

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/opencx/voicebridge/internal/model"
)

// Options tunes a normalization pass.
type Options struct {
	// AgentEmail, when set, restricts results to captures whose email
	// candidate set contains it (case-insensitive).
	AgentEmail string

	// StrictAgentMatch excludes captures carrying no agent-email metadata
	// when an email filter is active. Off by default: tenant schemas that
	// omit agent email must not silently hide results.
	StrictAgentMatch bool

	// Limit truncates the final result. Clamped to [1, model.MaxLimit],
	// defaulting to model.DefaultLimit.
	Limit int
}

// urlCandidates is the ordered extraction table for a capture's playable
// URL; the first non-empty candidate wins. New tenant shapes are added
// here, not as branching logic.
var urlCandidates = []func(model.CaptureRecord) string{
	func(c model.CaptureRecord) string { return c.FilePath },
	func(c model.CaptureRecord) string { return c.PlaybackURL },
	func(c model.CaptureRecord) string { return c.DownloadURL },
	func(c model.CaptureRecord) string {
		if len(c.MediaFiles) > 0 {
			return c.MediaFiles[0].FilePath
		}
		return ""
	},
	func(c model.CaptureRecord) string {
		if c.Links.Playback != nil {
			return c.Links.Playback.Href
		}
		return ""
	},
	func(c model.CaptureRecord) string {
		if c.Links.Download != nil {
			return c.Links.Download.Href
		}
		return ""
	},
}

// ResolveMediaURL returns the capture's best playable URL, or "" when none
// of the candidate fields resolve.
func ResolveMediaURL(c model.CaptureRecord) string {
	for _, extract := range urlCandidates {
		if u := extract(c); u != "" {
			return u
		}
	}
	return ""
}

// AgentEmailCandidates unions the capture's direct, nested, and
// agent-role-participant email fields.
func AgentEmailCandidates(c model.CaptureRecord) []string {
	var out []string
	out = appendEmail(out, c.AgentEmail)
	if c.Agent != nil {
		out = appendEmail(out, c.Agent.Email)
	}
	for _, p := range c.Participants {
		if strings.EqualFold(p.Role, "agent") {
			out = appendEmail(out, p.Email)
			out = appendEmail(out, p.AgentEmail)
		}
	}
	return out
}

func appendEmail(set []string, email string) []string {
	if email == "" {
		return set
	}
	for _, have := range set {
		if strings.EqualFold(have, email) {
			return set
		}
	}
	return append(set, email)
}

// Normalize joins captures to interactions by id and emits the final,
// sorted, truncated result list. Captures with no resolvable media URL are
// dropped: a dead link has no value to the caller.
func Normalize(interactions []model.InteractionRecord, captures []model.CaptureRecord, opts Options) []model.NormalizedResultItem {
	limit := model.ClampLimit(opts.Limit)

	byID := make(map[string]model.InteractionRecord, len(interactions))
	for _, rec := range interactions {
		if rec.InteractionID != "" {
			byID[rec.InteractionID] = rec
		}
	}

	items := make([]model.NormalizedResultItem, 0, len(captures))
	for _, capture := range captures {
		url := ResolveMediaURL(capture)
		if url == "" {
			continue
		}

		if opts.AgentEmail != "" {
			candidates := AgentEmailCandidates(capture)
			if len(candidates) > 0 {
				if !containsFold(candidates, opts.AgentEmail) {
					continue
				}
			} else if opts.StrictAgentMatch {
				continue
			}
		}

		joinID := capture.InteractionID
		if joinID == "" {
			joinID = capture.TaskID
		}
		interaction, joined := byID[joinID]

		item := model.NormalizedResultItem{
			CaptureID:     capture.CaptureID,
			InteractionID: joinID,
			TaskID:        capture.TaskID,
			URL:           url,
			CreatedAt:     firstTime(capture.CreatedAt, capture.StartTime),
			DurationSec:   durationSec(interaction, capture),
		}
		if joined {
			item.ANI = interaction.ANI
			item.QueueName = interaction.QueueName
			item.Disposition = interaction.Disposition
			if item.CreatedAt == nil {
				item.CreatedAt = interaction.StartTime
			}
		}
		items = append(items, item)
	}

	// Descending by createdAt; missing timestamps sort oldest. Stable so
	// ties keep upstream order regardless of chunk boundaries.
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].CreatedAt, items[j].CreatedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// durationSec derives the item duration. Interaction start/end are the
// source of truth: capture-side timestamps were observed to be
// request-processing times on some tenants, so the capture's own duration
// is used only when interaction timing is absent.
func durationSec(interaction model.InteractionRecord, capture model.CaptureRecord) *int64 {
	if interaction.StartTime != nil && interaction.EndTime != nil {
		sec := int64(math.Round(interaction.EndTime.Sub(*interaction.StartTime).Seconds()))
		if sec < 0 {
			sec = 0
		}
		return &sec
	}
	if capture.DurationMS != nil {
		sec := int64(math.Round(float64(*capture.DurationMS) / 1000.0))
		if sec < 0 {
			sec = 0
		}
		return &sec
	}
	return nil
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func firstTime(candidates ...*time.Time) *time.Time {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}
