package model

import "fmt"

// UpstreamDetail carries the collaborator's response for operator debugging.
// It is embedded in error JSON so a failing upstream call can be diagnosed
// without chasing logs.
type UpstreamDetail struct {
	Status int    `json:"status"`
	URL    string `json:"url,omitempty"`
	Body   string `json:"body,omitempty"`
}

// AuthError means no viable credential source exists or a grant call failed.
// When the failure came from the token endpoint, Upstream preserves its
// status and body.
type AuthError struct {
	Message  string
	Upstream *UpstreamDetail
}

func (e *AuthError) Error() string {
	if e.Upstream != nil {
		return fmt.Sprintf("auth: %s (token endpoint returned %d)", e.Message, e.Upstream.Status)
	}
	return "auth: " + e.Message
}

// NotAuthorizedError means the delegated authorization-code flow has not
// been completed (or can no longer be refreshed). Recovery is visiting the
// login endpoint, not fixing configuration, which is why this is distinct
// from AuthError.
type NotAuthorizedError struct {
	AuthorizeURL string
}

func (e *NotAuthorizedError) Error() string {
	return "not authorized: complete the delegated OAuth flow via " + e.AuthorizeURL
}

// UpstreamError is a non-fallback-eligible HTTP failure from a collaborator.
// The collaborator's status code is preserved all the way to the caller.
type UpstreamError struct {
	Status int
	URL    string
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned %d: %s", e.URL, e.Status, e.Body)
}

// Detail returns the error as an UpstreamDetail for response serialization.
func (e *UpstreamError) Detail() *UpstreamDetail {
	return &UpstreamDetail{Status: e.Status, URL: e.URL, Body: e.Body}
}

// ValidationError is a missing or malformed request parameter. Always maps
// to HTTP 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrorResponse is the structured JSON body returned for any failure.
type ErrorResponse struct {
	Error        string          `json:"error"`
	Upstream     *UpstreamDetail `json:"upstream,omitempty"`
	AuthorizeURL string          `json:"authorize_url,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
}
