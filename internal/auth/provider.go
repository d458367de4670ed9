// Package auth resolves bearer credentials for calling the upstream
// contact-center platform.
//
// Three strategies: a bearer token forwarded by the widget's host page
// always wins; otherwise a configured credential store selects the
// delegated authorization-code grant completed via /oauth/login, and a
// bare client id/secret pair selects a cached client-credentials grant.
// The clock and HTTP client are injectable so tests can drive expiry and
// fake the token endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/opencx/voicebridge/internal/credstore"
	"github.com/opencx/voicebridge/internal/model"
)

// CredentialStore persists the delegated credential between restarts.
type CredentialStore interface {
	Get(ctx context.Context) (credstore.Credential, error)
	Put(ctx context.Context, cred credstore.Credential) error
}

// Options configures a Provider.
type Options struct {
	TokenURL     string
	AuthorizeURL string
	RedirectURL  string
	ClientID     string
	ClientSecret string
	Scope        string

	// Margin is subtracted from a token's expiry when deciding whether it
	// is still usable, so a token never expires mid-flight upstream.
	Margin time.Duration

	// Store enables the delegated strategy when non-nil.
	Store CredentialStore

	// HTTPClient is used for grant calls. Defaults to a 15s-timeout client.
	HTTPClient *http.Client

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Provider acquires and caches bearer credentials.
type Provider struct {
	opts Options

	// mu guards the cached client-credentials token only. It is not held
	// across grant calls: concurrent callers racing past an expired token
	// may each issue a grant, which the token endpoint tolerates.
	mu     sync.Mutex
	cached *oauth2.Token
}

// NewProvider creates a Provider with defaults applied.
func NewProvider(opts Options) *Provider {
	if opts.Margin <= 0 {
		opts.Margin = 90 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Provider{opts: opts}
}

// Token resolves a bearer token for an upstream call. forwardedAuth is the
// inbound request's Authorization header, which wins when present.
func (p *Provider) Token(ctx context.Context, forwardedAuth string) (string, error) {
	if forwardedAuth != "" {
		return parseForwarded(forwardedAuth)
	}
	// A store declares delegated mode even when a client id/secret pair is
	// also present: delegated deployments register their client for the
	// authorization-code grant, and the refresh grant needs the same pair,
	// so ClientID alone cannot distinguish the two strategies.
	if p.opts.Store != nil {
		return p.delegatedToken(ctx)
	}
	if p.opts.ClientID != "" {
		return p.clientCredentialsToken(ctx)
	}
	return "", &model.AuthError{Message: "no credential source configured: forward a bearer token, set client credentials, or complete the delegated flow"}
}

// parseForwarded validates the "Bearer <token>" shape and returns the bare
// token. The token itself is used verbatim, no further validation.
func parseForwarded(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", &model.AuthError{Message: "malformed authorization header, expected 'Bearer <token>'"}
	}
	return strings.TrimSpace(parts[1]), nil
}

// usable reports whether a token is still safe to hand to an upstream call.
func (p *Provider) usable(expiry time.Time) bool {
	return p.opts.Now().Before(expiry.Add(-p.opts.Margin))
}

func (p *Provider) clientCredentialsToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.cached != nil && p.usable(p.cached.Expiry) {
		token := p.cached.AccessToken
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	cc := clientcredentials.Config{
		ClientID:     p.opts.ClientID,
		ClientSecret: p.opts.ClientSecret,
		TokenURL:     p.opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if p.opts.Scope != "" {
		cc.Scopes = strings.Fields(p.opts.Scope)
	}

	token, err := cc.Token(p.grantContext(ctx))
	if err != nil {
		return "", wrapGrantError("client-credentials grant failed", err)
	}

	p.mu.Lock()
	p.cached = token
	p.mu.Unlock()
	return token.AccessToken, nil
}

func (p *Provider) delegatedToken(ctx context.Context) (string, error) {
	cred, err := p.opts.Store.Get(ctx)
	if errors.Is(err, credstore.ErrNoCredential) {
		return "", &model.NotAuthorizedError{AuthorizeURL: "/oauth/login"}
	}
	if err != nil {
		return "", &model.AuthError{Message: err.Error()}
	}

	if p.usable(cred.ExpiresAt) {
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		return "", &model.NotAuthorizedError{AuthorizeURL: "/oauth/login"}
	}

	// Expired with a refresh token: refresh-grant before serving. Forcing
	// an expired Expiry makes the token source refresh unconditionally.
	src := p.oauthConfig().TokenSource(p.grantContext(ctx), &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	token, err := src.Token()
	if err != nil {
		return "", wrapGrantError("refresh grant failed", err)
	}

	updated := credstore.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if updated.RefreshToken == "" {
		updated.RefreshToken = cred.RefreshToken
	}
	if err := p.opts.Store.Put(ctx, updated); err != nil {
		return "", &model.AuthError{Message: fmt.Sprintf("persist refreshed credential: %v", err)}
	}
	return token.AccessToken, nil
}

// AuthCodeURL builds the upstream authorize redirect for /oauth/login.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for tokens and persists them as the
// delegated credential.
func (p *Provider) Exchange(ctx context.Context, code string) error {
	if p.opts.Store == nil {
		return &model.AuthError{Message: "delegated flow not configured"}
	}
	token, err := p.oauthConfig().Exchange(p.grantContext(ctx), code)
	if err != nil {
		return wrapGrantError("authorization-code exchange failed", err)
	}
	return p.opts.Store.Put(ctx, credstore.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	})
}

// DelegatedConfigured reports whether /oauth/login can work.
func (p *Provider) DelegatedConfigured() bool {
	return p.opts.Store != nil && p.opts.AuthorizeURL != "" && p.opts.ClientID != ""
}

func (p *Provider) oauthConfig() *oauth2.Config {
	cfg := &oauth2.Config{
		ClientID:     p.opts.ClientID,
		ClientSecret: p.opts.ClientSecret,
		RedirectURL:  p.opts.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.opts.AuthorizeURL,
			TokenURL:  p.opts.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	if p.opts.Scope != "" {
		cfg.Scopes = strings.Fields(p.opts.Scope)
	}
	return cfg
}

// grantContext routes oauth2's internal HTTP calls through our client so
// timeouts and test fakes apply.
func (p *Provider) grantContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.opts.HTTPClient)
}

// wrapGrantError converts an oauth2 failure into an AuthError, preserving
// the token endpoint's status and body when available.
func wrapGrantError(msg string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		detail := &model.UpstreamDetail{Body: string(retrieve.Body)}
		if retrieve.Response != nil {
			detail.Status = retrieve.Response.StatusCode
			if retrieve.Response.Request != nil && retrieve.Response.Request.URL != nil {
				detail.URL = retrieve.Response.Request.URL.String()
			}
		}
		return &model.AuthError{Message: msg, Upstream: detail}
	}
	return &model.AuthError{Message: fmt.Sprintf("%s: %v", msg, err)}
}
