// Package config loads and validates application configuration from environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Upstream platform settings.
	UpstreamBaseURL string // Base URL of the contact-center platform APIs.
	TokenURL        string // OAuth token endpoint.
	AuthorizeURL    string // OAuth authorize endpoint (delegated flow).
	ClientID        string
	ClientSecret    string
	OAuthScope      string
	RedirectURL     string // Callback URL registered for the delegated flow.
	OrgID           string // Tenant org; derived from the token when empty.

	// Query defaults.
	LookbackDays     int           // Default window when the caller sends no hours/daysBack.
	TokenMargin      time.Duration // Tokens are treated as expired this long before actual expiry.
	StrictAgentMatch bool          // Exclude captures with no agent-email metadata from filtered results.

	// Delegated credential persistence.
	CredDBPath  string
	CredSealKey []byte // Optional 32-byte key; tokens are stored sealed when set.

	// Browser caller.
	AllowedOrigin string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:             envInt("VB_PORT", 8080),
		ReadTimeout:      envDuration("VB_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:     envDuration("VB_WRITE_TIMEOUT", 120*time.Second),
		UpstreamBaseURL:  envStr("VB_UPSTREAM_BASE_URL", ""),
		TokenURL:         envStr("VB_TOKEN_URL", ""),
		AuthorizeURL:     envStr("VB_AUTHORIZE_URL", ""),
		ClientID:         envStr("VB_CLIENT_ID", ""),
		ClientSecret:     envStr("VB_CLIENT_SECRET", ""),
		OAuthScope:       envStr("VB_OAUTH_SCOPE", ""),
		RedirectURL:      envStr("VB_REDIRECT_URL", ""),
		OrgID:            envStr("VB_ORG_ID", ""),
		LookbackDays:     envInt("VB_LOOKBACK_DAYS", 7),
		TokenMargin:      envDuration("VB_TOKEN_MARGIN", 90*time.Second),
		StrictAgentMatch: envBool("VB_STRICT_AGENT_MATCH", false),
		CredDBPath:       envStr("VB_CRED_DB_PATH", "voicebridge.db"),
		AllowedOrigin:    envStr("VB_ALLOWED_ORIGIN", ""),
		OTELEndpoint:     envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:      envStr("OTEL_SERVICE_NAME", "voicebridge"),
		LogLevel:         envStr("VB_LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("VB_CRED_SEAL_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: VB_CRED_SEAL_KEY is not valid base64: %w", err)
		}
		cfg.CredSealKey = key
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.UpstreamBaseURL == "" {
		return fmt.Errorf("config: VB_UPSTREAM_BASE_URL is required")
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("config: VB_LOOKBACK_DAYS must be positive")
	}
	if c.TokenMargin < 60*time.Second || c.TokenMargin > 120*time.Second {
		return fmt.Errorf("config: VB_TOKEN_MARGIN must be between 60s and 120s")
	}
	if len(c.CredSealKey) != 0 && len(c.CredSealKey) != 32 {
		return fmt.Errorf("config: VB_CRED_SEAL_KEY must decode to 32 bytes, got %d", len(c.CredSealKey))
	}
	if (c.ClientID == "") != (c.ClientSecret == "") {
		return fmt.Errorf("config: VB_CLIENT_ID and VB_CLIENT_SECRET must be set together")
	}
	if c.ClientID != "" && c.TokenURL == "" {
		return fmt.Errorf("config: VB_TOKEN_URL is required when client credentials are configured")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
