// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Privacy profiles. Exactly one is active per deployment; the relay never
// applies both disclosure policies at once.
const (
	// ProfileStrict sends no client IP and no PII, and reduces URLs to
	// origin+path. Matches the most conservative deployment.
	ProfileStrict = "strict"
	// ProfileAttribution forwards the client IP, attaches hashed PII when
	// supplied, and preserves allow-listed attribution query parameters.
	ProfileAttribution = "attribution"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Meta Conversions API credentials. The PUBLIC_/FACEBOOK_ variants are
	// fallbacks for deployments that already expose the pixel id to the
	// browser bundle under a public name. Resolved via PixelID/AccessToken.
	MetaPixelID       string `env:"META_PIXEL_ID"`
	PublicMetaPixelID string `env:"PUBLIC_META_PIXEL_ID"`
	MetaAccessToken   string `env:"META_ACCESS_TOKEN"`
	FacebookToken     string `env:"FACEBOOK_ACCESS_TOKEN"`

	// Graph API endpoint settings. Base URL is overridable for tests.
	GraphBaseURL string `env:"META_GRAPH_BASE_URL" envDefault:"https://graph.facebook.com"`
	GraphVersion string `env:"META_GRAPH_VERSION" envDefault:"v19.0"`

	// Test-event routing. The code is only honored as an environment
	// default when TestEventsEnabled is set; a request can still supply or
	// force its own (see the tracking package's test-mode resolution).
	TestEventCode     string `env:"META_TEST_EVENT_CODE"`
	TestEventsEnabled bool   `env:"TEST_EVENTS_ENABLED" envDefault:"false"`

	// PrivacyProfile selects the deployment's disclosure policy:
	// "strict" or "attribution".
	PrivacyProfile string `env:"PRIVACY_PROFILE" envDefault:"strict"`

	// Cache (Redis), optional. Rate limiting is disabled when unset.
	RedisURL string `env:"REDIS_URL"`

	// Rate limiting for the public tracking endpoint (per hashed IP).
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. WriteTimeout has headroom for the synchronous
	// provider call.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"45s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://www.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 64KB; tracking payloads are tiny)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

// PixelID resolves the pixel identifier, preferring the private variable
// over the public fallback.
func (c *Config) PixelID() string {
	if c.MetaPixelID != "" {
		return c.MetaPixelID
	}
	return c.PublicMetaPixelID
}

// AccessToken resolves the API access token, preferring the META_ variable
// over the legacy FACEBOOK_ fallback.
func (c *Config) AccessToken() string {
	if c.MetaAccessToken != "" {
		return c.MetaAccessToken
	}
	return c.FacebookToken
}

// HasCredentials reports whether both provider credentials are present.
// Credentials are checked per request, not at boot, so the service stays up
// when tracking is unconfigured.
func (c *Config) HasCredentials() bool {
	return c.PixelID() != "" && c.AccessToken() != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error for invalid values, including an unknown privacy profile.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PrivacyProfile != ProfileStrict && cfg.PrivacyProfile != ProfileAttribution {
		return nil, fmt.Errorf("unknown PRIVACY_PROFILE %q (want %q or %q)",
			cfg.PrivacyProfile, ProfileStrict, ProfileAttribution)
	}
	return cfg, nil
}
