// Package config loads the YAML configuration that describes a dual loader:
// its primary (stream) and secondary (handle) strategies, cleanup policy,
// diagnostics and logging.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cecil-the-coder/resource-loader-kit/internal/logger"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/dual"
	"github.com/cecil-the-coder/resource-loader-kit/pkg/types"
)

// Strategy types understood by the factory
const (
	StrategyTypeFile = "file"
	StrategyTypeHTTP = "http"
)

// Defaults applied by ApplyDefaults
const (
	DefaultName             = "dual"
	DefaultEventsBufferSize = 100
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultHTTPMaxRetries   = 3
)

// =============================================================================
// Config Structures
// =============================================================================

// Config represents the complete configuration structure
type Config struct {
	// Name identifies the loader in events and logs
	Name string `yaml:"name"`

	// Primary produces streams; Secondary produces seekable handles.
	// At least one must be set.
	Primary   *StrategyConfig `yaml:"primary,omitempty"`
	Secondary *StrategyConfig `yaml:"secondary,omitempty"`

	CleanupPolicy dual.CleanupPolicy `yaml:"cleanup_policy,omitempty"`
	IDCacheLimit  int                `yaml:"id_cache_limit,omitempty"`

	Fetch   FetchConfig   `yaml:"fetch,omitempty"`
	Events  EventsConfig  `yaml:"events,omitempty"`
	Logging logger.Config `yaml:"logging,omitempty"`
	HTTP    HTTPConfig    `yaml:"http,omitempty"`
}

// StrategyConfig describes one strategy slot
type StrategyConfig struct {
	// Type selects the strategy implementation ("file" or "http")
	Type string `yaml:"type"`

	// File strategy settings
	Root       string `yaml:"root,omitempty"`
	BufferSize int    `yaml:"buffer_size,omitempty"`

	// HTTP strategy settings
	BaseURL   string            `yaml:"base_url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	SizeQuery bool              `yaml:"size_query,omitempty"`
	TempDir   string            `yaml:"temp_dir,omitempty"`

	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	OAuth     *OAuthConfig     `yaml:"oauth,omitempty"`
}

// RateLimitConfig throttles an HTTP strategy
type RateLimitConfig struct {
	// RequestsPerSecond is the average client-side rate; zero disables the limiter
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`

	// TrackServerLimits honors the limits servers report in response headers
	TrackServerLimits bool `yaml:"track_server_limits,omitempty"`

	// LowPriorityThreshold sheds low priority requests once this fraction of
	// a server-reported window is used. Requires track_server_limits.
	LowPriorityThreshold float64 `yaml:"low_priority_threshold,omitempty"`
}

// OAuthConfig authenticates an HTTP strategy, either with a fixed access
// token or with the client credentials flow.
type OAuthConfig struct {
	AccessToken string `yaml:"access_token,omitempty"`
	TokenType   string `yaml:"token_type,omitempty"`

	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	TokenURL     string   `yaml:"token_url,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// UsesClientCredentials reports whether tokens come from the client credentials flow
func (o *OAuthConfig) UsesClientCredentials() bool {
	return o != nil && o.AccessToken == "" && o.ClientID != ""
}

// FetchConfig holds request defaults for callers that do not choose their own
type FetchConfig struct {
	// Priority is written by name ("immediate", "high", "normal", "low")
	Priority string `yaml:"priority,omitempty"`
	Width    int    `yaml:"width,omitempty"`
	Height   int    `yaml:"height,omitempty"`
}

// FetchPriority returns the parsed default priority
func (f FetchConfig) FetchPriority() types.Priority {
	p, err := types.ParsePriority(f.Priority)
	if err != nil {
		return types.PriorityNormal
	}
	return p
}

// EventsConfig configures the diagnostic event collector
type EventsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size,omitempty"`
}

// HTTPConfig configures the client shared by the HTTP strategies
type HTTPConfig struct {
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	MaxRetries     int           `yaml:"max_retries,omitempty"`
	BaseRetryDelay time.Duration `yaml:"base_retry_delay,omitempty"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay,omitempty"`
	UserAgent      string        `yaml:"user_agent,omitempty"`
}

// =============================================================================
// Configuration Loading
// =============================================================================

// Load reads, parses, defaults and validates a YAML configuration file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result. Unknown
// fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, types.NewConfigurationError(fmt.Sprintf("failed to parse YAML: %v", err)).
			WithOriginalErr(err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.CleanupPolicy == "" {
		c.CleanupPolicy = dual.CleanupBestEffort
	}
	if c.IDCacheLimit == 0 {
		c.IDCacheLimit = dual.DefaultIDCacheLimit
	}
	if c.Fetch.Priority == "" {
		c.Fetch.Priority = types.PriorityNormal.String()
	}
	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = DefaultEventsBufferSize
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.HTTP.MaxRetries == 0 {
		c.HTTP.MaxRetries = DefaultHTTPMaxRetries
	}

	for _, s := range []*StrategyConfig{c.Primary, c.Secondary} {
		if s == nil {
			continue
		}
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))
		if s.OAuth != nil && s.OAuth.AccessToken != "" && s.OAuth.TokenType == "" {
			s.OAuth.TokenType = "Bearer"
		}
	}
}

// Validate checks the configuration and returns a ConfigurationError
// describing the first problem found.
func (c *Config) Validate() error {
	if c.Primary == nil && c.Secondary == nil {
		return types.NewConfigurationError("at least one of primary and secondary must be configured")
	}

	if c.Primary != nil {
		if err := c.Primary.validate("primary"); err != nil {
			return err
		}
	}
	if c.Secondary != nil {
		if err := c.Secondary.validate("secondary"); err != nil {
			return err
		}
	}

	if _, err := types.ParsePriority(c.Fetch.Priority); err != nil {
		return types.NewConfigurationError("fetch: " + err.Error())
	}
	if c.Fetch.Width < 0 || c.Fetch.Height < 0 {
		return types.NewConfigurationError("fetch width and height must not be negative")
	}
	if c.Events.BufferSize < 0 {
		return types.NewConfigurationError("events.buffer_size must not be negative")
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return types.NewConfigurationError(err.Error())
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return types.NewConfigurationError(fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}
	if c.HTTP.Timeout < 0 {
		return types.NewConfigurationError("http.timeout must not be negative")
	}
	return nil
}

func (s *StrategyConfig) validate(slot string) error {
	fail := func(format string, args ...any) error {
		return types.NewConfigurationError(slot + ": " + fmt.Sprintf(format, args...))
	}

	switch s.Type {
	case StrategyTypeFile:
		if s.Root == "" {
			return fail("file strategy requires root")
		}
		if s.OAuth != nil || s.RateLimit != nil {
			return fail("oauth and rate_limit apply only to http strategies")
		}
	case StrategyTypeHTTP:
		if rl := s.RateLimit; rl != nil {
			if rl.RequestsPerSecond < 0 || rl.Burst < 0 {
				return fail("rate_limit values must not be negative")
			}
			if rl.LowPriorityThreshold < 0 || rl.LowPriorityThreshold > 1 {
				return fail("rate_limit.low_priority_threshold must be between 0 and 1")
			}
			if rl.LowPriorityThreshold > 0 && !rl.TrackServerLimits {
				return fail("rate_limit.low_priority_threshold requires track_server_limits")
			}
		}
		if o := s.OAuth; o != nil {
			if o.AccessToken == "" && (o.ClientID == "" || o.ClientSecret == "" || o.TokenURL == "") {
				return fail("oauth requires access_token or client_id, client_secret and token_url")
			}
		}
	case "":
		return fail("strategy type is required")
	default:
		return fail("unknown strategy type %q", s.Type)
	}
	return nil
}

// Strategies returns the configured slots keyed by name, for iteration
func (c *Config) Strategies() map[string]*StrategyConfig {
	out := make(map[string]*StrategyConfig, 2)
	if c.Primary != nil {
		out["primary"] = c.Primary
	}
	if c.Secondary != nil {
		out["secondary"] = c.Secondary
	}
	return out
}
