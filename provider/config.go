package provider

import (
	"net/url"
	"time"

	"github.com/tailored-agentic-units/relay/core/fault"
)

const (
	DefaultBaseURL = "https://api.coze.cn/v3"
	DefaultUserID  = "default_user"

	defaultTimeout       = 30 * time.Second
	defaultStreamTimeout = 60 * time.Second
	defaultUserAgent     = "relay/1.0"
)

// Config holds provider connection parameters.
type Config struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	BotID   string `json:"bot_id,omitempty" yaml:"bot_id,omitempty"`
	// UserID is used when a request names no user.
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	// Timeout bounds each non-streaming call.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// StreamTimeout bounds the wait for stream response headers.
	StreamTimeout time.Duration `json:"stream_timeout,omitempty" yaml:"stream_timeout,omitempty"`
	// RequestsPerSecond limits upstream calls. Zero disables limiting.
	RequestsPerSecond  float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	InsecureSkipVerify bool    `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	UserAgent          string  `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
}

// DefaultConfig returns the default provider configuration. Token and BotID
// have no defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		UserID:        DefaultUserID,
		Timeout:       defaultTimeout,
		StreamTimeout: defaultStreamTimeout,
		UserAgent:     defaultUserAgent,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Token != "" {
		c.Token = source.Token
	}
	if source.BotID != "" {
		c.BotID = source.BotID
	}
	if source.UserID != "" {
		c.UserID = source.UserID
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.StreamTimeout > 0 {
		c.StreamTimeout = source.StreamTimeout
	}
	if source.RequestsPerSecond > 0 {
		c.RequestsPerSecond = source.RequestsPerSecond
	}
	if source.InsecureSkipVerify {
		c.InsecureSkipVerify = true
	}
	if source.UserAgent != "" {
		c.UserAgent = source.UserAgent
	}
}

// Validate reports missing credentials or a malformed base URL as a
// configuration fault.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fault.Configuration("provider.Validate", "api token is required")
	}
	if c.BotID == "" {
		return fault.Configuration("provider.Validate", "bot id is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fault.Configuration("provider.Validate", "invalid base url %q", c.BaseURL)
	}
	return nil
}
