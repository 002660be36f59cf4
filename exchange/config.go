package exchange

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/relay/poll"
	"github.com/tailored-agentic-units/relay/provider"
	"github.com/tailored-agentic-units/relay/session"
)

const (
	defaultStreamTimeout = 60 * time.Second
	defaultObserver      = "slog"
)

// Config holds initialization parameters for all exchange subsystems. Each
// section delegates to that subsystem's config-driven constructor.
type Config struct {
	Provider provider.Config `json:"provider" yaml:"provider"`
	Session  session.Config  `json:"session" yaml:"session"`
	Poll     poll.Config     `json:"poll" yaml:"poll"`
	// StreamTimeout bounds a whole streaming exchange.
	StreamTimeout time.Duration `json:"stream_timeout,omitempty" yaml:"stream_timeout,omitempty"`
	// DefaultUserID is used when neither the request nor the session names
	// a user. Empty generates one per session.
	DefaultUserID string `json:"default_user_id,omitempty" yaml:"default_user_id,omitempty"`
	// Observer is a comma-separated list of registered observer names.
	Observer string `json:"observer,omitempty" yaml:"observer,omitempty"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Provider:      provider.DefaultConfig(),
		Session:       session.DefaultConfig(),
		Poll:          poll.DefaultConfig(),
		StreamTimeout: defaultStreamTimeout,
		Observer:      defaultObserver,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Provider.Merge(&source.Provider)
	c.Session.Merge(&source.Session)
	c.Poll.Merge(&source.Poll)

	if source.StreamTimeout > 0 {
		c.StreamTimeout = source.StreamTimeout
	}
	if source.DefaultUserID != "" {
		c.DefaultUserID = source.DefaultUserID
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// Validate checks the configuration required to serve exchanges.
func (c *Config) Validate() error {
	return c.Provider.Validate()
}

// ObserverNames splits Observer into its registered names.
func (c *Config) ObserverNames() []string {
	var names []string
	for name := range strings.SplitSeq(c.Observer, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ApplyEnv overrides provider settings from the environment. lookup is
// usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("COZE_API_TOKEN"); ok && v != "" {
		c.Provider.Token = v
	}
	if v, ok := lookup("COZE_BOT_ID"); ok && v != "" {
		c.Provider.BotID = v
	}
	if v, ok := lookup("COZE_BASE_URL"); ok && v != "" {
		c.Provider.BaseURL = v
	}
	if v, ok := lookup("COZE_USER_ID"); ok && v != "" {
		c.Provider.UserID = v
	}
}

// LoadConfig reads a YAML config file, merges it with defaults, and returns
// the resulting Config. JSON files are accepted as well.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
