package session

import "time"

const (
	defaultMinConversationIDLength = 10
	defaultSweepInterval           = time.Minute
)

// Config holds session registry parameters.
type Config struct {
	// MinConversationIDLength is the shortest conversation id Bind and
	// Resolve accept.
	MinConversationIDLength int `json:"min_conversation_id_length,omitempty" yaml:"min_conversation_id_length,omitempty"`
	// IdleTimeout removes records idle for longer than this. Zero keeps
	// records until they are cleared.
	IdleTimeout   time.Duration `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
	SweepInterval time.Duration `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		MinConversationIDLength: defaultMinConversationIDLength,
		SweepInterval:           defaultSweepInterval,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MinConversationIDLength > 0 {
		c.MinConversationIDLength = source.MinConversationIDLength
	}
	if source.IdleTimeout > 0 {
		c.IdleTimeout = source.IdleTimeout
	}
	if source.SweepInterval > 0 {
		c.SweepInterval = source.SweepInterval
	}
}

// New creates a Registry from configuration.
func New(cfg *Config, opts ...Option) *Registry {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}
	return NewRegistry(merged, opts...)
}
