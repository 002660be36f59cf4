package poll

import "time"

// DefaultGreeting is returned when no reply could be recovered for an
// exchange.
const DefaultGreeting = "你好呀～ 很高兴能成为你的心理陪伴伙伴～ 不管你现在是什么心情，有什么想聊的，都可以告诉我，我会一直在这里倾听和陪伴你～"

const (
	defaultInterval = time.Second
	defaultTimeout  = 60 * time.Second
	defaultLimit    = 30
)

// Config holds reply-polling parameters.
type Config struct {
	Interval        time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	Timeout         time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Limit           int           `json:"limit,omitempty" yaml:"limit,omitempty"`
	DefaultGreeting string        `json:"default_greeting,omitempty" yaml:"default_greeting,omitempty"`
}

// DefaultConfig returns the polling defaults: one listing per second for at
// most sixty seconds, thirty messages per listing.
func DefaultConfig() Config {
	return Config{
		Interval:        defaultInterval,
		Timeout:         defaultTimeout,
		Limit:           defaultLimit,
		DefaultGreeting: DefaultGreeting,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Interval > 0 {
		c.Interval = source.Interval
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.Limit > 0 {
		c.Limit = source.Limit
	}
	if source.DefaultGreeting != "" {
		c.DefaultGreeting = source.DefaultGreeting
	}
}
