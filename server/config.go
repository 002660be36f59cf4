package server

import (
	"net"
	"strconv"
	"time"
)

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 6001
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxRequestSize  = 10 << 20
)

// Config holds HTTP listener parameters.
type Config struct {
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`
	// AllowedOrigins lists CORS origins. "*" allows any origin.
	AllowedOrigins  []string      `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
	// MaxRequestSize caps request bodies in bytes.
	MaxRequestSize int64 `json:"max_request_size,omitempty" yaml:"max_request_size,omitempty"`
	// Debug runs gin in debug mode.
	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// DefaultConfig returns the default listener configuration.
func DefaultConfig() Config {
	return Config{
		Host:            defaultHost,
		Port:            defaultPort,
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: defaultShutdownTimeout,
		MaxRequestSize:  defaultMaxRequestSize,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Host != "" {
		c.Host = source.Host
	}
	if source.Port > 0 {
		c.Port = source.Port
	}
	if len(source.AllowedOrigins) > 0 {
		c.AllowedOrigins = source.AllowedOrigins
	}
	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}
	if source.MaxRequestSize > 0 {
		c.MaxRequestSize = source.MaxRequestSize
	}
	if source.Debug {
		c.Debug = true
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
