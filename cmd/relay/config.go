package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/relay/exchange"
	"github.com/tailored-agentic-units/relay/server"
)

// config is the file layout read by serve and chat: exchange settings at the
// top level and listener settings under "server".
type config struct {
	exchange.Config `yaml:",inline"`
	Server          server.Config `yaml:"server"`
}

func defaultConfig() config {
	return config{
		Config: exchange.DefaultConfig(),
		Server: server.DefaultConfig(),
	}
}

// loadConfig merges defaults, the optional config file and the environment,
// in that order.
func loadConfig(filename string, lookup func(string) (string, bool)) (config, error) {
	cfg := defaultConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		var loaded config
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.Config.Merge(&loaded.Config)
		cfg.Server.Merge(&loaded.Server)
	}

	cfg.Config.ApplyEnv(lookup)
	if err := applyServerEnv(&cfg.Server, lookup); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyServerEnv(cfg *server.Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("SERVER_HOST"); ok && v != "" {
		cfg.Host = v
	}
	if v, ok := lookup("SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid SERVER_PORT %q", v)
		}
		cfg.Port = port
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG %q", v)
		}
		cfg.Debug = debug
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for origin := range strings.SplitSeq(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		cfg.AllowedOrigins = origins
	}
	return nil
}
