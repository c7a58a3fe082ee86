// Package config loads the service configuration from a YAML or JSON file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/domtech/lifeline/core/dispatch"
	"github.com/domtech/lifeline/infra/postgres"
	"github.com/domtech/lifeline/infra/webpush"
	"github.com/domtech/lifeline/infra/ws"
)

// ServerConfig holds the public HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `json:"addr"`
}

// AuthConfig holds credential verification settings.
type AuthConfig struct {
	// JWTSecret is the HS256 signing secret shared with the account service.
	JWTSecret string `json:"jwt_secret"`
}

// MetricsConfig selects the observability sinks.
type MetricsConfig struct {
	// PrometheusAddr exposes /metrics when non-empty, e.g. ":9090".
	PrometheusAddr string `json:"prometheus_addr"`
	// Influx enables the InfluxDB sink when URL is non-empty.
	InfluxURL    string `json:"influx_url"`
	InfluxToken  string `json:"influx_token"`
	InfluxOrg    string `json:"influx_org"`
	InfluxBucket string `json:"influx_bucket"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  postgres.Config `json:"database"`
	Auth      AuthConfig      `json:"auth"`
	Push      webpush.Config  `json:"push"`
	Dispatch  dispatch.Config `json:"dispatch"`
	WebSocket ws.Config       `json:"websocket"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// Load reads the file at path and applies LIFELINE_ environment overrides
// (LIFELINE_AUTH__JWT_SECRET maps to auth.jwt_secret).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("LIFELINE_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "lifeline_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Dispatch.SetDefaults()
	cfg.WebSocket.SetDefaults()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with. An empty
// database DSN is allowed and selects the in-memory store.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}
	return nil
}
