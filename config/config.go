package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/cnp-delivery/core/agent"
	"github.com/kilianp07/cnp-delivery/core/awardlog"
	"github.com/kilianp07/cnp-delivery/core/metrics"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
	"github.com/kilianp07/cnp-delivery/core/sim"
	"github.com/kilianp07/cnp-delivery/infra/monitoring"
	"github.com/kilianp07/cnp-delivery/infra/mqtt"
	"github.com/kilianp07/cnp-delivery/infra/tracing"
)

// EnvPrefix prefixes environment overrides. Nested keys use "__", e.g.
// CNP_SIMULATION__NUM_AGENTS=5.
const EnvPrefix = "CNP_"

type Config struct {
	Simulation sim.Config              `json:"simulation"`
	Map        roadmap.RegionConfig    `json:"map"`
	Agent      agent.Config            `json:"agent"`
	Metrics    metrics.Config          `json:"metrics"`
	MQTT       mqtt.Config             `json:"mqtt"`
	AwardLog   awardlog.Config         `json:"award_log"`
	HTTP       HTTPConfig              `json:"http"`
	Tracing    tracing.Config          `json:"tracing"`
	Sentry     monitoring.SentryConfig `json:"sentry"`
}

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token, when set, must be sent as a bearer token on control requests.
	Token string `json:"token"`
	// CORSOrigin is echoed in Access-Control-Allow-Origin when set.
	CORSOrigin string `json:"cors_origin"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !isNotExist(err) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the file at path, applies CNP_ environment overrides, fills
// defaults and validates the result. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
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
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	// Keys absent from file and environment keep their defaults; explicit
	// zeros overwrite them.
	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := Config{
		Simulation: sim.DefaultConfig(),
		Map:        roadmap.DefaultRegionConfig(),
		Agent:      agent.DefaultConfig(),
	}
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Simulation.SetDefaults()
	c.Map.SetDefaults()
	c.Agent.SetDefaults()
	c.MQTT.SetDefaults()
	c.AwardLog.SetDefaults()
	c.HTTP.SetDefaults()
	c.Tracing.SetDefaults()
}

// Validate runs the struct tag rules, then the checks each section owns.
func (c *Config) Validate() error {
	if err := NewValidator().Validate(c); err != nil {
		return err
	}
	return errors.Join(
		c.Simulation.Validate(),
		c.Metrics.Validate(),
	)
}
