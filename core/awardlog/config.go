package awardlog

import "fmt"

// Config selects the award log backend.
type Config struct {
	Backend    string `json:"backend" validate:"omitempty,oneof=none jsonl sqlite"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" validate:"gte=0"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.Path == "" {
		switch c.Backend {
		case "jsonl":
			c.Path = "awards.jsonl"
		case "sqlite":
			c.Path = "awards.db"
		}
	}
}

// Open builds the configured store.
func Open(c Config) (Store, error) {
	switch c.Backend {
	case "", "none":
		return NopStore{}, nil
	case "jsonl":
		return NewJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups)
	case "sqlite":
		return NewSQLiteStore(c.Path)
	default:
		return nil, fmt.Errorf("award log: unknown backend %q", c.Backend)
	}
}
