// Package config loads the project configuration from .delegate/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ldi/delegate/pkg/models"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	// Dir is the per-project directory holding the database, snapshot and
	// config file.
	Dir = ".delegate"

	DefaultPath = Dir + "/config.yaml"
)

type Config struct {
	DBPath       string `yaml:"db_path"`
	SnapshotPath string `yaml:"snapshot_path"`

	// Addr is where `delegate serve` listens.
	Addr string `yaml:"addr"`

	// RemoteURL points clients at a running server instead of the local
	// store.
	RemoteURL      string `yaml:"remote_url,omitempty"`
	RequestTimeout string `yaml:"request_timeout"`

	Logging LoggingConfig  `yaml:"logging"`
	Team    []MemberConfig `yaml:"team"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// MemberConfig is a team member seeded into the store on init.
type MemberConfig struct {
	Name   string   `yaml:"name"`
	Email  string   `yaml:"email,omitempty"`
	Role   string   `yaml:"role"`
	Skills []string `yaml:"skills"`
}

func DefaultConfig() *Config {
	return &Config{
		DBPath:         filepath.Join(Dir, "delegate.db"),
		SnapshotPath:   filepath.Join(Dir, "snapshot.jsonl"),
		Addr:           ":8000",
		RequestTimeout: "30s",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SampleTeam is written into fresh configs so a new project has someone to
// delegate to.
func SampleTeam() []MemberConfig {
	return []MemberConfig{
		{Name: "Priya", Role: "Product Manager", Skills: []string{"planning", "project management", "strategy"}},
		{Name: "Diego", Role: "Designer", Skills: []string{"ui design", "ux research", "content"}},
		{Name: "Mei", Role: "Engineer", Skills: []string{"frontend", "react", "backend", "api"}},
		{Name: "Sam", Role: "QA Engineer", Skills: []string{"qa", "testing", "review"}},
	}
}

// Load reads the config at path. A missing file yields the defaults.
// Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DELEGATE_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("DELEGATE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("DELEGATE_REMOTE_URL"); v != "" {
		c.RemoteURL = v
	}
	if v := os.Getenv("DELEGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("invalid config: db_path is required")
	}
	if c.Addr == "" {
		return fmt.Errorf("invalid config: addr is required")
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid config: logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid config: logging.format must be console or json, got %q", c.Logging.Format)
	}

	seen := make(map[string]bool)
	for i, m := range c.Team {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return fmt.Errorf("invalid config: team[%d] has no name", i)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("invalid config: team member %q listed twice", name)
		}
		seen[key] = true
	}
	return nil
}

// Timeout is the parsed request timeout for remote clients.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid config: request_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid config: request_timeout must be positive")
	}
	return d, nil
}

// Members converts the configured team to roster entries.
func (c *Config) Members() []*models.TeamMember {
	out := make([]*models.TeamMember, 0, len(c.Team))
	for _, m := range c.Team {
		out = append(out, &models.TeamMember{
			Name:   strings.TrimSpace(m.Name),
			Email:  m.Email,
			Role:   m.Role,
			Skills: append([]string(nil), m.Skills...),
		})
	}
	return out
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
