package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhaobenny/ccwatch/internal/parser"
	"github.com/zhaobenny/ccwatch/internal/pricing"
)

const (
	DefaultInterval   = 5 * time.Second
	DefaultMinRefresh = time.Second
	DefaultLogLevel   = "warn"
)

// Config holds the CLI configuration
type Config struct {
	Root       string         `yaml:"root,omitempty"`
	Interval   time.Duration  `yaml:"interval,omitempty"`
	MinRefresh time.Duration  `yaml:"min_refresh,omitempty"`
	Suffix     string         `yaml:"suffix,omitempty"`
	Watch      bool           `yaml:"watch,omitempty"`
	Workers    int            `yaml:"workers,omitempty"`
	LogLevel   string         `yaml:"log_level,omitempty"`
	Rates      *pricing.Rates `yaml:"rates,omitempty"`
}

// DefaultPath returns the path to the config file
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ccwatch.yaml"), nil
}

// DefaultRoot returns the Claude Code projects directory, honoring CLAUDE_CONFIG_DIR
func DefaultRoot() (string, error) {
	if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "projects"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

// Load loads the configuration from path. A missing file yields an empty Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// Save saves the configuration to path
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// WithDefaults returns a copy of cfg with every unset field filled in
func (c Config) WithDefaults() (Config, error) {
	if c.Root == "" {
		root, err := DefaultRoot()
		if err != nil {
			return c, fmt.Errorf("locating usage logs: %w", err)
		}
		c.Root = root
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.MinRefresh == 0 {
		c.MinRefresh = DefaultMinRefresh
	}
	if c.Suffix == "" {
		c.Suffix = parser.DefaultSuffix
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Rates == nil {
		r := pricing.DefaultRates
		c.Rates = &r
	}
	return c, nil
}

// Validate reports settings the refresh loop cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.MinRefresh < 0 {
		errs = append(errs, fmt.Errorf("min_refresh must not be negative, got %s", c.MinRefresh))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if r := c.Rates; r != nil && (r.Input < 0 || r.Output < 0 || r.CacheCreation < 0 || r.CacheRead < 0) {
		errs = append(errs, errors.New("rates must not be negative"))
	}
	return errors.Join(errs...)
}
