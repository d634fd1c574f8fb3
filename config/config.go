// Package config loads winlint settings from file and environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jonchun/winlint/catalog"
	"github.com/jonchun/winlint/parser"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	configDirName  = "winlint"
)

// Config for winlint. Pointer fields; nil = unset.
type Config struct {
	Dialect   *string           `yaml:"dialect"`
	RuleDir   *string           `yaml:"rule_dir"`
	Disable   []string          `yaml:"disable"`
	Severity  map[string]string `yaml:"severity"`
	Color     *string           `yaml:"color"`
	BatchJobs *int              `yaml:"batch_jobs"`
}

// LoadFrom loads config from path. Missing files return zero Config, nil.
func LoadFrom(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Load() (Config, error) {
	return LoadFrom(DefaultPath())
}

func (c *Config) applyEnvOverrides() error {
	if v, ok := os.LookupEnv("WINLINT_DIALECT"); ok {
		c.Dialect = &v
	}
	if v, ok := os.LookupEnv("WINLINT_RULE_DIR"); ok {
		c.RuleDir = &v
	}
	if v, ok := os.LookupEnv("WINLINT_DISABLE"); ok {
		c.Disable = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Disable = append(c.Disable, p)
			}
		}
	}
	if v, ok := os.LookupEnv("WINLINT_COLOR"); ok {
		c.Color = &v
	}
	if v, ok := os.LookupEnv("WINLINT_BATCH_JOBS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse WINLINT_BATCH_JOBS: %w", err)
		}
		c.BatchJobs = &n
	}
	return nil
}

func (c *Config) validate() error {
	if c.Dialect != nil {
		if _, err := parser.ParseDialect(*c.Dialect); err != nil {
			return fmt.Errorf("dialect: %w", err)
		}
	}
	if c.Color != nil {
		switch *c.Color {
		case "auto", "on", "off":
		default:
			return fmt.Errorf("color must be auto, on or off, got %q", *c.Color)
		}
	}
	if c.BatchJobs != nil && *c.BatchJobs <= 0 {
		return fmt.Errorf("batch_jobs must be positive, got %d", *c.BatchJobs)
	}
	if c.BatchJobs != nil && *c.BatchJobs > 1024 {
		return fmt.Errorf("batch_jobs must not exceed 1024, got %d", *c.BatchJobs)
	}
	for _, p := range c.Disable {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("disable: invalid rule pattern %q", p)
		}
	}
	for id, sev := range c.Severity {
		if _, err := catalog.ParseSeverity(sev); err != nil {
			return fmt.Errorf("severity.%s: %w", id, err)
		}
	}
	return nil
}

// DialectValue returns the configured dialect, DialectAuto when unset.
func (c Config) DialectValue() parser.Dialect {
	if c.Dialect == nil {
		return parser.DialectAuto
	}
	d, _ := parser.ParseDialect(*c.Dialect)
	return d
}

// SeverityOverrides converts the validated severity map.
func (c Config) SeverityOverrides() map[string]catalog.Severity {
	if len(c.Severity) == 0 {
		return nil
	}
	out := make(map[string]catalog.Severity, len(c.Severity))
	for id, sev := range c.Severity {
		parsed, _ := catalog.ParseSeverity(sev)
		out[id] = parsed
	}
	return out
}

// DefaultPath is $XDG_CONFIG_HOME/winlint/config.yaml, falling back to ~/.config.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, configDirName, configFileName)
}
