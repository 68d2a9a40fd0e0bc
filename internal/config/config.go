package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// DefaultRegistryURL is the public registry consulted by install flows.
const DefaultRegistryURL = "https://raw.githubusercontent.com/OJamals/mcp-registry/main/registry.json"

// Settings is the top-level TOML structure of the optional tool settings
// file. Every field has a usable default; the file only overrides.
type Settings struct {
	Registry  RegistryConfig  `toml:"registry" mapstructure:"registry"`
	Safety    SafetyConfig    `toml:"safety" mapstructure:"safety"`
	Lifecycle LifecycleConfig `toml:"lifecycle" mapstructure:"lifecycle"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
	Match     MatchConfig     `toml:"match" mapstructure:"match"`
}

type RegistryConfig struct {
	URL      string        `toml:"url" mapstructure:"url"`
	CacheTTL time.Duration `toml:"cache_ttl" mapstructure:"cache_ttl"`
}

type SafetyConfig struct {
	// MaxProcessAge is the stop gate's age ceiling: a matched process older
	// than this is refused termination as a likely false positive.
	MaxProcessAge   time.Duration `toml:"max_process_age" mapstructure:"max_process_age"`
	ExtraExclusions []string      `toml:"extra_exclusions" mapstructure:"extra_exclusions"`
}

type LifecycleConfig struct {
	GracePeriod time.Duration `toml:"grace_period" mapstructure:"grace_period"`
	SettleDelay time.Duration `toml:"settle_delay" mapstructure:"settle_delay"`
	PacingDelay time.Duration `toml:"pacing_delay" mapstructure:"pacing_delay"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// MatchConfig carries user-declared signature rules merged over the
// built-in rule table.
type MatchConfig struct {
	Rules []RuleConfig `toml:"rules" mapstructure:"rules"`
}

type RuleConfig struct {
	Name      string   `toml:"name" mapstructure:"name"`
	Patterns  []string `toml:"patterns" mapstructure:"patterns"`
	Confirm   []string `toml:"confirm" mapstructure:"confirm"`
	Exclusive bool     `toml:"exclusive" mapstructure:"exclusive"`
}

// Default returns settings with all built-in values filled in.
func Default() Settings {
	s := Settings{
		Registry: RegistryConfig{
			URL:      DefaultRegistryURL,
			CacheTTL: time.Hour,
		},
		Safety: SafetyConfig{
			MaxProcessAge: 24 * time.Hour,
		},
		Lifecycle: LifecycleConfig{
			GracePeriod: 3 * time.Second,
			SettleDelay: 2 * time.Second,
			PacingDelay: time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
	if home, err := os.UserHomeDir(); err == nil {
		s.Log.Dir = filepath.Join(home, ".cursor", "mcp-logs")
	}
	return s
}

// DefaultPath returns the settings file location
// (~/.config/mcpman/config.toml).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mcpman", "config.toml"), nil
}

// Load reads settings from path. An empty path falls back to the
// MCPMAN_SETTINGS environment variable and then to DefaultPath; a missing
// default file is not an error (defaults apply). An explicitly given path,
// by flag or environment, must exist.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		path = os.Getenv("MCPMAN_SETTINGS")
	}
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return s, nil
		}
		if _, err := os.Stat(p); err != nil {
			return s, nil
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(filepath.Clean(path))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.Registry.CacheTTL < 0 {
		return fmt.Errorf("registry.cache_ttl must not be negative")
	}
	if s.Safety.MaxProcessAge <= 0 {
		return fmt.Errorf("safety.max_process_age must be positive")
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"lifecycle.grace_period", s.Lifecycle.GracePeriod},
		{"lifecycle.settle_delay", s.Lifecycle.SettleDelay},
		{"lifecycle.pacing_delay", s.Lifecycle.PacingDelay},
	} {
		if d.v < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}
	for i, r := range s.Match.Rules {
		if r.Name == "" {
			return fmt.Errorf("match.rules[%d]: name is required", i)
		}
	}
	return nil
}
