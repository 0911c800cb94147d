package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete azkit configuration.
type Config struct {
	LogLevel string             `yaml:"log_level"`
	State    StateConfig        `yaml:"state"`
	Defaults DefaultsConfig     `yaml:"defaults"`
	Profiles map[string]Profile `yaml:"profiles"`

	// Root is the directory config.yaml was loaded from.
	Root string `yaml:"-"`
	// SourceFile is the absolute path of config.yaml.
	SourceFile string `yaml:"-"`

	source *yaml.Node
}

// StateConfig defines local state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// DefaultsConfig holds fallbacks for command-line selections.
type DefaultsConfig struct {
	Profile string `yaml:"profile,omitempty"`
}

// Profile is a named remote endpoint.
type Profile struct {
	// URL is the endpoint, optionally with an embedded user (user@url).
	URL string `yaml:"url"`
	// SessionID seeds the session and avoids a login when still valid.
	SessionID          string        `yaml:"session_id,omitempty"`
	MaxRefreshAttempts *int          `yaml:"max_refresh_attempts,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty"`
}

// ChecksumManifest is the content of a .checksums file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// IntegrityResult collects the outcome of VerifyIntegrity.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}

const (
	defaultTimeout       = 60 * time.Second
	defaultStatePath     = "~/.local/state/azkit/history.db"
	defaultRefreshBudget = 1
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LogLevel: "warn",
		State: StateConfig{
			Path: defaultStatePath,
		},
		Profiles: make(map[string]Profile),
	}
}
