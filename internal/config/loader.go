package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/azkit/internal/errdefs"
)

// EnvConfigDir overrides the config directory search.
const EnvConfigDir = "AZKIT_CONFIG_DIR"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads config.yaml from path, which may be the file itself or the
// directory holding it. ${VAR} references are expanded from the environment.
// When a .checksums manifest sits next to the file, config.yaml must match it.
func Load(path string) (*Config, error) {
	return load(path, true)
}

// LoadUnverified loads like Load but skips the .checksums check, for tools
// that are about to rewrite the lock.
func LoadUnverified(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, verify bool) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config-dir", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", absPath, err)
	}

	root := filepath.Dir(absPath)
	if verify {
		if err := verifyConfigHash(root, absPath); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	interpolated := interpolateEnv(string(data))
	dec := yaml.NewDecoder(strings.NewReader(interpolated))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err == nil && node.Kind == yaml.DocumentNode {
		cfg.source = &node
	}
	cfg.Root = root
	cfg.SourceFile = absPath

	applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfigDir finds the config directory.
// Priority order: flagDir, $AZKIT_CONFIG_DIR, ~/.config/azkit, ./config.yaml.
func DiscoverConfigDir(flagDir string) (string, error) {
	if flagDir != "" {
		if _, err := os.Stat(flagDir); err != nil {
			return "", fmt.Errorf("config dir %s: %w", flagDir, err)
		}
		return flagDir, nil
	}

	if dir := os.Getenv(EnvConfigDir); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "azkit")
		if fileExists(filepath.Join(userConfigDir, "config.yaml")) {
			return userConfigDir, nil
		}
	}

	if fileExists("config.yaml") {
		return ".", nil
	}

	return "", fmt.Errorf("%w: no config found (checked: --config-dir, $%s, ~/.config/azkit, ./config.yaml)",
		errdefs.ErrMissingResource, EnvConfigDir)
}

// Profile returns the named profile. An empty name selects defaults.profile.
func (c *Config) Profile(name string) (string, Profile, error) {
	if name == "" {
		name = c.Defaults.Profile
	}
	if name == "" {
		return "", Profile{}, fmt.Errorf("%w: no profile given and defaults.profile is unset", errdefs.ErrValidation)
	}
	p, ok := c.Profiles[name]
	if !ok {
		return "", Profile{}, fmt.Errorf("%w: profile %q not found (available: %s)",
			errdefs.ErrValidation, name, strings.Join(c.ProfileNames(), ", "))
	}
	return name, p, nil
}

// ProfileNames returns the sorted profile names.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatePath returns state.path with ~ expanded and relative paths resolved
// against the config directory.
func (c *Config) StatePath() string {
	return expandPath(c.State.Path, c.Root)
}

// RefreshAttempts returns the profile's refresh budget.
func (p Profile) RefreshAttempts() int {
	if p.MaxRefreshAttempts == nil {
		return defaultRefreshBudget
	}
	return *p.MaxRefreshAttempts
}

func applyConfigDefaults(cfg *Config) {
	if cfg.State.Path == "" {
		cfg.State.Path = defaultStatePath
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	for name, p := range cfg.Profiles {
		if p.Timeout == 0 {
			p.Timeout = defaultTimeout
		}
		cfg.Profiles[name] = p
	}
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	for _, name := range cfg.ProfileNames() {
		p := cfg.Profiles[name]
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("profiles.%s.url is required", name)
		}
		if envVarPattern.MatchString(p.URL) || envVarPattern.MatchString(p.SessionID) {
			return fmt.Errorf("profiles.%s references an unset environment variable", name)
		}
		if p.MaxRefreshAttempts != nil && *p.MaxRefreshAttempts < 0 {
			return fmt.Errorf("profiles.%s.max_refresh_attempts must not be negative", name)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("profiles.%s.timeout must not be negative", name)
		}
	}
	if cfg.Defaults.Profile != "" {
		if _, ok := cfg.Profiles[cfg.Defaults.Profile]; !ok {
			return fmt.Errorf("defaults.profile %q does not match any profile", cfg.Defaults.Profile)
		}
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel)
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func expandPath(path, base string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}
	return path
}

func verifyConfigHash(root, path string) error {
	if !fileExists(filepath.Join(root, checksumFile)) {
		return nil
	}
	manifest, err := LoadChecksums(root)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	expected, ok := manifest.Hashes[filepath.ToSlash(rel)]
	if !ok {
		return fmt.Errorf("%s has no hash in %s (run 'azkit config lock')", rel, checksumFile)
	}
	if err := VerifyFileHash(path, expected); err != nil {
		return fmt.Errorf("config verification failed: %w\n"+
			"If you edited this file intentionally, run: azkit config lock", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Marshal renders the effective configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf.Bytes(), nil
}
