package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accessConfig = `log_level: info
defaults:
  profile: prod
profiles:
  prod:
    url: https://alice@azkaban.example.com
    max_refresh_attempts: 2
`

func loadAccessConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "config.yaml"), accessConfig)
	cfg, err := Load(dir)
	require.NoError(t, err)
	return cfg
}

func TestGetPath(t *testing.T) {
	cfg := loadAccessConfig(t)

	tests := []struct {
		name    string
		path    string
		want    any
		wantErr bool
	}{
		{name: "root field", path: "log_level", want: "info"},
		{name: "nested profile field", path: "profiles.prod.url", want: "https://alice@azkaban.example.com"},
		{name: "integer field", path: "profiles.prod.max_refresh_attempts", want: 2},
		{name: "missing key", path: "profiles.staging.url", wantErr: true},
		{name: "through scalar", path: "log_level.deeper", wantErr: true},
		{name: "profile addressing", path: "profile:prod", want: cfg.Profiles["prod"]},
		{name: "unknown profile addressing", path: "profile:nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.GetPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetPathPersists(t *testing.T) {
	cfg := loadAccessConfig(t)

	require.NoError(t, cfg.SetPath("profiles.prod.session_id", "tok-1", true))
	require.NoError(t, cfg.SetPath("profiles.dev.url", "http://localhost:8081", true))

	reloaded, err := Load(cfg.SourceFile)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", reloaded.Profiles["prod"].SessionID)
	assert.Equal(t, "http://localhost:8081", reloaded.Profiles["dev"].URL)
	assert.Equal(t, 2, reloaded.Profiles["prod"].RefreshAttempts())
}

func TestSetPathRollsBackInvalidChange(t *testing.T) {
	cfg := loadAccessConfig(t)
	before, err := os.ReadFile(cfg.SourceFile)
	require.NoError(t, err)

	err = cfg.SetPath("profiles.prod.max_refresh_attempts", "-3", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	after, err := os.ReadFile(cfg.SourceFile)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSetPathWithoutPersistLeavesFile(t *testing.T) {
	cfg := loadAccessConfig(t)
	require.NoError(t, cfg.SetPath("log_level", "debug", false))

	data, err := os.ReadFile(cfg.SourceFile)
	require.NoError(t, err)
	assert.Equal(t, accessConfig, string(data))
}

func TestGuessTag(t *testing.T) {
	assert.Equal(t, "!!bool", guessTag("true"))
	assert.Equal(t, "!!int", guessTag("-12"))
	assert.Equal(t, "!!str", guessTag("-"))
	assert.Equal(t, "!!str", guessTag("30s"))
}
