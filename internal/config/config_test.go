package config

import (
	"os"
	"path/filepath"
	"testing"

	"storekit/internal/journal"
	"storekit/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	path := writeConfig(t, `
listen: "127.0.0.1:9090"
mode: replace
log_level: debug
read_only: true
journal_size: 16
seed_url: "http://seed.local/doc.json"
middleware: [logger, guard]
rules:
  - name: count_non_negative
    expr: "!has(state.count) || state.count >= 0.0"
    message: count cannot go below zero
initial_state:
  count: 0
  owner: ada
`)

	cfg, err := Load(path, logger)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)
	assert.Equal(t, store.ModeReplace, cfg.StoreMode())
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, 16, cfg.JournalSize)
	assert.Equal(t, []string{"logger", "guard"}, cfg.Middleware)

	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "count_non_negative", cfg.Rules[0].Name)
	assert.Equal(t, "!has(state.count) || state.count >= 0.0", cfg.Rules[0].Expression)
	assert.Equal(t, "count cannot go below zero", cfg.Rules[0].Message)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	doc, err := cfg.Document()
	require.NoError(t, err)
	assert.Equal(t, store.Map{"count": 0.0, "owner": "ada"}, doc)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"), nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, store.ModeMerge, cfg.StoreMode())
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, journal.DefaultSize, cfg.JournalSize)
	assert.Equal(t, DefaultMiddleware, cfg.Middleware)
	assert.NotNil(t, cfg.InitialState)

	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyMiddlewareListIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "middleware: []\n"), nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Middleware)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "listen: [unclosed\n"), nil)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoad_NoPath(t *testing.T) {
	cfg, err := Load("", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvListen, ":7070")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvReadOnly, "true")
	t.Setenv(EnvSeedURL, "https://example.test/seed")
	t.Setenv(EnvDevelopment, "1")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, "https://example.test/seed", cfg.SeedURL)
	assert.True(t, cfg.Development)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_InvalidBool(t *testing.T) {
	t.Setenv(EnvReadOnly, "sometimes")
	err := Default().ApplyEnv()
	assert.ErrorContains(t, err, EnvReadOnly)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"bad mode", func(c *Config) { c.Mode = "append" }, "unknown store mode"},
		{"bad listen", func(c *Config) { c.Listen = "8080" }, "invalid listen address"},
		{"negative journal", func(c *Config) { c.JournalSize = -1 }, "journal_size"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"bad seed", func(c *Config) { c.SeedURL = "ftp://seed" }, "seed_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}
