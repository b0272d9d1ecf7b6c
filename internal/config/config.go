// Package config loads the storekitd configuration from a YAML file and the
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"storekit/internal/guard"
	"storekit/internal/journal"
	"storekit/internal/store"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the config file to load
const EnvConfig = "STOREKIT_CONFIG"

// Environment variables that override file settings
const (
	EnvListen      = "STOREKIT_LISTEN"
	EnvLogLevel    = "STOREKIT_LOG_LEVEL"
	EnvReadOnly    = "STOREKIT_READ_ONLY"
	EnvSeedURL     = "STOREKIT_SEED_URL"
	EnvDevelopment = "STOREKIT_DEVELOPMENT"
)

// Defaults applied to unset fields
const (
	DefaultListen   = ":8080"
	DefaultMode     = "merge"
	DefaultLogLevel = "info"
)

// DefaultMiddleware is the chain used when the file names none
var DefaultMiddleware = []string{"metrics", "logger", "guard"}

// Config is the daemon configuration
type Config struct {
	Listen       string         `yaml:"listen"`
	Mode         string         `yaml:"mode"`
	LogLevel     string         `yaml:"log_level"`
	Development  bool           `yaml:"development"`
	ReadOnly     bool           `yaml:"read_only"`
	JournalSize  int            `yaml:"journal_size"`
	SeedURL      string         `yaml:"seed_url"`
	Middleware   []string       `yaml:"middleware"`
	Rules        []guard.Rule   `yaml:"rules"`
	InitialState map[string]any `yaml:"initial_state"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. An empty path yields the defaults.
// Environment overrides are not applied; call ApplyEnv for that.
func Load(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		logger.Info("Config loaded",
			zap.String("path", path),
			zap.Int("rules", len(cfg.Rules)),
			zap.Int("initial_keys", len(cfg.InitialState)))
	} else {
		logger.Info("No config file given, using defaults")
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.JournalSize == 0 {
		c.JournalSize = journal.DefaultSize
	}
	if c.Middleware == nil {
		c.Middleware = append([]string(nil), DefaultMiddleware...)
	}
	if c.InitialState == nil {
		c.InitialState = map[string]any{}
	}
}

// ApplyEnv overrides fields from STOREKIT_* variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvSeedURL); v != "" {
		c.SeedURL = v
	}
	if v := os.Getenv(EnvReadOnly); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvReadOnly, err)
		}
		c.ReadOnly = b
	}
	if v := os.Getenv(EnvDevelopment); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDevelopment, err)
		}
		c.Development = b
	}
	return nil
}

// Validate checks the settings that would otherwise fail late
func (c *Config) Validate() error {
	if _, err := store.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.JournalSize < 0 {
		return fmt.Errorf("journal_size must not be negative, got %d", c.JournalSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.SeedURL != "" && !strings.HasPrefix(c.SeedURL, "http://") && !strings.HasPrefix(c.SeedURL, "https://") {
		return fmt.Errorf("seed_url must be an http(s) URL, got %q", c.SeedURL)
	}
	return nil
}

// StoreMode returns the parsed mode
func (c *Config) StoreMode() store.Mode {
	mode, err := store.ParseMode(c.Mode)
	if err != nil {
		return store.ModeMerge
	}
	return mode
}

// Level returns the parsed log level
func (c *Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Document returns the initial state with values normalised to what JSON
// decoding produces, so numbers are float64 whether they came from the file
// or from an API request
func (c *Config) Document() (store.Map, error) {
	data, err := json.Marshal(c.InitialState)
	if err != nil {
		return nil, fmt.Errorf("failed to encode initial_state: %w", err)
	}
	doc := store.Map{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode initial_state: %w", err)
	}
	return doc, nil
}
