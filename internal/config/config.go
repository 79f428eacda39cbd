// Package config provides centralized configuration for the vaultsync daemon.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds application-wide configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Sync        SyncConfig        `yaml:"sync"`
	Watcher     WatcherConfig     `yaml:"watcher"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Journal     JournalConfig     `yaml:"journal"`
	// Vaults are opened when the daemon starts.
	Vaults []string `yaml:"vaults"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Token, when set, must accompany every API request as a bearer token.
	Token string `yaml:"token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is auto, text or json. Auto picks text on a terminal.
	Format string `yaml:"format"`
}

type SyncConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// Schedule is a standard cron expression. Empty disables scheduled syncs.
	Schedule string `yaml:"schedule"`
}

type WatcherConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

type CredentialsConfig struct {
	Provider string `yaml:"provider"`
	TokenEnv string `yaml:"token_env"`
	TokenDir string `yaml:"token_dir"`
	// GitHubClientID is the OAuth app used by "vaultsync github login".
	GitHubClientID string `yaml:"github_client_id"`
}

type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{
		Watcher: WatcherConfig{Enabled: true},
		Journal: JournalConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads a YAML file, applies defaults and VAULTSYNC_* environment overrides,
// and validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "auto"
	}
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = 60 * time.Second
	}
	if cfg.Watcher.Debounce == 0 {
		cfg.Watcher.Debounce = 300 * time.Millisecond
	}
	if cfg.Credentials.Provider == "" {
		cfg.Credentials.Provider = "github"
	}
	if cfg.Credentials.TokenEnv == "" {
		cfg.Credentials.TokenEnv = "VAULTSYNC_GITHUB_TOKEN"
	}
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("VAULTSYNC_SERVER_ADDR"); val != "" {
		cfg.Server.Addr = val
	}
	if val := os.Getenv("VAULTSYNC_SERVER_TOKEN"); val != "" {
		cfg.Server.Token = val
	}
	if val := os.Getenv("VAULTSYNC_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("VAULTSYNC_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
	if val := os.Getenv("VAULTSYNC_SYNC_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Sync.Timeout = d
		}
	}
	if val, ok := os.LookupEnv("VAULTSYNC_SYNC_SCHEDULE"); ok {
		cfg.Sync.Schedule = val
	}
	if val := os.Getenv("VAULTSYNC_WATCHER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Watcher.Enabled = b
		}
	}
	if val := os.Getenv("VAULTSYNC_JOURNAL_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Journal.Enabled = b
		}
	}
	if val := os.Getenv("VAULTSYNC_TOKEN_DIR"); val != "" {
		cfg.Credentials.TokenDir = val
	}
	if val := os.Getenv("VAULTSYNC_GITHUB_CLIENT_ID"); val != "" {
		cfg.Credentials.GitHubClientID = val
	}
	if val := os.Getenv("VAULTSYNC_VAULTS"); val != "" {
		cfg.Vaults = strings.Split(val, string(os.PathListSeparator))
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func Validate(cfg *Config) error {
	var errs []error
	switch cfg.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be auto, text or json, got %q", cfg.Log.Format))
	}
	if cfg.Sync.Timeout < 0 {
		errs = append(errs, errors.New("sync.timeout must not be negative"))
	}
	if cfg.Watcher.Debounce < 0 {
		errs = append(errs, errors.New("watcher.debounce must not be negative"))
	}
	if cfg.Sync.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Sync.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid sync.schedule %q: %w", cfg.Sync.Schedule, err))
		}
	}
	for i, v := range cfg.Vaults {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("vaults[%d] is empty", i))
		}
	}
	return errors.Join(errs...)
}

// Global is the application-wide configuration instance.
var Global = DefaultConfig()
