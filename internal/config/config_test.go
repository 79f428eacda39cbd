package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.Token)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, 60*time.Second, cfg.Sync.Timeout)
	assert.Equal(t, 300*time.Millisecond, cfg.Watcher.Debounce)
	assert.True(t, cfg.Watcher.Enabled)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "github", cfg.Credentials.Provider)
	assert.Equal(t, "VAULTSYNC_GITHUB_TOKEN", cfg.Credentials.TokenEnv)
}

func TestLoadFile(t *testing.T) {
	// given
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
log:
  level: debug
  format: json
sync:
  timeout: 5s
  schedule: "*/15 * * * *"
watcher:
  enabled: false
journal:
  enabled: false
vaults:
  - /tmp/notes
`)

	// when
	cfg, err := Load(path)

	// then
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.Sync.Timeout)
	assert.Equal(t, "*/15 * * * *", cfg.Sync.Schedule)
	assert.False(t, cfg.Watcher.Enabled)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, []string{"/tmp/notes"}, cfg.Vaults)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VAULTSYNC_SERVER_ADDR", ":9999")
	t.Setenv("VAULTSYNC_SYNC_TIMEOUT", "2m")
	t.Setenv("VAULTSYNC_WATCHER_ENABLED", "false")
	t.Setenv("VAULTSYNC_SERVER_TOKEN", "s3cret")

	cfg, err := Load(writeConfig(t, "server:\n  addr: \":7000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.Token)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Timeout)
	assert.False(t, cfg.Watcher.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad format", "log:\n  format: xml\n"},
		{"bad schedule", "sync:\n  schedule: \"every minute\"\n"},
		{"empty vault", "vaults:\n  - \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
