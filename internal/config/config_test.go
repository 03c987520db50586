package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rrens/chatvault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "auth:\n  insecure_skip_verify: true\n"))
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "bolt", cfg.Storage.Driver)
	assert.Equal(t, "drive", cfg.Backup.Provider)
	assert.Equal(t, "AI Chat Backups", cfg.Backup.ContainerName)
	assert.Equal(t, 10*time.Second, cfg.Sync.RemoteTimeout)
	assert.Equal(t, 2*time.Second, cfg.Sync.LogoutPollInterval)
	assert.Equal(t, 10, cfg.Chat.ContextSize)
	assert.Equal(t, 100, cfg.Chat.MaxNewTokens)
	assert.InDelta(t, 0.7, cfg.Chat.Temperature, 1e-9)
	assert.Equal(t, "env-secret", cfg.Auth.TokenEncryptionSecret())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("GOOGLE_CLIENT_ID", "client.apps.googleusercontent.com")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing client id", "storage:\n  driver: bolt\n"},
		{"bad driver", "auth:\n  insecure_skip_verify: true\nstorage:\n  driver: postgres\n"},
		{"gcs without bucket", "auth:\n  insecure_skip_verify: true\nbackup:\n  provider: gcs\n"},
		{"bad backup provider", "auth:\n  insecure_skip_verify: true\nbackup:\n  provider: dropbox\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", writeConfig(t, tt.body))
			t.Setenv("JWT_SECRET", "s")

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
