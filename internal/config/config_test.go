package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "local", cfg.Storage.Mode)
	assert.EqualValues(t, 512, cfg.Storage.MaxUploadMB)
	assert.Equal(t, 3, cfg.Storage.RetryMax)
	assert.Equal(t, 500, cfg.Storage.RetryBaseMS)
	assert.Equal(t, 5.0, cfg.Render.DefaultSceneDurationSec)
	assert.Equal(t, "narrator", cfg.Render.Voice)
	assert.True(t, cfg.Media.Mock)
	assert.False(t, cfg.Gateway.Enabled)
}

func TestLoad_EnvBindings(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis-prod:6379")
	t.Setenv("JWT_SECRET", "prod-secret")
	t.Setenv("SCRIPT_BASE_URL", "https://scripts.internal")
	t.Setenv("STORAGE_MODE", "remote")
	t.Setenv("STORAGE_STRICT_ETAG", "true")
	t.Setenv("STORAGE_AUTHORITY_BASE_URL", "https://storage.internal")
	t.Setenv("RENDER_CONCURRENCY", "8")
	t.Setenv("GATEWAY_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis-prod:6379", cfg.Redis.Addr)
	assert.Equal(t, "prod-secret", cfg.JWT.Secret)
	assert.Equal(t, "https://scripts.internal", cfg.Script.BaseURL)
	assert.Equal(t, "remote", cfg.Storage.Mode)
	assert.True(t, cfg.Storage.StrictETag)
	assert.Equal(t, "https://storage.internal", cfg.Storage.Authority.BaseURL)
	assert.Equal(t, 8, cfg.Render.Concurrency)
	assert.True(t, cfg.Gateway.Enabled)
}

func TestLoad_SecretFileIndirection(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "jwt_secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("file-secret\n"), 0o600))

	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_SECRET_FILE", secretPath)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
}

func TestLoad_DirectEnvWinsOverSecretFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "redis_password")
	require.NoError(t, os.WriteFile(secretPath, []byte("from-file"), 0o600))

	t.Setenv("REDIS_PASSWORD", "from-env")
	t.Setenv("REDIS_PASSWORD_FILE", secretPath)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Redis.Password)
}
