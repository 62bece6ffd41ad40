package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
server:
  base_url: http://localhost:8080
provider:
  issuer: https://auth.example.com
  api_url: https://auth.example.com/auth/v1
  client_id: web
profiles:
  dsn: postgres://app@localhost/app
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.RateLimit.Every)
	assert.Equal(t, 5, cfg.Server.RateLimit.Burst)

	assert.Equal(t, []string{"openid", "email", "profile"}, cfg.Provider.Scopes)
	assert.Equal(t, time.Minute, cfg.Provider.RefreshMargin)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "session-coordinator", cfg.Storage.Namespace)

	assert.Equal(t, []string{"/", "/connect"}, cfg.Navigation.EntryPaths)
	assert.Equal(t, "/dashboard/student", cfg.Navigation.AuthenticatedRoute)
	assert.Equal(t, "/", cfg.Navigation.LandingRoute)
	assert.Equal(t, "/reset-password", cfg.Navigation.ResetPasswordRoute)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestParse_SecretsFromEnv(t *testing.T) {
	t.Setenv("PROVIDER_CLIENT_SECRET", "from-env")
	t.Setenv("PROFILES_DSN", "postgres://env@db/app")
	t.Setenv("REDIS_PASSWORD", "redis-secret")

	cfg, err := Parse([]byte(minimalConfig + `
storage:
  type: redis
  redis:
    address: localhost:6379
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "from-env", cfg.Provider.ClientSecret)
	assert.Equal(t, "postgres://env@db/app", cfg.Profiles.DSN)
	assert.Equal(t, "redis-secret", cfg.Storage.Redis.Password)
	assert.Equal(t, 10, cfg.Storage.Redis.PoolSize)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "web", cfg.Provider.ClientID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Server.BaseURL = "" },
			wantErr: "base_url is required",
		},
		{
			name:    "relative issuer",
			mutate:  func(c *Config) { c.Provider.Issuer = "auth.example.com" },
			wantErr: "invalid issuer URL",
		},
		{
			name:    "openid scope dropped",
			mutate:  func(c *Config) { c.Provider.Scopes = []string{"email"} },
			wantErr: "'openid' scope is required",
		},
		{
			name:    "redis without address",
			mutate:  func(c *Config) { c.Storage = StorageConfig{Type: "redis", Redis: &RedisConfig{}} },
			wantErr: "redis address is required",
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *Config) { c.Storage.Type = "sqlite" },
			wantErr: "invalid type",
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.Profiles.DSN = "" },
			wantErr: "dsn is required",
		},
		{
			name:    "relative entry path",
			mutate:  func(c *Config) { c.Navigation.EntryPaths = []string{"connect"} },
			wantErr: "entry path must be an absolute path",
		},
		{
			name:    "authenticated route is an entry path",
			mutate:  func(c *Config) { c.Navigation.AuthenticatedRoute = "/connect" },
			wantErr: "authenticated_route cannot also be an entry path",
		},
		{
			name:    "unknown log output",
			mutate:  func(c *Config) { c.Logging.Output = "file" },
			wantErr: "invalid output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(minimalConfig))
			require.NoError(t, err)

			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
