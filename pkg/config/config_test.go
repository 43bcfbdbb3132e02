package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("NPM_TOKEN", "npm-token")
	t.Setenv("NPM_OTP_SECRET", "JBSWY3DPEHPK3PXP")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "https://registry.npmjs.org", cfg.Registry.Upstream)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "@every 10m", cfg.Maintenance.SweepSchedule)
	assert.False(t, cfg.Login.Enabled)
	assert.True(t, cfg.Audit.Database)
	assert.Equal(t, 90*24*time.Hour, cfg.Audit.Retention)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HealthAddr())
}

func TestLoadConfig_MissingCredential(t *testing.T) {
	t.Setenv("NPM_TOKEN", "")
	t.Setenv("NPM_OTP_SECRET", "x")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "NPM_TOKEN is required")
}

func TestLoadConfig_PortFallback(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "3000")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Server.Port)

	t.Setenv("PUBLISHGATE_PORT", "4000")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "4000", cfg.Server.Port)
}

func TestLoadConfig_LoginEnabledMagicValue(t *testing.T) {
	tests := []struct {
		value   string
		enabled bool
	}{
		{LoginEnabledValue, true},
		{"true", false},
		{"yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv("LOGIN_ENABLED", tt.value)
			t.Setenv("GITHUB_CLIENT_ID", "id")
			t.Setenv("GITHUB_CLIENT_SECRET", "secret")
			t.Setenv("SESSION_SECRET", "s3cr3t")

			cfg, err := LoadConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, cfg.Login.Enabled)
		})
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	setRequired(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "publishgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
  read_timeout: 5s
registry:
  public_url: https://npm.example.com
storage:
  type: sqlite
  sqlite_path: /tmp/keys.db
login:
  rate_limit: 2.5
maintenance:
  sweep_schedule: "*/5 * * * *"
`), 0o600))
	t.Setenv("PUBLISHGATE_CONFIG_FILE", path)
	t.Setenv("PUBLISHGATE_SQLITE_PATH", "/data/override.db")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "https://npm.example.com", cfg.Registry.PublicURL)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/data/override.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 2.5, cfg.Login.RateLimit)
	assert.Equal(t, "*/5 * * * *", cfg.Maintenance.SweepSchedule)
	// untouched sections keep their defaults
	assert.Equal(t, 20, cfg.Login.RateBurst)
}

func TestLoadConfig_BadFile(t *testing.T) {
	setRequired(t)

	t.Setenv("PUBLISHGATE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	t.Setenv("PUBLISHGATE_CONFIG_FILE", path)
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Registry.NPMToken = "t"
		c.Registry.OTPSecret = "s"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = c.Server.Port }, wantErr: "must be different"},
		{name: "missing otp secret", mutate: func(c *Config) { c.Registry.OTPSecret = "" }, wantErr: "NPM_OTP_SECRET"},
		{name: "login without oauth", mutate: func(c *Config) {
			c.Login.Enabled = true
			c.Login.SessionSecret = "x"
		}, wantErr: "GITHUB_CLIENT_ID"},
		{name: "login without session secret", mutate: func(c *Config) {
			c.Login.Enabled = true
			c.GitHub.ClientID, c.GitHub.ClientSecret = "id", "secret"
		}, wantErr: "SESSION_SECRET"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "s3" }, wantErr: "invalid storage type"},
		{name: "postgres without url", mutate: func(c *Config) { c.Storage.Type = "postgres" }, wantErr: "postgres URL"},
		{name: "sqlite without path", mutate: func(c *Config) {
			c.Storage.Type = "sqlite"
			c.Storage.SQLitePath = ""
		}, wantErr: "sqlite path"},
		{name: "bad schedule", mutate: func(c *Config) { c.Maintenance.SweepSchedule = "every so often" }, wantErr: "invalid sweep schedule"},
		{name: "negative audit retention", mutate: func(c *Config) { c.Audit.Retention = -time.Hour }, wantErr: "audit retention"},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, wantErr: "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PG_TEST_BOOL", "1")
	t.Setenv("PG_TEST_INT", "nope")
	t.Setenv("PG_TEST_FLOAT", "0.25")
	t.Setenv("PG_TEST_DURATION", "90s")

	assert.True(t, getEnvBool("PG_TEST_BOOL", false))
	assert.Equal(t, 7, getEnvInt("PG_TEST_INT", 7))
	assert.Equal(t, 0.25, getEnvFloat("PG_TEST_FLOAT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("PG_TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", getEnv("PG_TEST_UNSET", "fallback"))
}
