package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/publishgate/pkg/storage"
)

// LoginEnabledValue is the only LOGIN_ENABLED value that turns the login
// website on.
const LoginEnabledValue = "yes-this-is-a-login-server"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Registry      RegistryConfig      `yaml:"registry"`
	GitHub        GitHubConfig        `yaml:"github"`
	Login         LoginConfig         `yaml:"login"`
	Storage       storage.Config      `yaml:"storage"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// RegistryConfig describes the upstream registry and the service credential.
type RegistryConfig struct {
	Upstream string `yaml:"upstream"`
	// PublicURL is the registry URL users configure in npm. It appears in
	// messages and in the login doneUrl.
	PublicURL string `yaml:"public_url"`
	NPMToken  string `yaml:"npm_token"`
	OTPSecret string `yaml:"otp_secret"`
}

// GitHubConfig holds the API location and OAuth app credentials.
type GitHubConfig struct {
	APIURL       string `yaml:"api_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	MaxTagPages  int    `yaml:"max_tag_pages"`
}

// LoginConfig configures the login website.
type LoginConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SecureCookie  bool          `yaml:"secure_cookie"`
	RateLimit     float64       `yaml:"rate_limit"`
	RateBurst     int           `yaml:"rate_burst"`
}

// MaintenanceConfig schedules the expired key sweeper.
type MaintenanceConfig struct {
	SweepSchedule string `yaml:"sweep_schedule"`
}

// AuditConfig controls the audit trail. Events always go to the log; with
// SQL storage they are also kept in the database for Retention.
type AuditConfig struct {
	Database  bool          `yaml:"database"`
	Retention time.Duration `yaml:"retention"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    100 << 20,
			HealthPort:      "9090",
		},
		Registry: RegistryConfig{
			Upstream:  "https://registry.npmjs.org",
			PublicURL: "http://localhost:8080",
		},
		GitHub: GitHubConfig{
			APIURL:      "https://api.github.com",
			MaxTagPages: 11,
		},
		Login: LoginConfig{
			SessionTTL: 24 * time.Hour,
			RateLimit:  5,
			RateBurst:  20,
		},
		Storage: storage.DefaultConfig(),
		Maintenance: MaintenanceConfig{
			SweepSchedule: "@every 10m",
		},
		Audit: AuditConfig{
			Database:  true,
			Retention: 90 * 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "publishgate",
			OTelServiceVersion: "dev",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig loads configuration from an optional .env file, an optional
// YAML file named by PUBLISHGATE_CONFIG_FILE and the environment, in that
// order of increasing precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("PUBLISHGATE_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides c with any variables that are set.
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("PUBLISHGATE_HOST", s.Host)
	s.Port = getEnv("PUBLISHGATE_PORT", getEnv("PORT", s.Port))
	s.ReadTimeout = getEnvDuration("PUBLISHGATE_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("PUBLISHGATE_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("PUBLISHGATE_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("PUBLISHGATE_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("PUBLISHGATE_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.HealthPort = getEnv("PUBLISHGATE_HEALTH_PORT", s.HealthPort)

	r := &c.Registry
	r.Upstream = getEnv("PUBLISHGATE_REGISTRY_UPSTREAM", r.Upstream)
	r.PublicURL = getEnv("REGISTRY_URL", r.PublicURL)
	r.NPMToken = getEnv("NPM_TOKEN", r.NPMToken)
	r.OTPSecret = getEnv("NPM_OTP_SECRET", r.OTPSecret)

	g := &c.GitHub
	g.APIURL = getEnv("PUBLISHGATE_GITHUB_API", g.APIURL)
	g.ClientID = getEnv("GITHUB_CLIENT_ID", g.ClientID)
	g.ClientSecret = getEnv("GITHUB_CLIENT_SECRET", g.ClientSecret)
	g.MaxTagPages = getEnvInt("PUBLISHGATE_GITHUB_MAX_TAG_PAGES", g.MaxTagPages)

	l := &c.Login
	if v, ok := os.LookupEnv("LOGIN_ENABLED"); ok {
		l.Enabled = v == LoginEnabledValue
	}
	l.URL = getEnv("LOGIN_URL", l.URL)
	l.SessionSecret = getEnv("SESSION_SECRET", l.SessionSecret)
	l.SessionTTL = getEnvDuration("PUBLISHGATE_SESSION_TTL", l.SessionTTL)
	l.SecureCookie = getEnvBool("PUBLISHGATE_SECURE_COOKIE", l.SecureCookie)
	l.RateLimit = getEnvFloat("PUBLISHGATE_RATE_LIMIT", l.RateLimit)
	l.RateBurst = getEnvInt("PUBLISHGATE_RATE_BURST", l.RateBurst)

	st := &c.Storage
	st.Type = getEnv("PUBLISHGATE_STORAGE_TYPE", st.Type)
	st.PostgresURL = getEnv("PUBLISHGATE_POSTGRES_URL", st.PostgresURL)
	st.PostgresMaxConns = getEnvInt("PUBLISHGATE_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("PUBLISHGATE_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("PUBLISHGATE_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.SQLitePath = getEnv("PUBLISHGATE_SQLITE_PATH", st.SQLitePath)
	st.RedisURL = getEnv("PUBLISHGATE_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("PUBLISHGATE_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("PUBLISHGATE_REDIS_DB", st.RedisDB)
	st.RedisMaxRetries = getEnvInt("PUBLISHGATE_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.RedisPoolSize = getEnvInt("PUBLISHGATE_REDIS_POOL_SIZE", st.RedisPoolSize)

	c.Maintenance.SweepSchedule = getEnv("PUBLISHGATE_SWEEP_SCHEDULE", c.Maintenance.SweepSchedule)

	c.Audit.Database = getEnvBool("PUBLISHGATE_AUDIT_DATABASE", c.Audit.Database)
	c.Audit.Retention = getEnvDuration("PUBLISHGATE_AUDIT_RETENTION", c.Audit.Retention)

	o := &c.Observability
	o.LogLevel = getEnv("PUBLISHGATE_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("PUBLISHGATE_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("PUBLISHGATE_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("PUBLISHGATE_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("PUBLISHGATE_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("PUBLISHGATE_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("PUBLISHGATE_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("PUBLISHGATE_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("PUBLISHGATE_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Registry.NPMToken == "" {
		return fmt.Errorf("NPM_TOKEN is required")
	}
	if c.Registry.OTPSecret == "" {
		return fmt.Errorf("NPM_OTP_SECRET is required")
	}
	if c.Registry.Upstream == "" {
		return fmt.Errorf("registry upstream URL is required")
	}

	if c.Login.Enabled {
		if c.GitHub.ClientID == "" || c.GitHub.ClientSecret == "" {
			return fmt.Errorf("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required when login is enabled")
		}
		if c.Login.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required when login is enabled")
		}
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, postgres, or sqlite)", c.Storage.Type)
	}

	if _, err := cron.ParseStandard(c.Maintenance.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", c.Maintenance.SweepSchedule, err)
	}

	if c.Audit.Retention < 0 {
		return fmt.Errorf("audit retention must not be negative")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Addr returns the API listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health and metrics listen address.
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
