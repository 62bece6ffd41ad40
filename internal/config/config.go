package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderConfig   `yaml:"provider"`
	Storage    StorageConfig    `yaml:"storage"`
	Profiles   ProfilesConfig   `yaml:"profiles"`
	Navigation NavigationConfig `yaml:"navigation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	BaseURL         string          `yaml:"base_url"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds credential endpoints per client address.
type RateLimitConfig struct {
	Every time.Duration `yaml:"every"`
	Burst int           `yaml:"burst"`
}

type ProviderConfig struct {
	Issuer          string        `yaml:"issuer"`
	APIURL          string        `yaml:"api_url"`
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	Scopes          []string      `yaml:"scopes"`
	Timeout         time.Duration `yaml:"timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RefreshMargin   time.Duration `yaml:"refresh_margin"`
}

type StorageConfig struct {
	Type      string       `yaml:"type"`
	Namespace string       `yaml:"namespace"`
	Redis     *RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

type ProfilesConfig struct {
	DSN          string        `yaml:"dsn"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxConns     int32         `yaml:"max_conns"`
}

// NavigationConfig holds the routes the session store navigates between.
// EntryPaths are the only locations a fresh sign-in may redirect away from.
type NavigationConfig struct {
	EntryPaths         []string `yaml:"entry_paths"`
	AuthenticatedRoute string   `yaml:"authenticated_route"`
	LandingRoute       string   `yaml:"landing_route"`
	ResetPasswordRoute string   `yaml:"reset_password_route"`
	HistorySize        int      `yaml:"history_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document and applies defaults and environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.setDefaults()
	cfg.loadSecretsFromEnv()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.RateLimit.Every == 0 {
		c.Server.RateLimit.Every = 10 * time.Second
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 5
	}

	if len(c.Provider.Scopes) == 0 {
		c.Provider.Scopes = []string{"openid", "email", "profile"}
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 10 * time.Second
	}
	if c.Provider.RefreshInterval == 0 {
		c.Provider.RefreshInterval = 30 * time.Second
	}
	if c.Provider.RefreshMargin == 0 {
		c.Provider.RefreshMargin = time.Minute
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.Namespace == "" {
		c.Storage.Namespace = "session-coordinator"
	}
	if c.Storage.Type == "redis" && c.Storage.Redis != nil {
		if c.Storage.Redis.PoolSize == 0 {
			c.Storage.Redis.PoolSize = 10
		}
		if c.Storage.Redis.MaxRetries == 0 {
			c.Storage.Redis.MaxRetries = 3
		}
	}

	if c.Profiles.QueryTimeout == 0 {
		c.Profiles.QueryTimeout = 5 * time.Second
	}
	if c.Profiles.MaxConns == 0 {
		c.Profiles.MaxConns = 4
	}

	if len(c.Navigation.EntryPaths) == 0 {
		c.Navigation.EntryPaths = []string{"/", "/connect"}
	}
	if c.Navigation.AuthenticatedRoute == "" {
		c.Navigation.AuthenticatedRoute = "/dashboard/student"
	}
	if c.Navigation.LandingRoute == "" {
		c.Navigation.LandingRoute = "/"
	}
	if c.Navigation.ResetPasswordRoute == "" {
		c.Navigation.ResetPasswordRoute = "/reset-password"
	}
	if c.Navigation.HistorySize == 0 {
		c.Navigation.HistorySize = 50
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

func (c *Config) loadSecretsFromEnv() {
	if v := os.Getenv("PROVIDER_CLIENT_ID"); v != "" {
		c.Provider.ClientID = v
	}
	if v := os.Getenv("PROVIDER_CLIENT_SECRET"); v != "" {
		c.Provider.ClientSecret = v
	}

	if v := os.Getenv("PROFILES_DSN"); v != "" {
		c.Profiles.DSN = v
	}

	if c.Storage.Type == "redis" && c.Storage.Redis != nil {
		if envPassword := os.Getenv("REDIS_PASSWORD"); envPassword != "" {
			c.Storage.Redis.Password = envPassword
		}
	}
}
