package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateProvider(); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}

	if err := c.validateStorage(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.validateProfiles(); err != nil {
		return fmt.Errorf("profiles config: %w", err)
	}

	if err := c.validateNavigation(); err != nil {
		return fmt.Errorf("navigation config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	if err := validateAbsoluteURL(c.Server.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	if c.Server.RateLimit.Every < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}

	return nil
}

func (c *Config) validateProvider() error {
	if c.Provider.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}

	if err := validateAbsoluteURL(c.Provider.Issuer); err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	if c.Provider.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}

	if err := validateAbsoluteURL(c.Provider.APIURL); err != nil {
		return fmt.Errorf("invalid api_url: %w", err)
	}

	if c.Provider.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}

	if !slices.Contains(c.Provider.Scopes, "openid") {
		return fmt.Errorf("'openid' scope is required")
	}

	if c.Provider.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.Provider.RefreshInterval < 0 || c.Provider.RefreshMargin < 0 {
		return fmt.Errorf("refresh_interval and refresh_margin must be positive")
	}

	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Type != "memory" && c.Storage.Type != "redis" {
		return fmt.Errorf("invalid type: %s (must be memory or redis)", c.Storage.Type)
	}

	if c.Storage.Type == "redis" {
		if c.Storage.Redis == nil {
			return fmt.Errorf("redis config is required when type is redis")
		}
		if c.Storage.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	}

	return nil
}

func (c *Config) validateProfiles() error {
	if c.Profiles.DSN == "" {
		return fmt.Errorf("dsn is required")
	}

	if c.Profiles.MaxConns < 1 {
		return fmt.Errorf("max_conns must be at least 1")
	}

	return nil
}

func (c *Config) validateNavigation() error {
	routes := map[string]string{
		"authenticated_route":  c.Navigation.AuthenticatedRoute,
		"landing_route":        c.Navigation.LandingRoute,
		"reset_password_route": c.Navigation.ResetPasswordRoute,
	}
	for name, route := range routes {
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("%s must be an absolute path: %q", name, route)
		}
	}

	for _, p := range c.Navigation.EntryPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("entry path must be an absolute path: %q", p)
		}
	}

	if slices.Contains(c.Navigation.EntryPaths, c.Navigation.AuthenticatedRoute) {
		return fmt.Errorf("authenticated_route cannot also be an entry path")
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" {
		return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Logging.Format)
	}

	output := strings.ToLower(c.Logging.Output)
	if output != "stdout" && output != "stderr" {
		return fmt.Errorf("invalid output: %s (must be stdout or stderr)", c.Logging.Output)
	}

	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	return nil
}
