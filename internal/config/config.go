// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/samia-tarot/providerd/internal/provider"
	"github.com/samia-tarot/providerd/internal/secrets"
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// Config is the top-level providerd configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Health     HealthConfig     `mapstructure:"health"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// NetworkingConfig controls how providerd listens for connections.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// BackendConfig points at the admin REST backend the provider sources
// query. Token may be a keyring://service/key URI resolved at load.
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// FallbackConfig tunes the executor's retry behavior.
type FallbackConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// HealthConfig tunes the background health monitor.
type HealthConfig struct {
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	AutoDisable      bool          `mapstructure:"auto_disable"`
}

// MetricsConfig tunes the performance tracker.
type MetricsConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// RegistryConfig tunes the provider cache.
type RegistryConfig struct {
	CacheExpiry time.Duration `mapstructure:"cache_expiry"`
}

// StorageConfig selects the optional execution-history database. An empty
// path disables persistence.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix PROVIDERD_). When secretStore is
// non-nil, keyring:// values are resolved before unmarshalling.
func Load(path string, secretStore secrets.Store) (*Config, error) {
	v := viper.New()

	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sterr.Errorf(sterr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	if secretStore != nil {
		secrets.ResolveViperSecrets(v, secretStore)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sterr.Errorf(sterr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sterr.Errorf(sterr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// OrchestratorSettings maps the configuration onto the orchestrator's
// tunables.
func (c *Config) OrchestratorSettings() provider.Settings {
	return provider.Settings{
		MaxRetries:          c.Fallback.MaxRetries,
		BaseDelay:           c.Fallback.BaseDelay,
		MaxDelay:            c.Fallback.MaxDelay,
		AttemptTimeout:      c.Fallback.AttemptTimeout,
		HealthCheckInterval: c.Health.CheckInterval,
		PerformanceWindow:   c.Metrics.Window,
		FailureThreshold:    c.Health.FailureThreshold,
		AutoDisable:         c.Health.AutoDisable,
		CacheExpiry:         c.Registry.CacheExpiry,
	}
}

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than
// stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateBackend()...)
	errs = append(errs, c.validateFallback()...)
	errs = append(errs, c.validateHealth()...)

	if c.Metrics.Window <= 0 {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: metrics.window must be positive, got %s", c.Metrics.Window))
	}
	if c.Registry.CacheExpiry <= 0 {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: registry.cache_expiry must be positive, got %s", c.Registry.CacheExpiry))
	}

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err,
		))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateBackend() []error {
	var errs []error

	if c.Backend.BaseURL == "" {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue, "config: backend.base_url must not be empty"))
		return errs
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: backend.base_url must be an absolute URL, got %q", c.Backend.BaseURL))
	}

	return errs
}

func (c *Config) validateFallback() []error {
	var errs []error

	if c.Fallback.MaxRetries < 1 {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: fallback.max_retries must be at least 1, got %d", c.Fallback.MaxRetries))
	}
	if c.Fallback.BaseDelay <= 0 {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: fallback.base_delay must be positive, got %s", c.Fallback.BaseDelay))
	}
	if c.Fallback.MaxDelay < c.Fallback.BaseDelay {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: fallback.max_delay (%s) must not be less than fallback.base_delay (%s)",
			c.Fallback.MaxDelay, c.Fallback.BaseDelay))
	}
	if c.Fallback.AttemptTimeout <= 0 {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: fallback.attempt_timeout must be positive, got %s", c.Fallback.AttemptTimeout))
	}

	return errs
}

func (c *Config) validateHealth() []error {
	var errs []error

	if c.Health.CheckInterval <= 0 {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: health.check_interval must be positive, got %s", c.Health.CheckInterval))
	}
	if c.Health.FailureThreshold <= 0 || c.Health.FailureThreshold > 1 {
		errs = append(errs, sterr.Errorf(sterr.CodeConfigValidateInvalidValue,
			"config: health.failure_threshold must be in (0, 1], got %g", c.Health.FailureThreshold))
	}

	return errs
}
