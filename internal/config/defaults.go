// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// SetDefaults registers the stock configuration values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:18790")
	v.SetDefault("networking.cors_origins", []string{"http://localhost:5173"})

	v.SetDefault("backend.base_url", "http://127.0.0.1:8000")
	v.SetDefault("backend.token", "")

	v.SetDefault("fallback.max_retries", 5)
	v.SetDefault("fallback.base_delay", "1s")
	v.SetDefault("fallback.max_delay", "10s")
	v.SetDefault("fallback.attempt_timeout", "15s")

	v.SetDefault("health.check_interval", "30s")
	v.SetDefault("health.failure_threshold", 0.7)
	v.SetDefault("health.auto_disable", true)

	v.SetDefault("metrics.window", "5m")

	v.SetDefault("registry.cache_expiry", "5m")

	v.SetDefault("storage.path", "")
}

// SetupEnv binds environment variable overrides (prefix PROVIDERD_,
// dots replaced by underscores).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("PROVIDERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
