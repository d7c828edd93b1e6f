// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

// Package provider implements the provider fallback orchestrator: a
// registry that merges provider candidates from several backend sources,
// a background health monitor, a rolling performance tracker, and an
// executor that runs caller-supplied operations against the healthiest
// eligible provider with per-provider retry and ordered fallback.
package provider

import (
	"context"
	"slices"
	"time"
)

// Well-known capability tags.
const (
	CapabilityTranslation    = "translation"
	CapabilityTextGeneration = "text_generation"
)

// Source labels identifying where a provider record was discovered.
const (
	SourceTranslationSettings = "translation_settings"
	SourceAIProviders         = "ai_providers"
	SourceSystemSecrets       = "system_secrets"
	SourceFallback            = "fallback"
)

// Provider is the canonical shape of one external service candidate.
// Identity is the logical Name: multiple sources may describe the same
// provider and are merged first-seen-wins by Name.
type Provider struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities"`
	Priority     int      `json:"priority" doc:"Tie-break ordering, lower is preferred"`
	Active       bool     `json:"active"`
	HealthScore  int      `json:"health_score" doc:"Derived, attached on read"`
	Source       string   `json:"source"`
	Endpoint     string   `json:"endpoint,omitempty"`
	Model        string   `json:"model,omitempty"`

	// HasCredentials reports that an encrypted credential exists for the
	// provider. The credential value itself is never read by this package.
	HasCredentials bool `json:"has_credentials"`
}

// HasCapability reports whether the provider lists the given capability tag.
func (p *Provider) HasCapability(capability string) bool {
	return slices.Contains(p.Capabilities, capability)
}

// SortOrder selects how a provider listing is ordered.
type SortOrder string

const (
	SortByPriority    SortOrder = "priority"
	SortByHealthScore SortOrder = "health_score"
	SortByName        SortOrder = "name"
)

// Valid reports whether s is a known sort order.
func (s SortOrder) Valid() bool {
	switch s {
	case SortByPriority, SortByHealthScore, SortByName:
		return true
	}
	return false
}

// Operation is a caller-supplied unit of work executed against one
// provider candidate. attempt is 1-based within the current provider's
// retry loop. The executor wraps each invocation in a hard timeout; the
// operation should honor ctx cancellation but a late return after the
// deadline is discarded safely either way.
type Operation func(ctx context.Context, p Provider, attempt int) (any, error)

// Outcome is one recorded execution result used for performance tracking.
type Outcome struct {
	At           time.Time
	Success      bool
	ResponseTime time.Duration
	Err          string
}

// Settings carries the orchestrator's tunables. Zero values are replaced
// by defaults via withDefaults, so a zero Settings is usable in tests.
type Settings struct {
	MaxRetries          int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	AttemptTimeout      time.Duration
	HealthCheckInterval time.Duration
	PerformanceWindow   time.Duration
	FailureThreshold    float64
	AutoDisable         bool
	CacheExpiry         time.Duration
}

// DefaultSettings returns the stock tunables.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:          5,
		BaseDelay:           time.Second,
		MaxDelay:            10 * time.Second,
		AttemptTimeout:      15 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		PerformanceWindow:   5 * time.Minute,
		FailureThreshold:    0.7,
		AutoDisable:         true,
		CacheExpiry:         5 * time.Minute,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.MaxRetries <= 0 {
		s.MaxRetries = def.MaxRetries
	}
	if s.BaseDelay <= 0 {
		s.BaseDelay = def.BaseDelay
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = def.MaxDelay
	}
	if s.AttemptTimeout <= 0 {
		s.AttemptTimeout = def.AttemptTimeout
	}
	if s.HealthCheckInterval <= 0 {
		s.HealthCheckInterval = def.HealthCheckInterval
	}
	if s.PerformanceWindow <= 0 {
		s.PerformanceWindow = def.PerformanceWindow
	}
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = def.FailureThreshold
	}
	if s.CacheExpiry <= 0 {
		s.CacheExpiry = def.CacheExpiry
	}
	return s
}
