// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/samia-tarot/providerd/internal/store"
	"github.com/samia-tarot/providerd/pkg/health"
)

// autoDisableMinSamples is the minimum number of recent outcomes required
// before the failure threshold can disable a provider, so a single early
// failure cannot take it out.
const autoDisableMinSamples = 4

// Service is the orchestrator facade: one registry, monitor, tracker, and
// executor wired together with an explicit lifecycle. Construct one per
// process (or per test) and pass it by reference; there is no package-level
// state.
type Service struct {
	settings Settings
	registry *Registry
	tracker  *Tracker
	monitor  *Monitor
	executor *Executor
	history  store.History
}

// Option customizes a Service.
type Option func(*Service)

// WithExecutionHistory persists each execution outcome to h. Without it,
// outcomes are tracked in memory only.
func WithExecutionHistory(h store.History) Option {
	return func(s *Service) { s.history = h }
}

// NewService wires the orchestrator over the given sources.
func NewService(sources []Source, settings Settings, opts ...Option) *Service {
	settings = settings.withDefaults()

	s := &Service{settings: settings}
	s.registry = NewRegistry(sources, settings.CacheExpiry)
	s.tracker = NewTracker(settings.PerformanceWindow)
	s.monitor = NewMonitor(s.registry, s.tracker, settings.HealthCheckInterval)
	s.registry.SetHealthScorer(s.monitor)
	s.executor = NewExecutor(s.registry, s.tracker, settings)
	if settings.AutoDisable {
		s.executor.SetAfterFailure(s.checkFailureThreshold)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background health monitoring loop.
func (s *Service) Start(ctx context.Context) {
	s.monitor.Start(ctx)
}

// Stop halts background monitoring. The in-memory registry, health, and
// metrics state remains readable.
func (s *Service) Stop() {
	s.monitor.Stop()
}

// Registry exposes the underlying registry (for tests and wiring).
func (s *Service) Registry() *Registry { return s.registry }

// Monitor exposes the underlying health monitor.
func (s *Service) Monitor() *Monitor { return s.monitor }

// Tracker exposes the underlying performance tracker.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Providers returns the merged provider list per the given options.
func (s *Service) Providers(ctx context.Context, opts ListOptions) ([]Provider, error) {
	return s.registry.List(ctx, opts)
}

// Execute runs op with health-ordered fallback. See Executor.Execute for
// the error contract.
func (s *Service) Execute(ctx context.Context, op Operation, opts ExecOptions) (*Result, error) {
	category := opts.Category
	if category == "" {
		category = CapabilityTranslation
	}

	result, err := s.executor.Execute(ctx, op, opts)
	if err != nil {
		return nil, err
	}

	if s.history != nil {
		rec := store.ExecutionRecord{
			ID:           uuid.NewString(),
			Provider:     result.Provider,
			Category:     category,
			Success:      result.Success,
			ResponseTime: result.ResponseTime,
			Error:        result.Error,
			CreatedAt:    time.Now(),
		}
		if result.Success {
			rec.AttemptedCount = result.Attempt
		} else {
			rec.AttemptedCount = result.AttemptedCount
		}
		if herr := s.history.RecordExecution(ctx, rec); herr != nil {
			slog.Warn("recording execution history failed", "error", herr)
		}
	}
	return result, nil
}

// ProviderAnalytics returns the merged usage and health summary for one
// provider, or false when it has never served a request.
func (s *Service) ProviderAnalytics(name string) (*health.Analytics, bool) {
	a, ok := s.tracker.Analytics(name)
	if !ok {
		return nil, false
	}
	if status, ok := s.monitor.Status(name); ok {
		a.HealthScore = status.Score
		a.Healthy = status.Healthy
		a.ConsecutiveFailures = status.ConsecutiveFailures
		a.LastCheckedAt = status.LastCheckedAt
	}
	return &a, true
}

// SystemHealth aggregates health and analytics across the provider pool.
func (s *Service) SystemHealth(ctx context.Context) (*health.System, error) {
	providers, err := s.registry.List(ctx, ListOptions{IncludeInactive: true})
	if err != nil {
		return nil, err
	}

	sys := &health.System{
		TotalProviders: len(providers),
		Providers:      make(map[string]health.ProviderReport, len(providers)),
	}
	for _, p := range providers {
		report := health.ProviderReport{}
		if status, ok := s.monitor.Status(p.Name); ok {
			report.Status = status
			if status.Healthy {
				sys.HealthyProviders++
			}
		}
		if analytics, ok := s.ProviderAnalytics(p.Name); ok {
			report.Analytics = analytics
		}
		sys.Providers[p.Name] = report
	}
	if sys.TotalProviders > 0 {
		sys.OverallHealthPct = 100 * float64(sys.HealthyProviders) / float64(sys.TotalProviders)
	}
	return sys, nil
}

// ClearCache drops the registry's cached listings.
func (s *Service) ClearCache() {
	s.registry.ClearCache()
}

// ExecutionHistory lists the most recent persisted execution outcomes.
// Returns ok=false when history storage is disabled.
func (s *Service) ExecutionHistory(ctx context.Context, limit int) ([]store.ExecutionRecord, bool, error) {
	if s.history == nil {
		return nil, false, nil
	}
	recs, err := s.history.ListExecutions(ctx, limit)
	return recs, true, err
}

// checkFailureThreshold disables a provider in the cached registry view
// when its recent failure rate crosses the configured threshold. Source
// truth is restored on the next forced refresh or cache expiry.
func (s *Service) checkFailureThreshold(name string) {
	rate, n := s.tracker.RecentFailureRate(name)
	if n < autoDisableMinSamples || rate < s.settings.FailureThreshold {
		return
	}
	if s.registry.Disable(name) {
		slog.Warn("provider auto-disabled: failure rate over threshold",
			"provider", name,
			"failure_rate", rate,
			"threshold", s.settings.FailureThreshold,
			"recent_samples", n,
		)
	}
}
