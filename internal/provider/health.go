// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	sterr "github.com/samia-tarot/providerd/pkg/errors"
	"github.com/samia-tarot/providerd/pkg/health"
)

// Health score weights. Probe success earns the base credit, low latency
// earns up to latencyWeight with linear decay (zero credit at or above
// latencyCeiling), and the recent success rate earns up to recentWeight
// (a flat default applies when a provider has no history yet).
const (
	probeWeight    = 40
	latencyWeight  = 30
	recentWeight   = 30
	recentDefault  = 15
	latencyCeiling = 10 * time.Second
)

// RecentRater supplies the recency-weighted success rate for a provider.
// Implemented by the performance Tracker.
type RecentRater interface {
	RecentSuccessRate(name string) (float64, bool)
}

type healthRecord struct {
	healthy             bool
	score               int
	responseTime        time.Duration
	lastCheckedAt       time.Time
	consecutiveFailures int
	lastError           string
}

// Monitor keeps provider health scores fresh with a background check loop
// so executions never pay probe latency. Probes are intentionally shallow:
// they verify the provider record carries the minimum configuration needed
// to be operable, and never issue a request to the external service.
type Monitor struct {
	mu       sync.RWMutex
	registry *Registry
	rater    RecentRater
	interval time.Duration
	records  map[string]*healthRecord
	nowFunc  func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a stopped Monitor. Call Start to begin the check loop,
// or Check/CheckAll directly for deterministic ticks in tests.
func NewMonitor(registry *Registry, rater RecentRater, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultSettings().HealthCheckInterval
	}
	return &Monitor{
		registry: registry,
		rater:    rater,
		interval: interval,
		records:  make(map[string]*healthRecord),
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (m *Monitor) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	m.nowFunc = fn
	m.mu.Unlock()
}

// Start performs one immediate health-check pass and then repeats at the
// configured interval until Stop is called or ctx is cancelled. The loop is
// best-effort: a failed pass is logged and never stops subsequent passes.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return // already running
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)

		m.runPass(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runPass(ctx)
			}
		}
	}()
}

// Stop cancels the check loop and waits for it to exit. Safe to call on a
// monitor that was never started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *Monitor) runPass(ctx context.Context) {
	if err := m.CheckAll(ctx); err != nil {
		slog.Warn("health check pass failed", "error", err)
	}
}

// CheckAll probes every provider, inactive ones included since they may be
// re-enabled. Per-provider checks run concurrently and are isolated: one
// provider's failure never prevents the others from completing.
func (m *Monitor) CheckAll(ctx context.Context) error {
	providers, err := m.registry.List(ctx, ListOptions{IncludeInactive: true})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			m.Check(ctx, p)
		}(p)
	}
	wg.Wait()
	return nil
}

// Check probes one provider and updates its health record. The score is
// always within [0, 100].
func (m *Monitor) Check(_ context.Context, p Provider) health.Status {
	start := m.now()
	probeErr := probe(p)
	elapsed := m.now().Sub(start)

	score := m.computeScore(p.Name, probeErr == nil, elapsed)

	m.mu.Lock()
	rec, ok := m.records[p.Name]
	if !ok {
		rec = &healthRecord{}
		m.records[p.Name] = rec
	}
	rec.healthy = probeErr == nil
	rec.score = score
	rec.responseTime = elapsed
	rec.lastCheckedAt = m.nowFunc()
	if probeErr != nil {
		rec.consecutiveFailures++
		rec.lastError = probeErr.Error()
	} else {
		rec.consecutiveFailures = 0
		rec.lastError = ""
	}
	status := rec.snapshot()
	m.mu.Unlock()

	return status
}

func (m *Monitor) computeScore(name string, probeOK bool, elapsed time.Duration) int {
	score := 0
	if probeOK {
		score += probeWeight
	}

	latencyCredit := float64(latencyWeight) * (1 - float64(elapsed)/float64(latencyCeiling))
	if latencyCredit < 0 {
		latencyCredit = 0
	}
	score += int(latencyCredit)

	if rate, ok := m.rater.RecentSuccessRate(name); ok {
		score += int(float64(recentWeight) * rate)
	} else {
		score += recentDefault
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Score implements HealthScorer for the registry.
func (m *Monitor) Score(name string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	if !ok {
		return 0, false
	}
	return rec.score, true
}

// Status returns the health record snapshot for one provider.
func (m *Monitor) Status(name string) (health.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	if !ok {
		return health.Status{}, false
	}
	return rec.snapshot(), true
}

// Statuses returns snapshots for every provider checked so far.
func (m *Monitor) Statuses() map[string]health.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]health.Status, len(m.records))
	for name, rec := range m.records {
		out[name] = rec.snapshot()
	}
	return out
}

func (m *Monitor) now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nowFunc()
}

func (r *healthRecord) snapshot() health.Status {
	return health.Status{
		Healthy:             r.healthy,
		Score:               r.score,
		ResponseTime:        r.responseTime,
		LastCheckedAt:       r.lastCheckedAt,
		ConsecutiveFailures: r.consecutiveFailures,
		LastError:           r.lastError,
	}
}

// probe checks that the record carries the minimum configuration needed to
// be considered operable. It is a readiness sanity check, not a functional
// test of the upstream service.
func probe(p Provider) error {
	if p.Name == "" {
		return sterr.New(sterr.CodeHealthProbeFailure, "provider has no name")
	}
	switch p.Source {
	case SourceSystemSecrets:
		if !p.HasCredentials {
			return sterr.New(sterr.CodeHealthProbeFailure,
				"no credentials configured", sterr.FieldProvider(p.Name))
		}
	case SourceFallback:
		// Always operable; it exists so callers have a terminal option.
	default:
		if p.Endpoint == "" {
			return sterr.New(sterr.CodeHealthProbeFailure,
				"no endpoint configured", sterr.FieldProvider(p.Name))
		}
	}
	return nil
}
