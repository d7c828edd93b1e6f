// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package provider

import (
	"sync"
	"time"

	"github.com/samia-tarot/providerd/pkg/health"
)

type providerStats struct {
	total      int64
	success    int64
	failure    int64
	cumulative time.Duration
	recent     []Outcome
}

// Tracker maintains per-provider rolling counters and a sliding time window
// of recent outcomes. The window is pruned on every write and defensively
// on every read, since entries age out even without new writes.
type Tracker struct {
	mu      sync.Mutex
	window  time.Duration
	stats   map[string]*providerStats
	nowFunc func() time.Time
}

// NewTracker creates a Tracker with the given performance window.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultSettings().PerformanceWindow
	}
	return &Tracker{
		window:  window,
		stats:   make(map[string]*providerStats),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	t.nowFunc = fn
	t.mu.Unlock()
}

// Record appends one execution outcome for a provider, creating its stats
// lazily on first use.
func (t *Tracker) Record(name string, o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if o.At.IsZero() {
		o.At = t.nowFunc()
	}

	s, ok := t.stats[name]
	if !ok {
		s = &providerStats{}
		t.stats[name] = s
	}

	s.total++
	if o.Success {
		s.success++
	} else {
		s.failure++
	}
	s.cumulative += o.ResponseTime
	s.recent = append(s.recent, o)
	s.prune(t.nowFunc().Add(-t.window))
}

// RecentSuccessRate returns the windowed success rate in [0, 1]. The second
// return is false when the provider has no retained recent outcomes.
func (t *Tracker) RecentSuccessRate(name string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[name]
	if !ok {
		return 0, false
	}
	s.prune(t.nowFunc().Add(-t.window))
	if len(s.recent) == 0 {
		return 0, false
	}

	succeeded := 0
	for _, o := range s.recent {
		if o.Success {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(s.recent)), true
}

// RecentFailureRate returns the windowed failure rate in [0, 1] and the
// number of retained recent outcomes. Used by the auto-disable check.
func (t *Tracker) RecentFailureRate(name string) (float64, int) {
	rate, ok := t.RecentSuccessRate(name)
	if !ok {
		return 0, 0
	}

	t.mu.Lock()
	n := len(t.stats[name].recent)
	t.mu.Unlock()
	return 1 - rate, n
}

// Analytics computes the usage summary for a provider on read. Returns
// false when no outcome has ever been recorded. Health fields of the
// returned struct are zero; the service layer fills them from the monitor.
func (t *Tracker) Analytics(name string) (health.Analytics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[name]
	if !ok {
		return health.Analytics{}, false
	}
	s.prune(t.nowFunc().Add(-t.window))

	a := health.Analytics{
		TotalRequests:  s.total,
		RecentRequests: len(s.recent),
	}
	if s.total > 0 {
		a.SuccessRate = 100 * float64(s.success) / float64(s.total)
		a.AvgResponseTime = s.cumulative / time.Duration(s.total)
	}
	if len(s.recent) > 0 {
		succeeded := 0
		var recentCumulative time.Duration
		for _, o := range s.recent {
			if o.Success {
				succeeded++
			}
			recentCumulative += o.ResponseTime
		}
		a.RecentSuccessRate = 100 * float64(succeeded) / float64(len(s.recent))
		a.RecentAvgResponse = recentCumulative / time.Duration(len(s.recent))
	}
	return a, true
}

// prune drops recent outcomes at or older than the cutoff. Retains entries
// strictly newer than cutoff.
func (s *providerStats) prune(cutoff time.Time) {
	kept := s.recent[:0]
	for _, o := range s.recent {
		if o.At.After(cutoff) {
			kept = append(kept, o)
		}
	}
	s.recent = kept
}
