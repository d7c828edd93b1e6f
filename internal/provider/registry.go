// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source produces provider candidates from one backend endpoint. Concrete
// implementations live in internal/source. A Fetch failure is isolated by
// the registry: it never aborts the other sources' contributions.
type Source interface {
	Name() string
	Fetch(ctx context.Context, activeOnly bool) ([]Provider, error)
}

// HealthScorer supplies the current cached health score for a provider.
// Reads must be cheap: the registry attaches scores on every listing and
// never triggers a new health check.
type HealthScorer interface {
	Score(name string) (int, bool)
}

// ListOptions controls a provider listing.
type ListOptions struct {
	ForceRefresh    bool
	IncludeInactive bool
	SortBy          SortOrder
	Category        string
}

type cacheEntry struct {
	providers []Provider
	fetchedAt time.Time
}

// Registry merges provider candidates from several independent backend
// sources into one deduplicated list, cached per option combination with
// a time-based expiry.
type Registry struct {
	mu      sync.Mutex
	sources []Source
	scorer  HealthScorer
	expiry  time.Duration
	cache   map[string]*cacheEntry
	nowFunc func() time.Time
}

// NewRegistry creates a Registry over the given sources.
func NewRegistry(sources []Source, cacheExpiry time.Duration) *Registry {
	if cacheExpiry <= 0 {
		cacheExpiry = DefaultSettings().CacheExpiry
	}
	return &Registry{
		sources: sources,
		expiry:  cacheExpiry,
		cache:   make(map[string]*cacheEntry),
		nowFunc: time.Now,
	}
}

// SetHealthScorer wires the health monitor's score lookup. Optional; without
// it all attached scores are zero.
func (r *Registry) SetHealthScorer(s HealthScorer) {
	r.mu.Lock()
	r.scorer = s
	r.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (r *Registry) SetNowFunc(fn func() time.Time) {
	r.mu.Lock()
	r.nowFunc = fn
	r.mu.Unlock()
}

// List returns the merged, filtered, sorted provider list for the given
// options. An unexpired cache entry for the same option combination is
// returned without touching the sources. Source failures are isolated;
// only when every source fails does the registry fall back to a stale
// cache entry, or, lacking any, a single synthetic fallback provider so
// callers never receive an empty set.
func (r *Registry) List(ctx context.Context, opts ListOptions) ([]Provider, error) {
	if !opts.SortBy.Valid() {
		opts.SortBy = SortByPriority
	}
	key := cacheKey(opts)

	r.mu.Lock()
	if entry, ok := r.cache[key]; ok && !opts.ForceRefresh {
		if r.nowFunc().Sub(entry.fetchedAt) < r.expiry {
			out := r.attachScoresLocked(entry.providers)
			r.mu.Unlock()
			if opts.SortBy == SortByHealthScore {
				sortByScore(out)
			}
			return out, nil
		}
	}
	r.mu.Unlock()

	fetched, failures := r.fetchAll(ctx, opts.IncludeInactive)
	if failures == len(r.sources) && len(r.sources) > 0 {
		r.mu.Lock()
		defer r.mu.Unlock()
		if entry, ok := r.cache[key]; ok {
			slog.Warn("all provider sources failed, serving stale cache",
				"age", r.nowFunc().Sub(entry.fetchedAt))
			out := r.attachScoresLocked(entry.providers)
			if opts.SortBy == SortByHealthScore {
				sortByScore(out)
			}
			return out, nil
		}
		slog.Warn("all provider sources failed with no cache, serving synthetic fallback provider")
		return []Provider{syntheticFallback()}, nil
	}

	merged := merge(fetched)
	filtered := filter(merged, opts)
	sortProvidersPre(filtered, opts.SortBy)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = &cacheEntry{providers: filtered, fetchedAt: r.nowFunc()}
	out := r.attachScoresLocked(filtered)
	if opts.SortBy == SortByHealthScore {
		sortByScore(out)
	}
	return out, nil
}

// Disable flips a provider to inactive in every cached listing. The change
// affects only the cached view: a forced refresh or cache expiry restores
// source truth. Returns true if any cached record was updated.
func (r *Registry) Disable(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, entry := range r.cache {
		for i := range entry.providers {
			if entry.providers[i].Name == name && entry.providers[i].Active {
				entry.providers[i].Active = false
				found = true
			}
		}
	}
	return found
}

// ClearCache drops every cached listing.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]*cacheEntry)
	r.mu.Unlock()
}

// fetchAll queries every source concurrently. Each source is isolated: a
// failure is logged and contributes an empty list. Results are returned in
// source order so merge precedence is stable.
func (r *Registry) fetchAll(ctx context.Context, includeInactive bool) ([][]Provider, int) {
	results := make([][]Provider, len(r.sources))
	errs := make([]error, len(r.sources))

	var wg sync.WaitGroup
	for i, src := range r.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			providers, err := src.Fetch(ctx, !includeInactive)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = providers
		}(i, src)
	}
	wg.Wait()

	failures := 0
	for i, err := range errs {
		if err != nil {
			failures++
			slog.Warn("provider source failed", "source", r.sources[i].Name(), "error", err)
		}
	}
	return results, failures
}

// merge flattens per-source results into one list keyed by logical name.
// The first occurrence defines the canonical record; later occurrences may
// fill in fields the canonical record lacks but never override identity.
func merge(fetched [][]Provider) []Provider {
	var out []Provider
	index := make(map[string]int)

	for _, batch := range fetched {
		for _, p := range batch {
			if p.Name == "" {
				continue
			}
			at, seen := index[p.Name]
			if !seen {
				index[p.Name] = len(out)
				out = append(out, p)
				continue
			}
			overlay(&out[at], p)
		}
	}
	return out
}

// overlay fills zero-valued fields of dst from src and unions capabilities.
func overlay(dst *Provider, src Provider) {
	if dst.DisplayName == "" {
		dst.DisplayName = src.DisplayName
	}
	if dst.Type == "" {
		dst.Type = src.Type
	}
	if dst.Endpoint == "" {
		dst.Endpoint = src.Endpoint
	}
	if dst.Model == "" {
		dst.Model = src.Model
	}
	if src.HasCredentials {
		dst.HasCredentials = true
	}
	for _, c := range src.Capabilities {
		if !dst.HasCapability(c) {
			dst.Capabilities = append(dst.Capabilities, c)
		}
	}
}

func filter(providers []Provider, opts ListOptions) []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if !opts.IncludeInactive && !p.Active {
			continue
		}
		if opts.Category != "" && !p.HasCapability(opts.Category) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// sortProvidersPre orders the list by everything except health score, which
// is attached after caching and sorted separately.
func sortProvidersPre(providers []Provider, by SortOrder) {
	switch by {
	case SortByName:
		sort.Slice(providers, func(i, j int) bool {
			return providers[i].Name < providers[j].Name
		})
	default:
		sort.Slice(providers, func(i, j int) bool {
			if providers[i].Priority != providers[j].Priority {
				return providers[i].Priority < providers[j].Priority
			}
			return providers[i].Name < providers[j].Name
		})
	}
}

// sortByScore orders by descending health score, breaking ties by priority
// then name.
func sortByScore(providers []Provider) {
	sort.Slice(providers, func(i, j int) bool {
		if providers[i].HealthScore != providers[j].HealthScore {
			return providers[i].HealthScore > providers[j].HealthScore
		}
		if providers[i].Priority != providers[j].Priority {
			return providers[i].Priority < providers[j].Priority
		}
		return providers[i].Name < providers[j].Name
	})
}

// attachScoresLocked copies the providers and stamps each with the current
// cached health score. Caller must hold r.mu.
func (r *Registry) attachScoresLocked(providers []Provider) []Provider {
	out := make([]Provider, len(providers))
	copy(out, providers)
	if r.scorer == nil {
		return out
	}
	for i := range out {
		if score, ok := r.scorer.Score(out[i].Name); ok {
			out[i].HealthScore = score
		}
	}
	return out
}

// syntheticFallback is the terminal provider returned when every source is
// down and no cache exists, so callers always have at least one candidate.
func syntheticFallback() Provider {
	return Provider{
		ID:           uuid.NewString(),
		Name:         "fallback",
		DisplayName:  "Fallback",
		Type:         "fallback",
		Capabilities: []string{CapabilityTranslation, CapabilityTextGeneration},
		Priority:     999,
		Active:       true,
		Source:       SourceFallback,
	}
}

// cacheKey identifies an option combination. ForceRefresh is excluded: it
// controls whether the cache is consulted, not which entry is hit.
func cacheKey(opts ListOptions) string {
	return fmt.Sprintf("inactive=%t|sort=%s|category=%s",
		opts.IncludeInactive, opts.SortBy, strings.ToLower(opts.Category))
}
