// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package provider_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samia-tarot/providerd/internal/provider"
)

// --- Stub source ---

type stubSource struct {
	name  string
	calls atomic.Int64

	mu        sync.Mutex
	providers []provider.Provider
	err       error
}

func newStubSource(name string, providers ...provider.Provider) *stubSource {
	return &stubSource{name: name, providers: providers}
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(_ context.Context, _ bool) ([]provider.Provider, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]provider.Provider, len(s.providers))
	copy(out, s.providers)
	return out, nil
}

func (s *stubSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stubSource) setProviders(providers []provider.Provider) {
	s.mu.Lock()
	s.providers = providers
	s.mu.Unlock()
}

// --- Fixed clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// --- Fixture providers ---

func activeProvider(name string, priority int, caps ...string) provider.Provider {
	if len(caps) == 0 {
		caps = []string{provider.CapabilityTranslation}
	}
	return provider.Provider{
		ID:           "id-" + name,
		Name:         name,
		DisplayName:  name,
		Type:         name,
		Capabilities: caps,
		Priority:     priority,
		Active:       true,
		Source:       provider.SourceTranslationSettings,
		Endpoint:     "https://api." + name + ".example.com",
	}
}
