// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package provider_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samia-tarot/providerd/internal/provider"
	"github.com/samia-tarot/providerd/internal/store"
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// --- Fake history store ---

type fakeHistory struct {
	mu   sync.Mutex
	recs []store.ExecutionRecord
}

func (f *fakeHistory) RecordExecution(_ context.Context, rec store.ExecutionRecord) error {
	f.mu.Lock()
	f.recs = append(f.recs, rec)
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) ListExecutions(_ context.Context, limit int) ([]store.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.ExecutionRecord, len(f.recs))
	copy(out, f.recs)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeHistory) Close() error { return nil }

func (f *fakeHistory) last(t *testing.T) store.ExecutionRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.recs)
	return f.recs[len(f.recs)-1]
}

func serviceSettings() provider.Settings {
	return provider.Settings{
		MaxRetries:     1,
		BaseDelay:      time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func TestService_Execute_RecordsHistory(t *testing.T) {
	src := newStubSource("translation_settings",
		activeProvider("deepl", 1), activeProvider("google", 2))
	history := &fakeHistory{}
	svc := provider.NewService([]provider.Source{src}, serviceSettings(),
		provider.WithExecutionHistory(history))

	result, err := svc.Execute(context.Background(), func(context.Context, provider.Provider, int) (any, error) {
		return "translated", nil
	}, provider.ExecOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)

	rec := history.last(t)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "deepl", rec.Provider)
	assert.Equal(t, provider.CapabilityTranslation, rec.Category)
	assert.True(t, rec.Success)
	assert.Equal(t, 1, rec.AttemptedCount)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestService_Execute_RecordsFailureHistory(t *testing.T) {
	src := newStubSource("translation_settings",
		activeProvider("deepl", 1), activeProvider("google", 2))
	history := &fakeHistory{}
	svc := provider.NewService([]provider.Source{src}, serviceSettings(),
		provider.WithExecutionHistory(history))

	result, err := svc.Execute(context.Background(), func(context.Context, provider.Provider, int) (any, error) {
		return nil, errors.New("upstream glitch")
	}, provider.ExecOptions{})
	require.NoError(t, err)
	require.False(t, result.Success)

	rec := history.last(t)
	assert.False(t, rec.Success)
	assert.Equal(t, 2, rec.AttemptedCount)
	assert.Equal(t, "all providers failed", rec.Error)
}

func TestService_Execute_AutoDisableOnFailureThreshold(t *testing.T) {
	src := newStubSource("translation_settings", activeProvider("deepl", 1))
	settings := serviceSettings()
	settings.FailureThreshold = 0.5
	settings.AutoDisable = true
	svc := provider.NewService([]provider.Source{src}, settings)

	failing := func(context.Context, provider.Provider, int) (any, error) {
		return nil, errors.New("upstream glitch")
	}

	// Below the minimum sample count nothing is disabled.
	for range 4 {
		result, err := svc.Execute(context.Background(), failing, provider.ExecOptions{})
		require.NoError(t, err)
		assert.False(t, result.Success)
	}

	// Four recorded failures at 100% failure rate crossed the threshold;
	// the provider is now disabled in the cached view.
	_, err := svc.Execute(context.Background(), failing, provider.ExecOptions{})
	require.Error(t, err)
	assert.True(t, sterr.HasCode(err, sterr.CodeExecutorNoEligibleProviders),
		"got %s", sterr.CodeOf(err))
}

func TestService_Execute_AutoDisableOffKeepsProvider(t *testing.T) {
	src := newStubSource("translation_settings", activeProvider("deepl", 1))
	svc := provider.NewService([]provider.Source{src}, serviceSettings())

	failing := func(context.Context, provider.Provider, int) (any, error) {
		return nil, errors.New("upstream glitch")
	}

	for range 6 {
		result, err := svc.Execute(context.Background(), failing, provider.ExecOptions{})
		require.NoError(t, err)
		assert.False(t, result.Success)
	}
}

func TestService_ProviderAnalytics(t *testing.T) {
	src := newStubSource("translation_settings", activeProvider("deepl", 1))
	svc := provider.NewService([]provider.Source{src}, serviceSettings())

	_, ok := svc.ProviderAnalytics("deepl")
	assert.False(t, ok, "no usage recorded yet")

	_, err := svc.Execute(context.Background(), func(context.Context, provider.Provider, int) (any, error) {
		return "translated", nil
	}, provider.ExecOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Monitor().CheckAll(context.Background()))

	a, ok := svc.ProviderAnalytics("deepl")
	require.True(t, ok)
	assert.Equal(t, int64(1), a.TotalRequests)
	assert.InDelta(t, 100.0, a.SuccessRate, 1e-9)
	assert.True(t, a.Healthy)
	assert.Greater(t, a.HealthScore, 0)
	assert.False(t, a.LastCheckedAt.IsZero())
}

func TestService_SystemHealth(t *testing.T) {
	broken := activeProvider("azure", 2)
	broken.Endpoint = ""
	src := newStubSource("translation_settings", activeProvider("deepl", 1), broken)
	svc := provider.NewService([]provider.Source{src}, serviceSettings())

	require.NoError(t, svc.Monitor().CheckAll(context.Background()))

	sys, err := svc.SystemHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sys.TotalProviders)
	assert.Equal(t, 1, sys.HealthyProviders)
	assert.InDelta(t, 50.0, sys.OverallHealthPct, 1e-9)
	assert.Contains(t, sys.Providers, "deepl")
	assert.Contains(t, sys.Providers, "azure")
	assert.True(t, sys.Providers["deepl"].Status.Healthy)
	assert.False(t, sys.Providers["azure"].Status.Healthy)
}

func TestService_ExecutionHistoryDisabled(t *testing.T) {
	src := newStubSource("translation_settings", activeProvider("deepl", 1))
	svc := provider.NewService([]provider.Source{src}, serviceSettings())

	_, enabled, err := svc.ExecutionHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestService_StartStop(t *testing.T) {
	src := newStubSource("translation_settings", activeProvider("deepl", 1))
	svc := provider.NewService([]provider.Source{src}, serviceSettings())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	require.Eventually(t, func() bool {
		_, ok := svc.Monitor().Score("deepl")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	svc.Stop()
}
