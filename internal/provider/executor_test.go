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
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// opRecorder counts operation invocations per provider and returns canned
// outcomes.
type opRecorder struct {
	mu    sync.Mutex
	calls map[string]int
	run   func(p provider.Provider, attempt int) (any, error)
}

func newOpRecorder(run func(p provider.Provider, attempt int) (any, error)) *opRecorder {
	return &opRecorder{calls: make(map[string]int), run: run}
}

func (o *opRecorder) op(_ context.Context, p provider.Provider, attempt int) (any, error) {
	o.mu.Lock()
	o.calls[p.Name]++
	o.mu.Unlock()
	return o.run(p, attempt)
}

func (o *opRecorder) count(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[name]
}

func newTestExecutor(t *testing.T, settings provider.Settings, providers ...provider.Provider) (*provider.Executor, *provider.Tracker) {
	t.Helper()
	src := newStubSource("translation_settings", providers...)
	registry := provider.NewRegistry([]provider.Source{src}, time.Minute)
	tracker := provider.NewTracker(5 * time.Minute)
	executor := provider.NewExecutor(registry, tracker, settings)
	executor.SetSleepFunc(func(context.Context, time.Duration) error { return nil })
	return executor, tracker
}

func fastSettings() provider.Settings {
	return provider.Settings{
		MaxRetries:     3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       4 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func TestExecutor_Execute_FirstProviderSucceeds(t *testing.T) {
	executor, tracker := newTestExecutor(t, fastSettings(),
		activeProvider("deepl", 1), activeProvider("google", 2))

	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return "translated", nil
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "translated", result.Value)
	assert.Equal(t, "deepl", result.Provider)
	assert.Equal(t, 1, result.Attempt)
	assert.Equal(t, 1, rec.count("deepl"))
	assert.Zero(t, rec.count("google"), "no fallback after a success")

	rate, ok := tracker.RecentSuccessRate("deepl")
	require.True(t, ok)
	assert.InDelta(t, 1.0, rate, 1e-9)
}

func TestExecutor_Execute_FallsBackAfterFailures(t *testing.T) {
	executor, tracker := newTestExecutor(t, fastSettings(),
		activeProvider("deepl", 1),
		activeProvider("google", 2),
		activeProvider("azure", 3))

	rec := newOpRecorder(func(p provider.Provider, _ int) (any, error) {
		if p.Name == "azure" {
			return "translated", nil
		}
		return nil, errors.New("upstream glitch")
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "azure", result.Provider)
	assert.Equal(t, 3, result.Attempt, "attempt is the 1-based winning provider index")

	// Each failed provider consumed its full retry budget.
	assert.Equal(t, 3, rec.count("deepl"))
	assert.Equal(t, 3, rec.count("google"))
	assert.Equal(t, 1, rec.count("azure"))

	rate, ok := tracker.RecentSuccessRate("deepl")
	require.True(t, ok)
	assert.Zero(t, rate)
}

func TestExecutor_Execute_AllProvidersFail(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(),
		activeProvider("deepl", 1), activeProvider("google", 2))

	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return nil, errors.New("upstream glitch")
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{})
	require.NoError(t, err, "exhaustion is reported via the result, not an error")
	assert.False(t, result.Success)
	assert.Equal(t, "all providers failed", result.Error)
	assert.Equal(t, 2, result.AttemptedCount)
	assert.Equal(t, []string{"deepl", "google"}, result.Attempted)
	assert.Empty(t, result.Provider)
}

func TestExecutor_Execute_NoEligibleProviders(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(), activeProvider("deepl", 1))

	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return "translated", nil
	})

	_, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{
		SkipProviders: []string{"deepl"},
	})
	require.Error(t, err)
	assert.True(t, sterr.HasCode(err, sterr.CodeExecutorNoEligibleProviders),
		"got %s", sterr.CodeOf(err))
	assert.Zero(t, rec.count("deepl"))
}

func TestExecutor_Execute_CategoryFiltering(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(),
		activeProvider("deepl", 1, provider.CapabilityTranslation),
		activeProvider("openai", 2, provider.CapabilityTextGeneration))

	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return "generated", nil
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{
		Category: provider.CapabilityTextGeneration,
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
	assert.Zero(t, rec.count("deepl"))
}

func TestExecutor_Execute_RequiredCapabilitiesAndSemantics(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(),
		activeProvider("deepl", 1, provider.CapabilityTranslation),
		activeProvider("openai", 2, provider.CapabilityTranslation, provider.CapabilityTextGeneration))

	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return "translated", nil
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{
		RequiredCapabilities: []string{provider.CapabilityTranslation, provider.CapabilityTextGeneration},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider, "all required capabilities must be present")
}

func TestExecutor_Execute_MaxProvidersCap(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(),
		activeProvider("deepl", 1),
		activeProvider("google", 2),
		activeProvider("azure", 3))

	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return nil, errors.New("upstream glitch")
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{
		MaxProviders: 2,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"deepl", "google"}, result.Attempted)
	assert.Zero(t, rec.count("azure"))
}

func TestExecutor_Execute_RetriesExactlyMaxRetries(t *testing.T) {
	settings := fastSettings()
	settings.MaxRetries = 5
	executor, _ := newTestExecutor(t, settings, activeProvider("deepl", 1))

	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return nil, errors.New("upstream glitch")
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 5, rec.count("deepl"))
}

func TestExecutor_Execute_PermanentErrorSkipsRetries(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(),
		activeProvider("deepl", 1), activeProvider("google", 2))

	rec := newOpRecorder(func(p provider.Provider, _ int) (any, error) {
		if p.Name == "deepl" {
			return nil, sterr.New(sterr.CodeExecutorAuthDenied, "invalid credentials")
		}
		return "translated", nil
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "google", result.Provider)
	assert.Equal(t, 1, rec.count("deepl"), "credential failures are not retried")
}

func TestExecutor_Execute_UntypedAuthErrorIsPermanent(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(), activeProvider("deepl", 1))

	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return nil, errors.New("401 Unauthorized")
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, rec.count("deepl"))
}

func TestExecutor_Execute_TypedNonAuthErrorStaysRetryable(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(), activeProvider("deepl", 1))

	// The message matches the auth heuristic, but the typed code wins.
	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return nil, sterr.New(sterr.CodeSourceRequestFailure, "proxy said unauthorized")
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, rec.count("deepl"))
}

func TestExecutor_Execute_InvalidResultsAreRetried(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(), activeProvider("deepl", 1))

	rec := newOpRecorder(func(_ provider.Provider, attempt int) (any, error) {
		switch attempt {
		case 1:
			return nil, nil
		case 2:
			return "", nil
		default:
			return "translated", nil
		}
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "translated", result.Value)
	assert.Equal(t, 3, rec.count("deepl"))
}

func TestExecutor_Execute_AttemptTimeout(t *testing.T) {
	settings := fastSettings()
	settings.MaxRetries = 1
	settings.AttemptTimeout = 20 * time.Millisecond
	executor, tracker := newTestExecutor(t, settings, activeProvider("deepl", 1))

	started := time.Now()
	result, err := executor.Execute(context.Background(), func(context.Context, provider.Provider, int) (any, error) {
		// Ignores ctx on purpose: the executor must stop waiting anyway.
		time.Sleep(500 * time.Millisecond)
		return "late", nil
	}, provider.ExecOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Less(t, time.Since(started), 400*time.Millisecond)

	rate, ok := tracker.RecentSuccessRate("deepl")
	require.True(t, ok)
	assert.Zero(t, rate, "timeout is recorded as a failure")
}

func TestExecutor_Execute_CustomRetryPolicy(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(), activeProvider("deepl", 1))

	rec := newOpRecorder(func(provider.Provider, int) (any, error) {
		return nil, errors.New("upstream glitch")
	})

	result, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{
		Retry: noRetryPolicy{},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, rec.count("deepl"), "custom policy declined the retry")
}

type noRetryPolicy struct{}

func (noRetryPolicy) Retryable(error, int) bool      { return false }
func (noRetryPolicy) Validate(any, int) error        { return nil }
func (noRetryPolicy) Delay(int, error) time.Duration { return 0 }

func TestExecutor_Execute_AfterFailureHook(t *testing.T) {
	executor, _ := newTestExecutor(t, fastSettings(),
		activeProvider("deepl", 1), activeProvider("google", 2))

	var mu sync.Mutex
	var failed []string
	executor.SetAfterFailure(func(name string) {
		mu.Lock()
		failed = append(failed, name)
		mu.Unlock()
	})

	rec := newOpRecorder(func(p provider.Provider, _ int) (any, error) {
		if p.Name == "google" {
			return "translated", nil
		}
		return nil, errors.New("upstream glitch")
	})

	_, err := executor.Execute(context.Background(), rec.op, provider.ExecOptions{})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"deepl"}, failed)
}

func TestBackoffPolicy_Delay(t *testing.T) {
	policy := provider.NewBackoffPolicy(100*time.Millisecond, time.Second)

	prevBase := time.Duration(0)
	for attempt := 1; attempt <= 6; attempt++ {
		delay := policy.Delay(attempt, nil)

		base := 100 * time.Millisecond << (attempt - 1)
		if base > time.Second {
			base = time.Second
		}
		assert.GreaterOrEqual(t, delay, base, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, base+base*3/10+time.Millisecond, "attempt %d", attempt)
		assert.GreaterOrEqual(t, base, prevBase, "base delay must never shrink")
		prevBase = base
	}
}

func TestBackoffPolicy_Validate(t *testing.T) {
	policy := provider.NewBackoffPolicy(0, 0)

	assert.Error(t, policy.Validate(nil, 1))
	assert.Error(t, policy.Validate("", 1))
	assert.NoError(t, policy.Validate("ok", 1))
	assert.NoError(t, policy.Validate(42, 1))
	assert.NoError(t, policy.Validate([]string{}, 1), "only nil and empty strings are rejected")
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, provider.IsPermanent(nil))
	assert.True(t, provider.IsPermanent(sterr.New(sterr.CodeExecutorAuthDenied, "bad key")))
	assert.False(t, provider.IsPermanent(sterr.New(sterr.CodeExecutorAttemptTimeout, "timed out")))
	assert.True(t, provider.IsPermanent(errors.New("invalid api key supplied")))
	assert.True(t, provider.IsPermanent(errors.New("403 Forbidden")))
	assert.False(t, provider.IsPermanent(errors.New("connection reset")))
}
