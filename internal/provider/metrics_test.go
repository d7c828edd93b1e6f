// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package provider_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samia-tarot/providerd/internal/provider"
)

func TestTracker_RecentSuccessRate(t *testing.T) {
	tracker := provider.NewTracker(5 * time.Minute)

	_, ok := tracker.RecentSuccessRate("deepl")
	assert.False(t, ok, "no outcomes recorded yet")

	tracker.Record("deepl", provider.Outcome{Success: true, ResponseTime: 100 * time.Millisecond})
	tracker.Record("deepl", provider.Outcome{Success: true, ResponseTime: 200 * time.Millisecond})
	tracker.Record("deepl", provider.Outcome{Success: false, ResponseTime: 300 * time.Millisecond})
	tracker.Record("deepl", provider.Outcome{Success: false, ResponseTime: 400 * time.Millisecond})

	rate, ok := tracker.RecentSuccessRate("deepl")
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-9)
}

func TestTracker_WindowExpiry(t *testing.T) {
	clock := newFakeClock()
	tracker := provider.NewTracker(5 * time.Minute)
	tracker.SetNowFunc(clock.Now)

	tracker.Record("deepl", provider.Outcome{Success: false})
	clock.Advance(3 * time.Minute)
	tracker.Record("deepl", provider.Outcome{Success: true})

	rate, ok := tracker.RecentSuccessRate("deepl")
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-9)

	// The first outcome ages out; only the success remains.
	clock.Advance(2*time.Minute + time.Second)
	rate, ok = tracker.RecentSuccessRate("deepl")
	require.True(t, ok)
	assert.InDelta(t, 1.0, rate, 1e-9)

	// Everything ages out, even without new writes.
	clock.Advance(10 * time.Minute)
	_, ok = tracker.RecentSuccessRate("deepl")
	assert.False(t, ok)
}

func TestTracker_RecentFailureRate(t *testing.T) {
	tracker := provider.NewTracker(5 * time.Minute)

	rate, n := tracker.RecentFailureRate("deepl")
	assert.Zero(t, rate)
	assert.Zero(t, n)

	tracker.Record("deepl", provider.Outcome{Success: false})
	tracker.Record("deepl", provider.Outcome{Success: false})
	tracker.Record("deepl", provider.Outcome{Success: false})
	tracker.Record("deepl", provider.Outcome{Success: true})

	rate, n = tracker.RecentFailureRate("deepl")
	assert.Equal(t, 4, n)
	assert.InDelta(t, 0.75, rate, 1e-9)
}

func TestTracker_Analytics(t *testing.T) {
	clock := newFakeClock()
	tracker := provider.NewTracker(5 * time.Minute)
	tracker.SetNowFunc(clock.Now)

	_, ok := tracker.Analytics("deepl")
	assert.False(t, ok)

	tracker.Record("deepl", provider.Outcome{Success: true, ResponseTime: 100 * time.Millisecond})
	tracker.Record("deepl", provider.Outcome{Success: false, ResponseTime: 300 * time.Millisecond})

	a, ok := tracker.Analytics("deepl")
	require.True(t, ok)
	assert.Equal(t, int64(2), a.TotalRequests)
	assert.InDelta(t, 50.0, a.SuccessRate, 1e-9)
	assert.Equal(t, 200*time.Millisecond, a.AvgResponseTime)
	assert.Equal(t, 2, a.RecentRequests)
	assert.InDelta(t, 50.0, a.RecentSuccessRate, 1e-9)
	assert.Equal(t, 200*time.Millisecond, a.RecentAvgResponse)

	// Lifetime counters survive the window; recent figures reset.
	clock.Advance(10 * time.Minute)
	a, ok = tracker.Analytics("deepl")
	require.True(t, ok)
	assert.Equal(t, int64(2), a.TotalRequests)
	assert.InDelta(t, 50.0, a.SuccessRate, 1e-9)
	assert.Zero(t, a.RecentRequests)
	assert.Zero(t, a.RecentSuccessRate)
}

func TestTracker_OutcomeTimestampDefaultsToNow(t *testing.T) {
	clock := newFakeClock()
	tracker := provider.NewTracker(time.Minute)
	tracker.SetNowFunc(clock.Now)

	tracker.Record("deepl", provider.Outcome{Success: true})
	clock.Advance(59 * time.Second)
	_, ok := tracker.RecentSuccessRate("deepl")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = tracker.RecentSuccessRate("deepl")
	assert.False(t, ok)
}
