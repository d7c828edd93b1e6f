// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package provider

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// RetryPolicy decides how the per-provider retry loop behaves. The default
// policy is exponential backoff with jitter, permanent-credential-failure
// short-circuit, and rejection of empty results.
type RetryPolicy interface {
	// Retryable reports whether a failed attempt may be retried. Returning
	// false aborts the provider's remaining attempts immediately.
	Retryable(err error, attempt int) bool
	// Validate inspects a non-error result. A non-nil return marks the
	// attempt as failed (invalid result) even though no error was thrown.
	Validate(result any, attempt int) error
	// Delay returns the wait before the next attempt.
	Delay(attempt int, err error) time.Duration
}

// ExecOptions controls provider selection and retry for one execution.
type ExecOptions struct {
	// Category a provider must list among its capabilities. Defaults to
	// "translation".
	Category string
	// RequiredCapabilities must ALL be present on a provider (AND
	// semantics). Empty means no capability filtering beyond Category.
	RequiredCapabilities []string
	// MaxProviders caps how many distinct providers are tried. Zero means
	// no cap.
	MaxProviders int
	// SkipProviders lists provider names excluded from this call.
	SkipProviders []string
	// Retry overrides the default retry policy.
	Retry RetryPolicy
}

// Result is the tagged outcome of an execution. Success is the exclusive
// failure signal for callers; only a selection configuration error is ever
// surfaced as a Go error instead.
type Result struct {
	Success      bool          `json:"success"`
	Value        any           `json:"value,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	Attempt      int           `json:"attempt,omitempty" doc:"1-based index of the winning provider in the fallback sequence"`
	ResponseTime time.Duration `json:"response_time_ns,omitempty"`

	Error          string   `json:"error,omitempty"`
	AttemptedCount int      `json:"attempted_count,omitempty"`
	Attempted      []string `json:"attempted,omitempty"`
}

// Executor runs caller operations against the healthiest eligible provider,
// falling back through the remaining candidates with bounded per-provider
// retry.
type Executor struct {
	registry *Registry
	tracker  *Tracker
	settings Settings

	// afterFailure is invoked after a provider's final failure outcome is
	// recorded. The service layer uses it for threshold auto-disable.
	afterFailure func(name string)

	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor over the registry and tracker.
func NewExecutor(registry *Registry, tracker *Tracker, settings Settings) *Executor {
	return &Executor{
		registry: registry,
		tracker:  tracker,
		settings: settings.withDefaults(),
		sleep:    sleepCtx,
	}
}

// SetAfterFailure registers a hook called with the provider name after its
// final failure outcome is recorded.
func (e *Executor) SetAfterFailure(fn func(name string)) {
	e.afterFailure = fn
}

// Execute tries the operation against eligible providers ordered by health
// score until one succeeds or all are exhausted. The returned error is
// non-nil only for the no-eligible-providers configuration case; every
// other outcome is reported through the Result.
func (e *Executor) Execute(ctx context.Context, op Operation, opts ExecOptions) (*Result, error) {
	if opts.Category == "" {
		opts.Category = CapabilityTranslation
	}

	candidates, err := e.registry.List(ctx, ListOptions{
		SortBy:   SortByHealthScore,
		Category: opts.Category,
	})
	if err != nil {
		return nil, err
	}

	eligible := selectEligible(candidates, opts)
	if len(eligible) == 0 {
		return nil, sterr.New(sterr.CodeExecutorNoEligibleProviders,
			"no eligible providers for operation",
			sterr.Field("category", opts.Category),
			sterr.Field("required_capabilities", opts.RequiredCapabilities),
		)
	}

	policy := opts.Retry
	if policy == nil {
		policy = NewBackoffPolicy(e.settings.BaseDelay, e.settings.MaxDelay)
	}

	attempted := make([]string, 0, len(eligible))
	for i, p := range eligible {
		if ctx.Err() != nil {
			break
		}
		attempted = append(attempted, p.Name)

		value, elapsed, attempts, attemptErr := e.executeWithProvider(ctx, p, op, policy)
		if attemptErr == nil {
			e.tracker.Record(p.Name, Outcome{Success: true, ResponseTime: elapsed})
			return &Result{
				Success:      true,
				Value:        value,
				Provider:     p.Name,
				Attempt:      i + 1,
				ResponseTime: elapsed,
			}, nil
		}

		e.tracker.Record(p.Name, Outcome{
			Success:      false,
			ResponseTime: elapsed,
			Err:          attemptErr.Error(),
		})
		if e.afterFailure != nil {
			e.afterFailure(p.Name)
		}
		slog.Warn("provider exhausted, falling back",
			"provider", p.Name, "attempts", attempts, "error", attemptErr)
	}

	return &Result{
		Success:        false,
		Error:          "all providers failed",
		AttemptedCount: len(attempted),
		Attempted:      attempted,
	}, nil
}

// executeWithProvider is the per-provider retry loop. It returns the
// operation value, the elapsed time of the final attempt, the number of
// attempts consumed, and the final error (nil on success).
func (e *Executor) executeWithProvider(ctx context.Context, p Provider, op Operation, policy RetryPolicy) (any, time.Duration, int, error) {
	var lastErr error
	var lastElapsed time.Duration
	attempts := 0

	for attempt := 1; attempt <= e.settings.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return nil, lastElapsed, attempts, lastErr
		}
		attempts = attempt

		start := time.Now()
		value, err := e.runAttempt(ctx, p, attempt, op)
		lastElapsed = time.Since(start)

		if err == nil {
			if verr := policy.Validate(value, attempt); verr != nil {
				err = verr
			} else {
				return value, lastElapsed, attempts, nil
			}
		}
		lastErr = err

		if !policy.Retryable(err, attempt) {
			slog.Debug("permanent provider error, aborting retries",
				"provider", p.Name, "attempt", attempt, "error", err)
			break
		}
		if attempt == e.settings.MaxRetries {
			break
		}
		if serr := e.sleep(ctx, policy.Delay(attempt, err)); serr != nil {
			break
		}
	}

	return nil, lastElapsed, attempts, lastErr
}

// runAttempt invokes the operation under a hard timeout. The timeout only
// stops waiting; it cannot cancel an operation that ignores ctx. The result
// channel is buffered so a late completion is discarded without blocking or
// touching state the loop has moved past.
func (e *Executor) runAttempt(ctx context.Context, p Provider, attempt int, op Operation) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.settings.AttemptTimeout)
	defer cancel()

	type attemptResult struct {
		value any
		err   error
	}
	done := make(chan attemptResult, 1)

	go func() {
		value, err := op(ctx, p, attempt)
		done <- attemptResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, sterr.Errorf(sterr.CodeExecutorAttemptTimeout,
				"operation timed out after %s", e.settings.AttemptTimeout)
		}
		return nil, ctx.Err()
	}
}

func selectEligible(candidates []Provider, opts ExecOptions) []Provider {
	skip := make(map[string]bool, len(opts.SkipProviders))
	for _, name := range opts.SkipProviders {
		skip[name] = true
	}

	var out []Provider
	for _, p := range candidates {
		if !p.Active || skip[p.Name] {
			continue
		}
		if !hasAllCapabilities(p, opts.RequiredCapabilities) {
			continue
		}
		out = append(out, p)
		if opts.MaxProviders > 0 && len(out) == opts.MaxProviders {
			break
		}
	}
	return out
}

func hasAllCapabilities(p Provider, required []string) bool {
	for _, c := range required {
		if !p.HasCapability(c) {
			return false
		}
	}
	return true
}

// BackoffPolicy is the default retry policy: exponential backoff capped at
// maxDelay with up to 30% random jitter, permanent credential failures
// never retried, and nil or empty-string results treated as invalid.
type BackoffPolicy struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewBackoffPolicy creates the default policy with the given delays.
func NewBackoffPolicy(baseDelay, maxDelay time.Duration) *BackoffPolicy {
	if baseDelay <= 0 {
		baseDelay = DefaultSettings().BaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultSettings().MaxDelay
	}
	return &BackoffPolicy{baseDelay: baseDelay, maxDelay: maxDelay}
}

func (b *BackoffPolicy) Retryable(err error, _ int) bool {
	return !IsPermanent(err)
}

func (b *BackoffPolicy) Validate(result any, _ int) error {
	if result == nil {
		return sterr.New(sterr.CodeExecutorInvalidResult, "operation returned nil result")
	}
	if s, ok := result.(string); ok && s == "" {
		return sterr.New(sterr.CodeExecutorInvalidResult, "operation returned empty result")
	}
	return nil
}

func (b *BackoffPolicy) Delay(attempt int, _ error) time.Duration {
	delay := b.baseDelay << (attempt - 1)
	if delay > b.maxDelay || delay <= 0 {
		delay = b.maxDelay
	}
	jitter := time.Duration(rand.Float64() * 0.3 * float64(delay))
	return delay + jitter
}

// Substrings marking a credential failure in errors that carry no code.
// Typed errors are classified by code; this heuristic exists only for
// foreign errors bubbling out of caller operations.
var permanentMarkers = []string{
	"authentication",
	"authorization",
	"unauthorized",
	"forbidden",
	"invalid api key",
	"invalid_api_key",
}

// IsPermanent reports whether err is a permanent credential failure that
// must not be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if sterr.IsAuthDenied(err) {
		return true
	}
	if sterr.CodeOf(err) != "" {
		// Typed but not a credential failure: timeouts, invalid results and
		// upstream errors all stay retryable.
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
