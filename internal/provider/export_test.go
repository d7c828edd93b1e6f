// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package provider

import (
	"context"
	"time"
)

// SetSleepFunc overrides the inter-attempt sleep (for testing).
func (e *Executor) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	e.sleep = fn
}

// Executor exposes the underlying executor (for testing).
func (s *Service) Executor() *Executor {
	return s.executor
}
