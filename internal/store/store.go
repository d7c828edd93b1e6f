// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

// Package store defines the optional execution-history persistence
// contract. Health and performance state stay in-memory by design; only
// the append-only log of fallback outcomes is persisted, for the admin
// dashboard's activity views.
package store

import (
	"context"
	"time"
)

// ExecutionRecord is one logged fallback execution outcome.
type ExecutionRecord struct {
	ID             string        `json:"id"`
	Provider       string        `json:"provider"`
	Category       string        `json:"category"`
	Success        bool          `json:"success"`
	AttemptedCount int           `json:"attempted_count"`
	ResponseTime   time.Duration `json:"response_time_ns"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// History is an append-only execution log.
type History interface {
	RecordExecution(ctx context.Context, rec ExecutionRecord) error
	ListExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error)
	Close() error
}
