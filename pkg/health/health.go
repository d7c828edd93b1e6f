// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

// Package health defines serializable snapshot types for provider health
// and usage analytics. All fields are point-in-time copies safe to encode
// to JSON; none hold references to live orchestrator state.
package health

import "time"

// Status is the rolling health record of a single provider.
type Status struct {
	Healthy             bool          `json:"healthy"`
	Score               int           `json:"score" doc:"Health score, 0-100"`
	ResponseTime        time.Duration `json:"response_time_ns"`
	LastCheckedAt       time.Time     `json:"last_checked_at"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
}

// Analytics is the per-provider usage summary computed from recorded
// execution outcomes. Recent figures cover the sliding performance window;
// all-time figures are monotonic since process start.
type Analytics struct {
	TotalRequests       int64         `json:"total_requests"`
	SuccessRate         float64       `json:"success_rate" doc:"All-time success rate, percent"`
	AvgResponseTime     time.Duration `json:"avg_response_time_ns"`
	RecentRequests      int           `json:"recent_requests"`
	RecentSuccessRate   float64       `json:"recent_success_rate" doc:"Windowed success rate, percent"`
	RecentAvgResponse   time.Duration `json:"recent_avg_response_time_ns"`
	HealthScore         int           `json:"health_score"`
	Healthy             bool          `json:"healthy"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastCheckedAt       time.Time     `json:"last_checked_at"`
}

// ProviderReport pairs a provider's health status with its analytics for
// the aggregate system view. Analytics is nil when the provider has never
// served a request.
type ProviderReport struct {
	Status    Status     `json:"status"`
	Analytics *Analytics `json:"analytics,omitempty"`
}

// System is the aggregate health of the whole provider pool.
type System struct {
	TotalProviders   int                       `json:"total_providers"`
	HealthyProviders int                       `json:"healthy_providers"`
	OverallHealthPct float64                   `json:"overall_health_pct"`
	Providers        map[string]ProviderReport `json:"providers"`
}
