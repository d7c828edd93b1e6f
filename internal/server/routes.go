// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/samia-tarot/providerd/internal/provider"
	"github.com/samia-tarot/providerd/internal/store"
	"github.com/samia-tarot/providerd/pkg/health"
)

// RegisterService sets the orchestrator dependency and registers REST routes.
func (s *Server) RegisterService(svc *provider.Service) {
	s.svc = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-providers",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers",
		Summary:     "List merged providers",
		Tags:        []string{"providers"},
	}, s.handleListProviders)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-provider-analytics",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers/{name}/analytics",
		Summary:     "Get provider usage analytics",
		Tags:        []string{"providers"},
	}, s.handleProviderAnalytics)

	huma.Register(s.api, huma.Operation{
		OperationID: "system-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/system/health",
		Summary:     "Aggregate provider pool health",
		Tags:        []string{"system"},
	}, s.handleSystemHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-cache",
		Method:      http.MethodDelete,
		Path:        "/api/v1/cache",
		Summary:     "Drop cached provider listings",
		Tags:        []string{"providers"},
	}, s.handleClearCache)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-executions",
		Method:      http.MethodGet,
		Path:        "/api/v1/executions",
		Summary:     "List recent execution outcomes",
		Tags:        []string{"executions"},
	}, s.handleListExecutions)
}

// --- Request/Response types for huma ---

type listProvidersInput struct {
	ForceRefresh    bool   `query:"force_refresh" doc:"Bypass the registry cache"`
	IncludeInactive bool   `query:"include_inactive"`
	SortBy          string `query:"sort_by" enum:"priority,health_score,name" doc:"Sort order, defaults to priority"`
	Category        string `query:"category" doc:"Require providers to list this capability"`
}

type listProvidersOutput struct {
	Body struct {
		Providers []provider.Provider `json:"providers"`
	}
}

type providerNameInput struct {
	Name string `path:"name"`
}

type providerAnalyticsOutput struct {
	Body health.Analytics
}

type systemHealthOutput struct {
	Body health.System
}

type clearCacheOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type listExecutionsInput struct {
	Limit int `query:"limit" minimum:"0" doc:"Max records to return, defaults to 100"`
}

type listExecutionsOutput struct {
	Body struct {
		Executions []store.ExecutionRecord `json:"executions"`
	}
}

// --- Handlers ---

func (s *Server) handleListProviders(ctx context.Context, input *listProvidersInput) (*listProvidersOutput, error) {
	providers, err := s.svc.Providers(ctx, provider.ListOptions{
		ForceRefresh:    input.ForceRefresh,
		IncludeInactive: input.IncludeInactive,
		SortBy:          provider.SortOrder(input.SortBy),
		Category:        input.Category,
	})
	if err != nil {
		return nil, huma.Error500InternalServerError("listing providers", err)
	}
	out := &listProvidersOutput{}
	out.Body.Providers = providers
	return out, nil
}

func (s *Server) handleProviderAnalytics(_ context.Context, input *providerNameInput) (*providerAnalyticsOutput, error) {
	analytics, ok := s.svc.ProviderAnalytics(input.Name)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("no analytics recorded for provider %q", input.Name))
	}
	return &providerAnalyticsOutput{Body: *analytics}, nil
}

func (s *Server) handleSystemHealth(ctx context.Context, _ *struct{}) (*systemHealthOutput, error) {
	sys, err := s.svc.SystemHealth(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("computing system health", err)
	}
	return &systemHealthOutput{Body: *sys}, nil
}

func (s *Server) handleClearCache(_ context.Context, _ *struct{}) (*clearCacheOutput, error) {
	s.svc.ClearCache()
	out := &clearCacheOutput{}
	out.Body.Status = "cleared"
	return out, nil
}

func (s *Server) handleListExecutions(ctx context.Context, input *listExecutionsInput) (*listExecutionsOutput, error) {
	recs, enabled, err := s.svc.ExecutionHistory(ctx, input.Limit)
	if !enabled {
		return nil, huma.Error503ServiceUnavailable("execution history storage is disabled")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("listing executions", err)
	}
	out := &listExecutionsOutput{}
	out.Body.Executions = recs
	return out, nil
}
