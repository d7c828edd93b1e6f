// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package source

import (
	"context"

	"github.com/samia-tarot/providerd/internal/provider"
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// AIProviders loads providers from the general AI-provider endpoint of the
// admin backend. Unlike the translation-settings endpoint, its payload is a
// bare array under data.
type AIProviders struct {
	cfg Config
}

// NewAIProviders creates the AI-provider source.
func NewAIProviders(cfg Config) *AIProviders {
	return &AIProviders{cfg: cfg}
}

func (s *AIProviders) Name() string {
	return provider.SourceAIProviders
}

type aiEnvelope struct {
	Success bool            `json:"success"`
	Data    []aiProviderDTO `json:"data"`
	Error   string          `json:"error,omitempty"`
}

type aiProviderDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	ProviderType string   `json:"provider_type"`
	Capabilities []string `json:"capabilities"`
	Priority     int      `json:"priority"`
	IsActive     bool     `json:"is_active"`
	APIEndpoint  string   `json:"api_endpoint"`
	DefaultModel string   `json:"default_model"`
}

func (s *AIProviders) Fetch(ctx context.Context, activeOnly bool) ([]provider.Provider, error) {
	var env aiEnvelope
	path := "/api/admin/ai-providers"
	if activeOnly {
		path += "?active_only=true"
	}
	if err := getJSON(ctx, s.cfg, s.Name(), path, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, sterr.Errorf(sterr.CodeSourceRejected,
			"ai providers request rejected: %s", env.Error)
	}

	out := make([]provider.Provider, 0, len(env.Data))
	for _, dto := range env.Data {
		out = append(out, dto.toProvider())
	}
	return out, nil
}

func (dto aiProviderDTO) toProvider() provider.Provider {
	caps := dto.Capabilities
	if len(caps) == 0 {
		caps = []string{provider.CapabilityTextGeneration}
	}
	return provider.Provider{
		ID:           dto.ID,
		Name:         dto.Name,
		DisplayName:  dto.DisplayName,
		Type:         dto.ProviderType,
		Capabilities: caps,
		Priority:     dto.Priority,
		Active:       dto.IsActive,
		Source:       provider.SourceAIProviders,
		Endpoint:     dto.APIEndpoint,
		Model:        dto.DefaultModel,
	}
}
