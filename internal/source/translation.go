// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package source

import (
	"context"

	"github.com/samia-tarot/providerd/internal/provider"
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// TranslationSettings loads providers from the translation-settings
// endpoint of the admin backend.
type TranslationSettings struct {
	cfg Config
}

// NewTranslationSettings creates the translation-settings source.
func NewTranslationSettings(cfg Config) *TranslationSettings {
	return &TranslationSettings{cfg: cfg}
}

func (s *TranslationSettings) Name() string {
	return provider.SourceTranslationSettings
}

type translationEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Providers []translationProviderDTO `json:"providers"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

type translationProviderDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	ProviderType string   `json:"provider_type"`
	Capabilities []string `json:"capabilities"`
	Priority     int      `json:"priority"`
	IsActive     bool     `json:"is_active"`
	Endpoint     string   `json:"endpoint"`
	Model        string   `json:"model"`
}

func (s *TranslationSettings) Fetch(ctx context.Context, activeOnly bool) ([]provider.Provider, error) {
	var env translationEnvelope
	path := "/api/admin/translation-settings"
	if activeOnly {
		path += "?active_only=true"
	}
	if err := getJSON(ctx, s.cfg, s.Name(), path, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, sterr.Errorf(sterr.CodeSourceRejected,
			"translation settings request rejected: %s", env.Error)
	}

	out := make([]provider.Provider, 0, len(env.Data.Providers))
	for _, dto := range env.Data.Providers {
		out = append(out, dto.toProvider())
	}
	return out, nil
}

func (dto translationProviderDTO) toProvider() provider.Provider {
	caps := dto.Capabilities
	if len(caps) == 0 {
		caps = []string{provider.CapabilityTranslation}
	}
	return provider.Provider{
		ID:           dto.ID,
		Name:         dto.Name,
		DisplayName:  dto.DisplayName,
		Type:         dto.ProviderType,
		Capabilities: caps,
		Priority:     dto.Priority,
		Active:       dto.IsActive,
		Source:       provider.SourceTranslationSettings,
		Endpoint:     dto.Endpoint,
		Model:        dto.Model,
	}
}
