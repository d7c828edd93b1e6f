// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package source

import (
	"context"
	"strings"

	"github.com/samia-tarot/providerd/internal/provider"
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// SystemSecrets derives provider candidates from the system-secret listing:
// any secret in the "ai_services" category whose key contains "API_KEY"
// implies a configured provider. Only the presence of an encrypted value is
// used; the secret material itself is never decoded, stored, or logged.
type SystemSecrets struct {
	cfg Config
}

// NewSystemSecrets creates the system-secret-derived source.
func NewSystemSecrets(cfg Config) *SystemSecrets {
	return &SystemSecrets{cfg: cfg}
}

func (s *SystemSecrets) Name() string {
	return provider.SourceSystemSecrets
}

const (
	secretCategoryAIServices = "ai_services"
	secretKeyMarker          = "API_KEY"

	// Secret-derived records carry no explicit priority; rank them after
	// explicitly configured providers.
	secretDerivedPriority = 100
)

type secretsEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Secrets []secretDTO `json:"secrets"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

type secretDTO struct {
	Key            string `json:"key"`
	Category       string `json:"category"`
	EncryptedValue string `json:"encrypted_value,omitempty"`
	IsActive       bool   `json:"is_active"`
}

func (s *SystemSecrets) Fetch(ctx context.Context, activeOnly bool) ([]provider.Provider, error) {
	var env secretsEnvelope
	if err := getJSON(ctx, s.cfg, s.Name(), "/api/admin/system-secrets", &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, sterr.Errorf(sterr.CodeSourceRejected,
			"system secrets request rejected: %s", env.Error)
	}

	var out []provider.Provider
	for _, sec := range env.Data.Secrets {
		if sec.Category != secretCategoryAIServices || !strings.Contains(sec.Key, secretKeyMarker) {
			continue
		}
		if activeOnly && !sec.IsActive {
			continue
		}
		out = append(out, sec.toProvider())
	}
	return out, nil
}

func (dto secretDTO) toProvider() provider.Provider {
	name := providerNameFromKey(dto.Key)
	return provider.Provider{
		ID:             "secret:" + dto.Key,
		Name:           name,
		DisplayName:    name,
		Type:           name,
		Capabilities:   []string{provider.CapabilityTextGeneration},
		Priority:       secretDerivedPriority,
		Active:         dto.IsActive,
		Source:         provider.SourceSystemSecrets,
		HasCredentials: dto.EncryptedValue != "",
	}
}

// providerNameFromKey derives the logical provider name from a secret key,
// e.g. "OPENAI_API_KEY" -> "openai".
func providerNameFromKey(key string) string {
	name := key
	if idx := strings.Index(name, secretKeyMarker); idx >= 0 {
		name = name[:idx]
	}
	name = strings.Trim(name, "_")
	return strings.ToLower(name)
}
