// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

// Package source loads provider candidates from the admin REST backend.
// Each backend endpoint has its own response schema; every Source decodes
// its own DTO and maps it explicitly into the canonical provider.Provider
// shape, so schema drift in one endpoint cannot leak into the others.
package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// Config holds the shared HTTP settings for backend sources.
type Config struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (c Config) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// getJSON performs an authenticated GET against the backend and decodes
// the JSON body into dest.
func getJSON(ctx context.Context, cfg Config, sourceName, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+path, nil)
	if err != nil {
		return sterr.Wrapf(err, sterr.CodeSourceRequestFailure, "building %s request", sourceName)
	}
	req.Header.Set("Accept", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := cfg.client().Do(req)
	if err != nil {
		return sterr.Wrap(err, sterr.CodeSourceRequestFailure,
			"fetching "+sourceName, sterr.FieldSource(sourceName))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return sterr.Errorf(sterr.CodeSourceRequestFailure,
			"%s returned HTTP %d: %s", sourceName, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return sterr.Wrapf(err, sterr.CodeSourceResponseInvalid, "decoding %s response", sourceName)
	}
	return nil
}
