// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

// Package secrets keeps the admin-API token out of plaintext configuration
// by resolving keyring:// URIs against the OS keyring at load time.
package secrets

// Store abstracts a secret backend keyed by (service, key).
type Store interface {
	Store(service, key, value string) error
	Retrieve(service, key string) (string, error)
	Delete(service, key string) error
}
