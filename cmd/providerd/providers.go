// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samia-tarot/providerd/internal/provider"
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

func newProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the merged provider pool",
		Long:  "Query the running daemon for the merged, sorted provider listing.",
		RunE:  runProviders,
	}

	cmd.Flags().String("address", "127.0.0.1:18790", "daemon address to query")
	cmd.Flags().Bool("include-inactive", false, "include disabled providers")
	cmd.Flags().Bool("force-refresh", false, "bypass the registry cache")
	cmd.Flags().String("sort-by", "", "sort order: priority, health_score, or name")
	cmd.Flags().String("category", "", "only providers with this capability")
	cmd.Flags().StringP("output", "o", "text", "output format: text, json, or yaml")

	return cmd
}

func runProviders(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	format, _ := cmd.Flags().GetString("output")
	out := cmd.OutOrStdout()

	query := url.Values{}
	if ok, _ := cmd.Flags().GetBool("include-inactive"); ok {
		query.Set("include_inactive", "true")
	}
	if ok, _ := cmd.Flags().GetBool("force-refresh"); ok {
		query.Set("force_refresh", "true")
	}
	if sortBy, _ := cmd.Flags().GetString("sort-by"); sortBy != "" {
		if !provider.SortOrder(sortBy).Valid() {
			return sterr.Errorf(sterr.CodeCLIInputInvalid, "unknown sort order %q", sortBy)
		}
		query.Set("sort_by", sortBy)
	}
	if category, _ := cmd.Flags().GetString("category"); category != "" {
		query.Set("category", category)
	}

	path := "/api/v1/providers"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	dc := newDaemonClient(addr)
	var resp struct {
		Providers []provider.Provider `json:"providers"`
	}
	if err := dc.getJSON(path, &resp); err != nil {
		if sterr.HasCode(err, sterr.CodeCLIDaemonNotRunning) {
			_, _ = fmt.Fprintf(out, "providerd at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	switch format {
	case "json":
		return encodeJSON(out, resp)
	case "yaml":
		return encodeYAML(out, resp)
	case "text":
		printProviders(out, resp.Providers)
		return nil
	default:
		return sterr.Errorf(sterr.CodeCLIInputInvalid, "unknown output format %q", format)
	}
}

func printProviders(out io.Writer, providers []provider.Provider) {
	if len(providers) == 0 {
		_, _ = fmt.Fprintln(out, "no providers")
		return
	}
	_, _ = fmt.Fprintf(out, "%-20s %-22s %-10s %-8s %-6s %s\n",
		"NAME", "SOURCE", "PRIORITY", "SCORE", "ACTIVE", "CAPABILITIES")
	for _, p := range providers {
		_, _ = fmt.Fprintf(out, "%-20s %-22s %-10d %-8d %-6t %s\n",
			p.Name, p.Source, p.Priority, p.HealthScore, p.Active,
			strings.Join(p.Capabilities, ","))
	}
}
