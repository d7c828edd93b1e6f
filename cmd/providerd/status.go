// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	sterr "github.com/samia-tarot/providerd/pkg/errors"
	"github.com/samia-tarot/providerd/pkg/health"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show provider pool health",
		Long:  "Query the running daemon's system health endpoint and display the aggregate provider pool state.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:18790", "daemon address to check")
	cmd.Flags().StringP("output", "o", "text", "output format: text, json, or yaml")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	format, _ := cmd.Flags().GetString("output")
	out := cmd.OutOrStdout()

	dc := newDaemonClient(addr)
	var sys health.System
	if err := dc.getJSON("/api/v1/system/health", &sys); err != nil {
		if sterr.HasCode(err, sterr.CodeCLIDaemonNotRunning) {
			_, _ = fmt.Fprintf(out, "providerd at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	switch format {
	case "json":
		return encodeJSON(out, sys)
	case "yaml":
		return encodeYAML(out, sys)
	case "text":
		printSystemHealth(out, addr, sys)
		return nil
	default:
		return sterr.Errorf(sterr.CodeCLIInputInvalid, "unknown output format %q", format)
	}
}

func printSystemHealth(out io.Writer, addr string, sys health.System) {
	_, _ = fmt.Fprintf(out, "providerd at %s: %d/%d providers healthy (%.0f%%)\n",
		addr, sys.HealthyProviders, sys.TotalProviders, sys.OverallHealthPct)

	names := make([]string, 0, len(sys.Providers))
	for name := range sys.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		report := sys.Providers[name]
		state := "unhealthy"
		if report.Status.Healthy {
			state = "healthy"
		}
		_, _ = fmt.Fprintf(out, "  %-20s %-10s score=%d", name, state, report.Status.Score)
		if report.Status.ConsecutiveFailures > 0 {
			_, _ = fmt.Fprintf(out, " consecutive_failures=%d", report.Status.ConsecutiveFailures)
		}
		if report.Analytics != nil {
			_, _ = fmt.Fprintf(out, " requests=%d success=%.0f%%",
				report.Analytics.TotalRequests, report.Analytics.SuccessRate)
		}
		_, _ = fmt.Fprintln(out)
	}
}

func encodeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(out io.Writer, v any) error {
	// Round-trip through JSON so yaml honors the json struct tags.
	raw, err := json.Marshal(v)
	if err != nil {
		return sterr.Wrap(err, sterr.CodeCLIResponseInvalid, "encoding output")
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return sterr.Wrap(err, sterr.CodeCLIResponseInvalid, "encoding output")
	}
	return yaml.NewEncoder(out).Encode(generic)
}
