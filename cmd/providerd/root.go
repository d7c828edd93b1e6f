// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/samia-tarot/providerd/internal/config"
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

// NewRootCmd creates the root providerd command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "providerd",
		Short:         "providerd — AI provider fallback orchestrator",
		Long:          "providerd discovers AI/translation providers from the Samia Tarot admin backend, monitors their health, and executes operations with ordered fallback.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags, mapped to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newProvidersCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return sterr.Errorf(sterr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// Auto-discover providerd.yaml from standard locations.
		v.SetConfigName("providerd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/providerd")
		v.AddConfigPath("/etc/providerd")
		// No config file is fine, defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return sterr.Errorf(sterr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			// No config found anywhere, bootstrap a default to ~/.config/providerd/.
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return sterr.Errorf(sterr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return sterr.Errorf(sterr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}
