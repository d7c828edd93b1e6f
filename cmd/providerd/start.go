// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Samia Tarot Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/samia-tarot/providerd/internal/config"
	"github.com/samia-tarot/providerd/internal/provider"
	"github.com/samia-tarot/providerd/internal/secrets"
	"github.com/samia-tarot/providerd/internal/server"
	"github.com/samia-tarot/providerd/internal/source"
	"github.com/samia-tarot/providerd/internal/store/sqlite"
	sterr "github.com/samia-tarot/providerd/pkg/errors"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the orchestrator daemon",
		Long:  "Load configuration, wire the provider sources, start health monitoring, and serve the HTTP API until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = viper.ConfigFileUsed()
	}

	cfg, err := config.Load(cfgPath, secrets.NewKeyringStore())
	if err != nil {
		return err
	}
	config.WarnInsecurePermissions(cfgPath)

	// Apply any flag/env overrides that Viper resolved.
	if listen := viper.GetString("networking.listen"); listen != "" {
		cfg.Networking.Listen = listen
	}
	if viper.GetBool("verbose") {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	srcCfg := source.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
	}
	sources := []provider.Source{
		source.NewTranslationSettings(srcCfg),
		source.NewAIProviders(srcCfg),
		source.NewSystemSecrets(srcCfg),
	}

	var opts []provider.Option
	if cfg.Storage.Path != "" {
		history, err := sqlite.NewHistoryStore(cfg.Storage.Path)
		if err != nil {
			return sterr.Wrap(err, sterr.CodeCLISetupFailure, "opening execution history store")
		}
		defer func() { _ = history.Close() }()
		opts = append(opts, provider.WithExecutionHistory(history))
	}

	svc := provider.NewService(sources, cfg.OrchestratorSettings(), opts...)

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
	})
	if err != nil {
		return err
	}
	srv.RegisterService(svc)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc.Start(ctx)
	defer svc.Stop()

	slog.Info("providerd started",
		"listen", cfg.Networking.Listen,
		"backend", cfg.Backend.BaseURL,
		"history", cfg.Storage.Path != "",
	)
	return srv.Start(ctx)
}
