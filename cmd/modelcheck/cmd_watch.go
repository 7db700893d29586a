// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/modelcheck/services/modelcheck/history"
	"github.com/AleutianAI/modelcheck/services/modelcheck/model"
	"github.com/AleutianAI/modelcheck/services/modelcheck/server"
	"github.com/AleutianAI/modelcheck/services/modelcheck/watch"
)

type watchFlags struct {
	modelPath   string
	queriesPath string
	listen      string
	historyDir  string
}

func newWatchCmd(app *cliApp) *cobra.Command {
	f := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-check a model whenever its file changes",
		Long: `Check the model, then watch the model file and check again after every
change. Runs are stored in the history store and, with --listen, served
over HTTP together with Prometheus metrics and a websocket report stream.

Examples:
  modelcheck watch --model egfr.yaml
  modelcheck watch --model egfr.yaml --listen :9090
  modelcheck watch --model egfr.yaml --history-dir ~/.modelcheck/history`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, app, f)
		},
	}

	cmd.Flags().StringVarP(&f.modelPath, "model", "m", "",
		"Model file (required)")
	cmd.Flags().StringVar(&f.queriesPath, "queries", "",
		"Query file overriding the model's queries")
	cmd.Flags().StringVar(&f.listen, "listen", "",
		"Status server address (overrides config)")
	cmd.Flags().StringVar(&f.historyDir, "history-dir", "",
		"History store directory (overrides config; empty = in memory)")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

// runWatch runs until SIGINT or SIGTERM.
func runWatch(cmd *cobra.Command, app *cliApp, f *watchFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := app.baseLogger()
	cfg := app.cfg
	if f.listen != "" {
		cfg.Watch.Listen = f.listen
	}
	if f.historyDir != "" {
		cfg.History.Dir = f.historyDir
	}

	asmOpts, err := cfg.AssembleOptions(logger)
	if err != nil {
		return err
	}
	queries, err := checkerQueries(ctx, f.queriesPath, nil)
	if err != nil {
		return err
	}

	storeCfg := history.InMemoryConfig()
	if cfg.History.Dir != "" {
		storeCfg = history.DefaultConfig(expandHome(cfg.History.Dir))
	}
	storeCfg.Retain = cfg.History.Retain
	storeCfg.Logger = logger
	store, err := history.Open(storeCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var srv *server.Server
	if cfg.Watch.Listen != "" {
		srv = server.New(store, server.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Logger:      logger,
		})
	}

	runner := watch.NewRunner(model.NewProvider(f.modelPath, asmOpts), watch.Options{
		Queries:        queries,
		CheckerOptions: cfg.CheckerOptions(logger),
		MinInterval:    cfg.Watch.MinInterval,
		Debounce:       cfg.Watch.Debounce,
		Store:          store,
		Server:         srv,
		Logger:         logger,
	})

	logger.Info("watching model",
		slog.String("path", f.modelPath),
		slog.String("listen", cfg.Watch.Listen),
		slog.Bool("persistent_history", cfg.History.Dir != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	if srv != nil {
		g.Go(func() error { return srv.Run(gctx, cfg.Watch.Listen) })
	}
	err = g.Wait()
	if ctx.Err() != nil && err == nil {
		logger.Info("watch stopped")
	}
	return err
}

// expandHome expands a leading ~ to the home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
