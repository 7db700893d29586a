// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command modelcheck checks signed influence-graph models against
// experimental observations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/modelcheck/pkg/logging"
	"github.com/AleutianAI/modelcheck/services/modelcheck/config"
	"github.com/AleutianAI/modelcheck/services/modelcheck/telemetry"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitUnexplained = 2
)

// errUnexplained is returned by check --fail-unexplained and maps to
// ExitUnexplained.
var errUnexplained = errors.New("some queries are unexplained")

func main() {
	err := execute(context.Background(), os.Args[1:])
	switch {
	case err == nil:
		os.Exit(ExitOK)
	case errors.Is(err, errUnexplained):
		os.Exit(ExitUnexplained)
	default:
		os.Exit(ExitError)
	}
}

// execute runs the CLI and always releases logging and telemetry, since
// cobra skips post-run hooks when a command fails.
func execute(ctx context.Context, args []string) error {
	root, app := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, app.teardown(context.WithoutCancel(ctx)))
}

// =============================================================================
// APPLICATION STATE
// =============================================================================

// cliApp holds state shared by all subcommands for one invocation.
type cliApp struct {
	configPath string
	logLevel   string
	logFormat  string
	quiet      bool

	cfg      config.Config
	logger   *logging.Logger
	shutdown func(context.Context) error
}

// setup loads config and starts logging and telemetry.
func (a *cliApp) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	a.cfg = cfg

	lc, err := cfg.LoggerConfig()
	if err != nil {
		return err
	}
	lc.Output = cmd.ErrOrStderr()
	lc.Quiet = a.quiet
	a.logger = logging.New(lc)
	slog.SetDefault(a.logger.Slog())

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

// teardown is safe to call more than once.
func (a *cliApp) teardown(ctx context.Context) error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
		a.shutdown = nil
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

func (a *cliApp) baseLogger() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newRootCmd() (*cobra.Command, *cliApp) {
	app := &cliApp{}

	root := &cobra.Command{
		Use:   "modelcheck",
		Short: "Check influence-graph models against observations",
		Long: `modelcheck decides whether a rule-based model explains observed
relationships by searching its signed influence graph for paths of the
right polarity.

Examples:
  modelcheck check --model egfr.yaml
  modelcheck check --model egfr.yaml --queries stmts.yaml --max-paths 3
  modelcheck check --model egfr.yaml --sample --seed 7 --data measured.yaml
  modelcheck prune --model egfr.yaml
  modelcheck watch --model egfr.yaml --listen :9090`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&app.configPath, "config", "",
		"Config file (default $"+config.EnvConfigPath+")")
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&app.logFormat, "log-format", "",
		"Log format: auto, text, json")
	root.PersistentFlags().BoolVarP(&app.quiet, "quiet", "q", false,
		"Disable console logging")

	root.AddCommand(newCheckCmd(app))
	root.AddCommand(newPruneCmd(app))
	root.AddCommand(newWatchCmd(app))
	root.AddCommand(newConfigCmd())
	return root, app
}
