// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-checks a model every time its file changes.
//
// A Runner checks once at startup, then waits for the model watcher. Every
// debounced change invalidates the provider and queues one re-check;
// changes that arrive while a check is queued are coalesced. Re-checks are
// rate limited so a file rewritten in a loop cannot monopolise the CPU.
//
// Each finished run is saved to the history store, when one is configured,
// and published to the status server.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/modelcheck/services/modelcheck/checker"
	"github.com/AleutianAI/modelcheck/services/modelcheck/history"
	"github.com/AleutianAI/modelcheck/services/modelcheck/model"
	"github.com/AleutianAI/modelcheck/services/modelcheck/server"
)

// Options configures a Runner.
type Options struct {
	// Queries overrides the queries embedded in the model file.
	Queries []checker.Query

	// CheckerOptions are applied to every checker the runner builds.
	CheckerOptions []checker.Option

	// MinInterval is the minimum time between two checks. Zero disables
	// rate limiting.
	MinInterval time.Duration

	// Debounce is passed to the model watcher.
	Debounce time.Duration

	// Store receives every finished run. Optional.
	Store *history.Store

	// Server is updated after every reload and run. Optional.
	Server *server.Server

	// Logger for watch diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// Runner drives watch mode for one model file.
type Runner struct {
	provider *model.Provider
	opts     Options
	limiter  *rate.Limiter
	trigger  chan struct{}
	logger   *slog.Logger
}

// NewRunner creates a Runner over provider.
func NewRunner(provider *model.Provider, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &Runner{
		provider: provider,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		trigger:  make(chan struct{}, 1),
		logger:   logger.With(slog.String("component", "watch")),
	}
}

// Run checks the model, then re-checks on every change until ctx ends.
//
// Description:
//
//	Failed reloads and failed checks are logged and reported through the
//	status server; the runner keeps watching. Only a watcher that cannot
//	start is fatal.
//
// Outputs:
//
//	error - Watcher setup errors. Nil when ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	w, err := model.WatchProvider(r.provider, r.onChange, model.WatcherOptions{
		Debounce: r.opts.Debounce,
		Logger:   r.logger,
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Stop()

	r.Trigger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.trigger:
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return nil
		}
		if _, err := r.CheckOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("check failed", slog.String("error", err.Error()))
		}
	}
}

// Trigger queues a check. Calls while one is queued are coalesced.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Runner) onChange(op model.ChangeOp) {
	r.logger.Info("model changed", slog.String("op", op.String()), slog.String("path", r.provider.Path()))
	r.Trigger()
}

// CheckOnce loads the current assembly and checks every query.
//
// Outputs:
//
//	*history.Record - The stored run, with outcomes.
//	error - Load, checker, or store errors.
func (r *Runner) CheckOnce(ctx context.Context) (*history.Record, error) {
	a, err := r.provider.Get(ctx, false)
	if err != nil {
		r.setError(err)
		return nil, fmt.Errorf("loading model: %w", err)
	}
	r.updateStatus(a)

	queries := r.opts.Queries
	if queries == nil {
		queries = a.Queries
	}

	c, err := a.NewChecker(r.opts.CheckerOptions...)
	if err != nil {
		r.setError(err)
		return nil, fmt.Errorf("creating checker: %w", err)
	}

	started := time.Now()
	report, err := c.CheckModel(ctx, queries)
	if err != nil {
		r.setError(err)
		return nil, err
	}

	rec := history.NewRecord(a.Name, a.Generation, started, report)
	r.logger.Info("model checked",
		slog.String("run_id", rec.RunID),
		slog.Uint64("generation", rec.Generation),
		slog.Int("explained", rec.Explained),
		slog.Int("total", rec.Total),
	)

	var storeErr error
	if r.opts.Store != nil {
		storeErr = r.opts.Store.Save(ctx, rec)
	}
	if r.opts.Server != nil {
		r.opts.Server.Publish(rec)
	}
	if storeErr != nil {
		r.setError(storeErr)
		return &rec, fmt.Errorf("saving run: %w", storeErr)
	}
	return &rec, nil
}

func (r *Runner) updateStatus(a *model.Assembly) {
	if r.opts.Server == nil {
		return
	}
	r.opts.Server.UpdateStatus(func(st *server.Status) {
		st.Model = a.Name
		st.Path = r.provider.Path()
		st.Generation = a.Generation
		st.BuiltAt = a.BuiltAt
	})
}

func (r *Runner) setError(err error) {
	if r.opts.Server == nil || errors.Is(err, context.Canceled) {
		return
	}
	r.opts.Server.UpdateStatus(func(st *server.Status) {
		st.LastError = err.Error()
	})
}
