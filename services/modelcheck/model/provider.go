// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Provider caches the assembly of one model file.
//
// Description:
//
//	Get returns the cached Assembly until Invalidate marks it stale; the
//	next Get then reloads the file and assembles a fresh graph. A frozen
//	graph is never mutated, so callers holding an older Assembly keep a
//	consistent view. Concurrent rebuilds are coalesced into one.
//
// Thread Safety: Safe for concurrent use.
type Provider struct {
	path   string
	opts   AssembleOptions
	logger *slog.Logger
	flight singleflight.Group

	mu         sync.RWMutex
	current    *Assembly
	stale      bool
	generation uint64
}

// NewProvider creates a provider for the model file at path. Nothing is
// loaded until the first Get.
func NewProvider(path string, opts AssembleOptions) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{path: path, opts: opts, logger: logger}
}

// Path returns the model file path.
func (p *Provider) Path() string {
	return p.path
}

// Get returns the current assembly, rebuilding it when missing, stale, or
// when force is set.
//
// Inputs:
//
//	ctx - Context for the rebuild. With concurrent callers, the context of
//	      the caller that started the rebuild is used.
//	force - Rebuild even if the cached assembly is fresh.
//
// Outputs:
//
//	*Assembly - The current assembly.
//	error - Load or assembly errors. The previous assembly stays cached.
func (p *Provider) Get(ctx context.Context, force bool) (*Assembly, error) {
	if !force {
		p.mu.RLock()
		cur, stale := p.current, p.stale
		p.mu.RUnlock()
		if cur != nil && !stale {
			return cur, nil
		}
	}

	v, err, shared := p.flight.Do(p.path, func() (any, error) {
		return p.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debug("shared model rebuild", slog.String("path", p.path))
	}
	return v.(*Assembly), nil
}

// Invalidate marks the cached assembly stale.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.stale = true
	p.mu.Unlock()
	invalidations.Inc()
	p.logger.Info("model invalidated", slog.String("path", p.path))
}

// Generation returns how many assemblies the provider has built.
func (p *Provider) Generation() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation
}

func (p *Provider) rebuild(ctx context.Context) (*Assembly, error) {
	f, err := Load(ctx, p.path)
	if err != nil {
		return nil, err
	}
	a, err := f.Assemble(ctx, p.opts)
	if err != nil {
		return nil, fmt.Errorf("assembling %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.generation++
	a.Generation = p.generation
	p.current = a
	p.stale = false
	p.mu.Unlock()

	assemblies.Inc()
	return a, nil
}
