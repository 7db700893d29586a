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
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeOp is the kind of file change seen by a Watcher.
type ChangeOp int

const (
	// ChangeWrite means the file was written or created.
	ChangeWrite ChangeOp = iota

	// ChangeRemove means the file was removed or renamed away.
	ChangeRemove
)

// String returns "write" or "remove".
func (op ChangeOp) String() string {
	if op == ChangeRemove {
		return "remove"
	}
	return "write"
}

// ChangeHandler is called once per debounced burst of changes with the
// most recent operation.
type ChangeHandler func(op ChangeOp)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Debounce is how long to wait for more changes before firing.
	// Default: 200ms
	Debounce time.Duration

	// Logger for watch errors. Default: slog.Default()
	Logger *slog.Logger
}

// Watcher fires a handler when one model file changes.
//
// # Description
//
// Watches the directory holding the file, since editors often replace a
// file by renaming a temporary one over it, and filters events by name.
// Bursts of events inside the debounce window produce a single call.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	changes  chan ChangeOp
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, handler ChangeHandler, opts WatcherOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving watch path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     abs,
		watcher:  fw,
		handler:  handler,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		changes:  make(chan ChangeOp, 64),
		done:     make(chan struct{}),
	}, nil
}

// WatchProvider creates a watcher that invalidates p on every change and
// then calls then, if non-nil.
func WatchProvider(p *Provider, then ChangeHandler, opts WatcherOptions) (*Watcher, error) {
	return NewWatcher(p.Path(), func(op ChangeOp) {
		p.Invalidate()
		if then != nil {
			then(op)
		}
	}, opts)
}

// Start begins watching. It returns immediately; watching stops when ctx
// is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", w.path, err)
	}
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether Start has been called and Stop has not.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			op := ChangeWrite
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				op = ChangeRemove
			} else if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			select {
			case w.changes <- op:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("model watch error",
				slog.String("path", w.path),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var (
		pending bool
		last    ChangeOp
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	flush := func() {
		if pending && w.handler != nil {
			w.handler(last)
		}
		pending = false
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case op := <-w.changes:
			pending, last = true, op
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}
