// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes a watch session over HTTP.
//
// Routes:
//
//	GET /healthz             liveness
//	GET /metrics             Prometheus scrape endpoint
//	GET /v1/status           current model and last run summary
//	GET /v1/reports          stored run summaries, newest first (?limit=N)
//	GET /v1/reports/:run_id  one stored run with outcomes
//	GET /v1/stream           websocket; "hello" then one "report" per run
//
// # Thread Safety
//
// All Server methods are safe for concurrent use.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/modelcheck/services/modelcheck/history"
	"github.com/AleutianAI/modelcheck/services/modelcheck/telemetry"
)

// DefaultListLimit caps /v1/reports when no limit is given.
const DefaultListLimit = 20

var (
	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "modelcheck",
		Subsystem: "server",
		Name:      "stream_subscribers",
		Help:      "Connected report stream clients",
	})

	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "modelcheck",
		Subsystem: "server",
		Name:      "stream_dropped_events_total",
		Help:      "Events dropped for lagging stream clients",
	})
)

// Options configures a Server.
type Options struct {
	// ServiceName is used for otelgin spans. Default: "modelcheck"
	ServiceName string

	// Logger for request diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// Server serves watch status, stored reports and a live report stream.
type Server struct {
	store  *history.Store
	hub    *hub
	router *gin.Engine
	logger *slog.Logger

	mu     sync.RWMutex
	status Status
}

// New creates a Server over store. store may be nil, in which case the
// report routes return 503.
func New(store *history.Store, opts Options) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = "modelcheck"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "server"))

	s := &Server{
		store:  store,
		hub:    newHub(logger),
		logger: logger,
		status: Status{UpdatedAt: time.Now()},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(opts.ServiceName))
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := r.Group("/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/reports", s.handleListReports)
	v1.GET("/reports/:run_id", s.handleGetReport)
	v1.GET("/stream", s.handleStream)

	s.router = r
	return s
}

// Router returns the gin engine, for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Status returns a copy of the current status.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// UpdateStatus applies fn to the status under the lock.
func (s *Server) UpdateStatus(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.status.UpdatedAt = time.Now()
	s.mu.Unlock()
}

// Publish records rec as the last run and pushes it to stream clients.
func (s *Server) Publish(rec history.Record) {
	summary := rec.Summary()
	s.UpdateStatus(func(st *Status) {
		st.LastRun = &summary
		st.LastError = ""
	})
	s.hub.publish(Event{Type: EventReport, Report: &summary})
}

// Subscribers returns the number of connected stream clients.
func (s *Server) Subscribers() int {
	return s.hub.len()
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Status())
}

func (s *Server) handleListReports(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history disabled", Code: "HISTORY_DISABLED"})
		return
	}

	limit := DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Code: "INVALID_LIMIT"})
			return
		}
		limit = n
	}

	recs, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("listing reports failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "HISTORY_ERROR"})
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

func (s *Server) handleGetReport(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history disabled", Code: "HISTORY_DISABLED"})
		return
	}

	rec, err := s.store.Get(c.Request.Context(), c.Param("run_id"))
	switch {
	case errors.Is(err, history.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	case err != nil:
		s.logger.Error("reading report failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "HISTORY_ERROR"})
	default:
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) handleStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	st := s.Status()
	s.hub.serve(ws, Event{Type: EventHello, Status: &st})
}
