// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"time"

	"github.com/AleutianAI/modelcheck/services/modelcheck/history"
)

// Status describes the model currently served by a watch session.
type Status struct {
	// Model is the model name from the model file.
	Model string `json:"model"`

	// Path is the watched model file.
	Path string `json:"path"`

	// Generation counts successful rebuilds.
	Generation uint64 `json:"generation"`

	// BuiltAt is when the current model was assembled.
	BuiltAt time.Time `json:"built_at,omitzero"`

	// LastRun summarises the most recent check. Nil before the first run.
	LastRun *history.Record `json:"last_run,omitempty"`

	// LastError is the most recent reload or check failure, cleared on
	// success.
	LastError string `json:"last_error,omitempty"`

	// UpdatedAt is when Status last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Event is one message on the report stream.
type Event struct {
	// Type is "hello" on connect and "report" for each finished run.
	Type string `json:"type"`

	// Status is sent with "hello".
	Status *Status `json:"status,omitempty"`

	// Report is a record summary, sent with "report".
	Report *history.Record `json:"report,omitempty"`
}

// Event types.
const (
	EventHello  = "hello"
	EventReport = "report"
)
