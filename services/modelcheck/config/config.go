// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the modelcheck configuration file.
//
// The file is YAML with one section per concern:
//
//	check:
//	  max_paths: 3
//	  max_path_length: 6
//	  sampling: true
//	  seed: 42
//	scoring:
//	  sigma: 0.2
//	logging:
//	  level: debug
//	telemetry:
//	  trace_exporter: otlp
//
// Omitted keys keep their defaults. Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/modelcheck/pkg/logging"
	"github.com/AleutianAI/modelcheck/services/modelcheck/checker"
	"github.com/AleutianAI/modelcheck/services/modelcheck/influence"
	"github.com/AleutianAI/modelcheck/services/modelcheck/model"
	"github.com/AleutianAI/modelcheck/services/modelcheck/scoring"
	"github.com/AleutianAI/modelcheck/services/modelcheck/telemetry"
)

// EnvConfigPath names the environment variable holding the config path.
const EnvConfigPath = "MODELCHECK_CONFIG"

// MaxConfigFileSize bounds config reads.
const MaxConfigFileSize = 1 * 1024 * 1024

// ErrInvalidConfig wraps decode and validation failures.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// =============================================================================
// Sections
// =============================================================================

// Config is the root of the configuration file.
type Config struct {
	Check     CheckConfig      `yaml:"check"`
	Scoring   ScoringConfig    `yaml:"scoring"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Watch     WatchConfig      `yaml:"watch"`
	History   HistoryConfig    `yaml:"history"`
}

// CheckConfig holds query bounds and graph assembly settings.
type CheckConfig struct {
	MaxPaths       int    `yaml:"max_paths" validate:"gte=0"`
	MaxPathLength  int    `yaml:"max_path_length" validate:"gte=1"`
	Sampling       bool   `yaml:"sampling"`
	Seed           uint64 `yaml:"seed"`
	Workers        int    `yaml:"workers" validate:"gte=1,lte=256"`
	Prune          bool   `yaml:"prune"`
	ConflictPolicy string `yaml:"conflict_policy" validate:"omitempty,oneof=prefer_positive reject"`
	MaxNodes       int    `yaml:"max_nodes" validate:"gte=0"`
	MaxEdges       int    `yaml:"max_edges" validate:"gte=0"`
}

// ScoringConfig holds path scoring settings.
type ScoringConfig struct {
	Sigma            float64 `yaml:"sigma" validate:"gt=0"`
	LossOfFunction   bool    `yaml:"loss_of_function"`
	IncludeFinalNode bool    `yaml:"include_final_node"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format  string `yaml:"format" validate:"omitempty,oneof=auto text json"`
	LogDir  string `yaml:"log_dir"`
	Service string `yaml:"service"`
}

// WatchConfig holds settings for the watch command.
type WatchConfig struct {
	// Debounce coalesces bursts of file events.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// MinInterval is the minimum time between two re-checks.
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`

	// Listen is the status server address. Empty disables the server.
	Listen string `yaml:"listen"`
}

// HistoryConfig holds settings for the report history store.
type HistoryConfig struct {
	// Dir is the store directory. Empty keeps history in memory.
	Dir string `yaml:"dir"`

	// Retain is how many reports are kept. Zero keeps all.
	Retain int `yaml:"retain" validate:"gte=0"`
}

// =============================================================================
// Defaults and Loading
// =============================================================================

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Check: CheckConfig{
			MaxPaths:       checker.DefaultMaxPaths,
			MaxPathLength:  checker.DefaultMaxPathLength,
			Workers:        checker.DefaultWorkers,
			Prune:          true,
			ConflictPolicy: influence.ConflictPreferPositive.String(),
		},
		Scoring: ScoringConfig{
			Sigma: scoring.DefaultSigma,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  string(logging.FormatAuto),
			Service: "modelcheck",
		},
		Telemetry: telemetry.DefaultConfig(),
		Watch: WatchConfig{
			Debounce:    200 * time.Millisecond,
			MinInterval: time.Second,
		},
		History: HistoryConfig{
			Retain: 100,
		},
	}
}

// Load reads a config file.
//
// Description:
//
//	An empty path falls back to $MODELCHECK_CONFIG. With neither set,
//	Default is returned. Values in the file override the defaults
//	field by field.
//
// Inputs:
//
//	path - Config file path, or "".
//
// Outputs:
//
//	Config - Defaults merged with the file.
//	error - Read errors, or ErrInvalidConfig for decode and validation
//	        failures.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileSize+1))
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if len(data) > MaxConfigFileSize {
		return Config{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidConfig, path, MaxConfigFileSize)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// =============================================================================
// Conversions
// =============================================================================

// CheckerOptions converts the check section into checker options.
func (c Config) CheckerOptions(logger *slog.Logger) []checker.Option {
	return []checker.Option{
		checker.WithBounds(c.Check.MaxPaths, c.Check.MaxPathLength),
		checker.WithSampling(c.Check.Sampling, c.Check.Seed),
		checker.WithWorkers(c.Check.Workers),
		checker.WithLogger(logger),
	}
}

// ScoringOptions converts the scoring section into scorer options.
func (c Config) ScoringOptions(logger *slog.Logger) []scoring.Option {
	return []scoring.Option{
		scoring.WithSigma(c.Scoring.Sigma),
		scoring.WithLossOfFunction(c.Scoring.LossOfFunction),
		scoring.WithIncludeFinalNode(c.Scoring.IncludeFinalNode),
		scoring.WithLogger(logger),
	}
}

// AssembleOptions converts the check section into model assembly options.
func (c Config) AssembleOptions(logger *slog.Logger) (model.AssembleOptions, error) {
	policy, err := influence.ParseConflictPolicy(c.Check.ConflictPolicy)
	if err != nil {
		return model.AssembleOptions{}, err
	}
	return model.AssembleOptions{
		Prune:          c.Check.Prune,
		ConflictPolicy: policy,
		MaxNodes:       c.Check.MaxNodes,
		MaxEdges:       c.Check.MaxEdges,
		Logger:         logger,
	}, nil
}

// LoggerConfig converts the logging section into a logging.Config.
func (c Config) LoggerConfig() (logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:   level,
		Format:  logging.Format(c.Logging.Format),
		LogDir:  c.Logging.LogDir,
		Service: c.Logging.Service,
	}, nil
}
