//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of RowFlow.
//
// RowFlow is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// RowFlow is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with RowFlow. If not, see https://www.gnu.org/licenses/.


// Package config loads engine settings and pipeline definition files.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/rowflow/pipeline"
	"github.com/aaronlmathis/rowflow/task"
)

// EnvPrefix prefixes the environment variable of every settings key.
const EnvPrefix = "ROWFLOW_"

// Settings holds the engine's runtime configuration.
type Settings struct {
	Workdir         string        `yaml:"workdir"`
	MaxBufferedRows int           `yaml:"max_buffered_rows"`
	SampleRows      int           `yaml:"sample_rows"`
	SampleWorkers   int           `yaml:"sample_workers"`
	ValidateTimeout time.Duration `yaml:"validate_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// knownKeys lists every valid settings key.
var knownKeys = map[string]bool{
	"workdir":           true,
	"max_buffered_rows": true,
	"sample_rows":       true,
	"sample_workers":    true,
	"validate_timeout":  true,
	"log_level":         true,
}

// Defaults returns Settings with every default applied.
func Defaults() Settings {
	return Settings{
		MaxBufferedRows: task.DefaultMaxBufferedRows,
		SampleRows:      pipeline.DefaultSampleRows,
		SampleWorkers:   pipeline.DefaultSampleWorkers,
		ValidateTimeout: task.DefaultValidateTimeout,
		LogLevel:        "info",
	}
}

// settingsFileRaw is the on-disk form; unset keys stay nil so they do not
// override defaults.
type settingsFileRaw struct {
	Workdir         *string `yaml:"workdir,omitempty"`
	MaxBufferedRows *int    `yaml:"max_buffered_rows,omitempty"`
	SampleRows      *int    `yaml:"sample_rows,omitempty"`
	SampleWorkers   *int    `yaml:"sample_workers,omitempty"`
	ValidateTimeout *string `yaml:"validate_timeout,omitempty"`
	LogLevel        *string `yaml:"log_level,omitempty"`
}

// Load resolves settings in this order, later layers winning:
//
//	default < settings file < ROWFLOW_* env var < override
//
// An empty path skips the file layer; a missing file is an error.
func Load(path string, overrides map[string]string) (Settings, error) {
	s := Defaults()

	if path != "" {
		raw, err := loadRawFile(path)
		if err != nil {
			return s, err
		}
		if err := applyFile(raw, &s); err != nil {
			return s, err
		}
	}

	for _, key := range sortedKeys() {
		if v, ok := os.LookupEnv(EnvPrefix + strings.ToUpper(key)); ok {
			if err := s.set(key, v); err != nil {
				return s, fmt.Errorf("env %s%s: %w", EnvPrefix, strings.ToUpper(key), err)
			}
		}
	}

	for k, v := range overrides {
		if err := ValidateKey(k); err != nil {
			return s, err
		}
		if err := s.set(k, v); err != nil {
			return s, err
		}
	}
	return s, s.Validate()
}

func loadRawFile(path string) (settingsFileRaw, error) {
	var raw settingsFileRaw
	data, err := os.ReadFile(path)
	if err != nil {
		return raw, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return raw, fmt.Errorf("parse settings file: %w", err)
	}
	return raw, nil
}

func applyFile(raw settingsFileRaw, s *Settings) error {
	if raw.Workdir != nil {
		s.Workdir = *raw.Workdir
	}
	if raw.MaxBufferedRows != nil {
		s.MaxBufferedRows = *raw.MaxBufferedRows
	}
	if raw.SampleRows != nil {
		s.SampleRows = *raw.SampleRows
	}
	if raw.SampleWorkers != nil {
		s.SampleWorkers = *raw.SampleWorkers
	}
	if raw.ValidateTimeout != nil {
		d, err := time.ParseDuration(*raw.ValidateTimeout)
		if err != nil {
			return fmt.Errorf("invalid validate_timeout %q: %w", *raw.ValidateTimeout, err)
		}
		s.ValidateTimeout = d
	}
	if raw.LogLevel != nil {
		s.LogLevel = *raw.LogLevel
	}
	return nil
}

func (s *Settings) set(key, v string) error {
	switch key {
	case "workdir":
		s.Workdir = v
	case "max_buffered_rows", "sample_rows", "sample_workers":
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		switch key {
		case "max_buffered_rows":
			s.MaxBufferedRows = n
		case "sample_rows":
			s.SampleRows = n
		default:
			s.SampleWorkers = n
		}
	case "validate_timeout":
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid validate_timeout %q: %w", v, err)
		}
		s.ValidateTimeout = d
	case "log_level":
		s.LogLevel = v
	}
	return nil
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	if s.MaxBufferedRows <= 0 {
		return fmt.Errorf("max_buffered_rows must be positive, got %d", s.MaxBufferedRows)
	}
	if s.SampleRows < 0 {
		return fmt.Errorf("sample_rows must not be negative, got %d", s.SampleRows)
	}
	if s.SampleWorkers <= 0 {
		return fmt.Errorf("sample_workers must be positive, got %d", s.SampleWorkers)
	}
	if s.ValidateTimeout <= 0 {
		return fmt.Errorf("validate_timeout must be positive, got %s", s.ValidateTimeout)
	}
	if _, err := s.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (s Settings) Level() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return lvl, fmt.Errorf("invalid log_level %q: %w", s.LogLevel, err)
	}
	return lvl, nil
}

// Logger builds a console logger at the configured level: the development
// encoder at debug, the production one otherwise.
func (s Settings) Logger() (*zap.Logger, error) {
	lvl, err := s.Level()
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// PipelineOptions turns the settings into pipeline options.
func (s Settings) PipelineOptions() []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithWorkdir(s.Workdir),
		pipeline.WithMaxBufferedRows(s.MaxBufferedRows),
		pipeline.WithValidateTimeout(s.ValidateTimeout),
	}
	if s.SampleRows > 0 {
		opts = append(opts, pipeline.WithSampling(s.SampleRows, s.SampleWorkers))
	}
	return opts
}

// ValidateKey returns an error if key is not a known settings key.
func ValidateKey(key string) error {
	if !knownKeys[key] {
		return fmt.Errorf("unknown config key %q; known keys: %s", key, strings.Join(sortedKeys(), ", "))
	}
	return nil
}

func sortedKeys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
