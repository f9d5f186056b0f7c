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

// Package task implements the task lifecycle, the row-wise and niladic
// execution engines and the iterators that expose a task's output.
//
// A task's status moves through INVALID, READY, WORKING, PAUSED, FINISHED
// and COMPLETE, or ends in FAILED. Any configuration change, or a reset of
// the task's source, discards its output and re-validates it back to READY
// or INVALID.
//
// Execution is pull driven. Reading from an iterator runs the task one step
// at a time until the requested offset exists, and each step pulls from the
// source's own iterator, so reading the last task of a chain drives every
// task upstream of it.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"go.uber.org/zap"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/metrics"
	"github.com/aaronlmathis/rowflow/reactive"
)

// Task is a node of the processing graph.
type Task interface {
	ID() int
	Type() string

	// Config returns a copy of the current configuration.
	Config() core.Config
	// SetConfig replaces the whole configuration.
	SetConfig(cfg core.Config)
	// Update merges updates over the current configuration.
	Update(updates core.Config)

	Status() core.Status
	// Schema is the task's own output schema, nil while INVALID.
	Schema() *arrow.Schema
	// RowSchema is the schema of rows returned by Rows with no column filter.
	RowSchema() *arrow.Schema
	// Err returns the execution error of a FAILED task.
	Err() error
	// Generation increases on every reset.
	Generation() uint64
	// NumRows is the number of output rows committed so far.
	NumRows() int64

	StatusCell() *reactive.Cell[core.Status]
	ConfigCell() *reactive.Cell[core.Config]
	SchemaCell() *reactive.Cell[*arrow.Schema]
	// OnReset calls fn after every reset has settled the new status and schema.
	OnReset(fn func()) *reactive.Subscription

	// Reset discards all output and re-validates the configuration.
	Reset()
	// Run performs one execution step.
	Run(ctx context.Context) error
	// Rows opens an iterator over the task's output, optionally restricted
	// to the named columns.
	Rows(columns ...string) Iterator
	// RowAt reads a single row of a COMPLETE task.
	RowAt(offset int64, columns ...string) (core.Row, error)

	// Args renders the task as a flat mapping of primitive values.
	Args() map[string]interface{}
	// Close releases every file, table and subscription the task holds.
	Close() error
}

// Dependent is implemented by tasks that read from a source task.
type Dependent interface {
	Task
	// SourceID returns the configured source id and whether one is set.
	SourceID() (int, bool)
	Columns() []string
	ColumnCell() *reactive.Cell[[]string]
}

// Iterator is a cursor over a task's output. Each iterator is meant to be
// driven by one goroutine at a time.
type Iterator interface {
	// Next returns the row at the current offset and advances, or io.EOF
	// once the task's output is exhausted.
	Next(ctx context.Context) (core.Row, error)
	// Skip advances n rows without returning them.
	Skip(ctx context.Context, n int64) error
	// Offset is the offset the next call to Next will read.
	Offset() int64
	// Schema describes returned rows. It is nil until the first Next.
	Schema() *arrow.Schema
	Close() error
}

// Env carries what a task needs from the pipeline that owns it.
type Env struct {
	ID      int
	Type    string
	Workdir string
	// Lookup resolves task ids. It must not block on task state.
	Lookup func(id int) (Task, bool)

	Logger          *zap.Logger
	Metrics         *metrics.Collector
	Allocator       memory.Allocator
	MaxBufferedRows int
	// ValidateTimeout bounds the external calls a loader makes while
	// resolving its schema.
	ValidateTimeout time.Duration
}

const (
	DefaultMaxBufferedRows = 1000
	DefaultValidateTimeout = 30 * time.Second
)

func (e Env) withDefaults() Env {
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Allocator == nil {
		e.Allocator = memory.NewGoAllocator()
	}
	if e.MaxBufferedRows <= 0 {
		e.MaxBufferedRows = DefaultMaxBufferedRows
	}
	if e.ValidateTimeout <= 0 {
		e.ValidateTimeout = DefaultValidateTimeout
	}
	if e.Lookup == nil {
		e.Lookup = func(int) (Task, bool) { return nil, false }
	}
	if e.Workdir == "" {
		e.Workdir = "."
	}
	return e
}

// ColumnError reports a requested column that neither the task nor its
// ancestors produce.
type ColumnError struct {
	Task   int
	Column string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("task %d: column %q: %v", e.Task, e.Column, core.ErrNoSuchColumn)
}

func (e *ColumnError) Unwrap() error {
	return core.ErrNoSuchColumn
}
