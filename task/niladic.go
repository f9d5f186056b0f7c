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

package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/apache/arrow/go/v12/arrow"
	"go.uber.org/zap"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/storage"
)

// Loader reads the external source of a niladic task.
type Loader interface {
	// Schema resolves the columns the source will produce. An error leaves
	// the task INVALID.
	Schema(ctx context.Context) (*arrow.Schema, error)
	// Load writes the whole source into out.
	Load(ctx context.Context, out *storage.RowWriter) error
}

// MappedLoader is a Loader whose source already is an Arrow IPC file. The
// file is mapped where it is instead of being loaded.
type MappedLoader interface {
	Loader
	Path() string
}

// LoaderSpec describes a niladic task type.
type LoaderSpec struct {
	// New builds the loader from the configuration. An error leaves the
	// task INVALID.
	New func(env Env, cfg core.Config) (Loader, error)
}

// Niladic is a task with no source. Its first step loads the external
// source in full and writes the random-access tier directly.
type Niladic struct {
	*base
	spec LoaderSpec

	// Guarded by step.
	loader Loader
	table  *storage.Table
	owned  bool

	numRows atomic.Int64
}

// NewNiladic builds a loader task. It starts INVALID; call Reset to
// validate it.
func NewNiladic(env Env, spec LoaderSpec, cfg core.Config) *Niladic {
	n := &Niladic{spec: spec}
	n.base = newBase(env, cfg)
	n.base.eng = n
	return n
}

func (n *Niladic) NumRows() int64 {
	return n.numRows.Load()
}

func (n *Niladic) Args() map[string]interface{} {
	return n.args()
}

func (n *Niladic) prepare() (*arrow.Schema, *arrow.Schema, error) {
	n.loader = nil
	loader, err := n.spec.New(n.env, n.Config())
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.env.ValidateTimeout)
	defer cancel()
	schema, err := loader.Schema(ctx)
	if err != nil {
		return nil, nil, err
	}
	n.loader = loader
	return schema, schema, nil
}

func (n *Niladic) clear() error {
	var errs []error
	if n.table != nil {
		errs = append(errs, n.table.Close())
		n.table = nil
	}
	if n.owned {
		errs = append(errs, removeFile(n.filePath()))
		n.owned = false
	}
	n.numRows.Store(0)
	return errors.Join(errs...)
}

// Run loads the source if the task is READY.
func (n *Niladic) Run(ctx context.Context) error {
	n.step.Lock()
	defer n.step.Unlock()
	if n.closed() {
		return core.ErrClosed
	}
	return n.runLocked(ctx)
}

func (n *Niladic) runLocked(ctx context.Context) error {
	switch n.Status() {
	case core.StatusInvalid:
		return &core.TaskError{ID: n.ID(), Op: "run", Err: core.ErrNotReady}
	case core.StatusFailed:
		return n.Err()
	case core.StatusReady:
	default:
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n.setStatus(core.StatusWorking)
	n.env.Metrics.Step(n.Type())

	path := n.filePath()
	if m, ok := n.loader.(MappedLoader); ok {
		path = m.Path()
	} else {
		if err := n.loadLocked(ctx); err != nil {
			if isContextErr(err) {
				n.setStatus(core.StatusReady)
				return err
			}
			return n.failLocked("load", err)
		}
		n.owned = true
	}
	n.setStatus(core.StatusFinished)

	table, err := storage.OpenTable(path, n.env.Allocator)
	if err != nil {
		return n.failLocked("open", err)
	}
	if !table.Schema().Equal(n.Schema()) {
		table.Close()
		return n.failLocked("open", fmt.Errorf("table schema %s does not match %s", table.Schema(), n.Schema()))
	}
	n.table = table
	n.numRows.Store(table.NumRows())
	n.env.Metrics.RowsOutput(n.Type(), int(table.NumRows()))
	n.log.Debug("source loaded", zap.Int64("rows", table.NumRows()), zap.String("path", path))
	n.setStatus(core.StatusComplete)
	return nil
}

func (n *Niladic) loadLocked(ctx context.Context) error {
	schema := n.Schema()
	fw, err := storage.CreateFile(n.filePath(), schema, n.env.Allocator)
	if err != nil {
		return err
	}
	out := storage.NewRowWriter(fw, schema, n.env.Allocator, n.env.MaxBufferedRows)
	if err := n.loader.Load(ctx, out); err != nil {
		fw.Abort()
		return err
	}
	if err := out.Flush(); err != nil {
		fw.Abort()
		return err
	}
	return fw.Close()
}

func (n *Niladic) Rows(columns ...string) Iterator {
	return n.rows(columns, false)
}

func (n *Niladic) rows(columns []string, noWait bool) Iterator {
	var names []string
	if columns != nil {
		names = append([]string{}, columns...)
	}
	return &tableIter{task: n, names: names, noWait: noWait}
}

func (n *Niladic) RowAt(offset int64, columns ...string) (core.Row, error) {
	n.step.Lock()
	defer n.step.Unlock()
	if n.Status() != core.StatusComplete {
		return nil, &core.TaskError{ID: n.ID(), Op: "row_at", Err: core.ErrNotComplete}
	}
	idx, err := n.indices(columns)
	if err != nil {
		return nil, err
	}
	return n.table.Row(offset, idx)
}

func (n *Niladic) indices(names []string) ([]int, error) {
	schema := n.Schema()
	if names == nil {
		return allIndices(schema), nil
	}
	return columnIndices(n.ID(), schema, names)
}

// serve returns the row at the iterator's offset, loading the source first
// if needed.
func (n *Niladic) serve(ctx context.Context, it *tableIter) (core.Row, error) {
	n.step.Lock()
	defer n.step.Unlock()
	if n.closed() {
		return nil, core.ErrClosed
	}
	if g := n.gen.Load(); g != it.gen {
		it.gen, it.offset, it.idx, it.schema = g, 0, nil, nil
	}

	switch n.Status() {
	case core.StatusInvalid:
		return nil, core.ErrNotReady
	case core.StatusReady:
		if err := n.runLocked(ctx); err != nil {
			return nil, err
		}
	}
	if it.idx == nil {
		idx, err := n.indices(it.names)
		if err != nil {
			return nil, err
		}
		it.idx = idx
		projected := make([]arrow.Field, len(idx))
		for i, j := range idx {
			projected[i] = n.Schema().Field(j)
		}
		it.schema = arrow.NewSchema(projected, nil)
	}
	switch st := n.Status(); st {
	case core.StatusComplete:
		return n.table.Row(it.offset, it.idx)
	case core.StatusFailed:
		return nil, n.Err()
	default:
		return nil, core.Inconsistent("loader finished its step in status %s", st)
	}
}

// tableIter iterates a niladic task.
type tableIter struct {
	task   *Niladic
	names  []string
	noWait bool

	offset int64
	gen    uint64
	idx    []int
	schema *arrow.Schema
	closed bool
}

func (it *tableIter) Next(ctx context.Context) (core.Row, error) {
	for {
		if it.closed {
			return nil, core.ErrClosed
		}
		row, err := it.task.serve(ctx, it)
		if errors.Is(err, core.ErrNotReady) {
			if it.noWait {
				return nil, &core.TaskError{ID: it.task.ID(), Op: "read", Err: core.ErrNotReady}
			}
			if err := it.task.waitReady(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		it.offset++
		return row, nil
	}
}

func (it *tableIter) Skip(ctx context.Context, n int64) error {
	for i := int64(0); i < n; i++ {
		if _, err := it.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (it *tableIter) Offset() int64 {
	return it.offset
}

func (it *tableIter) Schema() *arrow.Schema {
	return it.schema
}

func (it *tableIter) Close() error {
	it.closed = true
	return nil
}
