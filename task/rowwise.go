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
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/reactive"
	"github.com/aaronlmathis/rowflow/storage"
)

// NoSource is the source id of a row-wise task with no source configured.
const NoSource = -1

// RowTransform is the per-row logic of a row-wise task type. A fresh
// transform is built from the configuration on every reset.
type RowTransform interface {
	// Validate checks that the transform can consume rows of input, the
	// schema of the selected source columns.
	Validate(input *arrow.Schema) error
	// OutputSchema returns the columns the transform produces.
	OutputSchema(input *arrow.Schema) (*arrow.Schema, error)
	// Execute transforms one input row into zero or more output rows.
	Execute(ctx context.Context, row core.Row) ([]core.Row, error)
}

// Cardinality says how many output rows a transform yields per input row.
type Cardinality int

const (
	// OneToOne transforms yield exactly one row per input row. Their rows
	// line up with the source's, so iterators also serve source columns.
	OneToOne Cardinality = iota
	// OneToMany transforms yield any number of rows per input row. Only
	// their own columns are served.
	OneToMany
)

// RowwiseSpec describes a row-wise task type.
type RowwiseSpec struct {
	Cardinality Cardinality
	// New builds the transform from the configuration with the source and
	// column keys removed. An error leaves the task INVALID.
	New func(cfg core.Config) (RowTransform, error)
}

var errUpstreamNotReady = fmt.Errorf("source %w", core.ErrNotReady)

// Rowwise is a task that consumes its source one row at a time.
type Rowwise struct {
	*base
	spec RowwiseSpec

	source  *reactive.Cell[int]
	columns *reactive.Cell[[]string]

	watchMu  sync.Mutex
	watched  Task
	watchSub *reactive.Subscription

	// Guarded by step.
	src       Task
	upstream  *arrow.Schema
	transform RowTransform
	input     Iterator
	pending   core.Row
	buffer    *storage.Buffer
	stream    *storage.StreamWriter
	table     *storage.Table

	// Rows flushed to the stream, and rows sitting in the buffer. Written
	// under step; readable without it.
	written  atomic.Int64
	buffered atomic.Int64
}

// NewRowwise builds a row-wise task. The source and column keys of cfg are
// moved into their own cells. The task starts INVALID; call Reset to
// validate it.
func NewRowwise(env Env, spec RowwiseSpec, cfg core.Config) *Rowwise {
	r := &Rowwise{spec: spec}
	r.base = newBase(env, cfg.Without("source", "column"))
	r.base.eng = r
	r.source = reactive.NewCell(ParseSource(cfg["source"]))
	r.columns = reactive.NewCell(parseColumns(cfg["column"]))
	r.subs = append(r.subs,
		r.source.Subscribe(func(int) { r.Reset() }),
		r.columns.Subscribe(func([]string) { r.Reset() }),
	)
	return r
}

// ParseSource reads a source id from a configuration value, returning
// NoSource when it is unset or not a valid id.
func ParseSource(v interface{}) int {
	if v == nil {
		return NoSource
	}
	var id int
	if err := mapstructure.WeakDecode(v, &id); err != nil || id < 0 {
		return NoSource
	}
	return id
}

func parseColumns(v interface{}) []string {
	if v == nil {
		return nil
	}
	var cols []string
	if err := mapstructure.WeakDecode(v, &cols); err != nil {
		return nil
	}
	return cols
}

// SetConfig replaces the configuration, source and column included.
func (r *Rowwise) SetConfig(cfg core.Config) {
	r.source.Set(ParseSource(cfg["source"]))
	r.columns.Set(parseColumns(cfg["column"]))
	r.base.SetConfig(cfg.Without("source", "column"))
}

// Update merges updates, routing source and column to their cells.
func (r *Rowwise) Update(updates core.Config) {
	if v, ok := updates["source"]; ok {
		r.source.Set(ParseSource(v))
	}
	if v, ok := updates["column"]; ok {
		r.columns.Set(parseColumns(v))
	}
	r.base.Update(updates.Without("source", "column"))
}

func (r *Rowwise) SourceID() (int, bool) {
	id := r.source.Get()
	return id, id != NoSource
}

func (r *Rowwise) Columns() []string {
	return append([]string(nil), r.columns.Get()...)
}

func (r *Rowwise) SourceCell() *reactive.Cell[int] {
	return r.source
}

func (r *Rowwise) ColumnCell() *reactive.Cell[[]string] {
	return r.columns
}

func (r *Rowwise) NumRows() int64 {
	return r.written.Load() + r.buffered.Load()
}

func (r *Rowwise) Args() map[string]interface{} {
	out := r.args()
	if id, ok := r.SourceID(); ok {
		out["source"] = id
	} else {
		out["source"] = nil
	}
	out["column"] = r.Columns()
	return out
}

// watch keeps the task subscribed to the resets of its current source.
func (r *Rowwise) watch(src Task) {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if src == r.watched {
		return
	}
	r.watchSub.Dispose()
	r.watchSub, r.watched = nil, src
	if src != nil {
		r.watchSub = src.OnReset(r.Reset)
	}
}

func (r *Rowwise) prepare() (*arrow.Schema, *arrow.Schema, error) {
	r.src, r.upstream, r.transform, r.buffer = nil, nil, nil, nil

	id := r.source.Get()
	if id == NoSource {
		r.watch(nil)
		return nil, nil, errors.New("source is not set")
	}
	src, ok := r.env.Lookup(id)
	if !ok {
		r.watch(nil)
		return nil, nil, fmt.Errorf("source %d: %w", id, core.ErrNoSuchTask)
	}
	if err := r.checkAcyclic(src); err != nil {
		r.watch(nil)
		return nil, nil, err
	}
	r.watch(src)

	cols := r.columns.Get()
	if len(cols) == 0 {
		return nil, nil, errors.New("column is not set")
	}
	upstream := src.RowSchema()
	if upstream == nil {
		return nil, nil, fmt.Errorf("source %d is not ready", id)
	}
	idx, err := columnIndices(id, upstream, cols)
	if err != nil {
		return nil, nil, err
	}
	fields := make([]arrow.Field, len(idx))
	for i, j := range idx {
		fields[i] = upstream.Field(j)
	}
	input := arrow.NewSchema(fields, nil)

	transform, err := r.spec.New(r.Config())
	if err != nil {
		return nil, nil, err
	}
	if err := transform.Validate(input); err != nil {
		return nil, nil, err
	}
	own, err := transform.OutputSchema(input)
	if err != nil {
		return nil, nil, err
	}

	rows := own
	if r.spec.Cardinality == OneToOne {
		all := make([]arrow.Field, 0, len(upstream.Fields())+len(own.Fields()))
		all = append(all, upstream.Fields()...)
		for _, f := range own.Fields() {
			if upstream.HasField(f.Name) {
				return nil, nil, fmt.Errorf("output column %q shadows a source column", f.Name)
			}
			all = append(all, f)
		}
		rows = arrow.NewSchema(all, nil)
	}

	r.src, r.upstream, r.transform = src, upstream, transform
	r.buffer = storage.NewBuffer(own)
	return own, rows, nil
}

// checkAcyclic walks the source chain looking for this task.
func (r *Rowwise) checkAcyclic(src Task) error {
	cur := src
	for hops := 0; cur != nil && hops <= 1<<16; hops++ {
		if cur.ID() == r.ID() {
			return fmt.Errorf("source %d: %w", src.ID(), core.ErrCycle)
		}
		dep, ok := cur.(Dependent)
		if !ok {
			return nil
		}
		next, set := dep.SourceID()
		if !set {
			return nil
		}
		if cur, ok = r.env.Lookup(next); !ok {
			return nil
		}
	}
	return nil
}

func (r *Rowwise) clear() error {
	var errs []error
	if r.input != nil {
		errs = append(errs, r.input.Close())
		r.input = nil
	}
	r.pending = nil
	if r.buffer != nil {
		r.buffer.Reset()
	}
	if r.stream != nil {
		errs = append(errs, r.stream.Close())
		r.stream = nil
	}
	if r.table != nil {
		errs = append(errs, r.table.Close())
		r.table = nil
	}
	errs = append(errs, removeFile(r.streamPath()), removeFile(r.filePath()))
	r.written.Store(0)
	r.buffered.Store(0)
	return errors.Join(errs...)
}

// Close detaches from the source and releases every tier.
func (r *Rowwise) Close() error {
	r.watch(nil)
	return r.base.Close()
}

// Run performs one step: it transforms the pending input row, commits the
// output and pulls the next input row. Input exhaustion finishes the task.
func (r *Rowwise) Run(ctx context.Context) error {
	r.step.Lock()
	defer r.step.Unlock()
	if r.closed() {
		return core.ErrClosed
	}
	return r.runLocked(ctx)
}

func (r *Rowwise) runLocked(ctx context.Context) error {
	switch r.Status() {
	case core.StatusInvalid:
		return &core.TaskError{ID: r.ID(), Op: "run", Err: core.ErrNotReady}
	case core.StatusFailed:
		return r.Err()
	case core.StatusFinished, core.StatusComplete:
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	prev := r.Status()
	if r.input == nil {
		r.input = openRows(r.src, r.columns.Get(), true)
	}
	r.setStatus(core.StatusWorking)
	r.env.Metrics.Step(r.Type())

	if r.pending == nil {
		row, err := r.input.Next(ctx)
		if err == io.EOF {
			return r.finishLocked()
		}
		if err != nil {
			return r.interruptLocked(prev, err)
		}
		r.pending = row
	}

	out, err := r.transform.Execute(ctx, r.pending)
	if err != nil {
		if isContextErr(err) {
			r.setStatus(prev)
			return err
		}
		return r.failLocked("execute", err)
	}
	if r.spec.Cardinality == OneToOne && len(out) != 1 {
		return r.failLocked("execute", fmt.Errorf("one-to-one transform returned %d rows", len(out)))
	}
	if err := r.outputLocked(out); err != nil {
		return r.failLocked("output", err)
	}
	r.pending = nil

	next, err := r.input.Next(ctx)
	if err == io.EOF {
		return r.finishLocked()
	}
	if err != nil {
		return r.interruptLocked(core.StatusPaused, err)
	}
	r.pending = next
	r.setStatus(core.StatusPaused)
	return nil
}

// interruptLocked handles an input error. Cancellation and a source that is
// not ready leave the task resumable in status resume; anything else fails
// it.
func (r *Rowwise) interruptLocked(resume core.Status, err error) error {
	switch {
	case isContextErr(err):
		r.setStatus(resume)
		return err
	case errors.Is(err, core.ErrNotReady):
		r.setStatus(resume)
		return errUpstreamNotReady
	default:
		return r.failLocked("read_source", err)
	}
}

// outputLocked commits the rows of one step, all of them or none.
func (r *Rowwise) outputLocked(rows []core.Row) error {
	mark := r.buffer.Len()
	for _, row := range rows {
		if err := r.buffer.Append(row); err != nil {
			r.buffer.Truncate(mark)
			return err
		}
	}
	r.buffered.Add(int64(len(rows)))
	r.env.Metrics.RowsOutput(r.Type(), len(rows))
	if r.buffer.Len() >= r.env.MaxBufferedRows {
		return r.flushLocked()
	}
	return nil
}

// flushLocked moves the buffer into the stream tier, opening the stream on
// first use.
func (r *Rowwise) flushLocked() error {
	if r.stream == nil {
		s, err := storage.CreateStream(r.streamPath(), r.buffer.Schema(), r.env.Allocator)
		if err != nil {
			return err
		}
		r.stream = s
	}
	n := r.buffer.Len()
	if n == 0 {
		return nil
	}
	rec, err := r.buffer.Record(r.env.Allocator)
	if err != nil {
		return err
	}
	defer rec.Release()
	if err := r.stream.Write(rec); err != nil {
		return err
	}
	r.buffer.Reset()
	r.written.Add(int64(n))
	r.buffered.Store(0)
	return nil
}

func (r *Rowwise) finishLocked() error {
	if err := r.flushLocked(); err != nil {
		return r.failLocked("flush", err)
	}
	if err := r.stream.Close(); err != nil {
		r.stream = nil
		return r.failLocked("flush", err)
	}
	r.stream = nil
	if r.input != nil {
		r.input.Close()
		r.input = nil
	}
	r.setStatus(core.StatusFinished)

	if _, err := storage.ConvertStream(r.streamPath(), r.filePath(), r.env.Allocator); err != nil {
		return r.failLocked("convert", err)
	}
	table, err := storage.OpenTable(r.filePath(), r.env.Allocator)
	if err != nil {
		return r.failLocked("convert", err)
	}
	if table.NumRows() != r.written.Load() {
		table.Close()
		return r.failLocked("convert", core.Inconsistent("table has %d rows, %d were written", table.NumRows(), r.written.Load()))
	}
	r.table = table
	if err := removeFile(r.streamPath()); err != nil {
		r.log.Warn("removing stream file", zap.Error(err))
	}
	r.setStatus(core.StatusComplete)
	return nil
}

func (r *Rowwise) Rows(columns ...string) Iterator {
	return r.rows(columns, false)
}

func (r *Rowwise) rows(columns []string, noWait bool) Iterator {
	var names []string
	if columns != nil {
		names = append([]string{}, columns...)
	}
	return &rowIter{task: r, names: names, noWait: noWait}
}

// RowAt reads one row of a COMPLETE task without an iterator.
func (r *Rowwise) RowAt(offset int64, columns ...string) (core.Row, error) {
	r.step.Lock()
	defer r.step.Unlock()
	if r.Status() != core.StatusComplete {
		return nil, &core.TaskError{ID: r.ID(), Op: "row_at", Err: core.ErrNotComplete}
	}
	p, err := r.plan(columns)
	if err != nil {
		return nil, err
	}
	own, err := r.table.Row(offset, p.own)
	if err != nil {
		return nil, err
	}
	var anc core.Row
	if len(p.ancestors) > 0 {
		if anc, err = p.src.RowAt(offset, p.ancestors...); err != nil {
			if err == io.EOF {
				return nil, core.Inconsistent("source %d has no row %d", p.src.ID(), offset)
			}
			return nil, err
		}
	}
	return p.assemble(own, anc), nil
}

// rowPlan maps requested columns onto the own table and the source.
type rowPlan struct {
	schema    *arrow.Schema
	src       Task
	own       []int
	ancestors []string
	slots     []slot
}

type slot struct {
	own bool
	idx int
}

func (p *rowPlan) assemble(own, anc core.Row) core.Row {
	row := make(core.Row, len(p.slots))
	for i, s := range p.slots {
		if s.own {
			row[i] = own[s.idx]
		} else {
			row[i] = anc[s.idx]
		}
	}
	return row
}

// plan resolves names, nil meaning every column. Called with step held on
// a task that is not INVALID.
func (r *Rowwise) plan(names []string) (*rowPlan, error) {
	own := r.Schema()
	p := &rowPlan{src: r.src}

	if names == nil {
		if r.spec.Cardinality == OneToOne {
			for i, f := range r.upstream.Fields() {
				p.slots = append(p.slots, slot{idx: i})
				p.ancestors = append(p.ancestors, f.Name)
			}
		}
		for i := range own.Fields() {
			p.slots = append(p.slots, slot{own: true, idx: i})
			p.own = append(p.own, i)
		}
		p.schema = r.RowSchema()
		return p, nil
	}

	fields := make([]arrow.Field, 0, len(names))
	for _, name := range names {
		if idx := own.FieldIndices(name); len(idx) > 0 {
			p.slots = append(p.slots, slot{own: true, idx: len(p.own)})
			p.own = append(p.own, idx[0])
			fields = append(fields, own.Field(idx[0]))
			continue
		}
		if r.spec.Cardinality == OneToOne {
			if idx := r.upstream.FieldIndices(name); len(idx) > 0 {
				p.slots = append(p.slots, slot{idx: len(p.ancestors)})
				p.ancestors = append(p.ancestors, name)
				fields = append(fields, r.upstream.Field(idx[0]))
				continue
			}
		}
		return nil, &ColumnError{Task: r.ID(), Column: name}
	}
	p.schema = arrow.NewSchema(fields, nil)
	return p, nil
}

// serve returns the task's own columns at the iterator's offset, running
// steps until that offset is committed.
func (r *Rowwise) serve(ctx context.Context, it *rowIter) (core.Row, error) {
	r.step.Lock()
	defer r.step.Unlock()
	if r.closed() {
		return nil, core.ErrClosed
	}
	if g := r.gen.Load(); g != it.gen {
		it.rewind(g)
	}

	for {
		st := r.Status()
		if st == core.StatusInvalid {
			return nil, core.ErrNotReady
		}
		if it.plan == nil {
			p, err := r.plan(it.names)
			if err != nil {
				return nil, err
			}
			it.plan = p
		}
		if st == core.StatusComplete {
			it.closeStream()
			return r.table.Row(it.offset, it.plan.own)
		}
		if it.offset < r.NumRows() {
			return r.readLocked(it)
		}
		if st == core.StatusFailed {
			return nil, r.Err()
		}
		if err := r.runLocked(ctx); err != nil {
			return nil, err
		}
	}
}

// readLocked serves a committed offset from the open batch, the stream or
// the buffer, in that order.
func (r *Rowwise) readLocked(it *rowIter) (core.Row, error) {
	written := r.written.Load()
	if it.offset >= written {
		return r.buffer.Row(int(it.offset-written), it.plan.own)
	}
	if err := it.seek(r.streamPath(), r.env.Allocator, written); err != nil {
		return nil, err
	}
	pos := int(it.offset - it.batchBase)
	row := make(core.Row, len(it.plan.own))
	for i, c := range it.plan.own {
		row[i] = storage.ValueAt(it.batch.Column(c), pos)
	}
	return row, nil
}

// openRows opens an iterator over src. With noWait set the iterator reports
// a task that is not ready instead of waiting for it; a task reading its
// source inside a step uses that, since the step lock it holds is needed by
// the reset that follows.
func openRows(src Task, columns []string, noWait bool) Iterator {
	if s, ok := src.(interface {
		rows([]string, bool) Iterator
	}); ok {
		return s.rows(columns, noWait)
	}
	return src.Rows(columns...)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
