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
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow/go/v12/arrow"
	"go.uber.org/zap"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/reactive"
	"github.com/aaronlmathis/rowflow/storage"
)

// engine is the variant-specific half of a task.
type engine interface {
	// prepare validates the configuration and resolves the task's own
	// schema and its unfiltered row schema. Called with the step lock held,
	// right after clear.
	prepare() (own, rows *arrow.Schema, err error)
	// clear discards every tier and the state derived from them. Called
	// with the step lock held.
	clear() error
}

// base holds the lifecycle shared by every task.
//
// Lock order: resetMu, then step, then mu. Tasks take their source's locks
// only after their own, never the reverse.
type base struct {
	env Env
	log *zap.Logger
	eng engine

	config     *reactive.Cell[core.Config]
	status     *reactive.Cell[core.Status]
	schemaCell *reactive.Cell[*arrow.Schema]
	resets     reactive.Subject[uint64]

	// step serializes execution steps, tier reads and tier clearing.
	step    sync.Mutex
	resetMu sync.Mutex
	gen     atomic.Uint64

	mu        sync.RWMutex
	schema    *arrow.Schema
	rowSchema *arrow.Schema
	failure   error

	done      chan struct{}
	closeOnce sync.Once
	subs      []*reactive.Subscription
}

func newBase(env Env, cfg core.Config) *base {
	env = env.withDefaults()
	if cfg == nil {
		cfg = core.Config{}
	}
	b := &base{
		env:        env,
		log:        env.Logger.With(zap.Int("task", env.ID), zap.String("type", env.Type)),
		config:     reactive.NewCell(cfg.Clone()),
		status:     reactive.NewCell(core.StatusInvalid),
		schemaCell: reactive.NewCell[*arrow.Schema](nil, reactive.WithEqual(storage.SchemaEqual)),
		done:       make(chan struct{}),
	}
	b.subs = append(b.subs, b.config.Subscribe(func(core.Config) { b.Reset() }))
	return b
}

func (b *base) ID() int {
	return b.env.ID
}

func (b *base) Type() string {
	return b.env.Type
}

func (b *base) Config() core.Config {
	return b.config.Get().Clone()
}

func (b *base) SetConfig(cfg core.Config) {
	if cfg == nil {
		cfg = core.Config{}
	}
	b.config.Set(cfg.Clone())
}

func (b *base) Update(updates core.Config) {
	b.config.Set(b.config.Get().Merge(updates))
}

func (b *base) Status() core.Status {
	return b.status.Get()
}

func (b *base) Schema() *arrow.Schema {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.schema
}

func (b *base) RowSchema() *arrow.Schema {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rowSchema
}

func (b *base) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failure
}

func (b *base) Generation() uint64 {
	return b.gen.Load()
}

func (b *base) StatusCell() *reactive.Cell[core.Status] {
	return b.status
}

func (b *base) ConfigCell() *reactive.Cell[core.Config] {
	return b.config
}

func (b *base) SchemaCell() *reactive.Cell[*arrow.Schema] {
	return b.schemaCell
}

func (b *base) OnReset(fn func()) *reactive.Subscription {
	return b.resets.Subscribe(func(uint64) { fn() })
}

// Reset clears the tiers and re-validates. It waits for an in-flight step
// to finish. Status is published while the step lock is held so no step can
// start against the old state; schema and reset notifications go out after
// it is released, letting dependents reset themselves from the callback.
func (b *base) Reset() {
	b.resetMu.Lock()
	defer b.resetMu.Unlock()
	if b.closed() {
		return
	}

	b.step.Lock()
	if err := b.eng.clear(); err != nil {
		b.log.Warn("discarding output", zap.Error(err))
	}
	own, rows, err := b.eng.prepare()
	if err != nil {
		own, rows = nil, nil
	}
	b.mu.Lock()
	b.schema, b.rowSchema, b.failure = own, rows, nil
	b.mu.Unlock()
	gen := b.gen.Add(1)
	if err != nil {
		b.log.Debug("configuration invalid", zap.Error(err))
		b.setStatus(core.StatusInvalid)
	} else {
		b.setStatus(core.StatusReady)
	}
	b.step.Unlock()

	b.schemaCell.Set(own)
	b.resets.Publish(gen)
}

func (b *base) setStatus(st core.Status) {
	prev := b.status.Get()
	if b.status.Set(st) {
		b.env.Metrics.Transition(prev, st)
		b.log.Debug("status changed", zap.Stringer("from", prev), zap.Stringer("to", st))
	}
}

// failLocked records err as the task's failure and moves it to FAILED.
func (b *base) failLocked(op string, err error) error {
	failure := &core.TaskError{ID: b.env.ID, Op: op, Err: fmt.Errorf("%w: %w", core.ErrTaskFailed, err)}
	b.mu.Lock()
	b.failure = failure
	b.mu.Unlock()
	b.env.Metrics.Failure(b.env.Type)
	b.log.Warn("task failed", zap.String("op", op), zap.Error(err))
	b.setStatus(core.StatusFailed)
	return failure
}

// waitReady blocks until the task leaves INVALID.
func (b *base) waitReady(ctx context.Context) error {
	a := b.status.Satisfies(func(s core.Status) bool { return s != core.StatusInvalid })
	select {
	case <-a.Done():
		return nil
	case <-b.done:
		a.Cancel()
		return core.ErrClosed
	case <-ctx.Done():
		a.Cancel()
		return ctx.Err()
	}
}

// waitReset blocks until the task moves past generation gen.
func (b *base) waitReset(ctx context.Context, gen uint64) error {
	ch := make(chan struct{})
	var once sync.Once
	sub := b.resets.Subscribe(func(uint64) { once.Do(func() { close(ch) }) })
	defer sub.Dispose()
	if b.gen.Load() != gen {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-b.done:
		return core.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *base) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// args renders the common fields. Configuration keys are flattened into the
// result; id, type, status and schema take precedence over them.
func (b *base) args() map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range b.Config() {
		out[k] = v
	}
	out["id"] = b.env.ID
	out["type"] = b.env.Type
	out["status"] = b.Status().String()
	out["schema"] = nil
	if schema := b.Schema(); schema != nil {
		if enc, err := storage.EncodeSchema(schema); err == nil {
			out["schema"] = enc
		}
	}
	return out
}

func (b *base) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		for _, s := range b.subs {
			s.Dispose()
		}
		b.step.Lock()
		err = b.eng.clear()
		b.step.Unlock()
		b.resets.Clear()
		b.log.Debug("task closed")
	})
	return err
}

func (b *base) streamPath() string {
	return filepath.Join(b.env.Workdir, fmt.Sprintf("%d.arrows", b.env.ID))
}

func (b *base) filePath() string {
	return filepath.Join(b.env.Workdir, fmt.Sprintf("%d.arrow", b.env.ID))
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// columnIndices resolves names against schema.
func columnIndices(id int, schema *arrow.Schema, names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		found := schema.FieldIndices(name)
		if len(found) == 0 {
			return nil, &ColumnError{Task: id, Column: name}
		}
		idx[i] = found[0]
	}
	return idx, nil
}

func allIndices(schema *arrow.Schema) []int {
	idx := make([]int, len(schema.Fields()))
	for i := range idx {
		idx[i] = i
	}
	return idx
}
