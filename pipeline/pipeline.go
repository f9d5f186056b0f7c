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


// Package pipeline owns a graph of tasks: it allocates their ids, resolves
// source references between them and republishes every task's changes on a
// single event feed.
//
// Example usage:
//
//	p, err := pipeline.New(tasks.NewRegistry(), pipeline.WithWorkdir(dir))
//	if err != nil { log.Fatal(err) }
//	defer p.Close()
//	loader, _ := p.CreateTask("loadFile", core.Config{"path": "in.csv", "format": "csv"})
//	fold, _ := p.CreateTask("caseFold", core.Config{"source": loader.ID(), "column": "text"})
//	n, err := p.Export(ctx, fold.ID(), sink)
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"go.uber.org/zap"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/metrics"
	"github.com/aaronlmathis/rowflow/reactive"
	"github.com/aaronlmathis/rowflow/registry"
	"github.com/aaronlmathis/rowflow/storage"
	"github.com/aaronlmathis/rowflow/task"
)

// Options configures a Pipeline.
type Options struct {
	// Workdir holds every task's tier files. When empty a temporary
	// directory is created and removed again by Close.
	Workdir         string
	Logger          *zap.Logger
	Metrics         *metrics.Collector
	Allocator       memory.Allocator
	MaxBufferedRows int
	ValidateTimeout time.Duration
	// SampleRows enables the sampler when positive.
	SampleRows    int
	SampleWorkers int
}

// Option configures a Pipeline.
type Option func(*Options)

func WithWorkdir(dir string) Option {
	return func(o *Options) {
		o.Workdir = dir
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = log
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(o *Options) {
		o.Metrics = c
	}
}

func WithAllocator(mem memory.Allocator) Option {
	return func(o *Options) {
		o.Allocator = mem
	}
}

// WithMaxBufferedRows sets how many rows a row-wise task buffers in memory
// before flushing them to its stream tier.
func WithMaxBufferedRows(n int) Option {
	return func(o *Options) {
		o.MaxBufferedRows = n
	}
}

func WithValidateTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ValidateTimeout = d
	}
}

// WithSampling publishes the first rows result events for every task each
// time it becomes READY, sampling at most workers tasks at once.
func WithSampling(rows, workers int) Option {
	return func(o *Options) {
		o.SampleRows = rows
		o.SampleWorkers = workers
	}
}

// Pipeline is a registry of tasks keyed by id.
type Pipeline struct {
	reg  *registry.Registry
	opts Options
	log  *zap.Logger

	feed    *Feed
	sampler *Sampler
	tempDir bool

	mu     sync.RWMutex
	tasks  map[int]task.Task
	subs   map[int][]*reactive.Subscription
	nextID int
	closed bool
}

// New returns an empty pipeline creating tasks from reg.
func New(reg *registry.Registry, opts ...Option) (*Pipeline, error) {
	if reg == nil {
		return nil, fmt.Errorf("creating pipeline: nil registry")
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	p := &Pipeline{
		reg:   reg,
		log:   o.Logger,
		feed:  NewFeed(),
		tasks: make(map[int]task.Task),
		subs:  make(map[int][]*reactive.Subscription),
	}
	if o.Workdir == "" {
		dir, err := os.MkdirTemp("", "rowflow-")
		if err != nil {
			return nil, fmt.Errorf("creating work directory: %w", err)
		}
		o.Workdir, p.tempDir = dir, true
	} else if err := os.MkdirAll(o.Workdir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	if o.SampleRows > 0 {
		p.sampler = NewSampler(o.SampleRows, o.SampleWorkers, p.feed.Publish, o.Logger)
	}
	p.opts = o
	return p, nil
}

// Workdir returns the directory holding the tasks' tier files.
func (p *Pipeline) Workdir() string {
	return p.opts.Workdir
}

// Subscribe opens a subscription to the event feed.
func (p *Pipeline) Subscribe() *Subscription {
	return p.feed.Subscribe()
}

type createOptions struct {
	id    int
	hasID bool
}

// CreateOption configures a single CreateTask call.
type CreateOption func(*createOptions)

// WithID requests an explicit task id.
func WithID(id int) CreateOption {
	return func(o *createOptions) {
		o.id, o.hasID = id, true
	}
}

// CreateTask constructs a task of the named type and adds it to the
// pipeline. Unless an id is given the task gets the next id of a counter
// that always stays above every id handed out so far. A source reference
// in cfg must name a task of this pipeline.
//
// The new task is reset once before CreateTask returns, so its status is
// READY or INVALID.
func (p *Pipeline) CreateTask(typeName string, cfg core.Config, opts ...CreateOption) (task.Task, error) {
	var co createOptions
	for _, opt := range opts {
		opt(&co)
	}
	ctor, name, err := p.reg.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = core.Config{}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("creating task: %w", core.ErrClosed)
	}
	if v, ok := cfg["source"]; ok && v != nil {
		src := task.ParseSource(v)
		if _, found := p.tasks[src]; !found {
			p.mu.Unlock()
			return nil, fmt.Errorf("source %v: %w", v, core.ErrNoSuchTask)
		}
	}
	id := p.nextID
	if co.hasID {
		if co.id < 0 {
			p.mu.Unlock()
			return nil, fmt.Errorf("task id %d: ids must not be negative", co.id)
		}
		if _, taken := p.tasks[co.id]; taken {
			p.mu.Unlock()
			return nil, fmt.Errorf("task %d: %w", co.id, core.ErrIDInUse)
		}
		id = co.id
	}

	t, err := ctor(p.env(id, name), cfg)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("creating %s task: %w", name, err)
	}
	if id >= p.nextID {
		p.nextID = id + 1
	}
	p.tasks[id] = t
	p.subs[id] = p.watch(t)
	p.feed.Publish(Event{Kind: KindCreated, TaskID: id, Value: t.Args()})
	p.mu.Unlock()

	p.opts.Metrics.TaskAdded(t.Status())
	p.log.Debug("task created", zap.Int("task", id), zap.String("type", name))

	t.Reset()
	if p.sampler != nil {
		p.sampler.Watch(t)
	}
	return t, nil
}

func (p *Pipeline) env(id int, typeName string) task.Env {
	return task.Env{
		ID:              id,
		Type:            typeName,
		Workdir:         p.opts.Workdir,
		Lookup:          p.lookup,
		Logger:          p.log,
		Metrics:         p.opts.Metrics,
		Allocator:       p.opts.Allocator,
		MaxBufferedRows: p.opts.MaxBufferedRows,
		ValidateTimeout: p.opts.ValidateTimeout,
	}
}

func (p *Pipeline) lookup(id int) (task.Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tasks[id]
	return t, ok
}

// watch republishes the task's cells on the feed.
func (p *Pipeline) watch(t task.Task) []*reactive.Subscription {
	id := t.ID()
	subs := []*reactive.Subscription{
		t.StatusCell().Subscribe(func(st core.Status) {
			p.feed.Publish(Event{Kind: KindStatus, TaskID: id, Value: st.String()})
		}),
		t.ConfigCell().Subscribe(func(cfg core.Config) {
			p.feed.Publish(Event{Kind: KindConfig, TaskID: id, Value: cfg.Clone()})
		}),
		t.SchemaCell().Subscribe(func(schema *arrow.Schema) {
			p.feed.Publish(Event{Kind: KindSchema, TaskID: id, Value: encodeSchema(schema)})
		}),
		t.OnReset(func() {
			p.feed.Publish(Event{Kind: KindReset, TaskID: id, Value: t.Generation()})
		}),
	}
	if dep, ok := t.(task.Dependent); ok {
		subs = append(subs, dep.ColumnCell().Subscribe(func(cols []string) {
			p.feed.Publish(Event{Kind: KindColumn, TaskID: id, Value: append([]string(nil), cols...)})
		}))
	}
	if src, ok := t.(interface{ SourceCell() *reactive.Cell[int] }); ok {
		subs = append(subs, src.SourceCell().Subscribe(func(v int) {
			var value interface{}
			if v != task.NoSource {
				value = v
			}
			p.feed.Publish(Event{Kind: KindSource, TaskID: id, Value: value})
		}))
	}
	return subs
}

// Task returns the task with the given id.
func (p *Pipeline) Task(id int) (task.Task, error) {
	t, ok := p.lookup(id)
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, core.ErrNoSuchTask)
	}
	return t, nil
}

// Tasks returns every task ordered by id.
func (p *Pipeline) Tasks() []task.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]task.Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of tasks.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tasks)
}

// RemoveTask detaches the task with the given id, closes it and returns it.
// Dependents are not removed: they are reset and, with their source gone,
// become INVALID.
func (p *Pipeline) RemoveTask(id int) (task.Task, error) {
	p.mu.Lock()
	t, ok := p.tasks[id]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("task %d: %w", id, core.ErrNoSuchTask)
	}
	delete(p.tasks, id)
	subs := p.subs[id]
	delete(p.subs, id)
	dependents := p.graphLocked().downstream(id)
	deps := make([]task.Task, 0, len(dependents))
	for _, d := range dependents {
		deps = append(deps, p.tasks[d])
	}
	p.mu.Unlock()

	for _, s := range subs {
		s.Dispose()
	}
	if p.sampler != nil {
		p.sampler.Unwatch(id)
	}
	p.opts.Metrics.TaskRemoved(t.Status())
	if err := t.Close(); err != nil {
		p.log.Warn("closing removed task", zap.Int("task", id), zap.Error(err))
	}
	p.feed.Publish(Event{Kind: KindDeleted, TaskID: id})
	p.log.Debug("task removed", zap.Int("task", id))

	for _, d := range deps {
		d.Reset()
	}
	return t, nil
}

// UpdateTask merges updates into a task's configuration. A new source must
// exist and must not make the task its own ancestor.
func (p *Pipeline) UpdateTask(id int, updates core.Config) (task.Task, error) {
	p.mu.RLock()
	t, ok := p.tasks[id]
	if !ok {
		p.mu.RUnlock()
		return nil, fmt.Errorf("task %d: %w", id, core.ErrNoSuchTask)
	}
	if v, set := updates["source"]; set && v != nil {
		src := task.ParseSource(v)
		if _, found := p.tasks[src]; !found {
			p.mu.RUnlock()
			return nil, fmt.Errorf("source %v: %w", v, core.ErrNoSuchTask)
		}
		g := p.graphLocked()
		g.add(id, src)
		if g.hasCycle() {
			p.mu.RUnlock()
			return nil, fmt.Errorf("task %d source %d: %w", id, src, core.ErrCycle)
		}
	}
	p.mu.RUnlock()

	t.Update(updates)
	return t, nil
}

// graphLocked builds the dependency graph of the current tasks.
func (p *Pipeline) graphLocked() *graph {
	g := newGraph()
	for id, t := range p.tasks {
		g.add(id, sourcesOf(t)...)
	}
	return g
}

func sourcesOf(t task.Task) []int {
	if dep, ok := t.(task.Dependent); ok {
		if src, set := dep.SourceID(); set {
			return []int{src}
		}
	}
	return nil
}

// Order returns every task id so that each task follows its source.
func (p *Pipeline) Order() ([]int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graphLocked().topologicalSort()
}

// Downstream returns the ids of the tasks reading directly from id.
func (p *Pipeline) Downstream(id int) []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graphLocked().downstream(id)
}

// Close closes every task and the event feed. A temporary work directory
// is removed.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	tasks := p.tasks
	subs := p.subs
	p.tasks = make(map[int]task.Task)
	p.subs = make(map[int][]*reactive.Subscription)
	p.mu.Unlock()

	if p.sampler != nil {
		p.sampler.Close()
	}
	var errs []error
	for id, t := range tasks {
		for _, s := range subs[id] {
			s.Dispose()
		}
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.feed.Close()
	if p.tempDir {
		if err := os.RemoveAll(p.opts.Workdir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func encodeSchema(schema *arrow.Schema) interface{} {
	if schema == nil {
		return nil
	}
	enc, err := storage.EncodeSchema(schema)
	if err != nil {
		return nil
	}
	return enc
}

func fieldNames(schema *arrow.Schema) []string {
	if schema == nil {
		return nil
	}
	names := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	return names
}
