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


package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/reactive"
	"github.com/aaronlmathis/rowflow/task"
)

const (
	DefaultSampleRows    = 5
	DefaultSampleWorkers = 4
)

// Sampler pulls the first rows of every watched task each time it becomes
// READY and publishes them as result events. Pulling drives the task, and
// through it every task upstream of it.
type Sampler struct {
	rows int
	sem  *semaphore.Weighted
	emit func(Event)
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watched map[int]*watcher
}

type watcher struct {
	sub    *reactive.Subscription
	cancel context.CancelFunc
}

// NewSampler returns a sampler emitting up to rows results per task, with
// at most workers tasks sampled at once.
func NewSampler(rows, workers int, emit func(Event), log *zap.Logger) *Sampler {
	if rows <= 0 {
		rows = DefaultSampleRows
	}
	if workers <= 0 {
		workers = DefaultSampleWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sampler{
		rows:    rows,
		sem:     semaphore.NewWeighted(int64(workers)),
		emit:    emit,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		watched: make(map[int]*watcher),
	}
}

// Watch starts sampling t, immediately if it is READY and again after
// every reset that leaves it READY.
func (s *Sampler) Watch(t task.Task) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if _, ok := s.watched[t.ID()]; ok {
		s.mu.Unlock()
		return
	}
	w := &watcher{}
	s.watched[t.ID()] = w
	w.sub = t.OnReset(func() { s.restart(t) })
	s.mu.Unlock()

	s.restart(t)
}

// Unwatch stops sampling the task with the given id.
func (s *Sampler) Unwatch(id int) {
	s.mu.Lock()
	w, ok := s.watched[id]
	delete(s.watched, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	w.sub.Dispose()
	if w.cancel != nil {
		w.cancel()
	}
}

// Close stops every sample and waits for them to return.
func (s *Sampler) Close() {
	s.mu.Lock()
	s.cancel()
	watched := s.watched
	s.watched = make(map[int]*watcher)
	s.mu.Unlock()

	for _, w := range watched {
		w.sub.Dispose()
	}
	s.wg.Wait()
}

func (s *Sampler) restart(t task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watched[t.ID()]
	if !ok {
		return
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if t.Status() != core.StatusReady {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	w.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.sample(ctx, t, t.Generation())
	}()
}

func (s *Sampler) sample(ctx context.Context, t task.Task, gen uint64) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	it := t.Rows()
	defer it.Close()
	for i := 0; i < s.rows; i++ {
		row, err := it.Next(ctx)
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, core.ErrClosed) {
				s.log.Warn("sampling rows", zap.Int("task", t.ID()), zap.Error(err))
			}
			return
		}
		if t.Generation() != gen {
			return
		}
		s.emit(Event{
			Kind:   KindResult,
			TaskID: t.ID(),
			Value:  Result{Offset: int64(i), Values: row.Record(fieldNames(it.Schema()))},
		})
	}
}
