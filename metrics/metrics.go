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

// Package metrics exposes task execution counters to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aaronlmathis/rowflow/core"
)

const namespace = "rowflow"

// Collector records engine activity. A nil *Collector discards everything,
// so callers never need to check for one.
type Collector struct {
	rows     *prometheus.CounterVec
	steps    *prometheus.CounterVec
	failures *prometheus.CounterVec
	tasks    *prometheus.GaugeVec
}

// New creates a Collector and registers it with reg. Registering twice
// against the same registry reuses the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_output_total",
			Help:      "Rows committed to a task's output tiers.",
		}, []string{"type"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_steps_total",
			Help:      "Execution steps started.",
		}, []string{"type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_failures_total",
			Help:      "Tasks that moved to FAILED.",
		}, []string{"type"}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Live tasks by status.",
		}, []string{"status"}),
	}

	var err error
	if c.rows, err = register(reg, c.rows); err != nil {
		return nil, err
	}
	if c.steps, err = register(reg, c.steps); err != nil {
		return nil, err
	}
	if c.failures, err = register(reg, c.failures); err != nil {
		return nil, err
	}
	if c.tasks, err = register(reg, c.tasks); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RowsOutput counts n rows committed by a task of the given type.
func (c *Collector) RowsOutput(taskType string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.rows.WithLabelValues(taskType).Add(float64(n))
}

// Step counts one execution step.
func (c *Collector) Step(taskType string) {
	if c == nil {
		return
	}
	c.steps.WithLabelValues(taskType).Inc()
}

// Failure counts a task entering FAILED.
func (c *Collector) Failure(taskType string) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(taskType).Inc()
}

// TaskAdded accounts for a new task in status st.
func (c *Collector) TaskAdded(st core.Status) {
	if c == nil {
		return
	}
	c.tasks.WithLabelValues(st.String()).Inc()
}

// TaskRemoved drops a task in status st.
func (c *Collector) TaskRemoved(st core.Status) {
	if c == nil {
		return
	}
	c.tasks.WithLabelValues(st.String()).Dec()
}

// Transition moves one task between status gauges.
func (c *Collector) Transition(from, to core.Status) {
	if c == nil || from == to {
		return
	}
	c.tasks.WithLabelValues(from.String()).Dec()
	c.tasks.WithLabelValues(to.String()).Inc()
}
