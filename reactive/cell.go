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

package reactive

import (
	"reflect"
	"sync"
)

// EqualFunc reports whether two values are the same for change detection.
type EqualFunc[T any] func(a, b T) bool

// CellOption customizes a Cell.
type CellOption[T any] func(*Cell[T])

// WithEqual replaces the default reflect.DeepEqual comparison.
func WithEqual[T any](eq EqualFunc[T]) CellOption[T] {
	return func(c *Cell[T]) { c.equal = eq }
}

// Cell holds a value and publishes it whenever Set stores something
// different from what was there before.
//
// Set is meant to have one writer at a time. Concurrent writers are safe but
// may observe publishes in an order that differs from their Set calls.
type Cell[T any] struct {
	mu      sync.RWMutex
	value   T
	equal   EqualFunc[T]
	subject Subject[T]
}

// NewCell returns a cell holding initial.
func NewCell[T any](initial T, opts ...CellOption[T]) *Cell[T] {
	c := &Cell[T]{value: initial}
	for _, opt := range opts {
		opt(c)
	}
	if c.equal == nil {
		c.equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	return c
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores v and, if it differs from the previous value, publishes it.
// It reports whether a publish happened.
func (c *Cell[T]) Set(v T) bool {
	c.mu.Lock()
	if c.equal(c.value, v) {
		c.mu.Unlock()
		return false
	}
	c.value = v
	c.mu.Unlock()

	c.subject.Publish(v)
	return true
}

// Subscribe registers fn for every future change.
func (c *Cell[T]) Subscribe(fn func(T)) *Subscription {
	return c.subject.Subscribe(fn)
}

// Satisfies returns an awaitable that resolves with the first value for
// which pred holds, starting with the current one.
func (c *Cell[T]) Satisfies(pred func(T) bool) *Awaitable[T] {
	a := newAwaitable[T]()
	a.attach(c.Subscribe(func(v T) {
		if pred(v) {
			a.resolve(v)
		}
	}))
	if v := c.Get(); pred(v) {
		a.resolve(v)
	}
	return a
}

// Equals is Satisfies with an equality predicate.
func (c *Cell[T]) Equals(target T) *Awaitable[T] {
	return c.Satisfies(func(v T) bool { return c.equal(v, target) })
}
