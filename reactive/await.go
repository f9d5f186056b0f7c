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
	"context"
	"sync"
)

// Awaitable is a one-shot result produced by Cell.Satisfies.
type Awaitable[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T

	mu  sync.Mutex
	sub *Subscription
}

func newAwaitable[T any]() *Awaitable[T] {
	return &Awaitable[T]{done: make(chan struct{})}
}

func (a *Awaitable[T]) resolve(v T) {
	a.once.Do(func() {
		a.value = v
		close(a.done)
		a.Cancel()
	})
}

// attach records the subscription feeding the awaitable, releasing it at
// once if a publish already resolved it.
func (a *Awaitable[T]) attach(sub *Subscription) {
	a.mu.Lock()
	a.sub = sub
	a.mu.Unlock()
	select {
	case <-a.done:
		sub.Dispose()
	default:
	}
}

// Done is closed once the awaitable resolves.
func (a *Awaitable[T]) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the awaitable resolves or ctx ends. On cancellation the
// underlying subscription is released.
func (a *Awaitable[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-a.done:
		return a.value, nil
	default:
	}
	select {
	case <-a.done:
		return a.value, nil
	case <-ctx.Done():
		a.Cancel()
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel releases the subscription without resolving.
func (a *Awaitable[T]) Cancel() {
	a.mu.Lock()
	sub := a.sub
	a.mu.Unlock()
	sub.Dispose()
}
