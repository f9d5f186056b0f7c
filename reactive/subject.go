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

// Package reactive provides the publish/subscribe primitives tasks use to
// announce configuration and status changes.
//
// Delivery is synchronous: a publish calls every current subscriber on the
// publishing goroutine, in subscription order, before returning. Subscribers
// must not block for long since there is no buffering between publisher and
// listener.
package reactive

import (
	"sync"
)

// Subscription is the handle returned by Subscribe. Disposing it removes the
// listener permanently; disposing twice is a no-op.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Dispose removes the listener.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Subject fans every published value out to its subscribers.
// The zero value is ready to use.
type Subject[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listener[T]
}

// Subscribe registers fn to receive every value published after this call.
func (s *Subject[T]) Subscribe(fn func(T)) *Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener[T]{id: id, fn: fn})
	s.mu.Unlock()

	return &Subscription{cancel: func() { s.remove(id) }}
}

// Publish delivers v to a snapshot of the current subscribers.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	snapshot := make([]listener[T], len(s.listeners))
	copy(snapshot, s.listeners)
	s.mu.Unlock()

	for _, l := range snapshot {
		if s.active(l.id) {
			l.fn(v)
		}
	}
}

// Len returns the number of live subscribers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Clear drops every subscriber.
func (s *Subject[T]) Clear() {
	s.mu.Lock()
	s.listeners = nil
	s.mu.Unlock()
}

func (s *Subject[T]) active(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		if l.id == id {
			return true
		}
	}
	return false
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}
