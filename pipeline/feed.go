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
	"sync"
)

// Kind names an event on the pipeline feed.
type Kind string

const (
	KindCreated Kind = "created"
	KindDeleted Kind = "deleted"
	KindStatus  Kind = "status"
	KindConfig  Kind = "config"
	KindSchema  Kind = "schema"
	KindColumn  Kind = "column"
	KindSource  Kind = "source"
	KindReset   Kind = "reset"
	KindResult  Kind = "result"
)

// Event is one change to one task.
//
// Value depends on Kind: the task's Args for created, the lowercase status
// name for status, the configuration for config, the encoded schema (or nil)
// for schema, the column list for column, the source id (or nil) for source,
// the reset generation for reset and a Result for result.
type Event struct {
	Kind   Kind        `json:"event"`
	TaskID int         `json:"task"`
	Value  interface{} `json:"value"`
}

// Result is one sampled output row.
type Result struct {
	Offset int64                  `json:"offset"`
	Values map[string]interface{} `json:"values"`
}

// Feed fans events out to subscribers. Publish never blocks: every
// subscription queues events until its reader takes them.
type Feed struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[*Subscription]struct{})}
}

// Subscribe returns a subscription receiving every event published after
// the call, in publish order.
func (f *Feed) Subscribe() *Subscription {
	c := make(chan Event)
	s := &Subscription{
		C:    c,
		c:    c,
		feed: f,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		s.stop()
		close(c)
		return s
	}
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go s.run()
	return s
}

// Publish queues e on every subscription.
func (f *Feed) Publish(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for s := range f.subs {
		s.push(e)
	}
}

// Len returns the number of open subscriptions.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every subscription. Queued events are dropped.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

// Subscription is one reader of a feed. C is closed once the subscription
// or its feed is closed.
type Subscription struct {
	C <-chan Event

	c    chan Event
	feed *Feed

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	e := s.queue[0]
	s.queue[0] = Event{}
	s.queue = s.queue[1:]
	return e, true
}

func (s *Subscription) run() {
	defer close(s.c)
	for {
		e, ok := s.pop()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.c <- e:
		case <-s.done:
			return
		}
	}
}

// Pending returns the number of queued events not yet received.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.feed.remove(s)
	s.stop()
}
