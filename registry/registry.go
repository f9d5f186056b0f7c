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

// Package registry maps task type names to their constructors.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/task"
)

// Constructor builds a task of one type. The returned task must start
// INVALID; the pipeline resets it once registered.
type Constructor func(env task.Env, cfg core.Config) (task.Task, error)

// NoSuchTypeError reports a lookup of an unregistered type name.
type NoSuchTypeError struct {
	Name  string
	Valid []string
}

func (e *NoSuchTypeError) Error() string {
	return fmt.Sprintf("no such task type %q (valid types: %s)", e.Name, strings.Join(e.Valid, ", "))
}

func (e *NoSuchTypeError) Unwrap() error {
	return core.ErrNoSuchType
}

// NameConflictError reports a type name registered twice, ignoring case.
type NameConflictError struct {
	Name     string
	Existing string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("task type %q conflicts with registered type %q", e.Name, e.Existing)
}

type entry struct {
	name string
	ctor Constructor
}

// Registry is a concurrency-safe table of task types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{types: make(map[string]entry)}
}

// Register adds a type. Names are matched case-insensitively.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" {
		return fmt.Errorf("registering task type: empty name")
	}
	if ctor == nil {
		return fmt.Errorf("registering task type %q: nil constructor", name)
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.types[key]; ok {
		return &NameConflictError{Name: name, Existing: e.name}
	}
	r.types[key] = entry{name: name, ctor: ctor}
	return nil
}

// MustRegister is Register that panics on error, for static tables.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Lookup returns the constructor for name and its registered spelling.
func (r *Registry) Lookup(name string) (Constructor, string, error) {
	r.mu.RLock()
	e, ok := r.types[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, "", &NoSuchTypeError{Name: name, Valid: r.Names()}
	}
	return e.ctor, e.name, nil
}

// Names lists the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for _, e := range r.types {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}
