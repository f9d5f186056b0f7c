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

package tasks

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/registry"
	"github.com/aaronlmathis/rowflow/task"
)

// graph wires tasks by id the way a pipeline does.
type graph struct {
	t     *testing.T
	mu    sync.Mutex
	dir   string
	reg   *registry.Registry
	tasks map[int]task.Task
}

func newGraph(t *testing.T) *graph {
	t.Helper()
	g := &graph{t: t, dir: t.TempDir(), reg: NewRegistry(), tasks: make(map[int]task.Task)}
	t.Cleanup(func() {
		for _, tk := range g.tasks {
			tk.Close()
		}
	})
	return g
}

func (g *graph) lookup(id int) (task.Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tk, ok := g.tasks[id]
	return tk, ok
}

// create builds, registers and resets a task.
func (g *graph) create(id int, typ string, cfg core.Config) task.Task {
	g.t.Helper()
	ctor, name, err := g.reg.Lookup(typ)
	require.NoError(g.t, err)
	tk, err := ctor(task.Env{ID: id, Type: name, Workdir: g.dir, Lookup: g.lookup}, cfg)
	require.NoError(g.t, err)
	g.mu.Lock()
	g.tasks[id] = tk
	g.mu.Unlock()
	tk.Reset()
	return tk
}

func (g *graph) writeFile(name, content string) string {
	g.t.Helper()
	path := filepath.Join(g.t.TempDir(), name)
	require.NoError(g.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func drain(t *testing.T, it task.Iterator) []core.Row {
	t.Helper()
	defer it.Close()
	var rows []core.Row
	for {
		row, err := it.Next(context.Background())
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func recordStatuses(tk task.Task) *[]core.Status {
	var mu sync.Mutex
	seen := []core.Status{tk.Status()}
	tk.StatusCell().Subscribe(func(s core.Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	return &seen
}

func fieldNames(schema *arrow.Schema) []string {
	names := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	return names
}
