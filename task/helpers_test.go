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
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/storage"
)

// graph is a minimal id registry standing in for a pipeline.
type graph struct {
	mu    sync.Mutex
	dir   string
	tasks map[int]Task
}

func newGraph(t *testing.T) *graph {
	t.Helper()
	g := &graph{dir: t.TempDir(), tasks: make(map[int]Task)}
	t.Cleanup(func() {
		for _, task := range g.tasks {
			task.Close()
		}
	})
	return g
}

func (g *graph) lookup(id int) (Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	return t, ok
}

func (g *graph) env(id int, typ string) Env {
	return Env{ID: id, Type: typ, Workdir: g.dir, Lookup: g.lookup}
}

func (g *graph) add(t Task) {
	g.mu.Lock()
	g.tasks[t.ID()] = t
	g.mu.Unlock()
}

func (g *graph) remove(id int) {
	g.mu.Lock()
	delete(g.tasks, id)
	g.mu.Unlock()
}

var textSchema = arrow.NewSchema([]arrow.Field{
	{Name: "text", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// memLoader serves fixed rows.
type memLoader struct {
	schema *arrow.Schema
	rows   []core.Row
	err    error
	loads  *int
}

func (m *memLoader) Schema(context.Context) (*arrow.Schema, error) {
	return m.schema, nil
}

func (m *memLoader) Load(ctx context.Context, out *storage.RowWriter) error {
	if m.loads != nil {
		*m.loads++
	}
	for _, r := range m.rows {
		if err := out.Append(r); err != nil {
			return err
		}
	}
	return m.err
}

// memLoaderSpec reads rows from the "rows" config key.
func memLoaderSpec(loads *int) LoaderSpec {
	return LoaderSpec{New: func(env Env, cfg core.Config) (Loader, error) {
		values, ok := cfg["rows"].([]string)
		if !ok {
			return nil, fmt.Errorf("rows is not set")
		}
		l := &memLoader{schema: textSchema, loads: loads}
		for _, v := range values {
			l.rows = append(l.rows, core.Row{v})
		}
		if msg, ok := cfg["fail"].(string); ok {
			l.err = fmt.Errorf("%s", msg)
		}
		return l, nil
	}}
}

// upper produces "<column>_upper". Rows equal to the "fail_on" key make
// Execute fail; "extra" makes it emit a second row.
type upper struct {
	name   string
	failOn string
	extra  bool
}

func (u *upper) Validate(input *arrow.Schema) error {
	if len(input.Fields()) != 1 || input.Field(0).Type.ID() != arrow.STRING {
		return fmt.Errorf("upper needs one string column")
	}
	u.name = input.Field(0).Name + "_upper"
	return nil
}

func (u *upper) OutputSchema(*arrow.Schema) (*arrow.Schema, error) {
	return arrow.NewSchema([]arrow.Field{{Name: u.name, Type: arrow.BinaryTypes.String, Nullable: true}}, nil), nil
}

func (u *upper) Execute(_ context.Context, row core.Row) ([]core.Row, error) {
	s, _ := row[0].(string)
	if u.failOn != "" && s == u.failOn {
		return nil, fmt.Errorf("cannot transform %q", s)
	}
	out := []core.Row{{strings.ToUpper(s)}}
	if u.extra {
		out = append(out, core.Row{s})
	}
	return out, nil
}

var upperSpec = RowwiseSpec{
	Cardinality: OneToOne,
	New: func(cfg core.Config) (RowTransform, error) {
		u := &upper{}
		u.failOn, _ = cfg["fail_on"].(string)
		u.extra, _ = cfg["extra"].(bool)
		return u, nil
	},
}

// words splits text into one row per word.
type words struct{}

func (words) Validate(*arrow.Schema) error { return nil }

func (words) OutputSchema(*arrow.Schema) (*arrow.Schema, error) {
	return arrow.NewSchema([]arrow.Field{{Name: "word", Type: arrow.BinaryTypes.String, Nullable: true}}, nil), nil
}

func (words) Execute(_ context.Context, row core.Row) ([]core.Row, error) {
	s, _ := row[0].(string)
	var out []core.Row
	for _, w := range strings.Fields(s) {
		out = append(out, core.Row{w})
	}
	return out, nil
}

var wordsSpec = RowwiseSpec{
	Cardinality: OneToMany,
	New:         func(core.Config) (RowTransform, error) { return words{}, nil },
}

func (g *graph) loader(t *testing.T, id int, rows ...string) *Niladic {
	t.Helper()
	n := NewNiladic(g.env(id, "mem"), memLoaderSpec(nil), core.Config{"rows": rows})
	g.add(n)
	n.Reset()
	require.Equal(t, core.StatusReady, n.Status())
	return n
}

func (g *graph) rowwise(id int, spec RowwiseSpec, cfg core.Config) *Rowwise {
	r := NewRowwise(g.env(id, "rowwise"), spec, cfg)
	g.add(r)
	return r
}

func recordStatuses(t Task) *[]core.Status {
	var mu sync.Mutex
	seen := []core.Status{t.Status()}
	t.StatusCell().Subscribe(func(s core.Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	return &seen
}

func drain(t *testing.T, it Iterator) []core.Row {
	t.Helper()
	var rows []core.Row
	for {
		row, err := it.Next(context.Background())
		if err != nil {
			require.Equal(t, io.EOF, err)
			return rows
		}
		rows = append(rows, row)
	}
}

func fieldNames(fields []arrow.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
