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
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/registry"
	"github.com/aaronlmathis/rowflow/storage"
	"github.com/aaronlmathis/rowflow/writers"
)

func TestNewRequiresRegistry(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNewCreatesTemporaryWorkdir(t *testing.T) {
	p, err := New(registry.New())
	require.NoError(t, err)
	dir := p.Workdir()
	assert.DirExists(t, dir)
	require.NoError(t, p.Close())
	assert.NoDirExists(t, dir)
}

func TestCreateTaskAllocatesIDs(t *testing.T) {
	p := newPipeline(t)
	path := writeCSV(t, "text\na\n")
	cfg := core.Config{"path": path, "format": "csv"}

	create := func(opts ...CreateOption) int {
		t.Helper()
		tk, err := p.CreateTask("loadFile", cfg, opts...)
		require.NoError(t, err)
		return tk.ID()
	}
	assert.Equal(t, 0, create())
	assert.Equal(t, 1, create())
	assert.Equal(t, 10, create(WithID(10)))
	assert.Equal(t, 11, create())
	assert.Equal(t, 5, create(WithID(5)))
	assert.Equal(t, 12, create())

	_, err := p.CreateTask("loadFile", cfg, WithID(10))
	assert.ErrorIs(t, err, core.ErrIDInUse)
	_, err = p.CreateTask("loadFile", cfg, WithID(-1))
	assert.Error(t, err)
	assert.Equal(t, 6, p.Len())
}

func TestCreateTaskErrors(t *testing.T) {
	p := newPipeline(t)

	_, err := p.CreateTask("nope", nil)
	require.ErrorIs(t, err, core.ErrNoSuchType)
	var typeErr *registry.NoSuchTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Contains(t, typeErr.Valid, "caseFold")

	_, err = p.CreateTask("caseFold", core.Config{"source": 4, "column": "text"})
	assert.ErrorIs(t, err, core.ErrNoSuchTask)
	assert.Zero(t, p.Len())
}

func TestCreateTaskResolvesTypeNamesCaseInsensitively(t *testing.T) {
	p := newPipeline(t)
	tk, err := p.CreateTask("LOADFILE", core.Config{})
	require.NoError(t, err)
	assert.Equal(t, "loadFile", tk.Type())
	assert.Equal(t, core.StatusInvalid, tk.Status())
}

func TestCaseFoldScenario(t *testing.T) {
	p := newPipeline(t)
	sub := p.Subscribe()
	defer sub.Close()

	loader, fold := helloWorld(t, p)
	ft, err := p.Task(fold)
	require.NoError(t, err)

	it := ft.Rows()
	defer it.Close()
	ctx := context.Background()
	var rows []core.Row
	for {
		row, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
	assert.Equal(t, []core.Row{{"Hello", "hello"}, {"WORLD", "world"}}, rows)
	assert.Equal(t, []string{"text", "text_lower"}, fieldNames(it.Schema()))

	events := collect(t, sub, func(e Event) bool {
		return e.TaskID == fold && e.Kind == KindStatus && e.Value == "complete"
	})
	assert.Equal(t, KindCreated, events[0].Kind)
	assert.Equal(t, loader, events[0].TaskID)
	assert.Equal(t, []interface{}{"ready", "working", "paused", "working", "finished", "complete"},
		filterEvents(events, fold, KindStatus))
	require.Len(t, filterEvents(events, fold, KindCreated), 1)
	assert.Len(t, filterEvents(events, fold, KindSchema), 1)
	assert.Len(t, filterEvents(events, fold, KindReset), 1)
}

func TestRemoveTaskLeavesDependentInvalid(t *testing.T) {
	p := newPipeline(t)
	loader, fold := helloWorld(t, p)
	sub := p.Subscribe()
	defer sub.Close()

	removed, err := p.RemoveTask(loader)
	require.NoError(t, err)
	assert.Equal(t, loader, removed.ID())

	_, err = p.Task(loader)
	assert.ErrorIs(t, err, core.ErrNoSuchTask)
	_, err = p.RemoveTask(loader)
	assert.ErrorIs(t, err, core.ErrNoSuchTask)

	ft, err := p.Task(fold)
	require.NoError(t, err)
	assert.Equal(t, core.StatusInvalid, ft.Status())
	assert.Nil(t, ft.Schema())

	ft.Reset()
	assert.Equal(t, core.StatusInvalid, ft.Status())

	events := collect(t, sub, func(e Event) bool {
		return e.TaskID == fold && e.Kind == KindStatus
	})
	assert.Len(t, filterEvents(events, loader, KindDeleted), 1)
	assert.Equal(t, []interface{}{"invalid"}, filterEvents(events, fold, KindStatus))
}

func TestUpdateTask(t *testing.T) {
	p := newPipeline(t)
	loader, fold := helloWorld(t, p)
	second, err := p.CreateTask("caseFold", core.Config{"source": fold, "column": "text_lower"})
	require.NoError(t, err)
	require.Equal(t, core.StatusReady, second.Status())

	_, err = p.UpdateTask(fold, core.Config{"source": second.ID()})
	assert.ErrorIs(t, err, core.ErrCycle)
	_, err = p.UpdateTask(fold, core.Config{"source": fold})
	assert.ErrorIs(t, err, core.ErrCycle)
	_, err = p.UpdateTask(fold, core.Config{"source": 42})
	assert.ErrorIs(t, err, core.ErrNoSuchTask)
	_, err = p.UpdateTask(42, core.Config{})
	assert.ErrorIs(t, err, core.ErrNoSuchTask)

	order, err := p.Order()
	require.NoError(t, err)
	assert.Equal(t, []int{loader, fold, second.ID()}, order)
	assert.Equal(t, []int{fold}, p.Downstream(loader))

	updated, err := p.UpdateTask(second.ID(), core.Config{"source": loader, "column": "text"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, updated.Status())
	assert.Equal(t, []int{fold, second.ID()}, p.Downstream(loader))
	assert.Empty(t, p.Downstream(fold))
}

func TestApplyCreatesSourcesFirst(t *testing.T) {
	p := newPipeline(t)
	path := writeCSV(t, "text\nHello\n")
	five, three := 5, 3

	created, err := p.Apply([]Definition{
		{ID: &five, Type: "caseFold", Config: core.Config{"source": 3, "column": "text"}},
		{ID: &three, Type: "loadFile", Config: core.Config{"path": path, "format": "csv"}},
		{Type: "split", Config: core.Config{"source": 5, "column": "text_lower"}},
	})
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, 3, created[0].ID())
	assert.Equal(t, 5, created[1].ID())
	assert.Equal(t, 6, created[2].ID())
	for _, tk := range created {
		assert.Equal(t, core.StatusReady, tk.Status(), "task %d", tk.ID())
	}
}

func TestApplyRejectsBadDefinitions(t *testing.T) {
	p := newPipeline(t)
	one, two := 1, 2

	_, err := p.Apply([]Definition{
		{ID: &one, Type: "caseFold", Config: core.Config{"source": 2}},
		{ID: &two, Type: "caseFold", Config: core.Config{"source": 1}},
	})
	assert.ErrorIs(t, err, core.ErrCycle)

	_, err = p.Apply([]Definition{{ID: &one, Type: "loadFile"}, {ID: &one, Type: "loadFile"}})
	assert.ErrorIs(t, err, core.ErrIDInUse)

	created, err := p.Apply([]Definition{{ID: &one, Type: "loadFile"}, {Type: "bogus"}})
	assert.ErrorIs(t, err, core.ErrNoSuchType)
	assert.Len(t, created, 1)
}

func TestExport(t *testing.T) {
	p := newPipeline(t)
	_, fold := helloWorld(t, p)

	out := &bufferCloser{}
	sink := writers.NewJSONWriter(out)
	n, err := p.Export(context.Background(), fold, sink)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "{\"text\":\"Hello\",\"text_lower\":\"hello\"}\n{\"text\":\"WORLD\",\"text_lower\":\"world\"}\n", out.String())
	assert.False(t, out.closed)

	out = &bufferCloser{}
	n, err = p.Export(context.Background(), fold, writers.NewJSONWriter(out), "text_lower")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "{\"text_lower\":\"hello\"}\n{\"text_lower\":\"world\"}\n", out.String())

	_, err = p.Export(context.Background(), 99, sink)
	assert.ErrorIs(t, err, core.ErrNoSuchTask)
	_, err = p.Export(context.Background(), fold, sink, "missing")
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)
}

func TestSamplingPublishesFirstRows(t *testing.T) {
	p := newPipeline(t, WithSampling(5, 2))
	sub := p.Subscribe()
	defer sub.Close()

	_, fold := helloWorld(t, p)

	events := collect(t, sub, func(e Event) bool {
		return e.TaskID == fold && e.Kind == KindResult && e.Value.(Result).Offset == 1
	})
	results := filterEvents(events, fold, KindResult)
	require.Len(t, results, 2)
	assert.Equal(t, Result{Offset: 0, Values: map[string]interface{}{"text": "Hello", "text_lower": "hello"}}, results[0])
	assert.Equal(t, Result{Offset: 1, Values: map[string]interface{}{"text": "WORLD", "text_lower": "world"}}, results[1])
}

func TestEncodeJSON(t *testing.T) {
	p := newPipeline(t)
	loader, fold := helloWorld(t, p)
	ft, err := p.Task(fold)
	require.NoError(t, err)

	data, err := EncodeJSON(ft)
	require.NoError(t, err)
	var args map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &args))
	assert.Equal(t, float64(fold), args["id"])
	assert.Equal(t, "caseFold", args["type"])
	assert.Equal(t, "ready", args["status"])
	assert.Equal(t, float64(loader), args["source"])
	assert.Equal(t, []interface{}{"text"}, args["column"])

	schema, err := storage.DecodeSchema(args["schema"].(string))
	require.NoError(t, err)
	assert.True(t, storage.SchemaEqual(ft.Schema(), schema))

	data, err = json.Marshal(p)
	require.NoError(t, err)
	var snapshot struct {
		Tasks []map[string]interface{} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(data, &snapshot))
	require.Len(t, snapshot.Tasks, 2)
	assert.Equal(t, "loadFile", snapshot.Tasks[0]["type"])
}

func TestClosedPipelineRejectsTasks(t *testing.T) {
	p := newPipeline(t)
	helloWorld(t, p)
	sub := p.Subscribe()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.CreateTask("loadFile", nil)
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.Zero(t, p.Len())
	_, ok := <-sub.C
	assert.False(t, ok)
}
