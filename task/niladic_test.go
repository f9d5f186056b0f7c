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
	"errors"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/storage"
)

func TestNiladicLifecycle(t *testing.T) {
	g := newGraph(t)
	loads := 0
	n := NewNiladic(g.env(0, "mem"), memLoaderSpec(&loads), core.Config{"rows": []string{"a", "b"}})
	g.add(n)
	seen := recordStatuses(n)
	n.Reset()

	_, err := n.RowAt(0)
	assert.ErrorIs(t, err, core.ErrNotComplete)

	assert.Equal(t, []core.Row{{"a"}, {"b"}}, drain(t, n.Rows()))
	assert.Equal(t, []core.Row{{"a"}, {"b"}}, drain(t, n.Rows("text")))
	assert.Equal(t, 1, loads)
	assert.EqualValues(t, 2, n.NumRows())
	assert.Equal(t, []core.Status{
		core.StatusInvalid,
		core.StatusReady,
		core.StatusWorking,
		core.StatusFinished,
		core.StatusComplete,
	}, *seen)

	row, err := n.RowAt(1)
	require.NoError(t, err)
	assert.Equal(t, core.Row{"b"}, row)
	assert.FileExists(t, n.filePath())

	n.Reset()
	n.Reset()
	assert.Equal(t, core.StatusReady, n.Status())
	assert.EqualValues(t, 0, n.NumRows())
	assert.NoFileExists(t, n.filePath())
}

func TestNiladicInvalid(t *testing.T) {
	g := newGraph(t)
	n := NewNiladic(g.env(0, "mem"), memLoaderSpec(nil), core.Config{})
	g.add(n)
	n.Reset()

	assert.Equal(t, core.StatusInvalid, n.Status())
	assert.Nil(t, n.Schema())
	assert.Nil(t, n.Args()["schema"])
	assert.ErrorIs(t, n.Run(context.Background()), core.ErrNotReady)
}

func TestNiladicLoadFailure(t *testing.T) {
	g := newGraph(t)
	n := NewNiladic(g.env(0, "mem"), memLoaderSpec(nil), core.Config{"rows": []string{"a"}, "fail": "disk on fire"})
	g.add(n)
	n.Reset()

	err := n.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTaskFailed)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Equal(t, core.StatusFailed, n.Status())
	assert.NoFileExists(t, n.filePath())

	var taskErr *core.TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Equal(t, "load", taskErr.Op)
}

func TestNiladicCancelledLoad(t *testing.T) {
	g := newGraph(t)
	n := NewNiladic(g.env(0, "mem"), memLoaderSpec(nil), core.Config{"rows": []string{"a"}})
	g.add(n)
	n.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Run(ctx), context.Canceled)
	assert.Equal(t, core.StatusReady, n.Status())
}

type fileLoader struct {
	path   string
	schema *arrow.Schema
}

func (f *fileLoader) Schema(context.Context) (*arrow.Schema, error) { return f.schema, nil }

func (f *fileLoader) Load(context.Context, *storage.RowWriter) error {
	return errors.New("mapped loaders are never loaded")
}

func (f *fileLoader) Path() string { return f.path }

func TestNiladicMapsArrowFiles(t *testing.T) {
	g := newGraph(t)
	path := filepath.Join(t.TempDir(), "input.arrow")
	mem := memory.NewGoAllocator()
	fw, err := storage.CreateFile(path, textSchema, mem)
	require.NoError(t, err)
	w := storage.NewRowWriter(fw, textSchema, mem, 2)
	for _, v := range []string{"p", "q", "r"} {
		require.NoError(t, w.Append(core.Row{v}))
	}
	require.NoError(t, w.Flush())
	require.NoError(t, fw.Close())

	spec := LoaderSpec{New: func(Env, core.Config) (Loader, error) {
		return &fileLoader{path: path, schema: textSchema}, nil
	}}
	n := NewNiladic(g.env(0, "arrow"), spec, nil)
	g.add(n)
	n.Reset()

	assert.Equal(t, []core.Row{{"p"}, {"q"}, {"r"}}, drain(t, n.Rows()))
	n.Reset()
	assert.FileExists(t, path)
	assert.NoFileExists(t, n.filePath())
}

func TestNiladicUnknownColumn(t *testing.T) {
	g := newGraph(t)
	n := g.loader(t, 0, "a")
	_, err := n.Rows("nope").Next(context.Background())
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)
}

func TestConfigCopiesAreIndependent(t *testing.T) {
	g := newGraph(t)
	n := g.loader(t, 0, "a", "b")
	gen := n.Generation()

	cfg := n.Config()
	cfg["rows"].([]string)[0] = "z"
	assert.Equal(t, []string{"a", "b"}, n.Config()["rows"])
	assert.Equal(t, gen, n.Generation())

	n.SetConfig(cfg)
	assert.Greater(t, n.Generation(), gen)
	assert.Equal(t, []string{"z", "b"}, n.Config()["rows"])
	assert.Equal(t, []core.Row{{"z"}, {"b"}}, drain(t, n.Rows()))
}
