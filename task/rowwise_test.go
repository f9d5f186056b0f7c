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
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
)

func TestRowwiseStatusSequence(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "Hello", "WORLD")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	seen := recordStatuses(r)

	r.Reset()
	require.Equal(t, core.StatusReady, r.Status())

	rows := drain(t, r.Rows())
	assert.Equal(t, []core.Row{{"Hello", "HELLO"}, {"WORLD", "WORLD"}}, rows)
	assert.Equal(t, []core.Status{
		core.StatusInvalid,
		core.StatusReady,
		core.StatusWorking,
		core.StatusPaused,
		core.StatusWorking,
		core.StatusFinished,
		core.StatusComplete,
	}, *seen)
	assert.EqualValues(t, 2, r.NumRows())
}

func TestRowwiseSchemas(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": "text"})
	r.Reset()

	require.NotNil(t, r.Schema())
	assert.Equal(t, []string{"text_upper"}, fieldNames(r.Schema().Fields()))
	assert.Equal(t, []string{"text", "text_upper"}, fieldNames(r.RowSchema().Fields()))
	assert.Equal(t, []string{"text"}, r.Columns())

	id, ok := r.SourceID()
	assert.True(t, ok)
	assert.Equal(t, 0, id)
}

func TestRowwiseUnifiesAncestors(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "x", "y", "z")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()

	swapped := drain(t, r.Rows("text_upper", "text"))
	assert.Equal(t, []core.Row{{"X", "x"}, {"Y", "y"}, {"Z", "z"}}, swapped)

	own := drain(t, r.Rows("text_upper"))
	assert.Equal(t, []core.Row{{"X"}, {"Y"}, {"Z"}}, own)

	// Reading the same offsets again yields the same rows.
	again := drain(t, r.Rows())
	assert.Equal(t, drain(t, r.Rows()), again)

	row, err := r.RowAt(1, "text", "text_upper")
	require.NoError(t, err)
	assert.Equal(t, core.Row{"y", "Y"}, row)

	_, err = r.RowAt(3)
	assert.Equal(t, io.EOF, err)
}

func TestRowwiseUnknownColumn(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "x")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()

	_, err := r.Rows("missing").Next(context.Background())
	var colErr *ColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "missing", colErr.Column)
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)
}

func TestRowwiseExhausted(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "x")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()

	it := r.Rows()
	_, err := it.Next(context.Background())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = it.Next(context.Background())
		assert.Equal(t, io.EOF, err)
	}
	assert.EqualValues(t, 1, it.Offset())
	assert.Equal(t, core.StatusComplete, r.Status())

	// A completed task replays from the random-access tier.
	assert.Len(t, drain(t, r.Rows()), 1)
}

func TestRowwiseRowAtBeforeComplete(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "x", "y")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()

	_, err := r.RowAt(0)
	assert.ErrorIs(t, err, core.ErrNotComplete)
}

func TestRowwiseResetIsIdempotent(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a", "b")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()
	drain(t, r.Rows())
	require.Equal(t, core.StatusComplete, r.Status())
	_, err := os.Stat(r.filePath())
	require.NoError(t, err)

	schema := r.Schema()
	gen := r.Generation()
	r.Reset()
	r.Reset()

	assert.Equal(t, core.StatusReady, r.Status())
	assert.EqualValues(t, 0, r.NumRows())
	assert.Equal(t, gen+2, r.Generation())
	assert.True(t, schema.Equal(r.Schema()))
	assert.NoFileExists(t, r.filePath())
	assert.NoFileExists(t, r.streamPath())
	assert.Len(t, drain(t, r.Rows()), 2)
}

func TestRowwiseFlushesThroughStream(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a", "b", "c", "d", "e")
	env := g.env(1, "upper")
	env.MaxBufferedRows = 2
	r := NewRowwise(env, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	g.add(r)
	r.Reset()

	ctx := context.Background()
	first := r.Rows()
	for _, want := range []string{"A", "B", "C"} {
		row, err := first.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, row[1])
	}
	assert.FileExists(t, r.streamPath())
	assert.EqualValues(t, 2, r.written.Load())

	second := r.Rows("text_upper")
	for _, want := range []string{"A", "B", "C"} {
		row, err := second.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, core.Row{want}, row)
	}

	rest := drain(t, first)
	assert.Equal(t, []core.Row{{"d", "D"}, {"e", "E"}}, rest)
	assert.Equal(t, []core.Row{{"D"}, {"E"}}, drain(t, second))

	assert.Equal(t, core.StatusComplete, r.Status())
	assert.NoFileExists(t, r.streamPath())
	assert.FileExists(t, r.filePath())
}

func TestRowwiseResetRewindsIterators(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a", "b")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()

	it := r.Rows()
	row, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Row{"a", "A"}, row)

	r.Update(core.Config{"fail_on": "zzz"})

	row, err = it.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Row{"a", "A"}, row)
	assert.EqualValues(t, 1, it.Offset())
}

func TestRowwiseSourceResetPropagates(t *testing.T) {
	g := newGraph(t)
	src := g.loader(t, 0, "a")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()
	drain(t, r.Rows())
	gen := r.Generation()

	src.SetConfig(core.Config{"rows": []string{"b", "c"}})

	assert.Greater(t, r.Generation(), gen)
	assert.Equal(t, core.StatusReady, r.Status())
	assert.Equal(t, []core.Row{{"b", "B"}, {"c", "C"}}, drain(t, r.Rows()))
}

func TestRowwiseFailure(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a", "b", "c")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}, "fail_on": "b"})
	r.Reset()

	it := r.Rows()
	row, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Row{"a", "A"}, row)

	_, err = it.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTaskFailed)
	assert.Contains(t, err.Error(), `cannot transform "b"`)
	assert.Equal(t, core.StatusFailed, r.Status())
	assert.Equal(t, err, r.Err())

	// Rows committed before the failure stay readable.
	fresh := r.Rows()
	row, err = fresh.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Row{"a", "A"}, row)
	_, err = fresh.Next(context.Background())
	assert.ErrorIs(t, err, core.ErrTaskFailed)

	assert.ErrorIs(t, r.Run(context.Background()), core.ErrTaskFailed)

	// Fixing the configuration clears the failure.
	r.Update(core.Config{"fail_on": ""})
	assert.NoError(t, r.Err())
	assert.Len(t, drain(t, r.Rows()), 3)
}

// ragged emits its input, then a row of the wrong width for "bad".
type ragged struct{ words }

func (ragged) Execute(_ context.Context, row core.Row) ([]core.Row, error) {
	s, _ := row[0].(string)
	out := []core.Row{{s}}
	if s == "bad" {
		out = append(out, core.Row{s, "extra"})
	}
	return out, nil
}

func TestRowwiseFailedStepCommitsNothing(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a", "bad", "c")
	r := g.rowwise(1, RowwiseSpec{
		Cardinality: OneToMany,
		New:         func(core.Config) (RowTransform, error) { return ragged{}, nil },
	}, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()

	it := r.Rows()
	row, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Row{"a"}, row)
	_, err = it.Next(context.Background())
	assert.ErrorIs(t, err, core.ErrTaskFailed)
	assert.Equal(t, core.StatusFailed, r.Status())
	assert.EqualValues(t, 1, r.NumRows())

	fresh := r.Rows()
	row, err = fresh.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Row{"a"}, row)
	_, err = fresh.Next(context.Background())
	assert.ErrorIs(t, err, core.ErrTaskFailed)
}

func TestRowwiseOneToOneCardinality(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}, "extra": true})
	r.Reset()

	_, err := r.Rows().Next(context.Background())
	assert.ErrorIs(t, err, core.ErrTaskFailed)
	assert.Equal(t, core.StatusFailed, r.Status())
}

func TestRowwiseOneToMany(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a b", "", "c")
	r := g.rowwise(1, wordsSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()

	assert.Equal(t, []string{"word"}, fieldNames(r.RowSchema().Fields()))
	assert.Equal(t, []core.Row{{"a"}, {"b"}, {"c"}}, drain(t, r.Rows()))

	_, err := r.Rows("text").Next(context.Background())
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)

	row, err := r.RowAt(2)
	require.NoError(t, err)
	assert.Equal(t, core.Row{"c"}, row)
}

func TestRowwiseChained(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "one two")
	words := g.rowwise(1, wordsSpec, core.Config{"source": 0, "column": []string{"text"}})
	words.Reset()
	up := g.rowwise(2, upperSpec, core.Config{"source": 1, "column": []string{"word"}})
	up.Reset()

	assert.Equal(t, []core.Row{{"one", "ONE"}, {"two", "TWO"}}, drain(t, up.Rows()))
	assert.Equal(t, core.StatusComplete, words.Status())
}

func TestRowwiseInvalidConfigurations(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a")

	tests := []struct {
		name string
		cfg  core.Config
	}{
		{"no source", core.Config{"column": []string{"text"}}},
		{"no column", core.Config{"source": 0}},
		{"dangling source", core.Config{"source": 42, "column": []string{"text"}}},
		{"unknown column", core.Config{"source": 0, "column": []string{"nope"}}},
		{"self source", core.Config{"source": 5, "column": []string{"text"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := g.rowwise(5, upperSpec, tt.cfg)
			defer g.remove(5)
			defer r.Close()
			r.Reset()
			assert.Equal(t, core.StatusInvalid, r.Status())
			assert.Nil(t, r.Schema())
			assert.ErrorIs(t, r.Run(context.Background()), core.ErrNotReady)
			_, err := r.RowAt(0)
			assert.ErrorIs(t, err, core.ErrNotComplete)
		})
	}
}

func TestRowwiseCycle(t *testing.T) {
	g := newGraph(t)
	a := g.rowwise(1, upperSpec, core.Config{"source": 2, "column": []string{"text"}})
	b := g.rowwise(2, upperSpec, core.Config{"source": 1, "column": []string{"text"}})
	a.Reset()
	b.Reset()
	assert.Equal(t, core.StatusInvalid, a.Status())
	assert.Equal(t, core.StatusInvalid, b.Status())
}

func TestRowwiseDanglingAfterRemoval(t *testing.T) {
	g := newGraph(t)
	src := g.loader(t, 0, "a")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()
	require.Equal(t, core.StatusReady, r.Status())

	g.remove(0)
	src.Close()
	r.Reset()
	assert.Equal(t, core.StatusInvalid, r.Status())
}

func TestRowwiseWaitsForConfiguration(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a")
	r := g.rowwise(1, upperSpec, nil)
	r.Reset()
	require.Equal(t, core.StatusInvalid, r.Status())

	got := make(chan core.Row, 1)
	go func() {
		row, err := r.Rows().Next(context.Background())
		if err == nil {
			got <- row
		}
		close(got)
	}()

	time.Sleep(10 * time.Millisecond)
	r.Update(core.Config{"source": 0, "column": []string{"text"}})

	select {
	case row := <-got:
		assert.Equal(t, core.Row{"a", "A"}, row)
	case <-time.After(5 * time.Second):
		t.Fatal("iterator did not resume")
	}
}

func TestRowwiseWaitHonorsContext(t *testing.T) {
	g := newGraph(t)
	r := g.rowwise(1, upperSpec, nil)
	r.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Rows().Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRowwiseConcurrentIterators(t *testing.T) {
	g := newGraph(t)
	values := make([]string, 50)
	for i := range values {
		values[i] = string(rune('a' + i%26))
	}
	g.loader(t, 0, values...)
	env := g.env(1, "upper")
	env.MaxBufferedRows = 7
	r := NewRowwise(env, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	g.add(r)
	r.Reset()

	var wg sync.WaitGroup
	results := make([][]core.Row, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = drain(t, r.Rows())
		}(i)
	}
	wg.Wait()

	require.Len(t, results[0], 50)
	for _, rows := range results[1:] {
		assert.Equal(t, results[0], rows)
	}
}

func TestRowwiseArgs(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}, "fail_on": "q"})
	r.Reset()

	args := r.Args()
	assert.Equal(t, 1, args["id"])
	assert.Equal(t, "rowwise", args["type"])
	assert.Equal(t, "ready", args["status"])
	assert.Equal(t, 0, args["source"])
	assert.Equal(t, []string{"text"}, args["column"])
	assert.Equal(t, "q", args["fail_on"])
	assert.NotNil(t, args["schema"])
	assert.NotContains(t, r.Config(), "source")
}

func TestRowwiseClose(t *testing.T) {
	g := newGraph(t)
	g.loader(t, 0, "a")
	r := g.rowwise(1, upperSpec, core.Config{"source": 0, "column": []string{"text"}})
	r.Reset()
	drain(t, r.Rows())

	require.NoError(t, r.Close())
	assert.NoFileExists(t, r.filePath())
	_, err := r.Rows().Next(context.Background())
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.ErrorIs(t, r.Run(context.Background()), core.ErrClosed)
	assert.NoError(t, r.Close())
}
