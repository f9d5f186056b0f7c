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
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
)

const peopleCSV = "name,age,joined\nAda,36,2020-01-02T00:00:00Z\nbob,,2021-05-06T07:08:09Z\nCY,17,soon\n"

func TestCaseFoldMultipleColumns(t *testing.T) {
	g := newGraph(t)
	path := g.writeFile("two.csv", "first,last\nÀnna,STRAßE\n")
	g.create(0, "loadFile", core.Config{"path": path, "format": "csv"})

	fold := g.create(1, "caseFold", core.Config{"source": 0, "column": []interface{}{"first", "last"}})
	require.Equal(t, core.StatusReady, fold.Status())
	assert.Equal(t, []string{"first_lower", "last_lower"}, fieldNames(fold.Schema()))
	assert.Equal(t, []core.Row{{"Ànna", "STRAßE", "ànna", "strasse"}}, drain(t, fold.Rows()))
}

func TestCaseFoldModes(t *testing.T) {
	g := newGraph(t)
	g.create(0, "loadFile", core.Config{"path": g.writeFile("m.csv", "text\n\" Straße \"\n"), "format": "csv", "raw_strings": true})

	upper := g.create(1, "caseFold", core.Config{"source": 0, "column": "text", "mode": "upper", "trim": true})
	require.Equal(t, core.StatusReady, upper.Status())
	assert.Equal(t, []string{"text_upper"}, fieldNames(upper.Schema()))
	assert.Equal(t, []core.Row{{"STRASSE"}}, drain(t, upper.Rows("text_upper")))

	lower := g.create(2, "caseFold", core.Config{"source": 0, "column": "text", "mode": "lower"})
	assert.Equal(t, []core.Row{{" straße "}}, drain(t, lower.Rows("text_lower")))

	assert.Equal(t, core.StatusInvalid, g.create(3, "caseFold", core.Config{"source": 0, "column": "text", "mode": "title"}).Status())
}

func TestCaseFoldRejectsNonText(t *testing.T) {
	g := newGraph(t)
	g.create(0, "loadFile", core.Config{"path": g.writeFile("p.csv", peopleCSV), "format": "csv"})
	fold := g.create(1, "caseFold", core.Config{"source": 0, "column": "age"})
	assert.Equal(t, core.StatusInvalid, fold.Status())
}

func TestCast(t *testing.T) {
	g := newGraph(t)
	g.create(0, "loadFile", core.Config{"path": g.writeFile("p.csv", peopleCSV), "format": "csv"})

	toText := g.create(1, "cast", core.Config{"source": 0, "column": "age", "to": "string"})
	require.Equal(t, core.StatusReady, toText.Status())
	assert.Equal(t, []string{"age_string"}, fieldNames(toText.Schema()))
	assert.Equal(t, []core.Row{{"36"}, {nil}, {"17"}}, drain(t, toText.Rows("age_string")))

	when := g.create(2, "cast", core.Config{"source": 0, "column": "joined", "to": "timestamp", "as": "joined_at"})
	require.Equal(t, core.StatusReady, when.Status())
	assert.Equal(t, arrow.TIMESTAMP, when.Schema().Field(0).Type.ID())
	rows := drain(t, when.Rows("name", "joined_at"))
	require.Len(t, rows, 3)
	joined, ok := rows[0][1].(time.Time)
	require.True(t, ok)
	assert.True(t, joined.Equal(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, rows[2][1])

	strict := g.create(3, "cast", core.Config{"source": 0, "column": "joined", "to": "timestamp", "strict": true})
	require.Equal(t, core.StatusReady, strict.Status())
	it := strict.Rows()
	defer it.Close()
	var err error
	for err == nil {
		_, err = it.Next(context.Background())
	}
	assert.ErrorIs(t, err, core.ErrTaskFailed)
	assert.Equal(t, core.StatusFailed, strict.Status())
}

func TestCastInvalid(t *testing.T) {
	g := newGraph(t)
	g.create(0, "loadFile", core.Config{"path": g.writeFile("p.csv", peopleCSV), "format": "csv"})

	assert.Equal(t, core.StatusInvalid, g.create(1, "cast", core.Config{"source": 0, "column": "age", "to": "decimal"}).Status())
	assert.Equal(t, core.StatusInvalid, g.create(2, "cast", core.Config{
		"source": 0, "column": []interface{}{"age", "name"}, "to": "string", "as": "x",
	}).Status())
}

func TestFilter(t *testing.T) {
	g := newGraph(t)
	g.create(0, "loadFile", core.Config{"path": g.writeFile("p.csv", peopleCSV), "format": "csv"})

	adults := g.create(1, "filter", core.Config{
		"source": 0, "column": []interface{}{"name", "age"}, "field": "age", "op": "gt", "value": 18,
	})
	require.Equal(t, core.StatusReady, adults.Status())
	assert.Equal(t, []string{"name", "age"}, fieldNames(adults.RowSchema()))
	assert.Equal(t, []core.Row{{"Ada", int64(36)}}, drain(t, adults.Rows()))

	lower := g.create(2, "filter", core.Config{"source": 0, "column": "name", "op": "matches", "value": "^[A-Z]", "negate": true})
	assert.Equal(t, []core.Row{{"bob"}}, drain(t, lower.Rows()))

	either := g.create(3, "filter", core.Config{
		"source": 0, "column": []interface{}{"name", "age"},
		"any": []interface{}{
			map[string]interface{}{"field": "age", "op": "lt", "value": 18},
			map[string]interface{}{"field": "name", "op": "equals", "value": "Ada"},
		},
	})
	require.Equal(t, core.StatusReady, either.Status())
	assert.Equal(t, []core.Row{{"Ada", int64(36)}, {"CY", int64(17)}}, drain(t, either.Rows()))

	both := g.create(4, "filter", core.Config{
		"source": 0, "column": []interface{}{"name", "age"},
		"all": []interface{}{
			map[string]interface{}{"field": "age", "op": "not_null"},
			map[string]interface{}{"op": "starts_with", "value": "C"},
		},
	})
	assert.Equal(t, []core.Row{{"CY", int64(17)}}, drain(t, both.Rows()))

	// Filter output is not aligned with its source.
	_, err := lower.RowAt(0, "age")
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)
}

func TestFilterInvalid(t *testing.T) {
	g := newGraph(t)
	g.create(0, "loadFile", core.Config{"path": g.writeFile("p.csv", peopleCSV), "format": "csv"})

	tests := map[string]core.Config{
		"missing op":       {"source": 0, "column": "name"},
		"unknown op":       {"source": 0, "column": "name", "op": "like", "value": "%a"},
		"unselected field": {"source": 0, "column": "name", "field": "age", "op": "not_null"},
		"bad pattern":      {"source": 0, "column": "name", "op": "matches", "value": "("},
		"op and any":       {"source": 0, "column": "name", "op": "not_null", "any": []interface{}{map[string]interface{}{"op": "not_null"}}},
	}
	id := 1
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, core.StatusInvalid, g.create(id, "filter", cfg).Status())
		})
		id++
	}
}

func TestSplit(t *testing.T) {
	g := newGraph(t)
	g.create(0, "loadFile", core.Config{"path": g.writeFile("s.csv", "text\nthe quick  fox\n\"a,b,,c\"\n"), "format": "csv"})

	words := g.create(1, "split", core.Config{"source": 0, "column": "text"})
	require.Equal(t, core.StatusReady, words.Status())
	assert.Equal(t, []string{"token", "position"}, fieldNames(words.Schema()))
	assert.Equal(t, []core.Row{
		{"the", int64(0)}, {"quick", int64(1)}, {"fox", int64(2)}, {"a,b,,c", int64(0)},
	}, drain(t, words.Rows()))

	parts := g.create(2, "split", core.Config{"source": 0, "column": "text", "separator": ",", "output": "part", "keep_empty": true})
	rows := drain(t, parts.Rows("part"))
	assert.Equal(t, []core.Row{{"the quick  fox"}, {"a"}, {"b"}, {""}, {"c"}}, rows)

	chained := g.create(3, "caseFold", core.Config{"source": 1, "column": "token"})
	assert.Equal(t, []core.Row{{"the", "the"}, {"quick", "quick"}, {"fox", "fox"}, {"a,b,,c", "a,b,,c"}},
		drain(t, chained.Rows("token", "token_lower")))
}

func TestAggregate(t *testing.T) {
	g := newGraph(t)
	g.create(0, "loadFile", core.Config{"path": g.writeFile("p.csv", peopleCSV), "format": "csv"})

	running := g.create(1, "aggregate", core.Config{"source": 0, "column": "age", "ops": []interface{}{"count", "SUM", "min"}})
	require.Equal(t, core.StatusReady, running.Status())
	assert.Equal(t, []string{"age_count", "age_sum", "age_min"}, fieldNames(running.Schema()))
	assert.Equal(t, arrow.INT64, running.Schema().Field(2).Type.ID())
	assert.Equal(t, []core.Row{
		{int64(1), 36.0, int64(36)},
		{int64(1), 36.0, int64(36)},
		{int64(2), 53.0, int64(17)},
	}, drain(t, running.Rows("age_count", "age_sum", "age_min")))

	// Results already written are served again on a second pass.
	assert.Equal(t, []core.Row{{int64(1)}, {int64(1)}, {int64(2)}}, drain(t, running.Rows("age_count")))

	names := g.create(2, "aggregate", core.Config{"source": 0, "column": "name", "ops": "max"})
	require.Equal(t, core.StatusReady, names.Status())
	assert.Equal(t, []core.Row{{"Ada", "Ada"}, {"bob", "bob"}, {"CY", "bob"}}, drain(t, names.Rows("name", "name_max")))
}

func TestAggregateInvalid(t *testing.T) {
	g := newGraph(t)
	g.create(0, "loadFile", core.Config{"path": g.writeFile("p.csv", peopleCSV), "format": "csv"})

	assert.Equal(t, core.StatusInvalid, g.create(1, "aggregate", core.Config{"source": 0, "column": "age"}).Status())
	assert.Equal(t, core.StatusInvalid, g.create(2, "aggregate", core.Config{"source": 0, "column": "age", "ops": "median"}).Status())
	assert.Equal(t, core.StatusInvalid, g.create(3, "aggregate", core.Config{"source": 0, "column": "name", "ops": "sum"}).Status())
}
