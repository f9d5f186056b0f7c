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
	"fmt"
	"io"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/task"
)

// Export drains the output of task id into sink, optionally restricted to
// the named columns, and flushes it. The sink is left open. It returns the
// number of rows written.
func (p *Pipeline) Export(ctx context.Context, id int, sink core.DataSink, columns ...string) (int64, error) {
	t, err := p.Task(id)
	if err != nil {
		return 0, err
	}
	it := t.Rows(columns...)
	defer it.Close()

	var n int64
	var names []string
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}

		row, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("exporting task %d: %w", id, err)
		}
		if names == nil {
			names = fieldNames(it.Schema())
		}
		if err := sink.Write(ctx, row.Record(names)); err != nil {
			return n, fmt.Errorf("exporting task %d row %d: %w", id, n, err)
		}
		n++
	}
	if err := sink.Flush(); err != nil {
		return n, fmt.Errorf("exporting task %d: %w", id, err)
	}
	return n, nil
}

// EncodeJSON renders a task's Args as JSON.
func EncodeJSON(t task.Task) ([]byte, error) {
	return json.Marshal(t.Args())
}

// MarshalJSON renders the pipeline as {"tasks": [...]} with tasks ordered
// by id.
func (p *Pipeline) MarshalJSON() ([]byte, error) {
	tasks := p.Tasks()
	args := make([]map[string]interface{}, len(tasks))
	for i, t := range tasks {
		args[i] = t.Args()
	}
	return json.Marshal(map[string]interface{}{"tasks": args})
}
