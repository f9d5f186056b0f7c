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
	"fmt"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/task"
)

// Definition describes one task to create.
type Definition struct {
	// ID is optional. Only tasks with an id can be referenced as a source.
	ID     *int        `yaml:"id,omitempty" json:"id,omitempty"`
	Type   string      `yaml:"type" json:"type"`
	Config core.Config `yaml:"config,omitempty" json:"config,omitempty"`
}

// Apply creates the tasks of defs, sources before the tasks reading from
// them. Sources may also name tasks already in the pipeline. On error the
// tasks created so far are kept.
func (p *Pipeline) Apply(defs []Definition) ([]task.Task, error) {
	order, err := definitionOrder(defs)
	if err != nil {
		return nil, err
	}
	created := make([]task.Task, 0, len(defs))
	for _, i := range order {
		def := defs[i]
		var opts []CreateOption
		if def.ID != nil {
			opts = append(opts, WithID(*def.ID))
		}
		t, err := p.CreateTask(def.Type, def.Config, opts...)
		if err != nil {
			return created, fmt.Errorf("definition %d (%s): %w", i, def.Type, err)
		}
		created = append(created, t)
	}
	return created, nil
}

// definitionOrder returns the indices of defs in creation order.
func definitionOrder(defs []Definition) ([]int, error) {
	byID := make(map[int]int)
	for i, def := range defs {
		if def.ID == nil {
			continue
		}
		if _, dup := byID[*def.ID]; dup {
			return nil, fmt.Errorf("definition %d: task %d: %w", i, *def.ID, core.ErrIDInUse)
		}
		byID[*def.ID] = i
	}

	g := newGraph()
	for i, def := range defs {
		var deps []int
		if v, ok := def.Config["source"]; ok && v != nil {
			if j, ok := byID[task.ParseSource(v)]; ok {
				deps = append(deps, j)
			}
		}
		g.add(i, deps...)
	}
	return g.topologicalSort()
}
