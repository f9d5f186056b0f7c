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
	"sort"

	"github.com/aaronlmathis/rowflow/core"
)

// graph is the dependency structure of a set of tasks: every id with the
// ids it reads from. Dependencies on ids outside the graph are ignored.
type graph struct {
	ids  []int
	deps map[int][]int
}

func newGraph() *graph {
	return &graph{deps: make(map[int][]int)}
}

func (g *graph) add(id int, deps ...int) {
	if _, ok := g.deps[id]; !ok {
		g.ids = append(g.ids, id)
	}
	g.deps[id] = append([]int(nil), deps...)
}

func (g *graph) has(id int) bool {
	_, ok := g.deps[id]
	return ok
}

func (g *graph) hasCycle() bool {
	visited := make(map[int]bool)
	recStack := make(map[int]bool)
	for _, id := range g.ids {
		if !visited[id] && g.dfsHasCycle(id, visited, recStack) {
			return true
		}
	}
	return false
}

func (g *graph) dfsHasCycle(id int, visited, recStack map[int]bool) bool {
	visited[id] = true
	recStack[id] = true

	for _, dep := range g.deps[id] {
		if !g.has(dep) {
			continue
		}
		if !visited[dep] {
			if g.dfsHasCycle(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[id] = false
	return false
}

// downstream lists the ids that depend directly on id, ascending.
func (g *graph) downstream(id int) []int {
	var out []int
	for _, other := range g.ids {
		for _, dep := range g.deps[other] {
			if dep == id {
				out = append(out, other)
				break
			}
		}
	}
	sort.Ints(out)
	return out
}

// topologicalSort orders ids so every task comes after its dependencies.
// Ties are broken by ascending id.
func (g *graph) topologicalSort() ([]int, error) {
	inDegree := make(map[int]int, len(g.ids))
	for _, id := range g.ids {
		for _, dep := range g.deps[id] {
			if g.has(dep) {
				inDegree[id]++
			}
		}
	}

	var queue []int
	for _, id := range g.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Ints(queue)

	result := make([]int, 0, len(g.ids))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		ready := g.downstream(current)
		for _, id := range ready {
			inDegree[id]--
			if inDegree[id] == 0 {
				queue = append(queue, id)
			}
		}
		sort.Ints(queue)
	}

	if len(result) != len(g.ids) {
		return nil, fmt.Errorf("ordering tasks: %w", core.ErrCycle)
	}
	return result, nil
}
