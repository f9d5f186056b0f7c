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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
)

func TestTopologicalSort(t *testing.T) {
	g := newGraph()
	g.add(4, 2)
	g.add(2)
	g.add(3, 1)
	g.add(1, 2)
	g.add(7, 99)

	order, err := g.topologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 3, 4, 7}, order)
	assert.False(t, g.hasCycle())
	assert.Equal(t, []int{1, 4}, g.downstream(2))
	assert.Empty(t, g.downstream(3))
}

func TestCycleDetection(t *testing.T) {
	tests := []struct {
		name  string
		edges map[int][]int
		cycle bool
	}{
		{"empty", map[int][]int{}, false},
		{"chain", map[int][]int{0: nil, 1: {0}, 2: {1}}, false},
		{"self", map[int][]int{0: {0}}, true},
		{"pair", map[int][]int{0: {1}, 1: {0}}, true},
		{"loop behind root", map[int][]int{0: nil, 1: {3}, 2: {1}, 3: {2}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGraph()
			for id, deps := range tt.edges {
				g.add(id, deps...)
			}
			assert.Equal(t, tt.cycle, g.hasCycle())
			_, err := g.topologicalSort()
			if tt.cycle {
				assert.ErrorIs(t, err, core.ErrCycle)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
