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


package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, op string, values ...interface{}) []interface{} {
	t.Helper()
	agg, err := New(op)
	require.NoError(t, err)
	out := make([]interface{}, len(values))
	for i, v := range values {
		require.NoError(t, agg.Add(v))
		out[i] = agg.Result()
	}
	return out
}

func TestRunningResults(t *testing.T) {
	values := []interface{}{nil, int64(3), int64(1), nil, float64(5)}

	assert.Equal(t, []interface{}{int64(0), int64(1), int64(2), int64(2), int64(3)}, run(t, OpCount, values...))
	assert.Equal(t, []interface{}{nil, 3.0, 4.0, 4.0, 9.0}, run(t, OpSum, values...))
	assert.Equal(t, []interface{}{nil, 3.0, 2.0, 2.0, 3.0}, run(t, OpAvg, values...))
	assert.Equal(t, []interface{}{nil, int64(3), int64(1), int64(1), int64(1)}, run(t, OpMin, values...))
	assert.Equal(t, []interface{}{nil, int64(3), int64(3), int64(3), float64(5)}, run(t, "MAX", values...))
}

func TestMinMaxOrderStringsAndTimes(t *testing.T) {
	assert.Equal(t, []interface{}{"b", "a", "a"}, run(t, OpMin, "b", "a", "c"))

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	assert.Equal(t, []interface{}{late, late}, run(t, OpMax, late, early))
	assert.Equal(t, []interface{}{true, true}, run(t, OpMax, true, false))
}

func TestAggregatorErrors(t *testing.T) {
	_, err := New("median")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "avg, count, max, min, sum")

	sum, err := New(OpSum)
	require.NoError(t, err)
	assert.Error(t, sum.Add("ten"))

	lowest, err := New(OpMin)
	require.NoError(t, err)
	require.NoError(t, lowest.Add("a"))
	assert.Error(t, lowest.Add(int64(1)))
}

func TestReset(t *testing.T) {
	for _, op := range Ops() {
		agg, err := New(op)
		require.NoError(t, err)
		require.NoError(t, agg.Add(int64(4)))
		agg.Reset()
		if op == OpCount {
			assert.Equal(t, int64(0), agg.Result())
		} else {
			assert.Nil(t, agg.Result(), op)
		}
	}
}
