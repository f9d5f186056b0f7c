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

package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	records := []map[string]interface{}{
		{"name": "Hello", "n": int64(3)},
		{"name": "", "n": int64(10)},
		{"name": nil, "n": nil},
		{"name": "world", "n": 7.5},
	}

	tests := []struct {
		op    string
		field string
		value interface{}
		want  []bool
	}{
		{"not_null", "name", nil, []bool{true, false, false, true}},
		{"equals", "n", 3, []bool{true, false, false, false}},
		{"equals", "name", "world", []bool{false, false, false, true}},
		{"contains", "name", "ll", []bool{true, false, false, false}},
		{"starts_with", "name", "w", []bool{false, false, false, true}},
		{"ends_with", "name", "o", []bool{true, false, false, false}},
		{"matches", "name", "^[a-z]+$", []bool{false, false, false, true}},
		{"gt", "n", 5, []bool{false, true, false, true}},
		{"lt", "n", 5.0, []bool{true, false, false, false}},
		{"between", "n", []interface{}{3, 8}, []bool{true, false, false, true}},
		{"in", "name", []interface{}{"Hello", "world"}, []bool{true, false, false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			p, err := Build(tt.op, tt.field, tt.value)
			require.NoError(t, err)
			for i, rec := range records {
				ok, err := p(context.Background(), rec)
				require.NoError(t, err)
				assert.Equal(t, tt.want[i], ok, "record %d", i)
			}
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	cases := map[string]struct {
		op    string
		value interface{}
	}{
		"unknown":        {"like", "x"},
		"equals nil":     {"equals", nil},
		"contains int":   {"contains", 3},
		"bad regex":      {"matches", "("},
		"gt string":      {"gt", "five"},
		"between single": {"between", []interface{}{1}},
		"in scalar":      {"in", "x"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(c.op, "f", c.value)
			assert.Error(t, err)
		})
	}
}

func TestCombinators(t *testing.T) {
	ctx := context.Background()
	rec := map[string]interface{}{"a": "x", "b": int64(2)}

	and := And(NotNull("a"), GreaterThan("b", 1))
	ok, err := and(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	or := Or(Equals("a", "y"), LessThan("b", 1))
	ok, err = or(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Not(or)(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)
}
