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

package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringFuncs(t *testing.T) {
	tests := []struct {
		name string
		fn   Func
		in   interface{}
		want interface{}
	}{
		{"fold ascii", Fold(), "WORLD", "world"},
		{"fold sharp s", Fold(), "Straße", "strasse"},
		{"fold nil", Fold(), nil, nil},
		{"lower", ToLower(), "HeLLo", "hello"},
		{"upper", ToUpper(), "hello", "HELLO"},
		{"trim", TrimSpace(), "  x \t", "x"},
		{"chain", Chain(TrimSpace(), ToUpper()), " ab ", "AB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Fold()(int64(3))
	assert.ErrorContains(t, err, "expected string")
}

func TestConversions(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		fn   Func
		in   interface{}
		want interface{}
	}{
		{"string from int", ToString(), int64(42), "42"},
		{"string from time", ToString(), ts, "2024-01-02T03:04:05Z"},
		{"string from bytes", ToString(), []byte("hi"), "aGk="},
		{"int from string", ToInt(), " 12 ", int64(12)},
		{"int from float", ToInt(), 3.0, int64(3)},
		{"int from bool", ToInt(), true, int64(1)},
		{"float from string", ToFloat(), "1.5", 1.5},
		{"float from int", ToFloat(), int32(2), 2.0},
		{"bool from string", ToBool(), "true", true},
		{"bool from int", ToBool(), int64(0), false},
		{"time from string", ParseTime(""), "2024-01-02T03:04:05Z", ts},
		{"time with layout", ParseTime("2006-01-02 15:04:05"), "2024-01-02 03:04:05", ts},
		{"nil passes through", ToInt(), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConversionErrors(t *testing.T) {
	for name, c := range map[string]struct {
		fn Func
		in interface{}
	}{
		"int from fraction": {ToInt(), 1.5},
		"int from word":     {ToInt(), "abc"},
		"float from bool":   {ToFloat(), true},
		"bool from word":    {ToBool(), "maybe"},
		"bad time":          {ParseTime(""), "yesterday"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.fn(c.in)
			assert.Error(t, err)
		})
	}
}
