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

package writers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
)

func TestJSONWriter_BasicFunctionality(t *testing.T) {
	out := &mockWriteCloser{}
	w := NewJSONWriter(out)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, core.Record{"word": "Hello", "n": int64(1)}))
	require.NoError(t, w.Write(ctx, core.Record{"word": nil, "n": int64(2)}))
	require.NoError(t, w.Close())

	assert.True(t, out.closed)
	assert.Equal(t, int64(2), w.Written())
	assert.Equal(t, "{\"n\":1,\"word\":\"Hello\"}\n{\"n\":2,\"word\":null}\n", out.String())
}

func TestJSONWriter_BuffersUntilFlush(t *testing.T) {
	out := &mockWriteCloser{}
	w := NewJSONWriter(out)

	require.NoError(t, w.Write(context.Background(), core.Record{"a": "b"}))
	assert.Empty(t, out.String())
	require.NoError(t, w.Flush())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &got))
	assert.Equal(t, "b", got["a"])
}

func TestJSONWriter_ErrorHandling(t *testing.T) {
	t.Run("unmarshalable value", func(t *testing.T) {
		w := NewJSONWriter(&mockWriteCloser{})
		err := w.Write(context.Background(), core.Record{"ch": make(chan int)})
		var jsonErr *JSONWriterError
		require.ErrorAs(t, err, &jsonErr)
		assert.Equal(t, "marshal", jsonErr.Op)
	})

	t.Run("flush failure", func(t *testing.T) {
		w := NewJSONWriter(&mockWriteCloser{failWrite: true})
		require.NoError(t, w.Write(context.Background(), core.Record{"a": 1}))
		assert.Error(t, w.Flush())
	})

	t.Run("cancelled context", func(t *testing.T) {
		w := NewJSONWriter(&mockWriteCloser{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, w.Write(ctx, core.Record{"a": 1}), context.Canceled)
	})
}
