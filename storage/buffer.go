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

package storage

import (
	"fmt"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/aaronlmathis/rowflow/core"
)

// Buffer stages rows column by column until they are flushed as a batch.
type Buffer struct {
	schema  *arrow.Schema
	columns [][]interface{}
	rows    int
}

// NewBuffer returns an empty buffer for rows of schema.
func NewBuffer(schema *arrow.Schema) *Buffer {
	return &Buffer{
		schema:  schema,
		columns: make([][]interface{}, len(schema.Fields())),
	}
}

// Schema returns the buffer's schema.
func (b *Buffer) Schema() *arrow.Schema {
	return b.schema
}

// Len returns the number of buffered rows.
func (b *Buffer) Len() int {
	return b.rows
}

// Append adds one row. Every value is converted before any column is
// touched, so a rejected row leaves the buffer unchanged.
func (b *Buffer) Append(values []interface{}) error {
	fields := b.schema.Fields()
	if len(values) != len(fields) {
		return &TierError{Op: "buffer_append", Err: fmt.Errorf("row has %d values, schema has %d fields", len(values), len(fields))}
	}

	converted := make([]interface{}, len(values))
	for i, field := range fields {
		v, err := Coerce(values[i], field.Type)
		if err != nil {
			return &TierError{Op: "buffer_append", Err: fmt.Errorf("field %s: %w", field.Name, err)}
		}
		if v == nil && !field.Nullable {
			return &TierError{Op: "buffer_append", Err: fmt.Errorf("field %s: null in non-nullable column", field.Name)}
		}
		converted[i] = v
	}

	for i, v := range converted {
		b.columns[i] = append(b.columns[i], v)
	}
	b.rows++
	return nil
}

// Row returns buffered row idx restricted to the column indices cols.
func (b *Buffer) Row(idx int, cols []int) (core.Row, error) {
	if idx < 0 || idx >= b.rows {
		return nil, core.Inconsistent("buffer row %d outside [0,%d)", idx, b.rows)
	}
	row := make(core.Row, len(cols))
	for i, c := range cols {
		row[i] = b.columns[c][idx]
	}
	return row, nil
}

// Record builds an Arrow record from the buffered rows. The caller owns it.
func (b *Buffer) Record(mem memory.Allocator) (arrow.Record, error) {
	rb := array.NewRecordBuilder(mem, b.schema)
	defer rb.Release()

	for i, field := range b.schema.Fields() {
		builder := rb.Field(i)
		builder.Reserve(b.rows)
		for _, v := range b.columns[i] {
			if err := Append(builder, field.Type, v); err != nil {
				return nil, &TierError{Op: "buffer_record", Err: fmt.Errorf("field %s: %w", field.Name, err)}
			}
		}
	}
	return rb.NewRecord(), nil
}

// Truncate drops every row from index n on.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n >= b.rows {
		return
	}
	for i := range b.columns {
		b.columns[i] = b.columns[i][:n]
	}
	b.rows = n
}

// Reset discards every buffered row.
func (b *Buffer) Reset() {
	for i := range b.columns {
		b.columns[i] = nil
	}
	b.rows = 0
}
