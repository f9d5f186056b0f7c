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
	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/aaronlmathis/rowflow/core"
)

// BatchWriter accepts whole record batches.
type BatchWriter interface {
	Write(rec arrow.Record) error
}

// RowWriter batches rows into a Buffer and hands full batches to a
// BatchWriter. Loaders use it to fill a table without a stream tier.
type RowWriter struct {
	dst       BatchWriter
	buf       *Buffer
	mem       memory.Allocator
	batchRows int
	rows      int64
	index     map[string]int
}

// NewRowWriter returns a writer emitting batches of at most batchRows rows.
func NewRowWriter(dst BatchWriter, schema *arrow.Schema, mem memory.Allocator, batchRows int) *RowWriter {
	if batchRows <= 0 {
		batchRows = 1000
	}
	index := make(map[string]int, len(schema.Fields()))
	for i, f := range schema.Fields() {
		index[f.Name] = i
	}
	return &RowWriter{
		dst:       dst,
		buf:       NewBuffer(schema),
		mem:       mem,
		batchRows: batchRows,
		index:     index,
	}
}

// Schema returns the schema rows must follow.
func (w *RowWriter) Schema() *arrow.Schema {
	return w.buf.Schema()
}

// Rows returns the number of rows accepted so far.
func (w *RowWriter) Rows() int64 {
	return w.rows
}

// Append adds one positional row.
func (w *RowWriter) Append(values core.Row) error {
	if err := w.buf.Append(values); err != nil {
		return err
	}
	w.rows++
	if w.buf.Len() >= w.batchRows {
		return w.Flush()
	}
	return nil
}

// AppendRecord adds a named record. Fields missing from the record are
// null; fields not in the schema are ignored.
func (w *RowWriter) AppendRecord(rec core.Record) error {
	row := make(core.Row, len(w.index))
	for name, v := range rec {
		if i, ok := w.index[name]; ok {
			row[i] = v
		}
	}
	return w.Append(row)
}

// WriteBatch writes an existing batch after flushing buffered rows.
func (w *RowWriter) WriteBatch(rec arrow.Record) error {
	if !rec.Schema().Equal(w.buf.Schema()) {
		return &TierError{Op: "write_batch", Err: fmt.Errorf("batch schema %s does not match %s", rec.Schema(), w.buf.Schema())}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := w.dst.Write(rec); err != nil {
		return err
	}
	w.rows += rec.NumRows()
	return nil
}

// Flush writes any buffered rows as one batch.
func (w *RowWriter) Flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	rec, err := w.buf.Record(w.mem)
	if err != nil {
		return err
	}
	defer rec.Release()
	if err := w.dst.Write(rec); err != nil {
		return err
	}
	w.buf.Reset()
	return nil
}
