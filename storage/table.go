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
	"io"
	"sort"
	"sync"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"golang.org/x/exp/mmap"

	"github.com/aaronlmathis/rowflow/core"
)

// Table is a memory-mapped Arrow IPC file with row-offset access.
type Table struct {
	path   string
	mapped *mmap.ReaderAt
	reader *ipc.FileReader
	schema *arrow.Schema

	// starts[i] is the offset of the first row of batch i.
	starts []int64
	rows   int64

	mu      sync.Mutex
	current arrow.Record
	batch   int
	closed  bool
}

// OpenTable maps the file at path and indexes its batches.
func OpenTable(path string, mem memory.Allocator) (*Table, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, &TierError{Op: "open_table", Path: path, Err: err}
	}

	r, err := ipc.NewFileReader(io.NewSectionReader(m, 0, int64(m.Len())), ipc.WithAllocator(mem))
	if err != nil {
		m.Close()
		return nil, &TierError{Op: "open_table", Path: path, Err: err}
	}

	t := &Table{
		path:   path,
		mapped: m,
		reader: r,
		schema: r.Schema(),
		batch:  -1,
	}
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			t.Close()
			return nil, &TierError{Op: "index_table", Path: path, Err: err}
		}
		t.starts = append(t.starts, t.rows)
		t.rows += rec.NumRows()
	}
	return t, nil
}

// Path returns the mapped file.
func (t *Table) Path() string {
	return t.path
}

// Schema returns the table schema.
func (t *Table) Schema() *arrow.Schema {
	return t.schema
}

// NumRows returns the total row count.
func (t *Table) NumRows() int64 {
	return t.rows
}

// Row reads the row at offset, restricted to the column indices cols.
// Offsets at or past NumRows return io.EOF.
func (t *Table) Row(offset int64, cols []int) (core.Row, error) {
	if offset < 0 {
		return nil, &TierError{Op: "read_table", Path: t.path, Err: fmt.Errorf("negative offset %d", offset)}
	}
	if offset >= t.rows {
		return nil, io.EOF
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, &TierError{Op: "read_table", Path: t.path, Err: core.ErrClosed}
	}

	idx := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] > offset }) - 1
	if idx != t.batch {
		rec, err := t.reader.Record(idx)
		if err != nil {
			return nil, &TierError{Op: "read_table", Path: t.path, Err: err}
		}
		rec.Retain()
		if t.current != nil {
			t.current.Release()
		}
		t.current, t.batch = rec, idx
	}

	pos := int(offset - t.starts[idx])
	row := make(core.Row, len(cols))
	for i, c := range cols {
		row[i] = ValueAt(t.current.Column(c), pos)
	}
	return row, nil
}

// Close releases the cached batch, the reader and the mapping.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.current != nil {
		t.current.Release()
		t.current = nil
	}
	t.reader.Close()
	if err := t.mapped.Close(); err != nil {
		return &TierError{Op: "close_table", Path: t.path, Err: err}
	}
	return nil
}
