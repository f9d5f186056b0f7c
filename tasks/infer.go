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

package tasks

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/apache/arrow/go/v12/arrow"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/storage"
)

// DefaultInferRows is how many records are sampled to infer a schema.
const DefaultInferRows = 1000

// columnSampler accumulates column names in first-seen order and widens
// each column's type over the observed values.
type columnSampler struct {
	names []string
	index map[string]int
	types []arrow.DataType
}

func newColumnSampler(names []string) *columnSampler {
	s := &columnSampler{index: make(map[string]int)}
	for _, name := range names {
		s.column(name)
	}
	return s
}

func (s *columnSampler) column(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	s.index[name] = len(s.names)
	s.names = append(s.names, name)
	s.types = append(s.types, arrow.Null)
	return len(s.names) - 1
}

func (s *columnSampler) observe(name string, value interface{}) {
	i := s.column(name)
	dt, err := storage.InferType(value)
	if err != nil {
		dt = arrow.BinaryTypes.String
	}
	s.types[i] = storage.WidenType(s.types[i], dt)
}

// observeRecord visits keys in sorted order so maps give a stable layout.
func (s *columnSampler) observeRecord(rec core.Record) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.observe(k, rec[k])
	}
}

// schema returns nullable fields. Columns only ever null are strings.
func (s *columnSampler) schema() (*arrow.Schema, error) {
	if len(s.names) == 0 {
		return nil, fmt.Errorf("source has no columns")
	}
	fields := make([]arrow.Field, len(s.names))
	for i, name := range s.names {
		dt := s.types[i]
		if dt.ID() == arrow.NULL || !storage.Storable(dt) {
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

// sampleRecords feeds up to limit records of src into s. A limit below
// zero reads the whole source.
func sampleRecords(ctx context.Context, src core.DataSource, s *columnSampler, limit int) error {
	for n := 0; limit < 0 || n < limit; n++ {
		rec, err := src.Read(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		s.observeRecord(rec)
	}
	return nil
}

// copyRecords appends every record of src to out.
func copyRecords(ctx context.Context, src core.DataSource, out *storage.RowWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := src.Read(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := out.AppendRecord(rec); err != nil {
			return fmt.Errorf("row %d: %w", out.Rows(), err)
		}
	}
}

// rowSource is a reader producing positional rows in schema order.
type rowSource interface {
	ReadRow(ctx context.Context) (core.Row, error)
}

func copyRows(ctx context.Context, src rowSource, out *storage.RowWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := src.ReadRow(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := out.Append(row); err != nil {
			return fmt.Errorf("row %d: %w", out.Rows(), err)
		}
	}
}
