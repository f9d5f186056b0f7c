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

package task

import (
	"context"
	"errors"
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/storage"
)

// rowIter iterates a row-wise task. Own columns come from the task's tiers;
// source columns come from a private iterator over the source kept at the
// same offset.
type rowIter struct {
	task   *Rowwise
	names  []string
	noWait bool

	offset int64
	gen    uint64
	plan   *rowPlan
	closed bool

	up Iterator

	stream    *storage.StreamReader
	batch     arrow.Record
	batchBase int64
}

func (it *rowIter) Next(ctx context.Context) (core.Row, error) {
	for {
		if it.closed {
			return nil, core.ErrClosed
		}
		own, err := it.task.serve(ctx, it)
		switch {
		case err == nil:
		case errors.Is(err, errUpstreamNotReady):
			if it.noWait {
				return nil, err
			}
			if err := it.task.waitReset(ctx, it.gen); err != nil {
				return nil, err
			}
			continue
		case errors.Is(err, core.ErrNotReady):
			if it.noWait {
				return nil, &core.TaskError{ID: it.task.ID(), Op: "read", Err: core.ErrNotReady}
			}
			if err := it.task.waitReady(ctx); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, err
		}

		row, err := it.unify(ctx, own)
		if err != nil {
			return nil, err
		}
		it.offset++
		return row, nil
	}
}

// unify joins own with the source row at the same offset.
func (it *rowIter) unify(ctx context.Context, own core.Row) (core.Row, error) {
	p := it.plan
	if len(p.ancestors) == 0 {
		return p.assemble(own, nil), nil
	}

	if it.up == nil || it.up.Offset() != it.offset {
		if it.up != nil {
			it.up.Close()
		}
		it.up = openRows(p.src, p.ancestors, it.noWait)
		if err := it.up.Skip(ctx, it.offset); err != nil {
			it.up.Close()
			it.up = nil
			if err == io.EOF {
				return nil, core.Inconsistent("source %d ended before offset %d", p.src.ID(), it.offset)
			}
			return nil, err
		}
	}

	anc, err := it.up.Next(ctx)
	if err == io.EOF {
		return nil, core.Inconsistent("source %d ended before offset %d", p.src.ID(), it.offset)
	}
	if err != nil {
		return nil, err
	}
	return p.assemble(own, anc), nil
}

func (it *rowIter) Skip(ctx context.Context, n int64) error {
	for i := int64(0); i < n; i++ {
		if _, err := it.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (it *rowIter) Offset() int64 {
	return it.offset
}

func (it *rowIter) Schema() *arrow.Schema {
	if it.plan == nil {
		return nil
	}
	return it.plan.schema
}

func (it *rowIter) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.release()
	return nil
}

// rewind moves the iterator back to offset zero of generation gen.
func (it *rowIter) rewind(gen uint64) {
	it.gen = gen
	it.offset = 0
	it.plan = nil
	it.release()
}

func (it *rowIter) release() {
	it.closeStream()
	if it.up != nil {
		it.up.Close()
		it.up = nil
	}
}

func (it *rowIter) closeStream() {
	if it.batch != nil {
		it.batch.Release()
		it.batch = nil
	}
	if it.stream != nil {
		it.stream.Close()
		it.stream = nil
	}
	it.batchBase = 0
}

// seek positions the open batch over it.offset, which must be below
// written. A reader that reached the end of the stream before later batches
// were appended is reopened once.
func (it *rowIter) seek(path string, mem memory.Allocator, written int64) error {
	for attempt := 0; attempt < 2; attempt++ {
		if it.stream == nil {
			s, err := storage.OpenStream(path, mem)
			if err != nil {
				return err
			}
			it.stream, it.batchBase = s, 0
		}
		for {
			if it.batch != nil {
				n := it.batch.NumRows()
				if it.offset >= it.batchBase && it.offset < it.batchBase+n {
					return nil
				}
				if it.offset < it.batchBase {
					break
				}
				it.batchBase += n
				it.batch.Release()
				it.batch = nil
			}
			rec, err := it.stream.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			it.batch = rec
		}
		it.closeStream()
	}
	return core.Inconsistent("offset %d missing from a stream of %d rows", it.offset, written)
}
