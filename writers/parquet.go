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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/storage"
)

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "open_file", "write", "close_writer")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten int64
	BatchesWritten int64
	FlushDuration  time.Duration
	LastFlushTime  time.Time
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int                  // Rows buffered before a batch is written
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64                // Maximum rows per row group
	Allocator    memory.Allocator
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of rows to buffer before writing a batch.
func WithBatchSize(size int) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// ParquetWriter writes rows of a fixed Arrow schema to a Parquet file.
type ParquetWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *pqarrow.FileWriter
	rows   *storage.RowWriter
	stats  WriterStats
	closed bool
}

// NewParquetWriter creates filename (and its parent directories) and
// returns a writer for rows of schema.
func NewParquetWriter(filename string, schema *arrow.Schema, options ...WriterOption) (*ParquetWriter, error) {
	opts := &ParquetWriterOptions{
		BatchSize:    1000,
		Compression:  compress.Codecs.Snappy,
		RowGroupSize: 64 * 1024,
		Allocator:    memory.DefaultAllocator,
	}
	for _, option := range options {
		option(opts)
	}
	if schema == nil {
		return nil, &ParquetWriterError{Op: "schema", Err: fmt.Errorf("schema is required")}
	}

	if dir := filepath.Dir(filename); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{Op: "create_directory", Err: err}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{Op: "open_file", Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err)}
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression),
		parquet.WithMaxRowGroupLength(opts.RowGroupSize),
		parquet.WithAllocator(opts.Allocator),
	)
	fw, err := pqarrow.NewFileWriter(schema, file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		file.Close()
		os.Remove(filename)
		return nil, &ParquetWriterError{Op: "create_writer", Err: err}
	}

	p := &ParquetWriter{file: file, writer: fw}
	p.rows = storage.NewRowWriter(batchSink{p}, schema, opts.Allocator, opts.BatchSize)
	return p, nil
}

type batchSink struct{ p *ParquetWriter }

func (s batchSink) Write(rec arrow.Record) error {
	start := time.Now()
	if err := s.p.writer.Write(rec); err != nil {
		return err
	}
	s.p.stats.BatchesWritten++
	s.p.stats.LastFlushTime = time.Now()
	s.p.stats.FlushDuration += time.Since(start)
	return nil
}

// Schema returns the schema rows are written with.
func (p *ParquetWriter) Schema() *arrow.Schema {
	return p.rows.Schema()
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.RecordsWritten = p.rows.Rows()
	return s
}

// Write implements the DataSink interface. Record fields outside the
// schema are ignored and missing fields are null.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if err := ctx.Err(); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if err := p.rows.AppendRecord(record); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}
	return nil
}

// WriteRow appends one positional row.
func (p *ParquetWriter) WriteRow(row core.Row) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if err := p.rows.Append(row); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}
	return nil
}

// Flush implements the DataSink interface.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if err := p.rows.Flush(); err != nil {
		return &ParquetWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close implements the DataSink interface. Flushes and closes all resources.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.rows.Flush(); err != nil {
		p.writer.Close()
		return &ParquetWriterError{Op: "flush_remaining", Err: err}
	}
	// Closing the file writer closes the underlying file.
	if err := p.writer.Close(); err != nil {
		return &ParquetWriterError{Op: "close_writer", Err: err}
	}
	return nil
}
