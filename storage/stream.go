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
	"errors"
	"io"
	"os"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"
)

// StreamWriter appends record batches to an Arrow IPC stream file.
type StreamWriter struct {
	path    string
	file    *os.File
	writer  *ipc.Writer
	rows    int64
	batches int
}

// CreateStream creates (or truncates) the stream file at path.
func CreateStream(path string, schema *arrow.Schema, mem memory.Allocator) (*StreamWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &TierError{Op: "create_stream", Path: path, Err: err}
	}
	return &StreamWriter{
		path:   path,
		file:   f,
		writer: ipc.NewWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem)),
	}, nil
}

// Write appends one batch. The batch is fully on disk when Write returns.
func (s *StreamWriter) Write(rec arrow.Record) error {
	if err := s.writer.Write(rec); err != nil {
		return &TierError{Op: "write_stream", Path: s.path, Err: err}
	}
	s.rows += rec.NumRows()
	s.batches++
	return nil
}

// Rows returns the number of rows written so far.
func (s *StreamWriter) Rows() int64 {
	return s.rows
}

// Batches returns the number of batches written so far.
func (s *StreamWriter) Batches() int {
	return s.batches
}

// Close writes the end-of-stream marker and closes the file.
func (s *StreamWriter) Close() error {
	werr := s.writer.Close()
	ferr := s.file.Close()
	if err := errors.Join(werr, ferr); err != nil {
		return &TierError{Op: "close_stream", Path: s.path, Err: err}
	}
	return nil
}

// StreamReader reads an Arrow IPC stream file front to back.
type StreamReader struct {
	path   string
	file   *os.File
	reader *ipc.Reader
}

// OpenStream opens the stream file at path for sequential reading.
func OpenStream(path string, mem memory.Allocator) (*StreamReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &TierError{Op: "open_stream", Path: path, Err: err}
	}
	r, err := ipc.NewReader(f, ipc.WithAllocator(mem))
	if err != nil {
		f.Close()
		return nil, &TierError{Op: "open_stream", Path: path, Err: err}
	}
	return &StreamReader{path: path, file: f, reader: r}, nil
}

// Schema returns the schema recorded in the stream header.
func (s *StreamReader) Schema() *arrow.Schema {
	return s.reader.Schema()
}

// Next returns the next batch, or io.EOF once every batch written so far has
// been read. The caller owns the returned record and must release it.
func (s *StreamReader) Next() (arrow.Record, error) {
	if !s.reader.Next() {
		if err := s.reader.Err(); err != nil {
			return nil, &TierError{Op: "read_stream", Path: s.path, Err: err}
		}
		return nil, io.EOF
	}
	rec := s.reader.Record()
	rec.Retain()
	return rec, nil
}

// Close releases the reader and its file.
func (s *StreamReader) Close() error {
	s.reader.Release()
	if err := s.file.Close(); err != nil {
		return &TierError{Op: "close_stream", Path: s.path, Err: err}
	}
	return nil
}
