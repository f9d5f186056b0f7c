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

// FileWriter writes an Arrow IPC file. Data goes to a temporary sibling
// that is renamed into place on Close, so a partially written table is
// never visible at path.
type FileWriter struct {
	path   string
	tmp    string
	file   *os.File
	writer *ipc.FileWriter
	rows   int64
}

// CreateFile starts a new random-access file at path.
func CreateFile(path string, schema *arrow.Schema, mem memory.Allocator) (*FileWriter, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, &TierError{Op: "create_file", Path: path, Err: err}
	}
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, &TierError{Op: "create_file", Path: path, Err: err}
	}
	return &FileWriter{path: path, tmp: tmp, file: f, writer: w}, nil
}

// Write appends one batch.
func (w *FileWriter) Write(rec arrow.Record) error {
	if err := w.writer.Write(rec); err != nil {
		return &TierError{Op: "write_file", Path: w.path, Err: err}
	}
	w.rows += rec.NumRows()
	return nil
}

// Rows returns the number of rows written so far.
func (w *FileWriter) Rows() int64 {
	return w.rows
}

// Close writes the footer and moves the file into place.
func (w *FileWriter) Close() error {
	werr := w.writer.Close()
	ferr := w.file.Close()
	if err := errors.Join(werr, ferr); err != nil {
		os.Remove(w.tmp)
		return &TierError{Op: "close_file", Path: w.path, Err: err}
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		os.Remove(w.tmp)
		return &TierError{Op: "close_file", Path: w.path, Err: err}
	}
	return nil
}

// Abort discards the partially written file.
func (w *FileWriter) Abort() {
	w.writer.Close()
	w.file.Close()
	os.Remove(w.tmp)
}

// ConvertStream copies every batch of the stream file at src into a new
// random-access file at dst and returns the number of rows copied.
func ConvertStream(src, dst string, mem memory.Allocator) (int64, error) {
	sr, err := OpenStream(src, mem)
	if err != nil {
		return 0, err
	}
	defer sr.Close()

	fw, err := CreateFile(dst, sr.Schema(), mem)
	if err != nil {
		return 0, err
	}

	for {
		rec, err := sr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fw.Abort()
			return 0, err
		}
		err = fw.Write(rec)
		rec.Release()
		if err != nil {
			fw.Abort()
			return 0, err
		}
	}

	if err := fw.Close(); err != nil {
		return 0, err
	}
	return fw.Rows(), nil
}
