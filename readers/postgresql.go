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

package readers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/aaronlmathis/rowflow/core"
)

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReader implements core.DataSource for PostgreSQL databases.
// It streams the rows of one query.
type PostgresReader struct {
	mu          sync.Mutex
	db          *sql.DB
	rows        *sql.Rows
	columnNames []string
	columnTypes []*sql.ColumnType
	scanBuffer  []interface{}
	values      []interface{}
	stats       PostgresReaderStats
	isFinished  bool
}

// PostgresReaderStats holds statistics about the Postgres reader's performance
type PostgresReaderStats struct {
	RecordsRead     int64
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	NullValueCounts map[string]int64
}

// PostgresReaderOptions configures the Postgres reader
type PostgresReaderOptions struct {
	DSN          string        // Database connection string
	Query        string        // SQL query to execute
	Params       []interface{} // Optional query parameters
	MaxOpenConns int           // Maximum open connections
	QueryTimeout time.Duration // Timeout for connecting and starting the query
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresQuery sets the SQL query and optional parameters.
func WithPostgresQuery(query string, params ...interface{}) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Query = query
		opts.Params = params
	}
}

// WithPostgresQueryTimeout bounds connecting and starting the query.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 2
	}
	return opts
}

// NewPostgresReader connects and starts the query.
func NewPostgresReader(ctx context.Context, options ...PostgresReaderOption) (*PostgresReader, error) {
	opts := &PostgresReaderOptions{}
	for _, option := range options {
		option(opts)
	}
	opts.withDefaults()

	if opts.DSN == "" {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	if opts.Query == "" {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("query is required")}
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, &PostgresReaderError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)

	startCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(startCtx); err != nil {
		db.Close()
		return nil, &PostgresReaderError{Op: "ping", Err: err}
	}

	reader := &PostgresReader{
		db:    db,
		stats: PostgresReaderStats{NullValueCounts: make(map[string]int64)},
	}

	start := time.Now()
	// The rows outlive startCtx, so the query runs under the caller's ctx.
	reader.rows, err = db.QueryContext(ctx, opts.Query, opts.Params...)
	if err != nil {
		db.Close()
		return nil, &PostgresReaderError{Op: "query", Err: err}
	}
	reader.stats.QueryDuration = time.Since(start)

	if reader.columnNames, err = reader.rows.Columns(); err != nil {
		reader.Close()
		return nil, &PostgresReaderError{Op: "columns", Err: err}
	}
	if reader.columnTypes, err = reader.rows.ColumnTypes(); err != nil {
		reader.Close()
		return nil, &PostgresReaderError{Op: "column_types", Err: err}
	}
	reader.values = make([]interface{}, len(reader.columnNames))
	reader.scanBuffer = make([]interface{}, len(reader.columnNames))
	for i := range reader.scanBuffer {
		reader.scanBuffer[i] = &reader.values[i]
	}
	return reader, nil
}

// DescribeQuery runs query with no rows and returns the Arrow schema of its
// result.
func DescribeQuery(ctx context.Context, dsn, query string, params ...interface{}) (*arrow.Schema, error) {
	probe := fmt.Sprintf("SELECT * FROM (%s) AS rowflow_probe LIMIT 0", strings.TrimSuffix(strings.TrimSpace(query), ";"))
	r, err := NewPostgresReader(ctx, WithPostgresDSN(dsn), WithPostgresQuery(probe, params...))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ArrowSchema(), nil
}

// Columns returns the result column names.
func (p *PostgresReader) Columns() []string {
	return append([]string(nil), p.columnNames...)
}

// ArrowSchema maps the result columns to Arrow types.
func (p *PostgresReader) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(p.columnNames))
	for i, name := range p.columnNames {
		fields[i] = arrow.Field{Name: name, Type: PostgresArrowType(p.columnTypes[i].DatabaseTypeName()), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// PostgresArrowType maps a PostgreSQL type name to the Arrow type used to
// store it.
func PostgresArrowType(dbType string) arrow.DataType {
	switch strings.ToUpper(dbType) {
	case "BOOL":
		return arrow.FixedWidthTypes.Boolean
	case "INT2", "INT4", "INT8", "OID":
		return arrow.PrimitiveTypes.Int64
	case "FLOAT4", "FLOAT8":
		return arrow.PrimitiveTypes.Float64
	case "BYTEA":
		return arrow.BinaryTypes.Binary
	case "DATE", "TIMESTAMP", "TIMESTAMPTZ":
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

// Stats returns statistics about the PostgreSQL reader's performance
func (p *PostgresReader) Stats() PostgresReaderStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	statsCopy := p.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Read implements the core.DataSource interface.
func (p *PostgresReader) Read(ctx context.Context) (core.Record, error) {
	row, err := p.ReadRow(ctx)
	if err != nil {
		return nil, err
	}
	return row.Record(p.columnNames), nil
}

// ReadRow reads the next row in column order. Thread-safe.
func (p *PostgresReader) ReadRow(ctx context.Context) (core.Row, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
	}()

	select {
	case <-ctx.Done():
		return nil, &PostgresReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.db == nil {
		return nil, &PostgresReaderError{Op: "read", Err: fmt.Errorf("reader is closed")}
	}
	if p.isFinished || p.rows == nil {
		return nil, io.EOF
	}

	if !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return nil, &PostgresReaderError{Op: "read", Err: err}
		}
		p.isFinished = true
		return nil, io.EOF
	}

	if err := p.rows.Scan(p.scanBuffer...); err != nil {
		return nil, &PostgresReaderError{Op: "scan", Err: err}
	}

	row := make(core.Row, len(p.columnNames))
	for i, name := range p.columnNames {
		if p.values[i] == nil {
			p.stats.NullValueCounts[name]++
			continue
		}
		row[i] = convertSQLValue(p.values[i], p.columnTypes[i].DatabaseTypeName())
	}
	p.stats.RecordsRead++
	return row, nil
}

// Close releases all resources held by the PostgreSQL reader
func (p *PostgresReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error

	if p.rows != nil {
		if err := p.rows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing rows: %w", err))
		}
		p.rows = nil
	}

	if p.db != nil {
		if err := p.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
		p.db = nil
	}

	if len(errs) > 0 {
		return &PostgresReaderError{Op: "close", Err: fmt.Errorf("multiple errors: %v", errs)}
	}
	return nil
}

// convertSQLValue converts SQL driver values to appropriate Go types
func convertSQLValue(value interface{}, dbType string) interface{} {
	if b, ok := value.([]byte); ok {
		if strings.ToUpper(dbType) == "BYTEA" {
			return b
		}
		// lib/pq returns numeric, uuid and text-like types as bytes.
		return string(b)
	}

	switch v := value.(type) {
	case time.Time, bool, int64, float64, string:
		return v
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
			return rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint())
		case reflect.Float32:
			return rv.Float()
		default:
			return fmt.Sprintf("%v", v)
		}
	}
}
