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
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/lib/pq"

	"github.com/aaronlmathis/rowflow/core"
)

// PostgresWriterError wraps PostgreSQL-specific write errors with context.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "write", "connect")
	Err error  // The underlying error
}

func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats holds PostgreSQL write statistics.
type PostgresWriterStats struct {
	RecordsWritten   int64
	BatchesWritten   int64
	TransactionCount int64
	LastWriteTime    time.Time
	WriteDuration    time.Duration
	ConflictCount    int64
}

// ConflictResolution selects how INSERT conflicts are handled.
type ConflictResolution int

const (
	ConflictError ConflictResolution = iota
	ConflictIgnore
	ConflictUpdate
)

// PostgresWriterOptions configures a PostgresWriter.
type PostgresWriterOptions struct {
	DSN                string
	TableName          string
	BatchSize          int
	CreateTable        bool
	TruncateTable      bool
	ConflictResolution ConflictResolution
	ConflictColumns    []string
	UpdateColumns      []string
	MaxOpenConns       int
	QueryTimeout       time.Duration
}

// PostgresWriterOption is a functional option.
type PostgresWriterOption func(*PostgresWriterOptions)

func WithPostgresDSN(dsn string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DSN = dsn
	}
}

func WithTableName(tableName string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TableName = tableName
	}
}

func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.BatchSize = size
	}
}

func WithCreateTable(create bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.CreateTable = create
	}
}

func WithTruncateTable(truncate bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TruncateTable = truncate
	}
}

// WithConflictResolution sets the ON CONFLICT behaviour.
func WithConflictResolution(resolution ConflictResolution, conflictCols, updateCols []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.ConflictResolution = resolution
		opts.ConflictColumns = append([]string(nil), conflictCols...)
		opts.UpdateColumns = append([]string(nil), updateCols...)
	}
}

func WithPostgresWriteTimeout(timeout time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// PostgresWriter inserts rows of a fixed Arrow schema into a table.
// Each batch is one transaction.
type PostgresWriter struct {
	db          *sql.DB
	options     PostgresWriterOptions
	schema      *arrow.Schema
	columns     []string
	rowBuf      []core.Row
	stats       PostgresWriterStats
	initialized bool
	errorState  bool
	mu          sync.Mutex
}

// NewPostgresWriter validates the options and connects.
func NewPostgresWriter(ctx context.Context, schema *arrow.Schema, opts ...PostgresWriterOption) (*PostgresWriter, error) {
	options := PostgresWriterOptions{
		BatchSize:    1000,
		MaxOpenConns: 4,
		QueryTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if err := validateWriterOptions(&options, schema); err != nil {
		return nil, &PostgresWriterError{Op: "validate", Err: err}
	}

	w := &PostgresWriter{
		options: options,
		schema:  schema,
		columns: fieldNames(schema),
		rowBuf:  make([]core.Row, 0, options.BatchSize),
	}
	if err := w.connect(ctx); err != nil {
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}
	return w, nil
}

func validateWriterOptions(opts *PostgresWriterOptions, schema *arrow.Schema) error {
	if opts.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if opts.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if schema == nil || len(schema.Fields()) == 0 {
		return fmt.Errorf("schema with at least one field is required")
	}
	if opts.ConflictResolution == ConflictUpdate && len(opts.UpdateColumns) == 0 {
		return fmt.Errorf("update columns required for conflict update resolution")
	}
	if opts.ConflictResolution != ConflictError && len(opts.ConflictColumns) == 0 {
		return fmt.Errorf("conflict columns required for conflict resolution")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	return nil
}

func fieldNames(schema *arrow.Schema) []string {
	if schema == nil {
		return nil
	}
	names := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	return names
}

func (w *PostgresWriter) connect(ctx context.Context) error {
	db, err := sql.Open("postgres", w.options.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(w.options.MaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, w.options.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	w.db = db
	return nil
}

// Stats returns write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Write implements the DataSink interface.
func (w *PostgresWriter) Write(ctx context.Context, record core.Record) error {
	row := make(core.Row, len(w.columns))
	for i, col := range w.columns {
		row[i] = record[col]
	}
	return w.WriteRow(ctx, row)
}

// WriteRow buffers one positional row in schema order.
func (w *PostgresWriter) WriteRow(ctx context.Context, row core.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &PostgresWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if !w.initialized {
		if err := w.initializeUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "initialize", Err: err}
		}
	}

	w.rowBuf = append(w.rowBuf, row)
	w.stats.RecordsWritten++
	if len(w.rowBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "flush_batch", Err: err}
		}
	}
	return nil
}

// Flush implements the DataSink interface.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()
	if err := w.flushBufferUnsafe(ctx); err != nil {
		return &PostgresWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close implements the DataSink interface.
func (w *PostgresWriter) Close() error {
	w.mu.Lock()
	if !w.initialized && !w.errorState {
		ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
		err := w.initializeUnsafe(ctx)
		cancel()
		if err != nil {
			w.mu.Unlock()
			w.db.Close()
			return &PostgresWriterError{Op: "initialize", Err: err}
		}
	}
	w.mu.Unlock()

	flushErr := w.Flush()
	if err := w.db.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}

func (w *PostgresWriter) initializeUnsafe(ctx context.Context) error {
	if w.options.CreateTable {
		if _, err := w.db.ExecContext(ctx, createTableStatement(w.options.TableName, w.schema)); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	if w.options.TruncateTable {
		if _, err := w.db.ExecContext(ctx, "TRUNCATE TABLE "+quoteTable(w.options.TableName)); err != nil {
			return fmt.Errorf("failed to truncate table: %w", err)
		}
	}
	w.initialized = true
	return nil
}

func (w *PostgresWriter) flushBufferUnsafe(ctx context.Context) (err error) {
	if len(w.rowBuf) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertStatement(w.options, w.columns))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range w.rowBuf {
		result, err := stmt.ExecContext(ctx, sqlValues(row)...)
		if err != nil {
			return fmt.Errorf("failed to execute insert: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			w.stats.ConflictCount++
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.stats.TransactionCount++
	w.stats.BatchesWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.rowBuf = w.rowBuf[:0]
	return nil
}

// quoteTable quotes each dot-separated part of a possibly schema-qualified name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func createTableStatement(table string, schema *arrow.Schema) string {
	defs := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		def := pq.QuoteIdentifier(f.Name) + " " + SQLType(f.Type)
		if !f.Nullable {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteTable(table), strings.Join(defs, ", "))
}

func insertStatement(opts PostgresWriterOptions, cols []string) string {
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteTable(opts.TableName), quoteColumns(cols), strings.Join(placeholders, ", "))

	switch opts.ConflictResolution {
	case ConflictIgnore:
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteColumns(opts.ConflictColumns))
	case ConflictUpdate:
		sets := make([]string, len(opts.UpdateColumns))
		for i, col := range opts.UpdateColumns {
			q := pq.QuoteIdentifier(col)
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
		}
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
			quoteColumns(opts.ConflictColumns), strings.Join(sets, ", "))
	}
	return query
}

// SQLType maps an Arrow type to the PostgreSQL column type used for it.
func SQLType(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.BOOL:
		return "BOOLEAN"
	case arrow.INT8, arrow.INT16, arrow.UINT8:
		return "SMALLINT"
	case arrow.INT32, arrow.UINT16:
		return "INTEGER"
	case arrow.INT64, arrow.UINT32, arrow.UINT64:
		return "BIGINT"
	case arrow.FLOAT32:
		return "REAL"
	case arrow.FLOAT64:
		return "DOUBLE PRECISION"
	case arrow.TIMESTAMP:
		return "TIMESTAMPTZ"
	case arrow.DATE32, arrow.DATE64:
		return "DATE"
	case arrow.BINARY:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

func sqlValues(row core.Row) []interface{} {
	values := make([]interface{}, len(row))
	for i, v := range row {
		switch val := v.(type) {
		case uint64:
			values[i] = int64(val)
		case uint32:
			values[i] = int64(val)
		default:
			values[i] = val
		}
	}
	return values
}
