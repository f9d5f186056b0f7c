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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/readers"
)

// OutputFormat represents a supported sink format.
type OutputFormat int

const (
	FormatCSV OutputFormat = iota
	FormatJSON
	FormatParquet
	FormatPostgres
)

func (f OutputFormat) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	case FormatPostgres:
		return "postgres"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat resolves a format name, case-insensitively.
func ParseFormat(name string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return FormatCSV, nil
	case "json", "jsonl", "ndjson":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	case "postgres", "postgresql":
		return FormatPostgres, nil
	default:
		return 0, fmt.Errorf("unknown output format %q", name)
	}
}

// FormatFromPath guesses a file format from the path's extension.
func FormatFromPath(path string) (OutputFormat, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return 0, fmt.Errorf("no file extension on %q", path)
	}
	return ParseFormat(ext)
}

// OutputLocation creates a DataSink for a given format. The schema
// describes the rows that will be written.
type OutputLocation interface {
	NewSink(ctx context.Context, format OutputFormat, schema *arrow.Schema) (core.DataSink, error)
}

// FileLocation writes output to a local filesystem path.
type FileLocation struct {
	Path string
}

// NewSink instantiates a writer for the file location.
func (f FileLocation) NewSink(_ context.Context, format OutputFormat, schema *arrow.Schema) (core.DataSink, error) {
	switch format {
	case FormatCSV, FormatJSON:
		file, err := createFile(f.Path)
		if err != nil {
			return nil, err
		}
		return textSink(file, format, schema)
	case FormatParquet:
		return NewParquetWriter(f.Path, schema)
	default:
		return nil, fmt.Errorf("unsupported format %s for a file location", format)
	}
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

func textSink(w io.WriteCloser, format OutputFormat, schema *arrow.Schema) (core.DataSink, error) {
	if format == FormatJSON {
		return NewJSONWriter(w), nil
	}
	var opts []WriterOptionCSV
	if schema != nil {
		opts = append(opts, WithHeaders(fieldNames(schema)))
	}
	return NewCSVWriter(w, opts...)
}

// S3Putter is the subset of the S3 client used for uploads.
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Location writes objects to an S3 bucket. The object is uploaded when
// the sink is closed.
type S3Location struct {
	Bucket string
	Key    string
	// Client defaults to one built from the environment's AWS configuration.
	Client S3Putter
}

type s3WriteCloser struct {
	ctx    context.Context
	buf    *bytes.Buffer
	client S3Putter
	bucket string
	key    string
}

func newS3WriteCloser(ctx context.Context, c S3Putter, bucket, key string) *s3WriteCloser {
	return &s3WriteCloser{
		ctx:    ctx,
		buf:    &bytes.Buffer{},
		client: c,
		bucket: bucket,
		key:    key,
	}
}

func (s *s3WriteCloser) Write(p []byte) (int, error) { return s.buf.Write(p) }

func (s *s3WriteCloser) Close() error {
	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(s.buf.Bytes()),
		ContentLength: aws.Int64(int64(s.buf.Len())),
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

type parquetS3Sink struct {
	*ParquetWriter
	ctx      context.Context
	client   S3Putter
	bucket   string
	key      string
	filename string
}

func (p *parquetS3Sink) Close() error {
	defer os.Remove(p.filename)
	if err := p.ParquetWriter.Close(); err != nil {
		return err
	}
	file, err := os.Open(p.filename)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}
	_, err = p.client.PutObject(p.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(p.key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", p.bucket, p.key, err)
	}
	return nil
}

// NewSink creates a writer uploading to S3.
func (s S3Location) NewSink(ctx context.Context, format OutputFormat, schema *arrow.Schema) (core.DataSink, error) {
	if s.Bucket == "" || s.Key == "" {
		return nil, fmt.Errorf("s3 location needs a bucket and a key")
	}
	if s.Client == nil {
		client, err := readers.NewS3Client(ctx)
		if err != nil {
			return nil, err
		}
		s.Client = client
	}

	switch format {
	case FormatCSV, FormatJSON:
		return textSink(newS3WriteCloser(ctx, s.Client, s.Bucket, s.Key), format, schema)
	case FormatParquet:
		tmp, err := os.CreateTemp("", "rowflow-*.parquet")
		if err != nil {
			return nil, err
		}
		filename := tmp.Name()
		tmp.Close()
		pw, err := NewParquetWriter(filename, schema)
		if err != nil {
			os.Remove(filename)
			return nil, err
		}
		return &parquetS3Sink{ParquetWriter: pw, ctx: ctx, client: s.Client, bucket: s.Bucket, key: s.Key, filename: filename}, nil
	default:
		return nil, fmt.Errorf("unsupported format %s for an s3 location", format)
	}
}

// PostgresLocation directs output to a PostgreSQL table.
type PostgresLocation struct {
	DSN         string
	Table       string
	CreateTable bool
	Truncate    bool
}

// NewSink instantiates a PostgreSQL writer.
func (p PostgresLocation) NewSink(ctx context.Context, format OutputFormat, schema *arrow.Schema) (core.DataSink, error) {
	if format != FormatPostgres {
		return nil, fmt.Errorf("unsupported format %s for a postgres location", format)
	}
	return NewPostgresWriter(ctx, schema,
		WithPostgresDSN(p.DSN),
		WithTableName(p.Table),
		WithCreateTable(p.CreateTable),
		WithTruncateTable(p.Truncate),
	)
}

// ParseLocation resolves an export target: s3://bucket/key, a postgres://
// or postgresql:// DSN with the table given as the URL fragment
// (postgres://host/db#schema.table), or a local path.
func ParseLocation(raw string) (OutputLocation, error) {
	switch {
	case readers.IsS3URL(raw):
		bucket, key, err := readers.ParseS3URL(raw)
		if err != nil {
			return nil, err
		}
		return S3Location{Bucket: bucket, Key: key}, nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		dsn, table, ok := strings.Cut(raw, "#")
		if !ok || table == "" {
			return nil, fmt.Errorf("postgres location %q needs a #table fragment", raw)
		}
		return PostgresLocation{DSN: dsn, Table: table, CreateTable: true}, nil
	case raw == "":
		return nil, fmt.Errorf("empty output location")
	default:
		return FileLocation{Path: raw}, nil
	}
}
