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
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/apache/arrow/go/v12/arrow"
	"go.uber.org/zap"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/readers"
	"github.com/aaronlmathis/rowflow/storage"
	"github.com/aaronlmathis/rowflow/task"
)

// File formats accepted by loadFile.
var FileFormats = []string{"arrow", "csv", "json", "parquet"}

type loadFileConfig struct {
	Path      string `mapstructure:"path"`
	Format    string `mapstructure:"format"`
	InferRows int    `mapstructure:"infer_rows"`

	// csv
	Delimiter  string `mapstructure:"delimiter"`
	Header     *bool  `mapstructure:"header"`
	RawStrings bool   `mapstructure:"raw_strings"`

	// s3://
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`

	// http(s)://
	Headers map[string]string `mapstructure:"headers"`
	Token   string            `mapstructure:"token"`
}

// fileLoader reads csv, json-lines and parquet files. Remote paths are
// fetched into the work directory while the schema is resolved.
type fileLoader struct {
	env   task.Env
	cfg   loadFileConfig
	local string
}

// arrowLoader maps an Arrow IPC file in place.
type arrowLoader struct {
	*fileLoader
}

func newFileLoader(env task.Env, cfg core.Config) (task.Loader, error) {
	var c loadFileConfig
	if err := decode(cfg, &c); err != nil {
		return nil, err
	}
	if c.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	c.Format = strings.ToLower(c.Format)
	if !validFormat(c.Format) {
		return nil, fmt.Errorf("format %q is not one of %s", c.Format, strings.Join(FileFormats, ", "))
	}
	if c.InferRows == 0 {
		c.InferRows = DefaultInferRows
	}
	if c.Delimiter != "" && utf8.RuneCountInString(c.Delimiter) != 1 {
		return nil, fmt.Errorf("delimiter must be a single character")
	}

	l := &fileLoader{env: env, cfg: c}
	if !l.remote() {
		info, err := os.Stat(c.Path)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%s is not a regular file", c.Path)
		}
		l.local = c.Path
	}
	if c.Format == "arrow" {
		return &arrowLoader{l}, nil
	}
	return l, nil
}

func validFormat(f string) bool {
	for _, v := range FileFormats {
		if f == v {
			return true
		}
	}
	return false
}

func (l *fileLoader) remote() bool {
	return readers.IsS3URL(l.cfg.Path) || readers.IsHTTPURL(l.cfg.Path)
}

// fetch downloads a remote path once per loader.
func (l *fileLoader) fetch(ctx context.Context) error {
	if l.local != "" {
		return nil
	}
	dst := filepath.Join(l.env.Workdir, fmt.Sprintf("%d.fetch.%s", l.env.ID, l.cfg.Format))
	log := l.env.Logger.With(zap.String("url", l.cfg.Path), zap.String("dst", dst))

	if readers.IsS3URL(l.cfg.Path) {
		bucket, key, err := readers.ParseS3URL(l.cfg.Path)
		if err != nil {
			return err
		}
		client, err := readers.NewS3Client(ctx,
			readers.WithS3Region(l.cfg.Region),
			readers.WithS3Endpoint(l.cfg.Endpoint),
			readers.WithS3PathStyle(l.cfg.PathStyle),
		)
		if err != nil {
			return err
		}
		obj, err := readers.DownloadS3Object(ctx, client, bucket, key, dst)
		if err != nil {
			return err
		}
		log.Debug("fetched object", zap.Int64("bytes", obj.Size), zap.String("etag", obj.ETag))
	} else {
		opts := []readers.ReaderOptionHTTP{readers.WithHTTPHeaders(l.cfg.Headers)}
		if l.cfg.Token != "" {
			opts = append(opts, readers.WithHTTPBearerToken(l.cfg.Token))
		}
		n, err := readers.DownloadHTTP(ctx, l.cfg.Path, dst, opts...)
		if err != nil {
			return err
		}
		log.Debug("fetched url", zap.Int64("bytes", n))
	}
	l.local = dst
	return nil
}

func (l *fileLoader) openRecords() (core.DataSource, []string, error) {
	f, err := os.Open(l.local)
	if err != nil {
		return nil, nil, err
	}
	if l.cfg.Format == "json" {
		return readers.NewJSONReader(f), nil, nil
	}

	opts := []readers.ReaderOptionCSV{readers.WithCSVRawStrings(l.cfg.RawStrings)}
	if l.cfg.Delimiter != "" {
		r, _ := utf8.DecodeRuneInString(l.cfg.Delimiter)
		opts = append(opts, readers.WithCSVComma(r))
	}
	if l.cfg.Header != nil {
		opts = append(opts, readers.WithCSVHasHeaders(*l.cfg.Header))
	}
	r, err := readers.NewCSVReader(f, opts...)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, r.Columns(), nil
}

func (l *fileLoader) Schema(ctx context.Context) (*arrow.Schema, error) {
	if err := l.fetch(ctx); err != nil {
		return nil, err
	}
	if l.cfg.Format == "parquet" {
		r, err := readers.NewParquetReader(l.local)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.Schema(), nil
	}

	src, names, err := l.openRecords()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	s := newColumnSampler(names)
	if err := sampleRecords(ctx, src, s, l.cfg.InferRows); err != nil {
		return nil, err
	}
	return s.schema()
}

func (l *fileLoader) Load(ctx context.Context, out *storage.RowWriter) error {
	if l.cfg.Format == "parquet" {
		r, err := readers.NewParquetReader(l.local, readers.WithParquetAllocator(l.env.Allocator))
		if err != nil {
			return err
		}
		defer r.Close()
		return copyRows(ctx, r, out)
	}

	src, _, err := l.openRecords()
	if err != nil {
		return err
	}
	defer src.Close()
	return copyRecords(ctx, src, out)
}

func (a *arrowLoader) Schema(ctx context.Context) (*arrow.Schema, error) {
	if err := a.fetch(ctx); err != nil {
		return nil, err
	}
	t, err := storage.OpenTable(a.local, a.env.Allocator)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	schema := t.Schema()
	for _, f := range schema.Fields() {
		if !storage.Storable(f.Type) {
			return nil, fmt.Errorf("column %s has unsupported type %s", f.Name, f.Type)
		}
	}
	return schema, nil
}

func (a *arrowLoader) Load(context.Context, *storage.RowWriter) error {
	return fmt.Errorf("arrow files are mapped, not loaded")
}

func (a *arrowLoader) Path() string {
	return a.local
}
