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


package main

import (
	"fmt"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/pipeline"
	"github.com/aaronlmathis/rowflow/writers"
)

var exportCmd = &cobra.Command{
	Use:   "export [definition]",
	Short: "Write the output of one task to a file, an S3 object or a PostgreSQL table",
	Long: `Export builds the pipeline of a definition file and drains one task into a sink.

The destination is a local path, s3://bucket/key, or a PostgreSQL DSN with
the table as fragment (postgres://host/db#schema.table). The format defaults
to the path's extension.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var (
	exportTask    int
	exportTo      string
	exportFormat  string
	exportColumns []string
)

func init() {
	exportCmd.Flags().IntVar(&exportTask, "task", -1, "Id of the task to export (default: the last task in topological order)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Destination (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Output format: csv, json, parquet or postgres")
	exportCmd.Flags().StringSliceVar(&exportColumns, "columns", nil, "Columns to export (default: all)")
	exportCmd.MarkFlagRequired("to")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, err := openPipeline(args[0], pipeline.WithSampling(0, 0))
	if err != nil {
		return err
	}
	defer p.Close()

	id := exportTask
	if id < 0 {
		order, err := p.Order()
		if err != nil {
			return err
		}
		if len(order) == 0 {
			return fmt.Errorf("definition has no tasks")
		}
		id = order[len(order)-1]
	}
	t, err := p.Task(id)
	if err != nil {
		return err
	}
	if t.Status() == core.StatusInvalid {
		return fmt.Errorf("task %d (%s) has an invalid configuration", id, t.Type())
	}
	schema, err := selectColumns(t.RowSchema(), exportColumns)
	if err != nil {
		return fmt.Errorf("task %d: %w", id, err)
	}

	loc, err := writers.ParseLocation(exportTo)
	if err != nil {
		return err
	}
	format, err := outputFormat(loc)
	if err != nil {
		return err
	}
	sink, err := loc.NewSink(ctx, format, schema)
	if err != nil {
		return err
	}

	n, err := p.Export(ctx, id, sink, exportColumns...)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	logger.Info("export finished", zap.Int("task", id), zap.String("to", exportTo), zap.Stringer("format", format), zap.Int64("rows", n))
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows of task %d to %s\n", n, id, exportTo)
	return nil
}

func outputFormat(loc writers.OutputLocation) (writers.OutputFormat, error) {
	if exportFormat != "" {
		return writers.ParseFormat(exportFormat)
	}
	switch l := loc.(type) {
	case writers.PostgresLocation:
		return writers.FormatPostgres, nil
	case writers.S3Location:
		return writers.FormatFromPath(l.Key)
	case writers.FileLocation:
		return writers.FormatFromPath(l.Path)
	default:
		return 0, fmt.Errorf("cannot infer an output format, use --format")
	}
}

// selectColumns narrows schema to names, in the order given.
func selectColumns(schema *arrow.Schema, names []string) (*arrow.Schema, error) {
	if schema == nil || len(names) == 0 {
		return schema, nil
	}
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("column %q: %w", name, core.ErrNoSuchColumn)
		}
		fields[i] = schema.Field(idx[0])
	}
	return arrow.NewSchema(fields, nil), nil
}
