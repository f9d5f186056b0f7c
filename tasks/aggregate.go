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
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v12/arrow"

	"github.com/aaronlmathis/rowflow/aggregate"
	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/task"
)

type aggregateConfig struct {
	Ops []string `mapstructure:"ops"`
}

// runningAggregate writes, for each selected column and each op, the
// aggregate of every value seen so far as <column>_<op>. A reset starts
// the aggregates over.
type runningAggregate struct {
	ops    []string
	aggs   [][]aggregate.Aggregator
	output *arrow.Schema
}

var aggregateSpec = task.RowwiseSpec{
	Cardinality: task.OneToOne,
	New: func(cfg core.Config) (task.RowTransform, error) {
		var c aggregateConfig
		if err := decode(cfg, &c); err != nil {
			return nil, err
		}
		if len(c.Ops) == 0 {
			return nil, errors.New("ops is not set")
		}
		ops := make([]string, len(c.Ops))
		for i, op := range c.Ops {
			ops[i] = strings.ToLower(op)
			if _, err := aggregate.New(ops[i]); err != nil {
				return nil, err
			}
		}
		return &runningAggregate{ops: ops}, nil
	},
}

func (a *runningAggregate) Validate(input *arrow.Schema) error {
	var fields []arrow.Field
	a.aggs = make([][]aggregate.Aggregator, len(input.Fields()))
	for i, f := range input.Fields() {
		for _, op := range a.ops {
			dt, err := aggregateType(op, f.Type)
			if err != nil {
				return fmt.Errorf("column %s: %w", f.Name, err)
			}
			agg, err := aggregate.New(op)
			if err != nil {
				return err
			}
			a.aggs[i] = append(a.aggs[i], agg)
			fields = append(fields, arrow.Field{Name: f.Name + "_" + op, Type: dt, Nullable: op != aggregate.OpCount})
		}
	}
	a.output = arrow.NewSchema(fields, nil)
	return nil
}

func aggregateType(op string, dt arrow.DataType) (arrow.DataType, error) {
	switch op {
	case aggregate.OpCount:
		return arrow.PrimitiveTypes.Int64, nil
	case aggregate.OpSum, aggregate.OpAvg:
		if !numericType(dt) {
			return nil, fmt.Errorf("%s needs a numeric column, not %s", op, dt)
		}
		return arrow.PrimitiveTypes.Float64, nil
	default:
		switch dt.ID() {
		case arrow.STRING, arrow.BOOL, arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
			return dt, nil
		}
		if numericType(dt) {
			return dt, nil
		}
		return nil, fmt.Errorf("%s cannot order %s values", op, dt)
	}
}

func numericType(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64:
		return true
	}
	return false
}

func (a *runningAggregate) OutputSchema(*arrow.Schema) (*arrow.Schema, error) {
	return a.output, nil
}

func (a *runningAggregate) Execute(_ context.Context, row core.Row) ([]core.Row, error) {
	out := make(core.Row, 0, len(a.output.Fields()))
	for i, v := range row {
		for _, agg := range a.aggs[i] {
			if err := agg.Add(v); err != nil {
				return nil, err
			}
			out = append(out, agg.Result())
		}
	}
	return []core.Row{out}, nil
}
