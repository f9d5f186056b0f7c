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
	"strings"

	"github.com/apache/arrow/go/v12/arrow"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/task"
	"github.com/aaronlmathis/rowflow/transform"
)

type castConfig struct {
	To     string `mapstructure:"to"`
	Layout string `mapstructure:"layout"`
	As     string `mapstructure:"as"`
	Strict bool   `mapstructure:"strict"`
}

// castTargets maps the "to" key to the conversion and the column type.
var castTargets = map[string]struct {
	fn func(layout string) transform.Func
	dt arrow.DataType
}{
	"string":    {func(string) transform.Func { return transform.ToString() }, arrow.BinaryTypes.String},
	"int":       {func(string) transform.Func { return transform.ToInt() }, arrow.PrimitiveTypes.Int64},
	"float":     {func(string) transform.Func { return transform.ToFloat() }, arrow.PrimitiveTypes.Float64},
	"bool":      {func(string) transform.Func { return transform.ToBool() }, arrow.FixedWidthTypes.Boolean},
	"timestamp": {transform.ParseTime, arrow.FixedWidthTypes.Timestamp_us},
}

// cast converts each selected column to another type, writing
// <column>_<to>. Values that do not convert become null unless strict is
// set, in which case the task fails.
type cast struct {
	cfg    castConfig
	fn     transform.Func
	output *arrow.Schema
}

var castSpec = task.RowwiseSpec{
	Cardinality: task.OneToOne,
	New: func(cfg core.Config) (task.RowTransform, error) {
		var c castConfig
		if err := decode(cfg, &c); err != nil {
			return nil, err
		}
		c.To = strings.ToLower(c.To)
		target, ok := castTargets[c.To]
		if !ok {
			return nil, fmt.Errorf("cannot cast to %q", c.To)
		}
		return &cast{cfg: c, fn: target.fn(c.Layout)}, nil
	},
}

func (c *cast) Validate(input *arrow.Schema) error {
	if c.cfg.As != "" && len(input.Fields()) != 1 {
		return fmt.Errorf("as names a single column, %d selected", len(input.Fields()))
	}
	dt := castTargets[c.cfg.To].dt
	fields := make([]arrow.Field, len(input.Fields()))
	for i, f := range input.Fields() {
		name := f.Name + "_" + c.cfg.To
		if c.cfg.As != "" {
			name = c.cfg.As
		}
		fields[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
	}
	c.output = arrow.NewSchema(fields, nil)
	return nil
}

func (c *cast) OutputSchema(*arrow.Schema) (*arrow.Schema, error) {
	return c.output, nil
}

func (c *cast) Execute(_ context.Context, row core.Row) ([]core.Row, error) {
	out := make(core.Row, len(row))
	for i, v := range row {
		converted, err := c.fn(v)
		if err != nil {
			if c.cfg.Strict {
				return nil, err
			}
			converted = nil
		}
		out[i] = converted
	}
	return []core.Row{out}, nil
}
