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

	"github.com/apache/arrow/go/v12/arrow"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/task"
	"github.com/aaronlmathis/rowflow/transform"
)

type caseFoldConfig struct {
	Mode string `mapstructure:"mode"`
	Trim bool   `mapstructure:"trim"`
}

// caseFolds maps the mode key to the conversion and the output suffix.
var caseFolds = map[string]struct {
	fn     func() transform.Func
	suffix string
}{
	"fold":  {transform.Fold, "_lower"},
	"lower": {transform.ToLower, "_lower"},
	"upper": {transform.ToUpper, "_upper"},
}

// caseFold writes a case-folded copy of each selected text column as
// <column>_lower, or <column>_upper in upper mode.
type caseFold struct {
	fold   transform.Func
	suffix string
	output *arrow.Schema
}

var caseFoldSpec = task.RowwiseSpec{
	Cardinality: task.OneToOne,
	New: func(cfg core.Config) (task.RowTransform, error) {
		c := caseFoldConfig{Mode: "fold"}
		if err := decode(cfg, &c); err != nil {
			return nil, err
		}
		mode, ok := caseFolds[c.Mode]
		if !ok {
			return nil, fmt.Errorf("unknown mode %q", c.Mode)
		}
		fn := mode.fn()
		if c.Trim {
			fn = transform.Chain(transform.TrimSpace(), fn)
		}
		return &caseFold{fold: fn, suffix: mode.suffix}, nil
	},
}

func (c *caseFold) Validate(input *arrow.Schema) error {
	fields := make([]arrow.Field, len(input.Fields()))
	for i, f := range input.Fields() {
		if f.Type.ID() != arrow.STRING {
			return fmt.Errorf("column %s is %s, not text", f.Name, f.Type)
		}
		fields[i] = arrow.Field{Name: f.Name + c.suffix, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	c.output = arrow.NewSchema(fields, nil)
	return nil
}

func (c *caseFold) OutputSchema(*arrow.Schema) (*arrow.Schema, error) {
	return c.output, nil
}

func (c *caseFold) Execute(_ context.Context, row core.Row) ([]core.Row, error) {
	out := make(core.Row, len(row))
	for i, v := range row {
		folded, err := c.fold(v)
		if err != nil {
			return nil, err
		}
		out[i] = folded
	}
	return []core.Row{out}, nil
}
