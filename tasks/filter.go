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
	"github.com/aaronlmathis/rowflow/filter"
	"github.com/aaronlmathis/rowflow/task"
)

type condition struct {
	Op    string      `mapstructure:"op"`
	Value interface{} `mapstructure:"value"`
	Field string      `mapstructure:"field"`
}

// filterConfig holds a single condition inline, or a list of conditions
// under all (every one must hold) or any (one must hold).
type filterConfig struct {
	condition `mapstructure:",squash"`
	All       []condition `mapstructure:"all"`
	Any       []condition `mapstructure:"any"`
	Negate    bool        `mapstructure:"negate"`
}

// filterRows passes through the selected columns of the rows its predicate
// keeps. The predicate tests field, the first selected column by default.
type filterRows struct {
	cfg   filterConfig
	names []string
	pred  filter.Predicate
	input *arrow.Schema
}

var filterSpec = task.RowwiseSpec{
	Cardinality: task.OneToMany,
	New: func(cfg core.Config) (task.RowTransform, error) {
		var c filterConfig
		if err := decode(cfg, &c); err != nil {
			return nil, err
		}
		set := 0
		for _, given := range []bool{c.Op != "", len(c.All) > 0, len(c.Any) > 0} {
			if given {
				set++
			}
		}
		if set != 1 {
			return nil, fmt.Errorf("exactly one of op, all and any is required")
		}
		return &filterRows{cfg: c}, nil
	},
}

func (f *filterRows) Validate(input *arrow.Schema) error {
	f.input = input
	f.names = make([]string, len(input.Fields()))
	for i, fld := range input.Fields() {
		f.names[i] = fld.Name
	}
	var pred filter.Predicate
	var err error
	switch {
	case len(f.cfg.All) > 0:
		pred, err = f.combine(f.cfg.All, filter.And)
	case len(f.cfg.Any) > 0:
		pred, err = f.combine(f.cfg.Any, filter.Or)
	default:
		pred, err = f.build(f.cfg.condition)
	}
	if err != nil {
		return err
	}
	if f.cfg.Negate {
		pred = filter.Not(pred)
	}
	f.pred = pred
	return nil
}

func (f *filterRows) build(c condition) (filter.Predicate, error) {
	field := c.Field
	if field == "" {
		field = f.names[0]
	} else if len(f.input.FieldIndices(field)) == 0 {
		return nil, fmt.Errorf("field %s is not a selected column", field)
	}
	return filter.Build(c.Op, field, c.Value)
}

func (f *filterRows) combine(conds []condition, join func(...filter.Predicate) filter.Predicate) (filter.Predicate, error) {
	preds := make([]filter.Predicate, len(conds))
	for i, c := range conds {
		p, err := f.build(c)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		preds[i] = p
	}
	return join(preds...), nil
}

func (f *filterRows) OutputSchema(*arrow.Schema) (*arrow.Schema, error) {
	return f.input, nil
}

func (f *filterRows) Execute(ctx context.Context, row core.Row) ([]core.Row, error) {
	ok, err := f.pred(ctx, row.Record(f.names))
	if err != nil || !ok {
		return nil, err
	}
	return []core.Row{append(core.Row(nil), row...)}, nil
}
