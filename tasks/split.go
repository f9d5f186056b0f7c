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
)

type splitConfig struct {
	Separator string `mapstructure:"separator"`
	Output    string `mapstructure:"output"`
	KeepEmpty bool   `mapstructure:"keep_empty"`
}

// split emits one row per token of a text column, with the token's
// position within its input row. An empty separator splits on white space.
type split struct {
	cfg    splitConfig
	output *arrow.Schema
}

var splitSpec = task.RowwiseSpec{
	Cardinality: task.OneToMany,
	New: func(cfg core.Config) (task.RowTransform, error) {
		c := splitConfig{Output: "token"}
		if err := decode(cfg, &c); err != nil {
			return nil, err
		}
		if c.Output == "" {
			return nil, fmt.Errorf("output must not be empty")
		}
		return &split{cfg: c}, nil
	},
}

func (s *split) Validate(input *arrow.Schema) error {
	if len(input.Fields()) != 1 {
		return fmt.Errorf("split reads exactly one column, %d selected", len(input.Fields()))
	}
	if input.Field(0).Type.ID() != arrow.STRING {
		return fmt.Errorf("column %s is %s, not text", input.Field(0).Name, input.Field(0).Type)
	}
	if s.cfg.Output == "position" {
		return fmt.Errorf("output name position is reserved")
	}
	s.output = arrow.NewSchema([]arrow.Field{
		{Name: s.cfg.Output, Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "position", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	}, nil)
	return nil
}

func (s *split) OutputSchema(*arrow.Schema) (*arrow.Schema, error) {
	return s.output, nil
}

func (s *split) Execute(_ context.Context, row core.Row) ([]core.Row, error) {
	text, ok := row[0].(string)
	if !ok {
		return nil, nil
	}
	var tokens []string
	if s.cfg.Separator == "" {
		tokens = strings.Fields(text)
	} else {
		tokens = strings.Split(text, s.cfg.Separator)
	}

	out := make([]core.Row, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" && !s.cfg.KeepEmpty {
			continue
		}
		out = append(out, core.Row{tok, int64(len(out))})
	}
	return out, nil
}
