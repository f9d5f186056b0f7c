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
	"github.com/aaronlmathis/rowflow/readers"
	"github.com/aaronlmathis/rowflow/storage"
	"github.com/aaronlmathis/rowflow/task"
)

type loadQueryConfig struct {
	DSN    string        `mapstructure:"dsn"`
	Query  string        `mapstructure:"query"`
	Params []interface{} `mapstructure:"params"`
}

// queryLoader runs a PostgreSQL query. The schema comes from the result
// columns of the query run with LIMIT 0.
type queryLoader struct {
	env task.Env
	cfg loadQueryConfig
}

func newQueryLoader(env task.Env, cfg core.Config) (task.Loader, error) {
	var c loadQueryConfig
	if err := decode(cfg, &c); err != nil {
		return nil, err
	}
	if c.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if c.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	return &queryLoader{env: env, cfg: c}, nil
}

func (q *queryLoader) Schema(ctx context.Context) (*arrow.Schema, error) {
	schema, err := readers.DescribeQuery(ctx, q.cfg.DSN, q.cfg.Query, q.cfg.Params...)
	if err != nil {
		return nil, err
	}
	if len(schema.Fields()) == 0 {
		return nil, fmt.Errorf("query returns no columns")
	}
	return schema, nil
}

func (q *queryLoader) Load(ctx context.Context, out *storage.RowWriter) error {
	r, err := readers.NewPostgresReader(ctx,
		readers.WithPostgresDSN(q.cfg.DSN),
		readers.WithPostgresQuery(q.cfg.Query, q.cfg.Params...),
		readers.WithPostgresQueryTimeout(q.env.ValidateTimeout),
	)
	if err != nil {
		return err
	}
	defer r.Close()
	if !storage.SchemaEqual(r.ArrowSchema(), out.Schema()) {
		return fmt.Errorf("%w: query result changed to %s", core.ErrInconsistent, r.ArrowSchema())
	}
	return copyRows(ctx, r, out)
}
