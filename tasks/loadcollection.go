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
	"io"
	"strings"

	"github.com/apache/arrow/go/v12/arrow"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/readers"
	"github.com/aaronlmathis/rowflow/storage"
	"github.com/aaronlmathis/rowflow/task"
)

type loadCollectionConfig struct {
	URI            string                   `mapstructure:"uri"`
	Database       string                   `mapstructure:"database"`
	Collection     string                   `mapstructure:"collection"`
	Filter         map[string]interface{}   `mapstructure:"filter"`
	Projection     map[string]interface{}   `mapstructure:"projection"`
	Sort           []string                 `mapstructure:"sort"`
	Pipeline       []map[string]interface{} `mapstructure:"pipeline"`
	Limit          int64                    `mapstructure:"limit"`
	ReadPreference string                   `mapstructure:"read_preference"`
	InferRows      int                      `mapstructure:"infer_rows"`
}

// collectionLoader reads a MongoDB collection with find or an aggregation
// pipeline. Columns follow the field order of the sampled documents.
type collectionLoader struct {
	env  task.Env
	cfg  loadCollectionConfig
	opts []readers.ReaderOptionMongo
}

func newCollectionLoader(env task.Env, cfg core.Config) (task.Loader, error) {
	var c loadCollectionConfig
	if err := decode(cfg, &c); err != nil {
		return nil, err
	}
	if c.InferRows == 0 {
		c.InferRows = DefaultInferRows
	}

	opts := []readers.ReaderOptionMongo{
		readers.WithMongoDB(c.Database),
		readers.WithMongoCollection(c.Collection),
		readers.WithMongoTimeout(env.ValidateTimeout),
	}
	if c.URI != "" {
		opts = append(opts, readers.WithMongoURI(c.URI))
	}
	if c.ReadPreference != "" {
		opts = append(opts, readers.WithMongoReadPreference(c.ReadPreference))
	}
	if c.Filter != nil {
		opts = append(opts, readers.WithMongoFilter(bson.M(c.Filter)))
	}
	if c.Projection != nil {
		opts = append(opts, readers.WithMongoProjection(bson.M(c.Projection)))
	}
	if len(c.Sort) > 0 {
		opts = append(opts, readers.WithMongoSort(sortSpec(c.Sort)))
	}
	if c.Limit > 0 {
		opts = append(opts, readers.WithMongoLimit(c.Limit))
	}
	if c.Pipeline != nil {
		stages := make([]bson.M, len(c.Pipeline))
		for i, s := range c.Pipeline {
			stages[i] = bson.M(s)
		}
		opts = append(opts, readers.WithMongoPipeline(stages))
	}

	// Validates the options without connecting.
	r, err := readers.NewMongoReader(opts...)
	if err != nil {
		return nil, err
	}
	r.Close()
	return &collectionLoader{env: env, cfg: c, opts: opts}, nil
}

// sortSpec turns ["-age", "name"] into {age: -1, name: 1}.
func sortSpec(fields []string) bson.D {
	d := make(bson.D, 0, len(fields))
	for _, f := range fields {
		if strings.HasPrefix(f, "-") {
			d = append(d, bson.E{Key: strings.TrimPrefix(f, "-"), Value: -1})
		} else {
			d = append(d, bson.E{Key: strings.TrimPrefix(f, "+"), Value: 1})
		}
	}
	return d
}

func (c *collectionLoader) Schema(ctx context.Context) (*arrow.Schema, error) {
	r, err := readers.NewMongoReader(c.opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	s := newColumnSampler(nil)
	for n := 0; c.cfg.InferRows < 0 || n < c.cfg.InferRows; n++ {
		doc, err := r.ReadDocument(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, e := range doc {
			s.observe(e.Key, e.Value)
		}
	}
	return s.schema()
}

func (c *collectionLoader) Load(ctx context.Context, out *storage.RowWriter) error {
	r, err := readers.NewMongoReader(c.opts...)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := copyRecords(ctx, r, out); err != nil {
		return fmt.Errorf("collection %s.%s: %w", c.cfg.Database, c.cfg.Collection, err)
	}
	return nil
}
