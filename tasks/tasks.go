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

// Package tasks holds the concrete task types: file, query and collection
// loaders, and the row-wise caseFold, cast, filter, split and running
// aggregate transforms.
package tasks

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/registry"
	"github.com/aaronlmathis/rowflow/task"
)

// Type names as registered.
const (
	TypeLoadFile       = "loadFile"
	TypeLoadQuery      = "loadQuery"
	TypeLoadCollection = "loadCollection"
	TypeCaseFold       = "caseFold"
	TypeCast           = "cast"
	TypeFilter         = "filter"
	TypeSplit          = "split"
	TypeAggregate      = "aggregate"
)

// Register adds every task type of this package to reg.
func Register(reg *registry.Registry) error {
	loaders := map[string]task.LoaderSpec{
		TypeLoadFile:       {New: newFileLoader},
		TypeLoadQuery:      {New: newQueryLoader},
		TypeLoadCollection: {New: newCollectionLoader},
	}
	for name, spec := range loaders {
		spec := spec
		if err := reg.Register(name, func(env task.Env, cfg core.Config) (task.Task, error) {
			return task.NewNiladic(env, spec, cfg), nil
		}); err != nil {
			return err
		}
	}

	transforms := map[string]task.RowwiseSpec{
		TypeCaseFold:  caseFoldSpec,
		TypeCast:      castSpec,
		TypeFilter:    filterSpec,
		TypeSplit:     splitSpec,
		TypeAggregate: aggregateSpec,
	}
	for name, spec := range transforms {
		spec := spec
		if err := reg.Register(name, func(env task.Env, cfg core.Config) (task.Task, error) {
			return task.NewRowwise(env, spec, cfg), nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every type of this package.
func NewRegistry() *registry.Registry {
	reg := registry.New()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

// decode fills out from a task configuration. Input is weakly typed, so
// "3" decodes into an int field and 3 into a string field.
func decode(cfg core.Config, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]interface{}(cfg)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
