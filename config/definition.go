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


package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/rowflow/pipeline"
)

type definitionFile struct {
	Tasks []pipeline.Definition `yaml:"tasks"`
}

// LoadDefinition reads a pipeline definition file:
//
//	tasks:
//	  - id: 0
//	    type: loadFile
//	    config: {path: words.csv, format: csv}
//	  - type: caseFold
//	    config: {source: 0, column: text}
func LoadDefinition(path string) ([]pipeline.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition file: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition parses the contents of a definition file.
func ParseDefinition(data []byte) ([]pipeline.Definition, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse definition file: %w", err)
	}
	for i, def := range file.Tasks {
		if def.Type == "" {
			return nil, fmt.Errorf("definition %d: missing type", i)
		}
	}
	return file.Tasks, nil
}
