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

package core

import (
	"fmt"
	"strings"
)

// Record represents a single named row of data as a map of field names to values.
// Readers produce records and writers consume them.
type Record map[string]interface{}

// Row is a positional row of values. The column names live in the schema of
// whichever iterator or table produced it.
type Row []interface{}

// Record pairs the row's values with names, position by position.
func (r Row) Record(names []string) Record {
	rec := make(Record, len(names))
	for i, name := range names {
		if i < len(r) {
			rec[name] = r[i]
		} else {
			rec[name] = nil
		}
	}
	return rec
}

// Config is the key/value mapping that parameterizes a task.
type Config map[string]interface{}

// Clone returns a deep copy of the configuration. Nested maps and slices
// are copied so edits to the clone never reach c.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Config:
		if val == nil {
			return val
		}
		return val.Clone()
	case map[string]interface{}:
		if val == nil {
			return val
		}
		return map[string]interface{}(Config(val).Clone())
	case map[string]string:
		if val == nil {
			return val
		}
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case []interface{}:
		if val == nil {
			return val
		}
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []int:
		return append([]int(nil), val...)
	case []int64:
		return append([]int64(nil), val...)
	case []float64:
		return append([]float64(nil), val...)
	case []byte:
		return append([]byte(nil), val...)
	}
	return v
}

// Merge returns a copy of c with every key of updates written over it.
func (c Config) Merge(updates Config) Config {
	out := c.Clone()
	for k, v := range updates {
		out[k] = cloneValue(v)
	}
	return out
}

// Without returns a copy of c with the given keys removed.
func (c Config) Without(keys ...string) Config {
	out := c.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Status is a task's position in its lifecycle.
type Status int

const (
	StatusInvalid Status = iota
	StatusReady
	StatusWorking
	StatusPaused
	StatusFinished
	StatusComplete
	StatusFailed
)

var statusNames = [...]string{
	StatusInvalid:  "invalid",
	StatusReady:    "ready",
	StatusWorking:  "working",
	StatusPaused:   "paused",
	StatusFinished: "finished",
	StatusComplete: "complete",
	StatusFailed:   "failed",
}

// String returns the lowercase name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Ready reports whether the task has a resolved schema, i.e. it is READY or
// any later state.
func (s Status) Ready() bool {
	return s != StatusInvalid
}

// Terminal reports whether no further execution steps will change the status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ParseStatus converts a status name, in any case, back to a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return Status(i), nil
		}
	}
	return StatusInvalid, fmt.Errorf("unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
