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


// Package aggregate accumulates the values of a column one at a time.
// Null values are skipped by every aggregator.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Aggregator defines the interface for data aggregation operations.
type Aggregator interface {
	// Add folds one value into the aggregate.
	Add(value interface{}) error
	// Result returns the aggregate of every value added so far, or nil
	// while there is none.
	Result() interface{}
	// Reset clears the aggregator state for reuse.
	Reset()
}

// Aggregation names.
const (
	OpCount = "count"
	OpSum   = "sum"
	OpAvg   = "avg"
	OpMin   = "min"
	OpMax   = "max"
)

var constructors = map[string]func() Aggregator{
	OpCount: func() Aggregator { return &CountAggregator{} },
	OpSum:   func() Aggregator { return &SumAggregator{} },
	OpAvg:   func() Aggregator { return &AvgAggregator{} },
	OpMin:   func() Aggregator { return &MinAggregator{} },
	OpMax:   func() Aggregator { return &MaxAggregator{} },
}

// Ops lists the aggregation names New accepts.
func Ops() []string {
	ops := make([]string, 0, len(constructors))
	for op := range constructors {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// New returns an empty aggregator for op.
func New(op string) (Aggregator, error) {
	ctor, ok := constructors[strings.ToLower(op)]
	if !ok {
		return nil, fmt.Errorf("unknown aggregation %q (valid: %s)", op, strings.Join(Ops(), ", "))
	}
	return ctor(), nil
}

// CountAggregator counts non-null values.
type CountAggregator struct {
	count int64
}

func (c *CountAggregator) Add(value interface{}) error {
	if value != nil {
		c.count++
	}
	return nil
}

func (c *CountAggregator) Result() interface{} {
	return c.count
}

func (c *CountAggregator) Reset() {
	c.count = 0
}

// SumAggregator sums numeric values
type SumAggregator struct {
	sum float64
	set bool
}

func (s *SumAggregator) Add(value interface{}) error {
	if value == nil {
		return nil
	}
	num, err := convertToFloat64(value)
	if err != nil {
		return err
	}
	s.sum += num
	s.set = true
	return nil
}

func (s *SumAggregator) Result() interface{} {
	if !s.set {
		return nil
	}
	return s.sum
}

func (s *SumAggregator) Reset() {
	s.sum = 0
	s.set = false
}

// AvgAggregator calculates average of numeric values
type AvgAggregator struct {
	sum   float64
	count int64
}

func (a *AvgAggregator) Add(value interface{}) error {
	if value == nil {
		return nil
	}
	num, err := convertToFloat64(value)
	if err != nil {
		return err
	}
	a.sum += num
	a.count++
	return nil
}

func (a *AvgAggregator) Result() interface{} {
	if a.count == 0 {
		return nil
	}
	return a.sum / float64(a.count)
}

func (a *AvgAggregator) Reset() {
	a.sum = 0
	a.count = 0
}

// MinAggregator finds minimum value
type MinAggregator struct {
	min interface{}
}

func (m *MinAggregator) Add(value interface{}) error {
	if value == nil {
		return nil
	}
	if m.min == nil {
		m.min = value
		return nil
	}
	c, err := compareValues(value, m.min)
	if err != nil {
		return err
	}
	if c < 0 {
		m.min = value
	}
	return nil
}

func (m *MinAggregator) Result() interface{} {
	return m.min
}

func (m *MinAggregator) Reset() {
	m.min = nil
}

// MaxAggregator finds maximum value
type MaxAggregator struct {
	max interface{}
}

func (m *MaxAggregator) Add(value interface{}) error {
	if value == nil {
		return nil
	}
	if m.max == nil {
		m.max = value
		return nil
	}
	c, err := compareValues(value, m.max)
	if err != nil {
		return err
	}
	if c > 0 {
		m.max = value
	}
	return nil
}

func (m *MaxAggregator) Result() interface{} {
	return m.max
}

func (m *MaxAggregator) Reset() {
	m.max = nil
}

// Helper functions
func convertToFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}

func compareValues(a, b interface{}) (int, error) {
	if fa, err := convertToFloat64(a); err == nil {
		fb, err := convertToFloat64(b)
		if err != nil {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		return compareOrdered(fa, fb), nil
	}
	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return strings.Compare(va, vb), nil
		}
	case time.Time:
		if vb, ok := b.(time.Time); ok {
			return va.Compare(vb), nil
		}
	case bool:
		if vb, ok := b.(bool); ok {
			switch {
			case va == vb:
				return 0, nil
			case !va:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
