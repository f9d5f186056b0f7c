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

// Package filter provides composable record predicates. The filter task
// type builds one from its configuration and keeps the rows it accepts.
package filter

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// Predicate reports whether a record is kept. Records are read, never
// modified.
type Predicate func(ctx context.Context, record map[string]interface{}) (bool, error)

// NotNull keeps records where field is present, non-nil and not an empty string.
func NotNull(field string) Predicate {
	return func(ctx context.Context, record map[string]interface{}) (bool, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return false, nil
		}
		if str, ok := value.(string); ok && str == "" {
			return false, nil
		}
		return true, nil
	}
}

// Equals keeps records where field equals expected. Numbers compare by
// value whatever their Go type.
func Equals(field string, expected interface{}) Predicate {
	return func(ctx context.Context, record map[string]interface{}) (bool, error) {
		value, exists := record[field]
		if !exists {
			return false, nil
		}
		return equal(value, expected), nil
	}
}

func equal(value, expected interface{}) bool {
	if a, ok := toFloat64(value); ok {
		if b, ok := toFloat64(expected); ok {
			return a == b
		}
	}
	if s, ok := expected.(string); ok && value != nil {
		if t, ok := value.(time.Time); ok {
			return t.Format(time.RFC3339Nano) == s
		}
		return fmt.Sprint(value) == s
	}
	return reflect.DeepEqual(value, expected)
}

func stringMatch(field string, match func(string) bool) Predicate {
	return func(ctx context.Context, record map[string]interface{}) (bool, error) {
		if str, ok := record[field].(string); ok {
			return match(str), nil
		}
		return false, nil
	}
}

// Contains keeps records where the string field contains substring.
func Contains(field, substring string) Predicate {
	return stringMatch(field, func(s string) bool { return strings.Contains(s, substring) })
}

// StartsWith keeps records where the string field starts with prefix.
func StartsWith(field, prefix string) Predicate {
	return stringMatch(field, func(s string) bool { return strings.HasPrefix(s, prefix) })
}

// EndsWith keeps records where the string field ends with suffix.
func EndsWith(field, suffix string) Predicate {
	return stringMatch(field, func(s string) bool { return strings.HasSuffix(s, suffix) })
}

// MatchesRegex keeps records where the string field matches pattern.
func MatchesRegex(field, pattern string) (Predicate, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return stringMatch(field, regex.MatchString), nil
}

func numeric(field string, test func(float64) bool) Predicate {
	return func(ctx context.Context, record map[string]interface{}) (bool, error) {
		num, ok := toFloat64(record[field])
		if !ok {
			return false, nil
		}
		return test(num), nil
	}
}

// GreaterThan keeps records where the numeric field is greater than threshold.
func GreaterThan(field string, threshold float64) Predicate {
	return numeric(field, func(n float64) bool { return n > threshold })
}

// LessThan keeps records where the numeric field is less than threshold.
func LessThan(field string, threshold float64) Predicate {
	return numeric(field, func(n float64) bool { return n < threshold })
}

// Between keeps records where the numeric field is within [min, max].
func Between(field string, min, max float64) Predicate {
	return numeric(field, func(n float64) bool { return n >= min && n <= max })
}

// In keeps records where field equals any of values.
func In(field string, values ...interface{}) Predicate {
	return func(ctx context.Context, record map[string]interface{}) (bool, error) {
		value, exists := record[field]
		if !exists {
			return false, nil
		}
		for _, v := range values {
			if equal(value, v) {
				return true, nil
			}
		}
		return false, nil
	}
}

// And keeps records every predicate keeps.
func And(predicates ...Predicate) Predicate {
	return func(ctx context.Context, record map[string]interface{}) (bool, error) {
		for _, p := range predicates {
			ok, err := p(ctx, record)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Or keeps records any predicate keeps.
func Or(predicates ...Predicate) Predicate {
	return func(ctx context.Context, record map[string]interface{}) (bool, error) {
		for _, p := range predicates {
			ok, err := p(ctx, record)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return func(ctx context.Context, record map[string]interface{}) (bool, error) {
		ok, err := p(ctx, record)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// Ops lists the operator names accepted by Build.
var Ops = []string{"not_null", "equals", "contains", "starts_with", "ends_with", "matches", "gt", "lt", "between", "in"}

// Build returns the predicate named by op applied to field. value is the
// operand: a string for the string operators, a number for gt and lt, a
// two-element list for between and a list for in.
func Build(op, field string, value interface{}) (Predicate, error) {
	switch op {
	case "not_null":
		return NotNull(field), nil
	case "equals":
		if value == nil {
			return nil, fmt.Errorf("equals needs a value")
		}
		return Equals(field, value), nil
	case "contains", "starts_with", "ends_with", "matches":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s needs a string value, got %T", op, value)
		}
		switch op {
		case "contains":
			return Contains(field, s), nil
		case "starts_with":
			return StartsWith(field, s), nil
		case "ends_with":
			return EndsWith(field, s), nil
		}
		return MatchesRegex(field, s)
	case "gt", "lt":
		n, ok := toFloat64(value)
		if !ok {
			return nil, fmt.Errorf("%s needs a numeric value, got %T", op, value)
		}
		if op == "gt" {
			return GreaterThan(field, n), nil
		}
		return LessThan(field, n), nil
	case "between":
		bounds, ok := value.([]interface{})
		if !ok || len(bounds) != 2 {
			return nil, fmt.Errorf("between needs a [min, max] value")
		}
		lo, ok1 := toFloat64(bounds[0])
		hi, ok2 := toFloat64(bounds[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("between bounds must be numeric")
		}
		return Between(field, lo, hi), nil
	case "in":
		values, ok := value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("in needs a list value")
		}
		return In(field, values...), nil
	}
	return nil, fmt.Errorf("unknown operator %q (valid: %s)", op, strings.Join(Ops, ", "))
}

// toFloat64 converts numeric types and numeric strings.
func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, !math.IsNaN(v)
	}
	return 0, false
}
