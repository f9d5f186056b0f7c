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

// Package transform provides value conversions applied to single column
// values by the row-wise task types. Every Func passes nil through.
package transform

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Func converts one value. A Func may keep state and is not safe for
// concurrent use.
type Func func(value interface{}) (interface{}, error)

func stringFunc(name string, fn func(string) string) Func {
	return func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case nil:
			return nil, nil
		case string:
			return fn(v), nil
		}
		return nil, fmt.Errorf("%s: expected string, got %T", name, value)
	}
}

// Fold applies full Unicode case folding, so "Straße" and "STRASSE" fold
// to the same string.
func Fold() Func {
	c := cases.Fold()
	return stringFunc("fold", c.String)
}

// ToLower lowercases strings.
func ToLower() Func {
	c := cases.Lower(language.Und)
	return stringFunc("lower", c.String)
}

// ToUpper uppercases strings.
func ToUpper() Func {
	c := cases.Upper(language.Und)
	return stringFunc("upper", c.String)
}

// TrimSpace trims leading and trailing white space.
func TrimSpace() Func {
	return stringFunc("trim", strings.TrimSpace)
}

// Chain applies fns left to right.
func Chain(fns ...Func) Func {
	return func(value interface{}) (interface{}, error) {
		var err error
		for _, fn := range fns {
			if value, err = fn(value); err != nil {
				return nil, err
			}
		}
		return value, nil
	}
}

// ToString renders any value as text. Times use RFC 3339 and bytes base64.
func ToString() Func {
	return func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case nil:
			return nil, nil
		case string:
			return v, nil
		case time.Time:
			return v.Format(time.RFC3339Nano), nil
		case []byte:
			return base64.StdEncoding.EncodeToString(v), nil
		}
		return fmt.Sprintf("%v", value), nil
	}
}

// ToInt converts to int64. Floats must be integral.
func ToInt() Func {
	return func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case nil:
			return nil, nil
		case string:
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		case float32:
			return floatToInt(float64(v))
		case float64:
			return floatToInt(v)
		}
		if n, ok := asInt64(value); ok {
			return n, nil
		}
		return nil, fmt.Errorf("cannot convert %T to int", value)
	}
}

func floatToInt(f float64) (interface{}, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("cannot convert %v to int", f)
	}
	return int64(f), nil
}

// ToFloat converts to float64.
func ToFloat() Func {
	return func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case nil:
			return nil, nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		case float32:
			return float64(v), nil
		case float64:
			return v, nil
		}
		if n, ok := asInt64(value); ok {
			return float64(n), nil
		}
		return nil, fmt.Errorf("cannot convert %T to float", value)
	}
}

// ToBool converts to bool. Numbers are true when non-zero.
func ToBool() Func {
	return func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case nil:
			return nil, nil
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		case float64:
			return v != 0, nil
		}
		if n, ok := asInt64(value); ok {
			return n != 0, nil
		}
		return nil, fmt.Errorf("cannot convert %T to bool", value)
	}
}

// ParseTime parses strings with layout, RFC 3339 when layout is empty.
func ParseTime(layout string) Func {
	if layout == "" {
		layout = time.RFC3339Nano
	}
	return func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case nil:
			return nil, nil
		case time.Time:
			return v, nil
		case string:
			t, err := time.Parse(layout, strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("failed to parse time %q: %w", v, err)
			}
			return t, nil
		}
		return nil, fmt.Errorf("cannot convert %T to time", value)
	}
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}
