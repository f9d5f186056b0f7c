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

package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
)

// InferType picks the Arrow type used to store a Go value. Plain ints are
// widened to int64 so a column keeps one type whatever the magnitude.
func InferType(value interface{}) (arrow.DataType, error) {
	if value == nil {
		return arrow.Null, nil
	}

	switch value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case int8:
		return arrow.PrimitiveTypes.Int8, nil
	case int16:
		return arrow.PrimitiveTypes.Int16, nil
	case int32:
		return arrow.PrimitiveTypes.Int32, nil
	case int, int64:
		return arrow.PrimitiveTypes.Int64, nil
	case uint8:
		return arrow.PrimitiveTypes.Uint8, nil
	case uint16:
		return arrow.PrimitiveTypes.Uint16, nil
	case uint32:
		return arrow.PrimitiveTypes.Uint32, nil
	case uint, uint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case float32:
		return arrow.PrimitiveTypes.Float32, nil
	case float64:
		return arrow.PrimitiveTypes.Float64, nil
	case string, json.RawMessage:
		return arrow.BinaryTypes.String, nil
	case []byte:
		return arrow.BinaryTypes.Binary, nil
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	default:
		return nil, fmt.Errorf("unsupported type %T for value %v", value, value)
	}
}

// WidenType returns a type able to hold values of both a and b. Null gives
// way to anything, mixed integers and floats become float64 and any other
// mismatch falls back to string.
func WidenType(a, b arrow.DataType) arrow.DataType {
	switch {
	case a == nil || a.ID() == arrow.NULL:
		return b
	case b == nil || b.ID() == arrow.NULL:
		return a
	case arrow.TypeEqual(a, b):
		return a
	case isNumeric(a) && isNumeric(b):
		if isInteger(a) && isInteger(b) {
			return arrow.PrimitiveTypes.Int64
		}
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// Coerce converts value into the canonical Go representation for dt, the
// form Append and ValueAt use. It never mutates anything, so a failure
// leaves the caller's state untouched.
func Coerce(value interface{}, dt arrow.DataType) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch dt.ID() {
	case arrow.NULL:
		return nil, fmt.Errorf("non-null value %v for null column", value)
	case arrow.BOOL:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		n, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		if !intFits(n, dt.ID()) {
			return nil, fmt.Errorf("value %d out of range for %s", n, dt)
		}
		return narrowInt(n, dt.ID()), nil
	case arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		n, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		if n < 0 || !uintFits(uint64(n), dt.ID()) {
			return nil, fmt.Errorf("value %d out of range for %s", n, dt)
		}
		return narrowUint(uint64(n), dt.ID()), nil
	case arrow.FLOAT32:
		f, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case arrow.FLOAT64:
		return toFloat64(value)
	case arrow.STRING:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case json.RawMessage:
			return string(v), nil
		case time.Time:
			return v.Format(time.RFC3339Nano), nil
		default:
			return fmt.Sprintf("%v", value), nil
		}
	case arrow.BINARY:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		switch v := value.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, err
			}
			return ts.UTC(), nil
		}
	default:
		return nil, fmt.Errorf("unsupported column type %s", dt)
	}
	return nil, fmt.Errorf("cannot store %T in %s column", value, dt)
}

// Append adds a value already passed through Coerce for dt to the builder.
func Append(builder array.Builder, dt arrow.DataType, value interface{}) error {
	if value == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.NullBuilder:
		b.AppendNull()
	case *array.BooleanBuilder:
		b.Append(value.(bool))
	case *array.Int8Builder:
		b.Append(value.(int8))
	case *array.Int16Builder:
		b.Append(value.(int16))
	case *array.Int32Builder:
		b.Append(value.(int32))
	case *array.Int64Builder:
		b.Append(value.(int64))
	case *array.Uint8Builder:
		b.Append(value.(uint8))
	case *array.Uint16Builder:
		b.Append(value.(uint16))
	case *array.Uint32Builder:
		b.Append(value.(uint32))
	case *array.Uint64Builder:
		b.Append(value.(uint64))
	case *array.Float32Builder:
		b.Append(value.(float32))
	case *array.Float64Builder:
		b.Append(value.(float64))
	case *array.StringBuilder:
		b.Append(value.(string))
	case *array.BinaryBuilder:
		b.Append(value.([]byte))
	case *array.TimestampBuilder:
		b.Append(timestampOf(value.(time.Time), dt.(*arrow.TimestampType).Unit))
	case *array.Date32Builder:
		b.Append(arrow.Date32FromTime(value.(time.Time)))
	case *array.Date64Builder:
		b.Append(arrow.Date64FromTime(value.(time.Time)))
	default:
		return fmt.Errorf("unsupported builder type %T", builder)
	}
	return nil
}

// ValueAt extracts row idx of col as a Go value, the inverse of Append.
func ValueAt(col arrow.Array, idx int) interface{} {
	if col.IsNull(idx) {
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(idx)
	case *array.Int8:
		return arr.Value(idx)
	case *array.Int16:
		return arr.Value(idx)
	case *array.Int32:
		return arr.Value(idx)
	case *array.Int64:
		return arr.Value(idx)
	case *array.Uint8:
		return arr.Value(idx)
	case *array.Uint16:
		return arr.Value(idx)
	case *array.Uint32:
		return arr.Value(idx)
	case *array.Uint64:
		return arr.Value(idx)
	case *array.Float32:
		return arr.Value(idx)
	case *array.Float64:
		return arr.Value(idx)
	case *array.String:
		return arr.Value(idx)
	case *array.LargeString:
		return arr.Value(idx)
	case *array.Binary:
		// Copy out of the batch so the value outlives the record.
		return append([]byte(nil), arr.Value(idx)...)
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(idx).ToTime(unit).UTC()
	case *array.Date32:
		return arr.Value(idx).ToTime().UTC()
	case *array.Date64:
		return arr.Value(idx).ToTime().UTC()
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(idx))
	}
}

func timestampOf(t time.Time, unit arrow.TimeUnit) arrow.Timestamp {
	switch unit {
	case arrow.Second:
		return arrow.Timestamp(t.Unix())
	case arrow.Millisecond:
		return arrow.Timestamp(t.UnixMilli())
	case arrow.Nanosecond:
		return arrow.Timestamp(t.UnixNano())
	}
	return arrow.Timestamp(t.UnixMicro())
}

func isInteger(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return true
	}
	return false
}

func isNumeric(dt arrow.DataType) bool {
	return isInteger(dt) || dt.ID() == arrow.FLOAT32 || dt.ID() == arrow.FLOAT64
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return toInt64(float64(v))
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case json.Number:
		return v.Int64()
	}
	return 0, fmt.Errorf("cannot convert %T to integer", value)
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	case json.Number:
		return v.Float64()
	}
	n, err := toInt64(value)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %T to float", value)
	}
	return float64(n), nil
}

func intFits(n int64, id arrow.Type) bool {
	switch id {
	case arrow.INT8:
		return n >= math.MinInt8 && n <= math.MaxInt8
	case arrow.INT16:
		return n >= math.MinInt16 && n <= math.MaxInt16
	case arrow.INT32:
		return n >= math.MinInt32 && n <= math.MaxInt32
	}
	return true
}

func uintFits(n uint64, id arrow.Type) bool {
	switch id {
	case arrow.UINT8:
		return n <= math.MaxUint8
	case arrow.UINT16:
		return n <= math.MaxUint16
	case arrow.UINT32:
		return n <= math.MaxUint32
	}
	return true
}

func narrowInt(n int64, id arrow.Type) interface{} {
	switch id {
	case arrow.INT8:
		return int8(n)
	case arrow.INT16:
		return int16(n)
	case arrow.INT32:
		return int32(n)
	}
	return n
}

func narrowUint(n uint64, id arrow.Type) interface{} {
	switch id {
	case arrow.UINT8:
		return uint8(n)
	case arrow.UINT16:
		return uint16(n)
	case arrow.UINT32:
		return uint32(n)
	}
	return n
}

// Storable reports whether tiers can hold columns of type dt. Readers map
// anything else to string, the form ValueAt falls back to.
func Storable(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.NULL, arrow.BOOL,
		arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64, arrow.STRING, arrow.BINARY,
		arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return true
	}
	return false
}
