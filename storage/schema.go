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
	"bytes"
	"encoding/base64"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/ipc"
)

// EncodeSchema renders schema as base64 of an IPC stream holding only the
// schema message.
func EncodeSchema(schema *arrow.Schema) (string, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Close(); err != nil {
		return "", &TierError{Op: "encode_schema", Err: err}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeSchema reverses EncodeSchema.
func DecodeSchema(encoded string) (*arrow.Schema, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &TierError{Op: "decode_schema", Err: err}
	}
	r, err := ipc.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &TierError{Op: "decode_schema", Err: err}
	}
	defer r.Release()
	return r.Schema(), nil
}

// SchemaNames lists the field names of schema in order.
func SchemaNames(schema *arrow.Schema) []string {
	if schema == nil {
		return nil
	}
	names := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	return names
}

// SchemaEqual compares schemas, treating two nils as equal.
func SchemaEqual(a, b *arrow.Schema) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b)
}
