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


package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/tasks"
)

func newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithWorkdir(t.TempDir())}, opts...)
	p, err := New(tasks.NewRegistry(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// helloWorld creates the two-row text loader and a caseFold task on it.
func helloWorld(t *testing.T, p *Pipeline) (loader, fold int) {
	t.Helper()
	path := writeCSV(t, "text\nHello\nWORLD\n")
	l, err := p.CreateTask("loadFile", core.Config{"path": path, "format": "csv"})
	require.NoError(t, err)
	f, err := p.CreateTask("caseFold", core.Config{"source": l.ID(), "column": "text"})
	require.NoError(t, err)
	return l.ID(), f.ID()
}

// collect reads events until done returns true.
func collect(t *testing.T, sub *Subscription, done func(Event) bool) []Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	var got []Event
	for {
		select {
		case e, ok := <-sub.C:
			require.True(t, ok, "feed closed after %d events", len(got))
			got = append(got, e)
			if done(e) {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}
}

func filterEvents(events []Event, id int, kind Kind) []interface{} {
	var out []interface{}
	for _, e := range events {
		if e.TaskID == id && e.Kind == kind {
			out = append(out, e.Value)
		}
	}
	return out
}

type bufferCloser struct {
	strings.Builder
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}
