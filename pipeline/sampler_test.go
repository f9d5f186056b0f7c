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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/rowflow/core"
)

func TestSamplerLimitsRowsAndResamplesAfterReset(t *testing.T) {
	p := newPipeline(t)
	path := writeCSV(t, "n\n1\n2\n3\n4\n")
	loader, err := p.CreateTask("loadFile", core.Config{"path": path, "format": "csv"})
	require.NoError(t, err)

	feed := NewFeed()
	defer feed.Close()
	sub := feed.Subscribe()
	s := NewSampler(2, 1, feed.Publish, nil)
	defer s.Close()

	s.Watch(loader)
	s.Watch(loader)
	first := collect(t, sub, func(e Event) bool { return e.Value.(Result).Offset == 1 })
	require.Len(t, first, 2)
	assert.Equal(t, map[string]interface{}{"n": int64(1)}, first[0].Value.(Result).Values)

	loader.Update(core.Config{"raw_strings": true})
	again := collect(t, sub, func(e Event) bool { return e.Value.(Result).Offset == 1 })
	require.Len(t, again, 2)
	assert.Equal(t, map[string]interface{}{"n": "1"}, again[0].Value.(Result).Values)

	s.Unwatch(loader.ID())
	s.Unwatch(loader.ID())
}

func TestSamplerIgnoresInvalidTasksAndClosedSampler(t *testing.T) {
	p := newPipeline(t)
	invalid, err := p.CreateTask("loadFile", nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var events []Event
	s := NewSampler(0, 0, func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, nil)
	s.Watch(invalid)
	s.Close()

	path := writeCSV(t, "n\n1\n")
	valid, err := p.CreateTask("loadFile", core.Config{"path": path, "format": "csv"})
	require.NoError(t, err)
	s.Watch(valid)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, events)
	assert.Equal(t, DefaultSampleRows, s.rows)
}
