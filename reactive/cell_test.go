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

package reactive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellPublishesOnlyOnChange(t *testing.T) {
	c := NewCell(1)
	var got []int
	c.Subscribe(func(v int) { got = append(got, v) })

	assert.False(t, c.Set(1))
	assert.True(t, c.Set(2))
	assert.True(t, c.Set(3))
	assert.False(t, c.Set(3))

	assert.Equal(t, []int{2, 3}, got)
	assert.Equal(t, 3, c.Get())
}

func TestCellDeliversInSubscriptionOrder(t *testing.T) {
	c := NewCell("")
	var order []string
	c.Subscribe(func(string) { order = append(order, "first") })
	c.Subscribe(func(string) { order = append(order, "second") })
	c.Subscribe(func(string) { order = append(order, "third") })

	c.Set("x")
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestCellDeepEqualMaps(t *testing.T) {
	c := NewCell(map[string]interface{}{"a": 1})
	calls := 0
	c.Subscribe(func(map[string]interface{}) { calls++ })

	c.Set(map[string]interface{}{"a": 1})
	assert.Equal(t, 0, calls)
	c.Set(map[string]interface{}{"a": 2})
	assert.Equal(t, 1, calls)
}

func TestCellCustomEqual(t *testing.T) {
	c := NewCell(10, WithEqual(func(a, b int) bool { return a/10 == b/10 }))
	calls := 0
	c.Subscribe(func(int) { calls++ })

	c.Set(15)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 10, c.Get())
	c.Set(21)
	assert.Equal(t, 1, calls)
}

func TestSubscriptionDispose(t *testing.T) {
	c := NewCell(0)
	calls := 0
	sub := c.Subscribe(func(int) { calls++ })

	c.Set(1)
	sub.Dispose()
	sub.Dispose()
	c.Set(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, c.subject.Len())
}

func TestDisposeDuringPublish(t *testing.T) {
	var s Subject[int]
	var second *Subscription
	calls := 0
	s.Subscribe(func(int) { second.Dispose() })
	second = s.Subscribe(func(int) { calls++ })

	s.Publish(1)
	assert.Equal(t, 0, calls)
}

func TestSatisfiesResolvesImmediately(t *testing.T) {
	c := NewCell(5)
	a := c.Satisfies(func(v int) bool { return v > 3 })

	select {
	case <-a.Done():
	default:
		t.Fatal("awaitable should already be resolved")
	}
	v, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, 0, c.subject.Len())
}

func TestEqualsResolvesOnFuturePublish(t *testing.T) {
	c := NewCell("invalid")
	a := c.Equals("ready")

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Set("working")
		c.Set("ready")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := a.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
}

func TestWaitHonorsContext(t *testing.T) {
	c := NewCell(0)
	a := c.Equals(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.subject.Len())
}
