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
	"errors"
	"fmt"
)

// Lookup errors are reported to the caller that made the request.
var (
	ErrNoSuchType   = errors.New("no such task type")
	ErrNoSuchTask   = errors.New("no such task")
	ErrIDInUse      = errors.New("task id already in use")
	ErrNoSuchColumn = errors.New("no such column")
	ErrCycle        = errors.New("source would create a cycle")
)

// Execution and state errors.
var (
	// ErrNotReady is returned when a task is asked to execute while INVALID.
	ErrNotReady = errors.New("task is not ready")
	// ErrNotComplete is returned for random access into a task that has not
	// reached COMPLETE.
	ErrNotComplete = errors.New("task is not complete")
	// ErrTaskFailed wraps the execution error of a FAILED task.
	ErrTaskFailed = errors.New("task failed")
	// ErrClosed is returned by tasks and iterators used after Close.
	ErrClosed = errors.New("closed")
)

// ErrInconsistent marks a broken internal contract, such as a tier boundary
// that should exist but does not. It is never a user error.
var ErrInconsistent = errors.New("inconsistent task state")

// TaskError ties an error to the task that produced it.
type TaskError struct {
	ID  int
	Op  string
	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d %s: %v", e.ID, e.Op, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Inconsistent builds an ErrInconsistent with context.
func Inconsistent(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...))
}
