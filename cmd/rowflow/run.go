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


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aaronlmathis/rowflow/config"
	"github.com/aaronlmathis/rowflow/core"
	"github.com/aaronlmathis/rowflow/metrics"
	"github.com/aaronlmathis/rowflow/pipeline"
	"github.com/aaronlmathis/rowflow/task"
	"github.com/aaronlmathis/rowflow/tasks"
)

var runCmd = &cobra.Command{
	Use:   "run [definition]",
	Short: "Create the tasks of a definition file and pull every leaf task to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var (
	printEvents bool
	metricsAddr string
)

func init() {
	runCmd.Flags().BoolVar(&printEvents, "events", false, "Print pipeline events as JSON lines")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
}

// openPipeline builds a pipeline from the definition file at path.
func openPipeline(path string, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	defs, err := config.LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	opts = append(settings.PipelineOptions(), append(opts, pipeline.WithLogger(logger))...)
	p, err := pipeline.New(tasks.NewRegistry(), opts...)
	if err != nil {
		return nil, err
	}
	if _, err := p.Apply(defs); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	opts := []pipeline.Option{pipeline.WithMetrics(collector)}
	if !printEvents {
		opts = append(opts, pipeline.WithSampling(0, 0))
	}
	p, err := openPipeline(args[0], opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	var wg sync.WaitGroup
	var sub *pipeline.Subscription
	if printEvents {
		sub = p.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			printFeed(cmd.OutOrStdout(), sub)
		}()
	}

	runErr := drainLeaves(ctx, p)

	if sub != nil {
		settle(sub, time.Second)
		sub.Close()
		wg.Wait()
	}
	if runErr != nil {
		return runErr
	}
	if !printEvents {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	return nil
}

// drainLeaves reads every task nothing else reads from. Pulling a leaf
// drives all of its ancestors.
func drainLeaves(ctx context.Context, p *pipeline.Pipeline) error {
	order, err := p.Order()
	if err != nil {
		return err
	}
	for _, id := range order {
		if len(p.Downstream(id)) > 0 {
			continue
		}
		t, err := p.Task(id)
		if err != nil {
			return err
		}
		if t.Status() == core.StatusInvalid {
			logger.Warn("skipping invalid task", zap.Int("task", id), zap.String("type", t.Type()))
			continue
		}
		n, err := drain(ctx, t.Rows())
		if err != nil {
			return fmt.Errorf("task %d: %w", id, err)
		}
		logger.Info("task drained", zap.Int("task", id), zap.String("type", t.Type()), zap.Int64("rows", n))
	}
	return nil
}

func drain(ctx context.Context, it task.Iterator) (int64, error) {
	defer it.Close()
	var n int64
	for {
		if _, err := it.Next(ctx); err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
		n++
	}
}

func printFeed(w io.Writer, sub *pipeline.Subscription) {
	enc := json.NewEncoder(w)
	for e := range sub.C {
		if err := enc.Encode(e); err != nil {
			logger.Warn("encoding event", zap.String("event", string(e.Kind)), zap.Error(err))
		}
	}
}

// settle waits for sub to deliver what is queued, up to timeout.
func settle(sub *pipeline.Subscription, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for sub.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}
