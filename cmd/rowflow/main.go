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


// Command rowflow builds a task pipeline from a definition file and runs
// or exports it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aaronlmathis/rowflow/config"
)

var rootCmd = &cobra.Command{
	Use:           "rowflow",
	Short:         "RowFlow - incremental task pipelines over columnar data",
	Long:          `RowFlow loads data from files, PostgreSQL or MongoDB, transforms it row by row through a graph of tasks and materializes every task's output as Arrow IPC files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			overrides["log_level"] = logLevel
		}
		s, err := config.Load(settingsPath, overrides)
		if err != nil {
			return err
		}
		log, err := s.Logger()
		if err != nil {
			return err
		}
		settings, logger = s, log
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

var (
	settingsPath string
	logLevel     string
	overrides    = map[string]string{}

	settings config.Settings
	logger   *zap.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Settings file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringToStringVar(&overrides, "set", map[string]string{}, "Override a setting, e.g. --set max_buffered_rows=500")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(typesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
