// Copyright 2025 The Tideflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command tideflowd runs the scheduler as a long-lived process: it
// loads workflow definitions, dispatches scheduled runs, and reloads
// them when the workflows directory changes on disk.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tideflow/tideflow/internal/config"
	"github.com/tideflow/tideflow/internal/journal"
	"github.com/tideflow/tideflow/internal/log"
	"github.com/tideflow/tideflow/internal/runmanager"
	"github.com/tideflow/tideflow/internal/scheduler"
	"github.com/tideflow/tideflow/internal/secrets"
	"github.com/tideflow/tideflow/pkg/actions"
	"github.com/tideflow/tideflow/pkg/workflow"
)

var version = "dev"

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "tideflowd",
		Short:         "Run the tideflow scheduling daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/tideflow/config.yaml)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	secrets.LoadDotEnv(cfg.BaseDir)

	logCfg := log.FromEnv()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = log.Format(cfg.Log.Format)
	logger := log.New(logCfg)

	if err := os.MkdirAll(cfg.WorkflowsDir, 0o755); err != nil {
		return err
	}

	loader := workflow.NewLoader(cfg.WorkflowsDir)

	registry := workflow.NewRegistry()
	registry.Register("log", actions.NewLogAction(logger))
	registry.Register("subworkflow", workflow.NewSubworkflowAction(loader, registry, cfg.BaseDir))

	j, err := journal.New(cfg.RunsDir, logger)
	if err != nil {
		return err
	}

	runs := runmanager.New()
	sched := scheduler.New(loader, registry, runs, j, cfg.BaseDir, cfg.Location(), logger)

	pidPath, err := writePIDFile()
	if err != nil {
		logger.Warn("could not write pid file, stop command will not find this daemon", slog.Any("error", err))
	} else {
		defer os.Remove(pidPath)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	logger.Info("tideflowd started", slog.String("version", version), slog.String("workflows_dir", cfg.WorkflowsDir))

	cleanupTicker := startRetentionSweep(ctx, j, cfg.Retention.RunDays, logger)
	defer cleanupTicker.Stop()

	<-ctx.Done()
	logger.Info("shutting down")
	sched.Stop()
	return nil
}

// startRetentionSweep runs the journal's retention cleanup once a day
// for as long as ctx is alive.
func startRetentionSweep(ctx context.Context, j *journal.Journal, retentionDays int, logger *slog.Logger) *time.Ticker {
	ticker := time.NewTicker(24 * time.Hour)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				result, err := j.Cleanup(retentionDays)
				if err != nil {
					logger.Error("journal retention sweep failed", slog.Any("error", err))
					continue
				}
				if result.DeletedCount > 0 {
					logger.Info("journal retention sweep complete", slog.Int("deleted", result.DeletedCount), slog.Int("kept", result.KeptCount))
				}
			}
		}
	}()
	return ticker
}

func writePIDFile() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	path := dir + "/tideflowd.pid"
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
