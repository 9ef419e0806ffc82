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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tideflow/tideflow/internal/backup"
	"github.com/tideflow/tideflow/internal/config"
	"github.com/tideflow/tideflow/internal/journal"
	"github.com/tideflow/tideflow/internal/log"
	"github.com/tideflow/tideflow/internal/runmanager"
	"github.com/tideflow/tideflow/internal/secrets"
	"github.com/tideflow/tideflow/pkg/actions"
	"github.com/tideflow/tideflow/pkg/workflow"
)

var (
	version = "dev"
	commit  = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "tideflow",
		Short:         "Run and manage tideflow workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/tideflow/config.yaml)")

	root.AddCommand(
		newRunCommand(),
		newListCommand(),
		newValidateCommand(),
		newBackupsCommand(),
		newStopCommand(),
		newVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newEngine wires the registry, loader, executor, run manager, and
// journal a CLI command needs, rooted at cfg's directories.
func newEngine(cfg *config.Config) (*workflow.Loader, *workflow.Registry, *runmanager.Manager, *journal.Journal, error) {
	secrets.LoadDotEnv(cfg.BaseDir)

	logger := log.New(log.FromEnv())

	loader := workflow.NewLoader(cfg.WorkflowsDir)

	registry := workflow.NewRegistry()
	registry.Register("log", actions.NewLogAction(logger))
	registry.Register("subworkflow", workflow.NewSubworkflowAction(loader, registry, cfg.BaseDir))

	j, err := journal.New(cfg.RunsDir, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return loader, registry, runmanager.New(), j, nil
}

func newRunCommand() *cobra.Command {
	var inputFlags []string

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow once, outside of its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			loader, registry, runs, j, err := newEngine(cfg)
			if err != nil {
				return err
			}

			wf, err := loader.Load(name)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			runCtx, err := runs.Register(ctx, name)
			if err != nil {
				return err
			}
			defer runs.Unregister(name)

			logger := log.New(log.FromEnv())
			executor := workflow.NewExecutor(registry, cfg.BaseDir, logger)
			runLog := executor.Run(runCtx, wf, time.Now())

			if err := j.Save(runLog); err != nil {
				fmt.Fprintln(os.Stderr, "warning: could not save run to journal:", err)
			}

			printRunSummary(runLog)
			if runLog.Status != workflow.StatusSuccess {
				return fmt.Errorf("run %s: %s", runLog.Status, runLog.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&inputFlags, "input", nil, "reserved for future use")
	return cmd
}

func printRunSummary(runLog *workflow.RunLog) {
	fmt.Printf("run %s: %s\n", runLog.RunID, runLog.Status)
	for _, step := range runLog.Steps {
		switch step.Status {
		case workflow.StepSkipped:
			fmt.Printf("  - %s (%s): skipped (%s)\n", step.ID, step.Type, step.Reason)
		case workflow.StepFailed:
			fmt.Printf("  - %s (%s): failed: %s\n", step.ID, step.Type, step.Error)
		default:
			fmt.Printf("  - %s (%s): success\n", step.ID, step.Type)
		}
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflow definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			loader := workflow.NewLoader(cfg.WorkflowsDir)
			infos, err := loader.List()
			if err != nil {
				return err
			}

			for _, info := range infos {
				if !info.IsValid {
					fmt.Printf("%s\tINVALID\t%s\n", info.Name, info.Error)
					continue
				}
				status := "disabled"
				if info.Enabled {
					status = "enabled"
				}
				fmt.Printf("%s\t%s\t%s\t%d steps\n", info.Name, status, info.Trigger, info.StepCount)
			}
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Validate a workflow definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			loader := workflow.NewLoader(cfg.WorkflowsDir)
			wf, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s: valid (%d steps)\n", wf.Name, len(wf.Steps))
			return nil
		},
	}
}

func newBackupsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect workflow definition backups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <workflow>",
		Short: "List backups for a workflow, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			mgr := backup.New(cfg.BackupsDir, cfg.Retention.MaxBackupsPerWorkflow)
			files, err := mgr.List(args[0])
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Println(f)
			}
			return nil
		},
	})

	return cmd
}

// newStopCommand sends SIGTERM to a running tideflowd daemon, read
// from its pid file. The CLI and daemon are separate processes with no
// shared RPC surface, so this is the only way a one-shot command can
// ask the daemon to shut down.
func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running tideflowd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			pidPath := dir + "/tideflowd.pid"

			data, err := os.ReadFile(pidPath)
			if err != nil {
				return fmt.Errorf("no running daemon found (%s): %w", pidPath, err)
			}

			pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil {
				return fmt.Errorf("malformed pid file %s: %w", pidPath, err)
			}

			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal daemon (pid %d): %w", pid, err)
			}

			fmt.Printf("sent stop signal to daemon (pid %d)\n", pid)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("tideflow %s (%s)\n", version, commit)
			return nil
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
