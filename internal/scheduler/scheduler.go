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

// Package scheduler registers cron-triggered workflows and dispatches
// them at their scheduled times.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tideflow/tideflow/internal/journal"
	"github.com/tideflow/tideflow/internal/runmanager"
	"github.com/tideflow/tideflow/pkg/workflow"
)

// job is one registered schedule's live state.
type job struct {
	workflow string
	cron     string
	expr     *CronExpr
	nextRun  time.Time
}

// Scheduler ticks once a second, runs any workflow whose next
// occurrence has arrived, and re-derives its job list from Loader on
// Reload — either on an explicit call or in response to an fsnotify
// event on the workflow directory.
type Scheduler struct {
	Loader   *workflow.Loader
	Registry *workflow.Registry
	Runs     *runmanager.Manager
	Journal  *journal.Journal
	BaseDir  string
	Location *time.Location
	Logger   *slog.Logger

	mu      sync.RWMutex
	jobs    map[string]*job
	watcher *fsnotify.Watcher

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New builds a Scheduler over loader, dispatching runs through registry
// against the given run manager and journal. Cron matching, day
// boundaries, and the run contexts of dispatched workflows all use loc;
// a nil loc falls back to time.Local.
func New(loader *workflow.Loader, registry *workflow.Registry, runs *runmanager.Manager, j *journal.Journal, baseDir string, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Loader:   loader,
		Registry: registry,
		Runs:     runs,
		Journal:  j,
		BaseDir:  baseDir,
		Location: loc,
		Logger:   logger.With(slog.String("component", "scheduler")),
		jobs:     make(map[string]*job),
	}
}

// Jobs returns a snapshot of currently registered schedules, keyed by
// workflow name.
func (s *Scheduler) Jobs() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.jobs))
	for name, j := range s.jobs {
		out[name] = j.cron
	}
	return out
}

// Preview returns the next n occurrences of cron after from, without
// registering anything. Useful for validating a schedule before saving
// it. loc fixes the timezone day/month boundaries are evaluated in; a
// nil loc falls back to time.Local.
func Preview(cron string, n int, from time.Time, loc *time.Location) ([]time.Time, error) {
	expr, err := ParseCron(cron)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}

	times := make([]time.Time, 0, n)
	cursor := from.In(loc)
	for i := 0; i < n; i++ {
		cursor = expr.Next(cursor)
		times = append(times, cursor)
	}
	return times, nil
}

// Reload re-walks the workflow directory and rebuilds the job list from
// scratch: only enabled workflows with a schedule trigger and a valid
// cron expression are kept. Reload picks up edits made since the last
// load, including to workflows that are currently mid-run (the in-flight
// run is unaffected; only future ticks use the new definition).
func (s *Scheduler) Reload() error {
	infos, err := s.Loader.List()
	if err != nil {
		return err
	}

	now := time.Now().In(s.Location)
	next := make(map[string]*job, len(infos))
	for _, info := range infos {
		if !info.IsValid || !info.Enabled || info.Trigger != workflow.TriggerSchedule {
			continue
		}
		expr, err := ParseCron(info.Cron)
		if err != nil {
			s.Logger.Warn("invalid cron expression, skipping schedule", slog.String("workflow", info.Name), slog.Any("error", err))
			continue
		}
		next[info.Name] = &job{workflow: info.Name, cron: info.Cron, expr: expr, nextRun: expr.Next(now)}
	}

	s.mu.Lock()
	s.jobs = next
	s.mu.Unlock()

	s.Logger.Info("schedules reloaded", slog.Int("count", len(next)))
	return nil
}

// Start reloads the job list, begins the tick loop, and (best-effort)
// watches the workflow directory for changes so edits are picked up
// without waiting for the next explicit Reload. Start is idempotent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return nil
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.once = sync.Once{}
	s.mu.Unlock()

	if err := s.Reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(s.Loader.Dir); err == nil {
			s.watcher = watcher
			go s.watchLoop()
		} else {
			s.Logger.Warn("could not watch workflow directory, relying on explicit reload", slog.Any("error", err))
			watcher.Close()
		}
	} else {
		s.Logger.Warn("could not start workflow directory watcher", slog.Any("error", err))
	}

	go s.tickLoop(ctx)
	return nil
}

// Stop ends the tick loop without waiting for any in-flight run to
// finish. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()
	if stopCh == nil {
		return
	}

	s.once.Do(func() {
		close(stopCh)
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}

func (s *Scheduler) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if err := s.Reload(); err != nil {
					s.Logger.Error("reload after filesystem event failed", slog.Any("error", err))
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.Logger.Warn("workflow directory watcher error", slog.Any("error", err))
		}
	}
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	now = now.In(s.Location)
	var due []*job

	s.mu.Lock()
	for _, j := range s.jobs {
		if !now.Before(j.nextRun) {
			due = append(due, j)
			j.nextRun = j.expr.Next(now)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		go s.dispatch(ctx, j.workflow)
	}
}

// dispatch reloads the workflow by name (so edits made since
// registration are honored) and runs it, recording the result in the
// journal. Errors are logged, never propagated — one failing workflow
// must not stop the scheduler.
func (s *Scheduler) dispatch(ctx context.Context, name string) {
	jobLogger := s.Logger.With(slog.String("workflow", name))

	if s.Runs.IsRunning(name) {
		jobLogger.Info("skipping scheduled run, a run is already in flight")
		return
	}

	wf, err := s.Loader.Load(name)
	if err != nil {
		jobLogger.Error("could not load scheduled workflow", slog.Any("error", err))
		return
	}

	runCtx, err := s.Runs.Register(ctx, name)
	if err != nil {
		jobLogger.Info("skipping scheduled run", slog.Any("error", err))
		return
	}
	defer s.Runs.Unregister(name)

	executor := workflow.NewExecutor(s.Registry, s.BaseDir, jobLogger)
	runLog := executor.Run(runCtx, wf, time.Now().In(s.Location))

	if err := s.Journal.Save(runLog); err != nil {
		jobLogger.Error("could not save run log", slog.Any("error", err))
	}

	jobLogger.Info("scheduled run finished", slog.String("run_id", runLog.RunID), slog.String("status", string(runLog.Status)))
}
