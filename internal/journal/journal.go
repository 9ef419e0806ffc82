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

// Package journal persists RunLogs to one append-only JSONL file per
// calendar day and answers queries over them.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tideflow/tideflow/pkg/workflow"
)

// Journal is an append-only, JSONL-per-day run log store rooted at Dir.
type Journal struct {
	mu     sync.Mutex
	Dir    string
	Logger *slog.Logger
}

// New returns a Journal rooted at dir, creating it if necessary.
func New(dir string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{Dir: dir, Logger: logger}, nil
}

func (j *Journal) fileFor(t time.Time) string {
	return filepath.Join(j.Dir, t.Format("20060102")+".jsonl")
}

// Save appends log to the file for its StartedAt date. Non-ASCII
// characters are written verbatim (UTF-8), never \uXXXX-escaped.
func (j *Journal) Save(log *workflow.RunLog) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.fileFor(log.StartedAt), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(log); err != nil {
		return err
	}

	_, err = f.WriteString(buf.String())
	return err
}

func (j *Journal) allFiles() ([]string, error) {
	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

func (j *Journal) readFile(name string) []workflow.RunLog {
	f, err := os.Open(filepath.Join(j.Dir, name))
	if err != nil {
		return nil
	}
	defer f.Close()

	var logs []workflow.RunLog
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry workflow.RunLog
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			j.Logger.Warn("skipping malformed journal line", slog.String("file", name), slog.Any("error", err))
			continue
		}
		logs = append(logs, entry)
	}
	return logs
}

// RunsForWorkflow returns name's runs newest-first, applying offset and
// limit (limit <= 0 means no limit).
func (j *Journal) RunsForWorkflow(name string, offset, limit int) ([]workflow.RunLog, error) {
	all, err := j.AllRuns(0, 0)
	if err != nil {
		return nil, err
	}

	var filtered []workflow.RunLog
	for _, r := range all {
		if r.Workflow == name {
			filtered = append(filtered, r)
		}
	}
	return paginate(filtered, offset, limit), nil
}

// AllRuns returns every run newest-first, applying offset and limit
// (limit <= 0 means no limit).
func (j *Journal) AllRuns(offset, limit int) ([]workflow.RunLog, error) {
	files, err := j.allFiles()
	if err != nil {
		return nil, err
	}

	var all []workflow.RunLog
	for _, f := range files {
		all = append(all, j.readFile(f)...)
	}
	sort.Slice(all, func(i, k int) bool {
		return all[i].StartedAt.After(all[k].StartedAt)
	})

	return paginate(all, offset, limit), nil
}

func paginate(logs []workflow.RunLog, offset, limit int) []workflow.RunLog {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(logs) {
		return nil
	}
	logs = logs[offset:]
	if limit > 0 && limit < len(logs) {
		logs = logs[:limit]
	}
	return logs
}

// Latest returns the single most recent run for name, or nil if there
// is none.
func (j *Journal) Latest(name string) (*workflow.RunLog, error) {
	runs, err := j.RunsForWorkflow(name, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// LatestMap returns the most recent run for every workflow name that
// has at least one run.
func (j *Journal) LatestMap() (map[string]workflow.RunLog, error) {
	all, err := j.AllRuns(0, 0)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]workflow.RunLog)
	for _, r := range all {
		if _, ok := latest[r.Workflow]; !ok {
			latest[r.Workflow] = r
		}
	}
	return latest, nil
}

// CountForWorkflow returns the number of runs recorded for name.
func (j *Journal) CountForWorkflow(name string) (int, error) {
	runs, err := j.RunsForWorkflow(name, 0, 0)
	if err != nil {
		return 0, err
	}
	return len(runs), nil
}

// CountAll returns the total number of runs recorded across all
// workflows.
func (j *Journal) CountAll() (int, error) {
	runs, err := j.AllRuns(0, 0)
	if err != nil {
		return 0, err
	}
	return len(runs), nil
}

// CleanupResult summarizes a retention sweep.
type CleanupResult struct {
	RetentionDays int
	CutoffDate    string
	DeletedCount  int
	DeletedFiles  []string
	DeletedBytes  int64
	KeptCount     int
}

// Cleanup deletes journal files older than retentionDays, identified by
// the YYYYMMDD date encoded in their filename stem. Files that don't
// match that pattern are left alone and logged.
func (j *Journal) Cleanup(retentionDays int) (CleanupResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	cutoffDate := cutoff.Format("20060102")

	files, err := j.allFiles()
	if err != nil {
		return CleanupResult{}, err
	}

	result := CleanupResult{RetentionDays: retentionDays, CutoffDate: cutoffDate}
	for _, f := range files {
		stem := strings.TrimSuffix(f, ".jsonl")
		if len(stem) != 8 {
			j.Logger.Warn("journal file does not match YYYYMMDD pattern, skipping", slog.String("file", f))
			continue
		}
		if stem >= cutoffDate {
			result.KeptCount++
			continue
		}

		path := filepath.Join(j.Dir, f)
		info, statErr := os.Stat(path)
		if statErr == nil {
			result.DeletedBytes += info.Size()
		}
		if err := os.Remove(path); err != nil {
			return result, fmt.Errorf("remove %s: %w", path, err)
		}
		result.DeletedCount++
		result.DeletedFiles = append(result.DeletedFiles, f)
	}

	return result, nil
}
