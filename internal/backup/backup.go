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

// Package backup snapshots workflow definition files before they're
// overwritten, and prunes old snapshots down to a configured count.
package backup

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const defaultMaxBackups = 10

// Manager writes and prunes per-workflow snapshot directories under
// Dir/<workflow-name>/<YYYYMMDD_HHMMSS>.yaml.
type Manager struct {
	Dir        string
	MaxBackups int
}

// New returns a Manager rooted at dir, keeping the newest max backups
// per workflow (max <= 0 uses the default of 10).
func New(dir string, max int) *Manager {
	if max <= 0 {
		max = defaultMaxBackups
	}
	return &Manager{Dir: dir, MaxBackups: max}
}

// Backup writes content as a new timestamped snapshot for workflow
// name, then prunes that workflow's backups down to MaxBackups. Entries
// are ordered by their YYYYMMDD_HHMMSS filename stem, which sorts
// lexically the same as chronologically — no dependency on filesystem
// mtime, which can be rewritten by file copies and syncs.
func (m *Manager) Backup(name string, content []byte, now time.Time) (string, error) {
	dir := filepath.Join(m.Dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	filename := now.Format("20060102_150405") + ".yaml"
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}

	if err := m.prune(name); err != nil {
		return path, err
	}
	return path, nil
}

// List returns name's backup filenames, newest first.
func (m *Manager) List(name string) ([]string, error) {
	dir := filepath.Join(m.Dir, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			files = append(files, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

func (m *Manager) prune(name string) error {
	files, err := m.List(name)
	if err != nil {
		return err
	}
	if len(files) <= m.MaxBackups {
		return nil
	}

	for _, stale := range files[m.MaxBackups:] {
		if err := os.Remove(filepath.Join(m.Dir, name, stale)); err != nil {
			return err
		}
	}
	return nil
}
