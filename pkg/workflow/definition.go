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

package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	tferrors "github.com/tideflow/tideflow/pkg/errors"
)

// Loader reads workflow definition files from a directory. Files must
// have a .yaml or .yml extension; the workflow name is the file stem.
type Loader struct {
	Dir string
}

// NewLoader returns a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// yamlFiles returns the *.yaml/*.yml files in the loader's directory,
// sorted by file stem.
func (l *Loader) yamlFiles() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, entry.Name())
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return stem(files[i]) < stem(files[j])
	})
	return files, nil
}

func stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func (l *Loader) pathFor(name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.Dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("not found")
}

// Load reads and validates the workflow named name (without extension).
// It returns a *LoadError for a missing file, a YAML syntax error, or a
// schema validation failure — the three causes spec §4.3 distinguishes.
func (l *Loader) Load(name string) (*Workflow, error) {
	path, err := l.pathFor(name)
	if err != nil {
		return nil, &tferrors.LoadError{Workflow: name, Reason: "file not found", Cause: err}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &tferrors.LoadError{Workflow: name, Reason: "could not read file", Cause: err}
	}

	return ParseDefinition(name, content)
}

// GetYAML returns the raw file content for name, for editors and the
// Backup Manager.
func (l *Loader) GetYAML(name string) ([]byte, error) {
	path, err := l.pathFor(name)
	if err != nil {
		return nil, &tferrors.LoadError{Workflow: name, Reason: "file not found", Cause: err}
	}
	return os.ReadFile(path)
}

// Info is the list-summary shape returned by List: enough to render a
// workflow picker without parsing every file in full if parsing fails.
type Info struct {
	Name      string
	Filename  string
	Enabled   bool
	IsValid   bool
	Error     string
	Trigger   TriggerType
	Cron      string
	StepCount int
}

// List scans the directory and returns one Info per workflow file,
// sorted by name. A file that fails to parse still produces an Info
// with IsValid=false and Error populated, rather than aborting the scan.
func (l *Loader) List() ([]Info, error) {
	files, err := l.yamlFiles()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(files))
	for _, f := range files {
		name := stem(f)
		wf, err := l.Load(name)
		if err != nil {
			infos = append(infos, Info{Name: name, Filename: f, IsValid: false, Error: err.Error()})
			continue
		}
		infos = append(infos, Info{
			Name:      wf.Name,
			Filename:  f,
			Enabled:   wf.Enabled,
			IsValid:   true,
			Trigger:   wf.Trigger.Type,
			Cron:      wf.Trigger.Cron,
			StepCount: len(wf.Steps),
		})
	}
	return infos, nil
}

// ParseDefinition unmarshals content as a workflow, auto-generates
// missing step IDs, applies defaults, and validates the result.
func ParseDefinition(name string, content []byte) (*Workflow, error) {
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, &tferrors.LoadError{Workflow: name, Reason: "file is empty"}
	}

	var wf Workflow
	if err := yaml.Unmarshal(content, &wf); err != nil {
		return nil, &tferrors.LoadError{Workflow: name, Reason: "invalid YAML", Cause: err}
	}

	wf.Enabled = defaultEnabled(content, wf.Enabled)
	autoGenerateStepIDs(&wf)

	if err := wf.Validate(); err != nil {
		return nil, &tferrors.LoadError{Workflow: name, Reason: "schema validation failed", Cause: err}
	}

	return &wf, nil
}

// defaultEnabled re-parses the raw document to distinguish "enabled not
// present" (defaults to true) from "enabled: false" (yaml.Unmarshal
// zero-values bool fields identically in both cases).
func defaultEnabled(content []byte, parsed bool) bool {
	if parsed {
		return true
	}
	var probe struct {
		Enabled *bool `yaml:"enabled"`
	}
	if err := yaml.Unmarshal(content, &probe); err != nil || probe.Enabled == nil {
		return true
	}
	return *probe.Enabled
}

// autoGenerateStepIDs assigns "{type}_{n}" IDs to steps left without an
// explicit id, avoiding collisions with explicit IDs already present.
func autoGenerateStepIDs(wf *Workflow) {
	explicit := make(map[string]bool)
	for _, s := range wf.Steps {
		if s.ID != "" {
			explicit[s.ID] = true
		}
	}

	counts := make(map[string]int)
	for i := range wf.Steps {
		if wf.Steps[i].ID != "" {
			continue
		}
		t := wf.Steps[i].Type
		for {
			counts[t]++
			candidate := fmt.Sprintf("%s_%d", t, counts[t])
			if !explicit[candidate] {
				wf.Steps[i].ID = candidate
				explicit[candidate] = true
				break
			}
		}
	}
}

// Validate checks structural invariants that YAML unmarshaling alone
// cannot enforce: a name, at least one step, a recognized trigger, and
// well-formed step conditions.
func (w *Workflow) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return &tferrors.ValidationError{Field: "name", Message: "workflow name is required"}
	}
	if len(w.Steps) == 0 {
		return &tferrors.ValidationError{Field: "steps", Message: "workflow must have at least one step"}
	}

	switch w.Trigger.Type {
	case TriggerManual:
	case TriggerSchedule:
		if strings.TrimSpace(w.Trigger.Cron) == "" {
			return &tferrors.ValidationError{Field: "trigger.cron", Message: "schedule trigger requires a cron expression"}
		}
	case TriggerWebhook:
	default:
		return &tferrors.ValidationError{
			Field:      "trigger.type",
			Message:    fmt.Sprintf("unknown trigger type %q", w.Trigger.Type),
			Suggestion: "use manual, schedule, or webhook",
		}
	}

	seen := make(map[string]bool)
	for i, s := range w.Steps {
		if strings.TrimSpace(s.Type) == "" {
			return &tferrors.ValidationError{Field: fmt.Sprintf("steps[%d].type", i), Message: "step type is required"}
		}
		if s.ID == "" {
			return &tferrors.ValidationError{Field: fmt.Sprintf("steps[%d].id", i), Message: "step id could not be determined"}
		}
		if seen[s.ID] {
			return &tferrors.ValidationError{Field: fmt.Sprintf("steps[%d].id", i), Message: fmt.Sprintf("duplicate step id %q", s.ID)}
		}
		seen[s.ID] = true

		if s.When != nil {
			if s.When.Step == "" {
				return &tferrors.ValidationError{Field: fmt.Sprintf("steps[%d].when.step", i), Message: "when.step is required"}
			}
			if s.When.Match != "" && s.When.Match != MatchEquals && s.When.Match != MatchContains {
				return &tferrors.ValidationError{
					Field:      fmt.Sprintf("steps[%d].when.match", i),
					Message:    fmt.Sprintf("unknown match kind %q", s.When.Match),
					Suggestion: "use equals or contains",
				}
			}
		}
	}

	return nil
}
