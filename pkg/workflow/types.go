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

// Package workflow holds the in-memory workflow model, loader, template
// engine, retry helper, action registry, and executor that together turn
// a YAML workflow definition into a run.
package workflow

import "time"

// TriggerType identifies how a workflow is started.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerWebhook  TriggerType = "webhook"
)

// Trigger describes how a workflow may be started. Exactly one of the
// type-specific fields is populated, matching Type.
type Trigger struct {
	Type TriggerType `yaml:"type"`

	// Cron is the 5-field cron expression. Required when Type is
	// TriggerSchedule.
	Cron string `yaml:"cron,omitempty"`

	// Path is an optional identifying path for a webhook trigger. Unused
	// by TriggerManual and TriggerSchedule.
	Path string `yaml:"path,omitempty"`
}

// MatchKind selects how a StepCondition compares a step's result field
// against Equals.
type MatchKind string

const (
	MatchEquals   MatchKind = "equals"
	MatchContains MatchKind = "contains"
)

// StepCondition gates execution of a step on the outcome of a previously
// executed step. Step refers to another step's ID; Field names a key in
// that step's recorded result (default "text"). When Match is
// MatchContains, the step's actual field value must contain Equals as a
// substring; when MatchEquals (the default), the two must match exactly
// after normalization.
type StepCondition struct {
	Step            string    `yaml:"step" json:"step"`
	Field           string    `yaml:"field,omitempty" json:"field,omitempty"`
	Equals          any       `yaml:"equals" json:"equals"`
	Match           MatchKind `yaml:"match,omitempty" json:"match,omitempty"`
	Trim            *bool     `yaml:"trim,omitempty" json:"trim,omitempty"`
	CaseInsensitive *bool     `yaml:"case_insensitive,omitempty" json:"case_insensitive,omitempty"`
}

// FieldOrDefault returns Field, defaulting to "text".
func (c StepCondition) FieldOrDefault() string {
	if c.Field == "" {
		return "text"
	}
	return c.Field
}

// MatchOrDefault returns Match, defaulting to MatchEquals.
func (c StepCondition) MatchOrDefault() MatchKind {
	if c.Match == "" {
		return MatchEquals
	}
	return c.Match
}

// TrimOrDefault returns Trim, defaulting to true.
func (c StepCondition) TrimOrDefault() bool {
	if c.Trim == nil {
		return true
	}
	return *c.Trim
}

// CaseInsensitiveOrDefault returns CaseInsensitive, defaulting to true.
func (c StepCondition) CaseInsensitiveOrDefault() bool {
	if c.CaseInsensitive == nil {
		return true
	}
	return *c.CaseInsensitive
}

// Retry configures the bounded-retry behavior for a single step.
type Retry struct {
	MaxAttempts int     `yaml:"max_attempts,omitempty"`
	Delay       float64 `yaml:"delay,omitempty"`
	Backoff     float64 `yaml:"backoff,omitempty"`
}

// Step is one unit of work inside a workflow. Params are expanded
// through the template engine against the run context immediately
// before the step executes; When, if present, must be satisfied or the
// step is skipped without invoking its handler.
type Step struct {
	ID      string         `yaml:"id,omitempty"`
	Type    string         `yaml:"type"`
	Params  map[string]any `yaml:"params,omitempty"`
	When    *StepCondition `yaml:"when,omitempty"`
	Retry   *Retry         `yaml:"retry,omitempty"`
	Timeout float64        `yaml:"timeout,omitempty"`
	Meta    map[string]any `yaml:"meta,omitempty"`
}

// Workflow is the parsed, validated, defaulted in-memory form of a
// workflow definition file.
type Workflow struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Folder      string  `yaml:"folder,omitempty"`
	Enabled     bool    `yaml:"enabled"`
	Trigger     Trigger `yaml:"trigger"`
	Steps       []Step  `yaml:"steps"`
}

// RunStatus is the terminal (or in-flight) disposition of a run.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusFailed  RunStatus = "failed"
	StatusStopped RunStatus = "stopped"
)

// StepStatus is the per-step outcome recorded in a RunLog.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepRecord is the journal entry for a single executed (or skipped)
// step.
type StepRecord struct {
	ID     string     `json:"id"`
	Type   string     `json:"type"`
	Status StepStatus `json:"status"`
	Result any        `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// RunLog is the full record of one workflow run, as persisted to the
// run journal.
type RunLog struct {
	RunID     string       `json:"run_id"`
	Workflow  string       `json:"workflow"`
	Status    RunStatus    `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Error     string       `json:"error,omitempty"`
	Steps     []StepRecord `json:"steps"`
}

// CallChainKey is the reserved context key the subworkflow action uses
// to detect cycles and depth-exhaustion across nested runs.
const CallChainKey = "_call_chain"

// Built-in run context keys populated by the executor before the first
// step runs.
const (
	CtxRunID    = "run_id"
	CtxWorkflow = "workflow"
	CtxNow      = "now"
	CtxToday    = "today"
	CtxYesterday = "yesterday"
	CtxTomorrow = "tomorrow"
	CtxTodayYMD = "today_ymd"
	CtxNowYMDHMS = "now_ymd_hms"
	CtxBaseDir  = "base_dir"
)
