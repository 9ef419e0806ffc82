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
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tferrors "github.com/tideflow/tideflow/pkg/errors"
	"github.com/tideflow/tideflow/pkg/workflow/template"
)

const defaultStepTimeout = 300 * time.Second

// Executor runs a workflow's steps in order, expanding params through
// the template engine, honoring when-clauses and retry policy, and
// recording a StepRecord for every step that runs or is skipped.
type Executor struct {
	Registry *Registry
	Engine   *template.Engine
	BaseDir  string
	Logger   *slog.Logger
}

// NewExecutor builds an Executor over registry, rooted at baseDir. A
// nil logger falls back to slog.Default().
func NewExecutor(registry *Registry, baseDir string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		Registry: registry,
		Engine:   template.NewEngine(),
		BaseDir:  baseDir,
		Logger:   logger,
	}
}

// GenerateRunID returns a new run identifier in the
// YYYYMMDD_HHMMSS_xxxx form, where xxxx is 4 cryptographically random
// hex characters.
func GenerateRunID(now time.Time) string {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on a supported platform does not fail; if it
		// somehow does, degrade to a fixed suffix rather than panic.
		return now.Format("20060102_150405") + "_0000"
	}
	return now.Format("20060102_150405") + "_" + hex.EncodeToString(buf)
}

// buildContext returns the built-in run context populated before the
// first step executes.
func buildContext(runID, workflowName, baseDir string, now time.Time) map[string]any {
	return map[string]any{
		CtxRunID:     runID,
		CtxWorkflow:  workflowName,
		CtxNow:       now,
		CtxToday:     now.Format("2006-01-02"),
		CtxYesterday: now.AddDate(0, 0, -1).Format("2006-01-02"),
		CtxTomorrow:  now.AddDate(0, 0, 1).Format("2006-01-02"),
		CtxTodayYMD:  now.Format("20060102"),
		CtxNowYMDHMS: now.Format("20060102_150405"),
		CtxBaseDir:   baseDir,
	}
}

// Run executes every step of wf in order and returns the completed
// RunLog. Run never returns an error itself; failures are captured in
// the returned RunLog's Status/Error fields, matching the Python
// original's "catch and record, don't propagate" executor contract.
func (e *Executor) Run(ctx context.Context, wf *Workflow, now time.Time) *RunLog {
	return e.run(ctx, wf, now, nil)
}

// RunNested is like Run but seeds the run context from seed before
// applying the built-ins this executor always owns itself (run_id,
// workflow, base_dir). It is used by the subworkflow action to forward
// only the documented built-ins and explicit params a parent run
// chooses to pass down, plus the call chain used for cycle/depth
// detection.
func (e *Executor) RunNested(ctx context.Context, wf *Workflow, now time.Time, seed map[string]any) *RunLog {
	return e.run(ctx, wf, now, seed)
}

func (e *Executor) run(ctx context.Context, wf *Workflow, now time.Time, seed map[string]any) *RunLog {
	runID := GenerateRunID(now)
	log := &RunLog{
		RunID:     runID,
		Workflow:  wf.Name,
		Status:    StatusRunning,
		StartedAt: now,
		Steps:     make([]StepRecord, 0, len(wf.Steps)),
	}

	runLogger := e.Logger.With(slog.String("run_id", runID), slog.String("workflow", wf.Name))
	runCtx := buildContext(runID, wf.Name, e.BaseDir, now)
	for k, v := range seed {
		switch k {
		case CtxRunID, CtxWorkflow, CtxBaseDir:
			continue
		default:
			runCtx[k] = v
		}
	}

	for _, step := range wf.Steps {
		select {
		case <-ctx.Done():
			e.finish(log, StatusStopped, &tferrors.CancelledError{})
			return log
		default:
		}

		record, err := e.runStep(ctx, step, runCtx, runLogger)
		log.Steps = append(log.Steps, record)

		if err != nil {
			var cancelled *tferrors.CancelledError
			if errors.As(err, &cancelled) {
				e.finish(log, StatusStopped, err)
			} else {
				e.finish(log, StatusFailed, err)
			}
			return log
		}
	}

	e.finish(log, StatusSuccess, nil)
	return log
}

func (e *Executor) finish(log *RunLog, status RunStatus, err error) {
	ended := time.Now()
	log.EndedAt = &ended
	log.Status = status
	if err != nil {
		log.Error = err.Error()
	}
}

// runStep evaluates the step's guard, expands its params, invokes its
// handler with a deadline, and returns the StepRecord to append to the
// run log. A non-nil error means the run must terminate.
func (e *Executor) runStep(ctx context.Context, step Step, runCtx map[string]any, logger *slog.Logger) (StepRecord, error) {
	stepLogger := logger.With(slog.String("step_id", step.ID), slog.String("type", step.Type))

	if step.When != nil {
		matched, reason, err := evaluateWhen(*step.When, runCtx)
		if err != nil {
			return StepRecord{}, err
		}
		if !matched {
			stepLogger.Info("step skipped", slog.String("reason", reason))
			skipResult := map[string]any{"reason": reason, "when": *step.When}
			return StepRecord{ID: step.ID, Type: step.Type, Status: StepSkipped, Result: skipResult, Reason: reason}, nil
		}
	}

	handler, ok := e.Registry.Lookup(step.Type)
	if !ok {
		err := &tferrors.UnknownActionError{Type: step.Type}
		return StepRecord{ID: step.ID, Type: step.Type, Status: StepFailed, Error: err.Error()}, err
	}

	params, err := e.Engine.ExpandParams(step.Params, runCtx)
	if err != nil {
		wrapped := &tferrors.ActionFailureError{StepID: step.ID, Cause: err}
		return StepRecord{ID: step.ID, Type: step.Type, Status: StepFailed, Error: wrapped.Error()}, wrapped
	}

	// The call chain lives in the run context, not in user-authored step
	// params, but the subworkflow action needs it to detect cycles and
	// depth-exhaustion; forward it through like any other built-in.
	if chain, ok := runCtx[CallChainKey]; ok {
		if params == nil {
			params = map[string]any{}
		}
		params[CallChainKey] = chain
	}

	timeout := defaultStepTimeout
	if step.Timeout > 0 {
		timeout = time.Duration(step.Timeout * float64(time.Second))
	}

	retryCfg := ApplyRetryDefaults(step.Retry)

	var result any
	runErr := WithRetry(ctx, retryCfg, func(ctx context.Context, attempt int) error {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, err := invoke(stepCtx, handler, params, step.ID, timeout)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	if runErr != nil {
		return StepRecord{ID: step.ID, Type: step.Type, Status: StepFailed, Error: runErr.Error()}, runErr
	}

	runCtx[step.ID] = result

	return StepRecord{ID: step.ID, Type: step.Type, Status: StepSuccess, Result: result}, nil
}

// invoke calls handler, translating a context deadline into a
// TimeoutError and a caller-initiated cancellation into a
// CancelledError, and any other returned error into an
// ActionFailureError.
func invoke(ctx context.Context, handler ActionFunc, params map[string]any, stepID string, timeout time.Duration) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := handler(ctx, params)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &tferrors.TimeoutError{StepID: stepID, Duration: timeout.String()}
		}
		return nil, &tferrors.CancelledError{StepID: stepID}
	case o := <-done:
		if o.err != nil {
			var classified tferrors.ErrorClassifier
			if errors.As(o.err, &classified) {
				return nil, o.err
			}
			return nil, &tferrors.ActionFailureError{StepID: stepID, Cause: o.err}
		}
		return o.result, nil
	}
}

// evaluateWhen reports whether a step's guard is satisfied, plus a
// machine-readable reason when it is not (or cannot be evaluated):
// "condition_step_missing:<id>" when the referenced step never ran,
// "condition_field_missing:<field>" when it ran but the named field is
// absent from its result, or "condition_not_met" when the field was
// compared but didn't match.
func evaluateWhen(cond StepCondition, runCtx map[string]any) (bool, string, error) {
	stepResult, ok := runCtx[cond.Step]
	if !ok {
		return false, "condition_step_missing:" + cond.Step, nil
	}

	field := cond.FieldOrDefault()
	actual, err := fieldValue(stepResult, field)
	if err != nil {
		return false, "condition_field_missing:" + field, nil
	}

	actualStr := normalize(fmt.Sprint(actual), cond.TrimOrDefault(), cond.CaseInsensitiveOrDefault())
	expectedStr := normalize(fmt.Sprint(cond.Equals), cond.TrimOrDefault(), cond.CaseInsensitiveOrDefault())

	var matched bool
	switch cond.MatchOrDefault() {
	case MatchContains:
		matched = strings.Contains(actualStr, expectedStr)
	default:
		matched = actualStr == expectedStr
	}
	if matched {
		return true, "", nil
	}
	return false, "condition_not_met", nil
}

func fieldValue(result any, field string) (any, error) {
	switch v := result.(type) {
	case map[string]any:
		val, ok := v[field]
		if !ok {
			return nil, fmt.Errorf("field %q not present", field)
		}
		return val, nil
	default:
		if field == "text" {
			return result, nil
		}
		return nil, fmt.Errorf("field %q not present", field)
	}
}

func normalize(s string, trim, caseInsensitive bool) string {
	if trim {
		s = strings.TrimSpace(s)
	}
	if caseInsensitive {
		s = strings.ToLower(s)
	}
	return s
}
