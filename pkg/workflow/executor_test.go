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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoAction(ctx context.Context, params map[string]any) (any, error) {
	return params, nil
}

func TestExecutorRunAllStepsSucceed(t *testing.T) {
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"logged": true}, nil
	})

	wf := &Workflow{
		Name: "two-steps",
		Steps: []Step{
			{ID: "a", Type: "log"},
			{ID: "b", Type: "log"},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	assert.Equal(t, StatusSuccess, runLog.Status)
	require.Len(t, runLog.Steps, 2)
	assert.Equal(t, StepSuccess, runLog.Steps[0].Status)
	assert.Equal(t, StepSuccess, runLog.Steps[1].Status)
	assert.NotNil(t, runLog.EndedAt)
}

func TestExecutorRunStopsAtFirstFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	})
	registry.Register("explode", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	wf := &Workflow{
		Name: "fails-fast",
		Steps: []Step{
			{ID: "a", Type: "explode", Retry: &Retry{MaxAttempts: 1}},
			{ID: "b", Type: "log"},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	assert.Equal(t, StatusFailed, runLog.Status)
	require.Len(t, runLog.Steps, 1)
	assert.Equal(t, StepFailed, runLog.Steps[0].Status)
	assert.NotEmpty(t, runLog.Error)
}

func TestExecutorSkipsStepWhenConditionUnsatisfied(t *testing.T) {
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"text": "no"}, nil
	})

	wf := &Workflow{
		Name: "conditional",
		Steps: []Step{
			{ID: "a", Type: "log"},
			{ID: "b", Type: "log", When: &StepCondition{Step: "a", Equals: "yes"}},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	assert.Equal(t, StatusSuccess, runLog.Status)
	require.Len(t, runLog.Steps, 2)
	assert.Equal(t, StepSkipped, runLog.Steps[1].Status)
	assert.Equal(t, "condition_not_met", runLog.Steps[1].Reason)

	result, ok := runLog.Steps[1].Result.(map[string]any)
	require.True(t, ok, "skipped step must record a result with reason and when")
	assert.Equal(t, "condition_not_met", result["reason"])
	assert.Equal(t, StepCondition{Step: "a", Equals: "yes"}, result["when"])
}

func TestExecutorSkipReasonNamesMissingConditionStep(t *testing.T) {
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	})

	wf := &Workflow{
		Name: "missing-condition-step",
		Steps: []Step{
			{ID: "a", Type: "log", When: &StepCondition{Step: "never_ran", Equals: "x"}},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	assert.Equal(t, StepSkipped, runLog.Steps[0].Status)
	assert.Equal(t, "condition_step_missing:never_ran", runLog.Steps[0].Reason)
}

func TestExecutorRunsStepWhenConditionMatches(t *testing.T) {
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"text": "YES"}, nil
	})

	wf := &Workflow{
		Name: "conditional-match",
		Steps: []Step{
			{ID: "a", Type: "log"},
			{ID: "b", Type: "log", When: &StepCondition{Step: "a", Equals: "yes"}},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	assert.Equal(t, StatusSuccess, runLog.Status)
	assert.Equal(t, StepSuccess, runLog.Steps[1].Status)
}

func TestExecutorExposesPriorStepResultsAtTopLevelForTemplating(t *testing.T) {
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"text": "hi"}, nil
	})
	registry.Register("echo", echoAction)

	wf := &Workflow{
		Name: "cross-step-reference",
		Steps: []Step{
			{ID: "step1", Type: "log"},
			{ID: "step2", Type: "echo", Params: map[string]any{"message": "{{ step1.text }}!"}},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	require.Equal(t, StatusSuccess, runLog.Status)
	result, ok := runLog.Steps[1].Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi!", result["message"])
}

func TestExecutorMatchesWhenEqualsIsNonStringJSONValue(t *testing.T) {
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"count": 3}, nil
	})

	wf := &Workflow{
		Name: "numeric-condition",
		Steps: []Step{
			{ID: "a", Type: "log"},
			{ID: "b", Type: "log", When: &StepCondition{Step: "a", Field: "count", Equals: 3}},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	assert.Equal(t, StatusSuccess, runLog.Status)
	assert.Equal(t, StepSuccess, runLog.Steps[1].Status)
}

func TestExecutorReportsUnknownActionType(t *testing.T) {
	registry := NewRegistry()
	wf := &Workflow{
		Name:  "missing-handler",
		Steps: []Step{{ID: "a", Type: "nope"}},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	assert.Equal(t, StatusFailed, runLog.Status)
	assert.Contains(t, runLog.Error, "nope")
}

func TestExecutorExpandsParamsAgainstBuiltinContext(t *testing.T) {
	var seen map[string]any
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		seen = params
		return "ok", nil
	})

	wf := &Workflow{
		Name: "templated",
		Steps: []Step{
			{ID: "a", Type: "log", Params: map[string]any{"message": "{{ workflow }}"}},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	require.Equal(t, StatusSuccess, runLog.Status)
	assert.Equal(t, "templated", seen["message"])
}

func TestExecutorRetriesActionFailureUntilSuccess(t *testing.T) {
	attempts := 0
	registry := NewRegistry()
	registry.Register("flaky", func(ctx context.Context, params map[string]any) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	})

	wf := &Workflow{
		Name: "retrying",
		Steps: []Step{
			{ID: "a", Type: "flaky", Retry: &Retry{MaxAttempts: 3, Delay: 0.001, Backoff: 1}},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	assert.Equal(t, StatusSuccess, runLog.Status)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "recovered", runLog.Steps[0].Result)
}

func TestExecutorTimesOutSlowStep(t *testing.T) {
	registry := NewRegistry()
	registry.Register("slow", func(ctx context.Context, params map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	wf := &Workflow{
		Name: "slow-workflow",
		Steps: []Step{
			{ID: "a", Type: "slow", Timeout: 0.01, Retry: &Retry{MaxAttempts: 1}},
		},
	}

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(context.Background(), wf, time.Now())

	assert.Equal(t, StatusFailed, runLog.Status)
	assert.Contains(t, runLog.Error, "timed out")
}

func TestExecutorStopsRunWhenContextCancelledBeforeStep(t *testing.T) {
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	})

	wf := &Workflow{
		Name:  "cancel-before",
		Steps: []Step{{ID: "a", Type: "log"}, {ID: "b", Type: "log"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(registry, "/base", nil)
	runLog := exec.Run(ctx, wf, time.Now())

	assert.Equal(t, StatusStopped, runLog.Status)
	assert.Empty(t, runLog.Steps)
}

func TestGenerateRunIDFormat(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)
	id := GenerateRunID(now)
	assert.Contains(t, id, "20260731_103000_")
	assert.Len(t, id, len("20260731_103000_")+4)
}
