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
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	tferrors "github.com/tideflow/tideflow/pkg/errors"
)

const defaultMaxDepth = 5

// documentedBuiltins lists the run-context keys a nested subworkflow
// call is allowed to inherit from its parent. Anything else in the
// parent's context — including other steps' results — is not
// forwarded, so a nested run only sees what spec §4.10 promises.
var documentedBuiltins = []string{
	CtxRunID, CtxWorkflow, CtxNow, CtxBaseDir,
	CtxToday, CtxYesterday, CtxTomorrow, CtxTodayYMD, CtxNowYMDHMS,
}

// SubworkflowParams is the params shape for the built-in "subworkflow"
// action type.
type SubworkflowParams struct {
	WorkflowName     string
	MaxDepth         int
	ContinueOnError  bool
	Forward          map[string]any
}

// SubworkflowResult is the shape returned to the calling step's
// template context: success, status, the nested run's id, its
// non-skipped step results keyed by step id, and an error message when
// applicable.
type SubworkflowResult struct {
	Success bool           `json:"success"`
	Status  RunStatus      `json:"status"`
	RunID   string         `json:"run_id,omitempty"`
	Results map[string]any `json:"results,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// NewSubworkflowAction returns an ActionFunc that loads and runs
// another workflow from loader, guarding against cycles and excess
// recursion via the reserved _call_chain context key. registry and
// baseDir are used to build the nested Executor.
func NewSubworkflowAction(loader *Loader, registry *Registry, baseDir string) ActionFunc {
	return func(ctx context.Context, params map[string]any) (any, error) {
		return runSubworkflow(ctx, loader, registry, baseDir, params)
	}
}

func runSubworkflow(ctx context.Context, loader *Loader, registry *Registry, baseDir string, params map[string]any) (any, error) {
	name, _ := params["workflow_name"].(string)
	if name == "" {
		return nil, &tferrors.ValidationError{Field: "workflow_name", Message: "workflow_name is required"}
	}

	maxDepth := defaultMaxDepth
	if md, ok := params["max_depth"]; ok {
		if n, err := toInt(md); err == nil {
			maxDepth = n
		}
	}

	continueOnError, _ := params["continue_on_error"].(bool)

	callChain, _ := params[CallChainKey].([]string)
	if callChain == nil {
		if raw, ok := params[CallChainKey].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					callChain = append(callChain, s)
				}
			}
		}
	}

	if err := checkRecursion(name, callChain, maxDepth); err != nil {
		if continueOnError {
			return SubworkflowResult{Success: false, Status: StatusFailed, Error: err.Error()}, nil
		}
		return nil, err
	}

	wf, err := loader.Load(name)
	if err != nil {
		if continueOnError {
			return SubworkflowResult{Success: false, Status: StatusFailed, Error: err.Error()}, nil
		}
		return nil, err
	}

	subCtx := make(map[string]any, len(documentedBuiltins)+len(params))
	for _, key := range documentedBuiltins {
		if v, ok := params[key]; ok {
			subCtx[key] = v
		}
	}
	for k, v := range params {
		switch k {
		case "workflow_name", "max_depth", "continue_on_error", CallChainKey:
			continue
		default:
			subCtx[k] = v
		}
	}
	subCtx[CallChainKey] = append(append([]string{}, callChain...), name)

	traceID := uuid.New().String()
	nestedLogger := slog.Default().With(slog.String("trace_id", traceID), slog.String("parent_call_chain", fmt.Sprint(callChain)))
	executor := NewExecutor(registry, baseDir, nestedLogger)

	runLog := executor.RunNested(ctx, wf, time.Now(), subCtx)

	results := make(map[string]any, len(runLog.Steps))
	for _, step := range runLog.Steps {
		if step.Status == StepSkipped {
			continue
		}
		results[step.ID] = step.Result
	}

	return SubworkflowResult{
		Success: runLog.Status == StatusSuccess,
		Status:  runLog.Status,
		RunID:   runLog.RunID,
		Results: results,
		Error:   runLog.Error,
	}, nil
}

func checkRecursion(name string, callChain []string, maxDepth int) error {
	for _, seen := range callChain {
		if seen == name {
			return &tferrors.RecursionError{Workflow: name, CallChain: callChain, Reason: "cycle"}
		}
	}
	if len(callChain) >= maxDepth {
		return &tferrors.RecursionError{Workflow: name, CallChain: callChain, Reason: "depth"}
	}
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}
