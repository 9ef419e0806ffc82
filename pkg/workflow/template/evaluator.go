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

// Package template expands {{ expr }} interpolation and a narrow
// {% if %}...{% else %}...{% endif %} block subset against a run
// context, walking maps, sequences, and strings. Expansion is pure:
// given the same input and context it always produces the same
// output, and it never mutates the context it reads from.
package template

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator compiles and caches expr-lang programs for the {{ }}
// fragments found in workflow step params.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
	env   map[string]any
}

// NewEvaluator returns an Evaluator with the standard filter functions
// registered.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
		env:   filterEnv(),
	}
}

// Eval compiles (or reuses a cached compilation of) expression and runs
// it against ctx merged with the registered filter functions.
func (e *Evaluator) Eval(expression string, ctx map[string]any) (any, error) {
	program, err := e.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}

	runEnv := make(map[string]any, len(ctx)+len(e.env))
	for k, v := range e.env {
		runEnv[k] = v
	}
	for k, v := range ctx {
		runEnv[k] = v
	}

	result, err := expr.Run(program, runEnv)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expression, err)
	}
	return result, nil
}

// EvalBool evaluates expression and requires a boolean result, used for
// {% if %} conditions.
func (e *Evaluator) EvalBool(expression string, ctx map[string]any) (bool, error) {
	result, err := e.Eval(expression, ctx)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not evaluate to a boolean, got %T", expression, result)
	}
	return b, nil
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression, expr.Env(e.env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}

// ClearCache empties the compiled-expression cache.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.mu.Unlock()
}
