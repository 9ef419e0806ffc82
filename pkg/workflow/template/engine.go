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

package template

import (
	"fmt"
	"regexp"
	"strings"
)

// Engine expands step params against a run context. It wraps an
// Evaluator so compiled expressions are reused across steps and runs.
type Engine struct {
	eval *Evaluator
}

// NewEngine returns an Engine with a fresh Evaluator.
func NewEngine() *Engine {
	return &Engine{eval: NewEvaluator()}
}

var (
	expressionPattern = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)
	wholeExpression    = regexp.MustCompile(`^\{\{\s*(.*?)\s*\}\}$`)
	ifBlockPattern     = regexp.MustCompile(`(?s)\{%\s*if\s+(.+?)\s*%\}(.*?)(?:\{%\s*else\s*%\}(.*?))?\{%\s*endif\s*%\}`)
)

// Expand walks value recursively: maps are expanded key-by-key with
// keys left unchanged, sequences element-by-element, strings are run
// through {{ }}/{% if %} expansion, and every other scalar is returned
// unchanged.
func (e *Engine) Expand(value any, ctx map[string]any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			expanded, err := e.Expand(elem, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			expanded, err := e.Expand(elem, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	case string:
		return e.expandString(v, ctx)
	default:
		return v, nil
	}
}

// ExpandParams expands every value of a params map, the form step
// params are always given in.
func (e *Engine) ExpandParams(params map[string]any, ctx map[string]any) (map[string]any, error) {
	expanded, err := e.Expand(map[string]any(params), ctx)
	if err != nil {
		return nil, err
	}
	return expanded.(map[string]any), nil
}

func (e *Engine) expandString(s string, ctx map[string]any) (any, error) {
	if ifBlockPattern.MatchString(s) {
		resolved, err := e.resolveIfBlock(s, ctx)
		if err != nil {
			return nil, err
		}
		return e.expandString(resolved, ctx)
	}

	if m := wholeExpression.FindStringSubmatch(s); m != nil {
		return e.eval.Eval(m[1], ctx)
	}

	var evalErr error
	result := expressionPattern.ReplaceAllStringFunc(s, func(match string) string {
		if evalErr != nil {
			return match
		}
		sub := expressionPattern.FindStringSubmatch(match)
		value, err := e.eval.Eval(sub[1], ctx)
		if err != nil {
			evalErr = err
			return match
		}
		return stringify(value)
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return result, nil
}

func (e *Engine) resolveIfBlock(s string, ctx map[string]any) (string, error) {
	var outerErr error
	resolved := ifBlockPattern.ReplaceAllStringFunc(s, func(match string) string {
		if outerErr != nil {
			return match
		}
		m := ifBlockPattern.FindStringSubmatch(match)
		cond, thenBranch, elseBranch := m[1], m[2], m[3]

		ok, err := e.eval.EvalBool(cond, ctx)
		if err != nil {
			outerErr = fmt.Errorf("if condition %q: %w", cond, err)
			return match
		}
		if ok {
			return thenBranch
		}
		return elseBranch
	})
	if outerErr != nil {
		return "", outerErr
	}
	return resolved, nil
}

// stringify renders a value for inline substitution into a larger
// string. nil becomes the empty string; sequences render as
// comma-separated, bracketed lists (matching Python's str(list));
// everything else uses its natural text representation.
func stringify(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	if seq, ok := value.([]any); ok {
		elems := make([]string, len(seq))
		for i, elem := range seq {
			elems[i] = stringify(elem)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
