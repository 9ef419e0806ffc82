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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSubworkflow(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644))
}

func newSubworkflowRegistry(loader *Loader, baseDir string) *Registry {
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"text": "child ran"}, nil
	})
	registry.Register("subworkflow", NewSubworkflowAction(loader, registry, baseDir))
	return registry
}

func TestSubworkflowRunsNestedWorkflowAndCollectsResults(t *testing.T) {
	dir := t.TempDir()
	writeSubworkflow(t, dir, "child", `
name: child
trigger:
  type: manual
steps:
  - id: only
    type: log
`)

	loader := NewLoader(dir)
	registry := newSubworkflowRegistry(loader, dir)

	result, err := runSubworkflow(context.Background(), loader, registry, dir, map[string]any{
		"workflow_name": "child",
	})
	require.NoError(t, err)

	sub := result.(SubworkflowResult)
	assert.True(t, sub.Success)
	assert.Equal(t, StatusSuccess, sub.Status)
	assert.Equal(t, map[string]any{"text": "child ran"}, sub.Results["only"])
}

func TestSubworkflowRequiresWorkflowName(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir)
	registry := newSubworkflowRegistry(loader, dir)

	_, err := runSubworkflow(context.Background(), loader, registry, dir, map[string]any{})
	assert.Error(t, err)
}

func TestSubworkflowDetectsDirectCycle(t *testing.T) {
	dir := t.TempDir()
	writeSubworkflow(t, dir, "looper", `
name: looper
trigger:
  type: manual
steps:
  - id: call
    type: subworkflow
    params:
      workflow_name: looper
`)

	loader := NewLoader(dir)
	registry := newSubworkflowRegistry(loader, dir)

	_, err := runSubworkflow(context.Background(), loader, registry, dir, map[string]any{
		"workflow_name": "looper",
		CallChainKey:    []string{"looper"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestSubworkflowEnforcesMaxDepth(t *testing.T) {
	dir := t.TempDir()
	writeSubworkflow(t, dir, "child", `
name: child
trigger:
  type: manual
steps:
  - id: only
    type: log
`)
	loader := NewLoader(dir)
	registry := newSubworkflowRegistry(loader, dir)

	_, err := runSubworkflow(context.Background(), loader, registry, dir, map[string]any{
		"workflow_name": "child",
		"max_depth":     2,
		CallChainKey:    []string{"a", "b"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}

func TestSubworkflowContinueOnErrorReturnsFailedResultInsteadOfError(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir)
	registry := newSubworkflowRegistry(loader, dir)

	result, err := runSubworkflow(context.Background(), loader, registry, dir, map[string]any{
		"workflow_name":     "does-not-exist",
		"continue_on_error": true,
	})
	require.NoError(t, err)

	sub := result.(SubworkflowResult)
	assert.False(t, sub.Success)
	assert.Equal(t, StatusFailed, sub.Status)
	assert.NotEmpty(t, sub.Error)
}

func TestSubworkflowForwardsOnlyDocumentedBuiltinsAndExplicitParams(t *testing.T) {
	dir := t.TempDir()
	writeSubworkflow(t, dir, "inspector", `
name: inspector
trigger:
  type: manual
steps:
  - id: report
    type: log
    params:
      message: "{{ base_dir }}-{{ extra }}"
`)

	var seenParams map[string]any
	loader := NewLoader(dir)
	registry := NewRegistry()
	registry.Register("log", func(ctx context.Context, params map[string]any) (any, error) {
		seenParams = params
		return map[string]any{"text": "ok"}, nil
	})
	registry.Register("subworkflow", NewSubworkflowAction(loader, registry, dir))

	_, err := runSubworkflow(context.Background(), loader, registry, dir, map[string]any{
		"workflow_name": "inspector",
		CtxBaseDir:      dir,
		"extra":         "forwarded",
	})
	require.NoError(t, err)
	assert.Equal(t, dir+"-forwarded", seenParams["message"])
}

func TestCheckRecursionAllowsFreshCallChain(t *testing.T) {
	assert.NoError(t, checkRecursion("a", nil, 5))
}
