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

package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideflow/tideflow/pkg/workflow/template"
)

func TestExpandStringInterpolation(t *testing.T) {
	e := template.NewEngine()
	ctx := map[string]any{"run_id": "20260101_000000_abcd", "workflow": "daily"}

	result, err := e.Expand("run {{ workflow }} as {{ run_id }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "run daily as 20260101_000000_abcd", result)
}

func TestExpandSingleExpressionPassesThroughType(t *testing.T) {
	e := template.NewEngine()
	ctx := map[string]any{"count": 3}

	result, err := e.Expand("{{ count }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result)
}

func TestExpandWalksMapsAndSequences(t *testing.T) {
	e := template.NewEngine()
	ctx := map[string]any{"name": "ops"}

	input := map[string]any{
		"title": "{{ name | upper }}",
		"tags":  []any{"{{ name }}", "static"},
	}

	result, err := e.Expand(input, ctx)
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, "OPS", out["title"])
	assert.Equal(t, []any{"ops", "static"}, out["tags"])
}

func TestExpandInterpolatesSequenceAsBracketedList(t *testing.T) {
	e := template.NewEngine()
	ctx := map[string]any{"a": []any{1, 2}}

	result, err := e.Expand("v={{ a }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "v=[1, 2]", result)
}

func TestExpandIfBlock(t *testing.T) {
	e := template.NewEngine()

	result, err := e.Expand("{% if score > 5 %}high{% else %}low{% endif %}", map[string]any{"score": 9})
	require.NoError(t, err)
	assert.Equal(t, "high", result)

	result, err = e.Expand("{% if score > 5 %}high{% else %}low{% endif %}", map[string]any{"score": 1})
	require.NoError(t, err)
	assert.Equal(t, "low", result)
}

func TestDefaultFilter(t *testing.T) {
	e := template.NewEngine()

	result, err := e.Expand("{{ missing | default(\"fallback\") }}", map[string]any{"missing": ""})
	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
}

func TestJoinFilter(t *testing.T) {
	e := template.NewEngine()
	ctx := map[string]any{"items": []any{"a", "b", "c"}}

	result, err := e.Expand("{{ items | join(\",\") }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", result)
}

func TestFromJSONFencedBlock(t *testing.T) {
	e := template.NewEngine()
	ctx := map[string]any{"raw": "here you go:\n```json\n{\"ok\": true, \"n\": 2}\n```"}

	result, err := e.Expand("{{ raw | fromjson }}", ctx)
	require.NoError(t, err)
	m := result.(map[string]any)
	assert.Equal(t, true, m["ok"])
}

func TestFromJSONLooseLiteral(t *testing.T) {
	e := template.NewEngine()
	ctx := map[string]any{"raw": "{'name': 'ops', 'count': 3, 'ok': True}"}

	result, err := e.Expand("{{ raw | fromjson }}", ctx)
	require.NoError(t, err)
	m := result.(map[string]any)
	assert.Equal(t, "ops", m["name"])
	assert.Equal(t, int64(3), m["count"])
	assert.Equal(t, true, m["ok"])
}

func TestTojsonUTF8DoesNotEscapeUnicode(t *testing.T) {
	e := template.NewEngine()
	ctx := map[string]any{"value": "日本語"}

	result, err := e.Expand("{{ value | tojson_utf8 }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, `"日本語"`, result)
}
