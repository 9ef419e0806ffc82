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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepConditionDefaults(t *testing.T) {
	c := StepCondition{}
	assert.Equal(t, "text", c.FieldOrDefault())
	assert.Equal(t, MatchEquals, c.MatchOrDefault())
	assert.True(t, c.TrimOrDefault())
	assert.True(t, c.CaseInsensitiveOrDefault())
}

func TestStepConditionExplicitOverrides(t *testing.T) {
	no := false
	c := StepCondition{Field: "status", Match: MatchContains, Trim: &no, CaseInsensitive: &no}
	assert.Equal(t, "status", c.FieldOrDefault())
	assert.Equal(t, MatchContains, c.MatchOrDefault())
	assert.False(t, c.TrimOrDefault())
	assert.False(t, c.CaseInsensitiveOrDefault())
}
