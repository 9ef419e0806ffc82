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

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCron("0 * * *")
	assert.Error(t, err)
}

func TestParseCronAliases(t *testing.T) {
	expr, err := ParseCron("@daily")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, expr.minute)
	assert.Equal(t, []int{0}, expr.hour)
}

func TestParseCronStepValues(t *testing.T) {
	expr, err := ParseCron("*/15 * * * *")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 15, 30, 45}, expr.minute)
}

func TestParseCronWeekdayRange(t *testing.T) {
	expr, err := ParseCron("0 9 * * 1-5")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, expr.dayOfWeek)
}

func TestCronExprNextAdvancesToNextMatchingMinute(t *testing.T) {
	expr, err := ParseCron("0 * * * *")
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	next := expr.Next(from)

	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), next)
}

func TestCronExprNextSkipsToNextEnabledDayOfWeek(t *testing.T) {
	expr, err := ParseCron("0 9 * * 1")
	require.NoError(t, err)

	from := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC) // a Friday
	next := expr.Next(from)

	assert.Equal(t, time.Monday, next.Weekday())
}

func TestParseCronRejectsOutOfRangeValue(t *testing.T) {
	_, err := ParseCron("60 * * * *")
	assert.Error(t, err)
}
