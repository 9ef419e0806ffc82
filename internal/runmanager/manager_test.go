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

package runmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicateRun(t *testing.T) {
	m := New()
	_, err := m.Register(context.Background(), "daily")
	require.NoError(t, err)

	_, err = m.Register(context.Background(), "daily")
	assert.Error(t, err)
}

func TestUnregisterAllowsReRegistration(t *testing.T) {
	m := New()
	_, err := m.Register(context.Background(), "daily")
	require.NoError(t, err)

	m.Unregister("daily")
	assert.False(t, m.IsRunning("daily"))

	_, err = m.Register(context.Background(), "daily")
	assert.NoError(t, err)
}

func TestUnregisterIsIdempotentForUnknownName(t *testing.T) {
	m := New()
	assert.NotPanics(t, func() { m.Unregister("never-registered") })
}

func TestCancelCancelsDerivedContext(t *testing.T) {
	m := New()
	runCtx, err := m.Register(context.Background(), "daily")
	require.NoError(t, err)

	assert.True(t, m.Cancel("daily"))

	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
}

func TestCancelReturnsFalseForUnknownName(t *testing.T) {
	m := New()
	assert.False(t, m.Cancel("ghost"))
}

func TestNamesReflectsCurrentlyRunning(t *testing.T) {
	m := New()
	_, err := m.Register(context.Background(), "a")
	require.NoError(t, err)
	_, err = m.Register(context.Background(), "b")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "b"}, m.Names())

	m.Unregister("a")
	assert.Equal(t, []string{"b"}, m.Names())
}
