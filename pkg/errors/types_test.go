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

package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	tferrors "github.com/tideflow/tideflow/pkg/errors"
)

func TestLoadError(t *testing.T) {
	cause := errors.New("no such file")
	err := &tferrors.LoadError{Workflow: "daily_report", Reason: "file missing", Cause: cause}

	assert.Contains(t, err.Error(), "daily_report")
	assert.Contains(t, err.Error(), "file missing")
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.IsRetryable())
}

func TestUnknownActionError(t *testing.T) {
	err := &tferrors.UnknownActionError{Type: "unknown_xyz"}
	assert.Equal(t, "Unknown action type: unknown_xyz", err.Error())
}

func TestActionFailureErrorUnwraps(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := &tferrors.ActionFailureError{StepID: "step2", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
}

func TestRecursionErrorMessages(t *testing.T) {
	cycle := &tferrors.RecursionError{Workflow: "a", CallChain: []string{"a", "b"}, Reason: "cycle"}
	assert.Contains(t, cycle.Error(), "circular")

	depth := &tferrors.RecursionError{CallChain: []string{"a", "b", "c"}, Reason: "depth"}
	assert.Contains(t, depth.Error(), "depth exceeded")
}

func TestRetryExhaustedErrorDelegatesMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := &tferrors.RetryExhaustedError{Attempts: 3, Cause: cause}
	assert.Equal(t, "connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestCancelledErrorWithAndWithoutStep(t *testing.T) {
	assert.Equal(t, "cancelled", (&tferrors.CancelledError{}).Error())
	assert.Equal(t, "step s1 cancelled", (&tferrors.CancelledError{StepID: "s1"}).Error())
}

func TestConfigErrorUnwraps(t *testing.T) {
	cause := errors.New("permission denied")
	err := &tferrors.ConfigError{Key: "base_dir", Reason: "could not create directory", Cause: cause}

	assert.Contains(t, err.Error(), "base_dir")
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.IsRetryable())
}
