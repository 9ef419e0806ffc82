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

// Package secrets resolves integration API keys per spec §6: one
// environment variable per integration takes precedence over a
// secrets/*.txt file of the same name; if neither is present, the
// action must fail naming both. A third, optional tier resolves from
// the OS keychain for operators who prefer not to touch the
// filesystem or environment at all.
package secrets

import "fmt"

// ErrorCategory classifies why a secret could not be resolved.
type ErrorCategory string

const (
	ErrorCategoryNotFound     ErrorCategory = "NOT_FOUND"
	ErrorCategoryAccessDenied ErrorCategory = "ACCESS_DENIED"
	ErrorCategoryInvalidInput ErrorCategory = "INVALID_INPUT"
)

// ResolutionError reports a failed secret lookup. Messages are built
// from the integration name, never from the resolved value, so a log
// line can never leak a secret.
type ResolutionError struct {
	Integration string
	EnvVar      string
	FilePath    string
	Category    ErrorCategory
	Message     string
	Cause       error
}

func (e *ResolutionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("secret for %q: %s", e.Integration, e.Message)
	}
	return fmt.Sprintf("secret for %q not found: checked env var %s and file %s", e.Integration, e.EnvVar, e.FilePath)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }
