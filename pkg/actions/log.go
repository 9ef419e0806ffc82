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

// Package actions holds the action bodies shipped with tideflow itself.
// Most step types are expected to be registered by the embedding
// application; log is included because the executor's own tests and
// examples need at least one concrete action to exercise end to end.
package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tideflow/tideflow/pkg/workflow"
)

// NewLogAction returns a handler for the "log" step type: it writes
// params["message"] through logger at params["level"] (debug, info,
// warning, or error; default info) and reports {"logged": true,
// "message": message}.
func NewLogAction(logger *slog.Logger) workflow.ActionFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, params map[string]any) (any, error) {
		message, _ := params["message"].(string)
		level, _ := params["level"].(string)
		if level == "" {
			level = "info"
		}

		switch level {
		case "debug":
			logger.Debug(message)
		case "warning":
			logger.Warn(message)
		case "error":
			logger.Error(message)
		case "info":
			logger.Info(message)
		default:
			return nil, fmt.Errorf("unknown log level %q", level)
		}

		return map[string]any{"logged": true, "message": message}, nil
	}
}
