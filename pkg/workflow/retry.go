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
	"errors"
	"math"
	"time"

	tferrors "github.com/tideflow/tideflow/pkg/errors"
)

// defaultMaxAttempts, defaultDelay and defaultBackoff mirror the
// defaults applied to a step with no explicit Retry block.
const (
	defaultMaxAttempts = 2
	defaultDelay       = 1.0
	defaultBackoff     = 2.0
)

// ApplyRetryDefaults fills in zero-valued Retry fields with the
// package defaults.
func ApplyRetryDefaults(r *Retry) Retry {
	if r == nil {
		return Retry{MaxAttempts: defaultMaxAttempts, Delay: defaultDelay, Backoff: defaultBackoff}
	}
	out := *r
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.Delay <= 0 {
		out.Delay = defaultDelay
	}
	if out.Backoff <= 0 {
		out.Backoff = defaultBackoff
	}
	return out
}

// retryable reports whether err should trigger another attempt. An
// error that implements tferrors.ErrorClassifier is asked directly;
// anything else is treated as retryable, matching the conservative
// default of retrying on any failure unless it's known not to help
// (e.g. a validation or unknown-action error).
func retryable(err error) bool {
	var classifier tferrors.ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.IsRetryable()
	}
	return true
}

// WithRetry calls fn up to cfg.MaxAttempts times. The wait before
// attempt k (1-indexed, k > 1) is cfg.Delay * cfg.Backoff^(k-2), so the
// first retry waits exactly cfg.Delay. If every
// attempt fails, the last error is returned wrapped in
// RetryExhaustedError, whose Error() delegates to the wrapped cause so
// the message is unchanged from the caller's point of view. A
// non-retryable error returns immediately without exhausting the
// remaining attempts.
func WithRetry(ctx context.Context, cfg Retry, fn func(ctx context.Context, attempt int) error) error {
	cfg = ApplyRetryDefaults(&cfg)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := cfg.Delay * math.Pow(cfg.Backoff, float64(attempt-2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(wait * float64(time.Second))):
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}

	return &tferrors.RetryExhaustedError{Attempts: cfg.MaxAttempts, Cause: lastErr}
}
