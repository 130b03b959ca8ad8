// Copyright (c) 2026 John Earle
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

// Package retry provides an exponential-backoff executor for transient
// external-call failures. Whether a failure is transient is decided by the
// caller-supplied classifier, so the heuristic lives with the adapter that
// produces the errors, not here.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy controls how many attempts are made and how backoff grows.
// Delay before attempt n+1 is BaseDelay << n.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches the external model provider's documented throttling
// behaviour: three attempts, one second base delay.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// RetryableFunc reports whether an error is transient and worth retrying.
type RetryableFunc func(error) bool

// sleep is swappable in tests so backoff timing can be observed without
// real waits.
var sleep = wait

// Do runs op, retrying transient failures up to p.MaxAttempts with
// exponential backoff. Non-transient errors and exhaustion both propagate
// the last error unchanged. Backoff waits respect ctx cancellation.
func Do[T any](ctx context.Context, p Policy, retryable RetryableFunc, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if retryable == nil || !retryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.BaseDelay << attempt
		slog.Warn("transient failure, backing off",
			"attempt", attempt+1,
			"max_attempts", p.MaxAttempts,
			"delay", delay.String(),
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
