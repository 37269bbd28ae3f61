// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package tt2

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures how a whole tag operation is retried. The codec
// itself never retries a block: a failed block fails the operation, and the
// caller decides whether to start over.
type RetryConfig struct {
	// Attempts is the total number of tries (values below 1 mean one try)
	Attempts int
	// Backoff is the wait before the second try
	Backoff time.Duration
	// MaxBackoff caps the growing wait between tries
	MaxBackoff time.Duration
	// Multiplier grows the wait after each failed try
	Multiplier float64
	// Jitter adds up to this fraction of the wait at random
	Jitter float64
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Attempts:   3,
		Backoff:    50 * time.Millisecond,
		MaxBackoff: time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// RetryWithConfig runs op until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx is done. The last operation error is returned.
func RetryWithConfig(ctx context.Context, config *RetryConfig, op func(context.Context) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	attempts := max(config.Attempts, 1)
	wait := config.Backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == attempts {
			return lastErr
		}

		Debugf("TT2 attempt %d/%d failed: %v", attempt, attempts, lastErr)
		if !sleepCtx(ctx, jittered(wait, config.Jitter)) {
			return lastErr
		}
		wait = nextBackoff(wait, config)
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(wait time.Duration, config *RetryConfig) time.Duration {
	next := time.Duration(float64(wait) * config.Multiplier)
	if config.MaxBackoff > 0 && next > config.MaxBackoff {
		return config.MaxBackoff
	}
	return next
}

func jittered(wait time.Duration, factor float64) time.Duration {
	if factor <= 0 || wait <= 0 {
		return wait
	}
	//nolint:gosec // jitter does not need a secure source
	return wait + time.Duration(rand.Float64()*factor*float64(wait))
}
