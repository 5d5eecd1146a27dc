// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package retry

import (
	"context"
	"fmt"
	"time"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Do runs op up to MaxRetries+1 times under the policy. Each attempt gets
// its own growing deadline when AttemptTimeout is set. Non-retryable errors
// return immediately and unchanged; parent-context cancellation aborts
// between attempts and during backoff sleeps. When every attempt fails, Do
// returns a retry-exhausted error carrying the attempt count, strategy, and
// elapsed time, with the last failure folded into the message.
//
// name identifies the protected dependency in errors and has no other effect.
func Do[T any](ctx context.Context, p Policy, name string, op func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	start := time.Now()
	attempts := 0

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		attempts++

		v, err := runAttempt(ctx, p, attempt, op)
		if err == nil {
			return v, nil
		}
		lastErr = err

		// Parent done means the caller gave up, not that the provider failed.
		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !p.Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxRetries {
			break
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return zero, lastErr
		}
	}

	return zero, aegiserr.New(aegiserr.CodeRetryExhausted,
		fmt.Sprintf("retries exhausted for %s after %d attempts: %v", name, attempts, lastErr),
		aegiserr.FieldProvider(name),
		aegiserr.FieldAttempts(attempts),
		aegiserr.FieldStrategy(string(p.Strategy)),
		aegiserr.FieldElapsed(time.Since(start)),
	)
}

// Execute is Do for operations without a result.
func Execute(ctx context.Context, p Policy, name string, op func(context.Context) error) error {
	_, err := Do(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func runAttempt[T any](ctx context.Context, p Policy, attempt int, op func(context.Context) (T, error)) (T, error) {
	if timeout := p.attemptTimeout(attempt); timeout > 0 {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return op(attemptCtx)
	}
	return op(ctx)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
