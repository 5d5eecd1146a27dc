// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package retry

import "time"

// SetRandFloat replaces the jitter source and returns a restore func.
// This is exported only to _test packages via the export_test.go convention.
func SetRandFloat(fn func() float64) func() {
	prev := randFloat
	randFloat = fn
	return func() { randFloat = prev }
}

// AttemptTimeoutFor exposes the per-attempt deadline budget for tests.
func AttemptTimeoutFor(p Policy, attempt int) time.Duration {
	return p.normalized().attemptTimeout(attempt)
}
