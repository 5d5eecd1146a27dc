// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package openai

// Internals re-exported for tests.
var (
	CostOf  = cost
	WrapErr = wrapErr
)
