// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package openrouter

// Internals re-exported for tests.
var CostOf = cost
