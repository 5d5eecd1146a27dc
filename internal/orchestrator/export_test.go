// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package orchestrator

// TruncateWords exposes truncateWords for tests.
var TruncateWords = truncateWords
