// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package cache

// Internals re-exported for tests.
var (
	NormalizePrompt  = normalizePrompt
	TokenSet         = tokenSet
	Fingerprint      = fingerprint
	Jaccard          = jaccard
	FingerprintScore = fingerprintScore
)
