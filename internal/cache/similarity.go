// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"maps"
	"slices"
	"strings"
	"unicode"
)

// Lexical similarity blends token overlap with a positional prefix
// comparison: token overlap dominates, the fingerprint catches reorderings
// of short prompts that share a vocabulary.
const (
	similarityWeightTokens      = 0.7
	similarityWeightFingerprint = 0.3

	fingerprintLen = 64
)

// Key derives the cache key: SHA-256 over the normalized prompt and the
// sorted request attributes. Two requests share a key only when both the
// prompt (modulo case and whitespace) and every attribute agree.
func Key(prompt string, attrs map[string]string) string {
	h := sha256.New()
	_, _ = io.WriteString(h, normalizePrompt(prompt))
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		_, _ = io.WriteString(h, "\n")
		_, _ = io.WriteString(h, k)
		_, _ = io.WriteString(h, "=")
		_, _ = io.WriteString(h, attrs[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizePrompt lowercases and collapses all whitespace runs to single
// spaces.
func normalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// stripPunct keeps letters, digits, and spaces from the lowercased prompt.
func stripPunct(prompt string) string {
	var b strings.Builder
	b.Grow(len(prompt))
	for _, r := range strings.ToLower(prompt) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// tokenSet builds the similarity vocabulary for a prompt.
func tokenSet(prompt string) map[string]struct{} {
	fields := strings.Fields(stripPunct(prompt))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// fingerprint is the first fingerprintLen characters of the
// punctuation-stripped prompt with whitespace collapsed.
func fingerprint(prompt string) string {
	collapsed := strings.Join(strings.Fields(stripPunct(prompt)), " ")
	runes := []rune(collapsed)
	if len(runes) > fingerprintLen {
		runes = runes[:fingerprintLen]
	}
	return string(runes)
}

// jaccard is |a∩b| / |a∪b|; empty sets never match anything.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// fingerprintScore is the fraction of positions where the two fingerprints
// carry the same character, over the longer of the two.
func fingerprintScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}

	matches := 0
	for i := 0; i < n; i++ {
		if ra[i] == rb[i] {
			matches++
		}
	}

	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	return float64(matches) / float64(longer)
}
