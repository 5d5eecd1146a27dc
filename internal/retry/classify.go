// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package retry

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"syscall"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Retryable reports whether another attempt could plausibly succeed.
//
// Caller cancellation is never retried. A deadline expiry is: it is how a
// per-attempt timeout surfaces, and the executor separately stops when the
// parent context itself is done. Structured HTTP statuses are authoritative
// in both directions; after that, transient network errors and message
// patterns are consulted. Anything unrecognized is treated as permanent.
func (p Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	p = p.normalized()

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if status, ok := aegiserr.StatusOf(err); ok {
		if slices.Contains(p.NonRetryableStatuses, status) {
			return false
		}
		if slices.Contains(p.RetryableStatuses, status) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pat := range p.RetryablePatterns {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}
