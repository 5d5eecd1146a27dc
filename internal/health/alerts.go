// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package health

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	healthpkg "github.com/aegis-dev/aegis/pkg/health"
)

// alertLog is a fixed-capacity ring of alerts. When full, the oldest alert
// is overwritten; memory stays bounded no matter how noisy the checks get.
type alertLog struct {
	mu               sync.Mutex
	buf              []healthpkg.Alert
	next             int // overwrite position once the ring is full
	capacity         int
	autoResolveAfter time.Duration
}

func newAlertLog(capacity int, autoResolveAfter time.Duration) *alertLog {
	return &alertLog{
		buf:              make([]healthpkg.Alert, 0, capacity),
		capacity:         capacity,
		autoResolveAfter: autoResolveAfter,
	}
}

// Raise records a new alert and returns it.
func (l *alertLog) Raise(now time.Time, typ, severity, msg string, details map[string]any) healthpkg.Alert {
	a := healthpkg.Alert{
		ID:       uuid.NewString(),
		Type:     typ,
		Severity: severity,
		Message:  msg,
		Details:  details,
		At:       now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) < l.capacity {
		l.buf = append(l.buf, a)
	} else {
		l.buf[l.next] = a
		l.next = (l.next + 1) % l.capacity
	}
	return a
}

// Resolve marks the alert with the given id resolved. Resolving twice is a
// no-op; an id not in the ring (including ones already overwritten) is
// reported as not found.
func (l *alertLog) Resolve(now time.Time, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.buf {
		if l.buf[i].ID != id {
			continue
		}
		if !l.buf[i].Resolved {
			l.buf[i].Resolved = true
			t := now
			l.buf[i].ResolvedAt = &t
		}
		return nil
	}
	return aegiserr.Errorf(aegiserr.CodeHealthAlertNotFound, "alert %q not found", id)
}

// List returns all retained alerts newest first, applying auto-resolution to
// anything older than the configured window.
func (l *alertLog) List(now time.Time) []healthpkg.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.autoResolveLocked(now)

	out := make([]healthpkg.Alert, 0, len(l.buf))
	if len(l.buf) < l.capacity {
		out = append(out, l.buf...)
	} else {
		out = append(out, l.buf[l.next:]...)
		out = append(out, l.buf[:l.next]...)
	}
	slices.Reverse(out)
	return out
}

func (l *alertLog) autoResolveLocked(now time.Time) {
	if l.autoResolveAfter <= 0 {
		return
	}
	for i := range l.buf {
		if l.buf[i].Resolved {
			continue
		}
		if deadline := l.buf[i].At.Add(l.autoResolveAfter); !now.Before(deadline) {
			l.buf[i].Resolved = true
			t := deadline
			l.buf[i].ResolvedAt = &t
		}
	}
}
