// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/aegis-dev/aegis/pkg/health"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition reasons, carried on state-change events.
const (
	ReasonThresholdReached = "failure threshold reached"
	ReasonTimeoutElapsed   = "reset timeout elapsed"
	ReasonProbeSucceeded   = "probe succeeded"
	ReasonProbeFailed      = "probe failed"
	ReasonForcedReset      = "forced reset"
)

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

// Config controls one breaker's trip and recovery behavior.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	return c
}

// Transition is a state-change event.
type Transition struct {
	Name   string
	From   State
	To     State
	Reason string
	At     time.Time
}

// Listener receives state-change events. Listeners run in transition order
// on a per-breaker dispatch goroutine; a panicking listener is recovered and
// cannot affect callers.
type Listener func(Transition)

// Breaker is a per-dependency circuit breaker. Closed passes calls through
// and counts consecutive failures; reaching the threshold opens the circuit,
// which rejects calls until the reset timeout elapses; the first call after
// that runs as a half-open probe whose outcome closes or re-opens the
// circuit.
//
// Breakers are created once per dependency name and live for the process
// lifetime; they are reset, never destroyed.
type Breaker struct {
	name string
	cfg  Config

	mu             sync.Mutex
	state          State
	failureCount   int
	successCount   int
	nextAttemptAt  time.Time
	probing        bool
	lastTransition time.Time
	lastReason     string
	listeners      []Listener
	nowFunc        func() time.Time

	events   chan Transition
	pumpOnce sync.Once

	requests     atomic.Int64
	rejections   atomic.Int64
	failures     atomic.Int64
	successes    atomic.Int64
	stateChanges atomic.Int64
	totalLatency atomic.Int64 // nanoseconds across completed calls
}

// New creates a closed breaker for the named dependency.
func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:    name,
		cfg:     cfg.withDefaults(),
		state:   StateClosed,
		nowFunc: time.Now,
		events:  make(chan Transition, 64),
	}
}

func (b *Breaker) Name() string { return b.name }

// State returns the current state without advancing it; an expired Open
// circuit still reports Open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OnTransition registers a state-change listener. The dispatch goroutine
// starts with the first listener and runs for the breaker's lifetime.
func (b *Breaker) OnTransition(l Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()

	b.pumpOnce.Do(func() { go b.pump() })
}

// SetNowFunc overrides the time source (for testing).
func (b *Breaker) SetNowFunc(fn func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nowFunc = fn
}

// Execute runs op under the breaker. While Open it fails fast with a
// breaker-open error carrying the remaining wait; in HalfOpen only the probe
// call runs. Caller cancellation is passed through without counting as a
// success or failure — it says nothing about the dependency.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	start := b.now()
	err := op(ctx)
	elapsed := b.now().Sub(start)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			b.abandon()
			return err
		}
		b.recordFailure(elapsed)
		return err
	}

	b.recordSuccess(elapsed)
	return nil
}

// Do runs a result-returning operation under the breaker.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, opErr := op(ctx)
		if opErr != nil {
			return opErr
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// ForceReset closes the circuit and zeroes the consecutive counters,
// regardless of current state. Used by operators and recovery routines.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if b.state != StateClosed {
		b.transitionLocked(StateClosed, ReasonForcedReset, b.nowFunc())
		return
	}
	b.failureCount = 0
	b.successCount = 0
	b.nextAttemptAt = time.Time{}
}

// Snapshot returns a point-in-time view for the ops surface.
func (b *Breaker) Snapshot() health.BreakerStatus {
	b.mu.Lock()
	state := b.state
	failureCount := b.failureCount
	successCount := b.successCount
	nextAttempt := b.nextAttemptAt
	lastTransition := b.lastTransition
	lastReason := b.lastReason
	b.mu.Unlock()

	s := health.BreakerStatus{
		Name:            b.name,
		State:           state.String(),
		FailureCount:    failureCount,
		SuccessCount:    successCount,
		Requests:        b.requests.Load(),
		Rejections:      b.rejections.Load(),
		Failures:        b.failures.Load(),
		Successes:       b.successes.Load(),
		StateChanges:    b.stateChanges.Load(),
		LastChangeCause: lastReason,
	}

	if completed := s.Failures + s.Successes; completed > 0 {
		s.AvgResponseMS = b.totalLatency.Load() / completed / int64(time.Millisecond)
	}
	if !nextAttempt.IsZero() {
		t := nextAttempt
		s.NextAttemptAt = &t
	}
	if !lastTransition.IsZero() {
		t := lastTransition
		s.LastTransition = &t
	}
	return s
}

func (b *Breaker) now() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nowFunc()
}

// allow admits or rejects a call, advancing Open to HalfOpen once the reset
// timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	switch b.state {
	case StateOpen:
		if now.Before(b.nextAttemptAt) {
			b.rejections.Add(1)
			remaining := b.nextAttemptAt.Sub(now)
			return aegiserr.New(aegiserr.CodeBreakerOpen,
				fmt.Sprintf("circuit %q open, retry in %s", b.name, remaining.Round(time.Millisecond)),
				aegiserr.FieldBreaker(b.name),
				aegiserr.FieldRetryAfter(remaining),
			)
		}
		b.transitionLocked(StateHalfOpen, ReasonTimeoutElapsed, now)
		b.probing = true

	case StateHalfOpen:
		if b.probing {
			b.rejections.Add(1)
			return aegiserr.New(aegiserr.CodeBreakerOpen,
				fmt.Sprintf("circuit %q half-open, probe in flight", b.name),
				aegiserr.FieldBreaker(b.name),
				aegiserr.FieldRetryAfter(0),
			)
		}
		b.probing = true
	}

	b.requests.Add(1)
	return nil
}

func (b *Breaker) recordSuccess(elapsed time.Duration) {
	b.successes.Add(1)
	b.totalLatency.Add(int64(elapsed))

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.successCount++
		b.failureCount = 0
	case StateHalfOpen:
		b.probing = false
		b.transitionLocked(StateClosed, ReasonProbeSucceeded, b.nowFunc())
	}
}

func (b *Breaker) recordFailure(elapsed time.Duration) {
	b.failures.Add(1)
	b.totalLatency.Add(int64(elapsed))

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.nextAttemptAt = now.Add(b.cfg.ResetTimeout)
			b.transitionLocked(StateOpen, ReasonThresholdReached, now)
		}
	case StateHalfOpen:
		b.probing = false
		b.nextAttemptAt = now.Add(b.cfg.ResetTimeout)
		b.transitionLocked(StateOpen, ReasonProbeFailed, now)
	}
}

// abandon clears a half-open probe slot after a canceled call so the next
// call can probe instead.
func (b *Breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
}

// transitionLocked changes state and notifies listeners. Caller holds b.mu.
func (b *Breaker) transitionLocked(to State, reason string, now time.Time) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.lastTransition = now
	b.lastReason = reason
	b.stateChanges.Add(1)

	if to == StateClosed {
		b.failureCount = 0
		b.successCount = 0
		b.nextAttemptAt = time.Time{}
	}

	if len(b.listeners) == 0 {
		return
	}
	t := Transition{Name: b.name, From: from, To: to, Reason: reason, At: now}
	select {
	case b.events <- t:
	default:
		// Never let a slow listener stall the state machine.
		slog.Warn("breaker transition event dropped", "breaker", b.name, "to", to.String())
	}
}

func (b *Breaker) pump() {
	for t := range b.events {
		b.mu.Lock()
		ls := make([]Listener, len(b.listeners))
		copy(ls, b.listeners)
		b.mu.Unlock()

		for _, l := range ls {
			notify(l, t)
		}
	}
}

func notify(l Listener, t Transition) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("breaker transition listener panicked", "breaker", t.Name, "panic", r)
		}
	}()
	l(t)
}
