// Package breaker implements the three-state (CLOSED/OPEN/HALF_OPEN)
// circuit breaker and wall-clock timeout harness described in spec.md
// §4.3. The registry is the one unavoidable piece of process-global state
// in the pipeline (spec.md §9 "Global state"), keyed by endpoint label,
// grounded on the teacher's singleton category-logger registry
// (internal/logging's package-level `loggers map[Category]*Logger` guarded
// by a package mutex).
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/isocrates/isocrates/internal/errs"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is one per-endpoint circuit breaker. All state mutations are
// guarded by mu so concurrent scouts/writers sharing one breaker instance
// stay consistent (spec.md §4.3).
type Breaker struct {
	mu                  sync.Mutex
	endpoint            string
	state               State
	consecutiveFailures int
	lastFailure         time.Time
	threshold           int
	cooldown            time.Duration
}

// New constructs a standalone breaker; most callers should use the
// package-global Registry instead so breakers are shared per endpoint.
func New(endpoint string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{endpoint: endpoint, threshold: threshold, cooldown: cooldown}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordFailure increments the consecutive-failure counter. If already
// HALF_OPEN, it transitions back to OPEN immediately (the probe failed);
// otherwise it opens once the counter reaches the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.state == HalfOpen {
		b.state = Open
		b.lastFailure = time.Now()
		return
	}
	if b.consecutiveFailures >= b.threshold {
		b.state = Open
		b.lastFailure = time.Now()
	}
}

// RecordSuccess resets the failure counter and, if HALF_OPEN, closes the
// breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	if b.state == HalfOpen {
		b.state = Closed
	}
}

// Check is called before a request is attempted. CLOSED always allows.
// OPEN allows a single probe (transitioning to HALF_OPEN) once the cooldown
// has elapsed since the last failure, otherwise it returns
// *errs.CircuitOpenError. HALF_OPEN allows.
func (b *Breaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed, HalfOpen:
		return nil
	case Open:
		elapsed := time.Since(b.lastFailure)
		if elapsed >= b.cooldown {
			b.state = HalfOpen
			return nil
		}
		return &errs.CircuitOpenError{
			Endpoint:   b.endpoint,
			RetryAfter: (b.cooldown - elapsed).String(),
		}
	default:
		return nil
	}
}

// Registry is the process-global, per-endpoint breaker store.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	threshold int
	cooldown  time.Duration
}

var global = NewRegistry(3, 60*time.Second)

// NewRegistry constructs a Registry with defaults applied to breakers it
// creates on demand.
func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), threshold: threshold, cooldown: cooldown}
}

// Global returns the process-wide registry used by production call sites.
func Global() *Registry { return global }

// Get returns the breaker for endpoint, creating it on first use.
func (r *Registry) Get(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[endpoint]
	if !ok {
		b = New(endpoint, r.threshold, r.cooldown)
		r.breakers[endpoint] = b
	}
	return b
}

// ResetAll clears every breaker in the registry; intended for tests
// (spec.md §9: "express it as a singleton registry ... with explicit
// reset_all() for testing").
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*Breaker)
}

// RunWithTimeout consults the breaker for label, then runs fn under a
// wall-clock deadline. On success it records success and returns fn's
// result. On timeout it records a failure and returns *errs.TimeoutError,
// distinct from fn's own errors; on an error from fn it records a failure
// and returns that error unchanged (spec.md §4.3).
func RunWithTimeout[T any](ctx context.Context, r *Registry, label string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	b := r.Get(label)
	if err := b.Check(); err != nil {
		return zero, err
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		ch <- result{val: v, err: err}
	}()

	select {
	case <-cctx.Done():
		b.RecordFailure()
		return zero, &errs.TimeoutError{Label: label, Timeout: timeout.String()}
	case res := <-ch:
		if res.err != nil {
			b.RecordFailure()
			return zero, res.err
		}
		b.RecordSuccess()
		return res.val, nil
	}
}
