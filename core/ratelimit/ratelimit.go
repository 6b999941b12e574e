// Package ratelimit serializes calls to rate-limited external services,
// enforcing a minimum wall-clock gap between the end of one call and the
// start of the next.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum interval per key. Keys identify a function
// or endpoint, not its arguments. The limiter is in-memory and single
// process; it does not coordinate across processes or machines.
type Limiter struct {
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	lastEnd time.Time
}

// New creates a Limiter with the given minimum interval.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		entries:  make(map[string]*entry),
	}
}

func (l *Limiter) entry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	return e
}

// Do runs fn, blocking first until the minimum interval since the end of
// the previous call for key has elapsed. Calls for the same key are fully
// serialized: the per-key lock is held across fn, so two concurrent
// callers can never both under-sleep and violate the interval. Ordering
// among blocked callers is whatever the mutex grants.
func (l *Limiter) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	e := l.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if wait := l.interval - time.Since(e.lastEnd); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	err := fn(ctx)
	e.lastEnd = time.Now()
	return err
}

// Wait blocks until a call for key may start, and reserves the slot as if
// a zero-duration call happened. Prefer Do; Wait exists for call sites
// that cannot wrap their work in a closure.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.Do(ctx, key, func(context.Context) error { return nil })
}
