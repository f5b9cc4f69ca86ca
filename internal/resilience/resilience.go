// Package resilience provides reliability patterns for AI provider calls:
// a circuit breaker and a linear-backoff retry loop.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker opens after a number of consecutive failures and rejects calls
// until a cooldown elapses, then admits a single probe.
type Breaker struct {
	mu          sync.Mutex
	state       breakerState
	consecutive int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	clock       func() time.Time
}

// NewBreaker creates a Breaker. maxFailures is the consecutive-failure
// threshold; cooldown is how long the circuit stays open.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{maxFailures: maxFailures, cooldown: cooldown, clock: time.Now}
}

// Do runs fn unless the circuit is open, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if b.clock().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = breakerHalfOpen
		return true
	case breakerHalfOpen:
		return false
	default:
		return true
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.consecutive = 0
		b.state = breakerClosed
		return
	}
	b.consecutive++
	if b.state == breakerHalfOpen || b.consecutive >= b.maxFailures {
		b.state = breakerOpen
		b.openedAt = b.clock()
	}
}

// Retry runs fn up to attempts times with linear backoff: the n-th retry
// waits n×step. It returns nil on the first success, the last error after
// exhaustion, or ctx.Err() if the context ends while waiting.
func Retry(ctx context.Context, attempts int, step time.Duration, fn func() error) error {
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if last = fn(); last == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * step):
		}
	}
	return last
}
