// Package backoff computes wait times for lakequeue's two retry loops: a
// hosting loop that found its queue empty, and an id counter that lost a
// write race. Strategies hold no state and are safe for concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy maps a 1-based attempt number to a wait time.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

// Delay implements Strategy.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Constant waits Interval every time.
type Constant struct {
	Interval time.Duration
}

// NewConstant returns a Constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns Interval.
func (c *Constant) Delay(int) time.Duration { return c.Interval }

// Exponential waits Initial, then twice as long on each attempt, never
// more than Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential returns an Exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns min(Initial * 2^(attempt-1), Max).
func (e *Exponential) Delay(attempt int) time.Duration {
	return time.Duration(capped(e.Initial, e.Max, attempt))
}

// ExponentialWithJitter draws uniformly from [0, Exponential.Delay). Many
// idle hosts polling the same queue then spread out instead of waking
// together.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter returns an ExponentialWithJitter strategy.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration below min(Initial * 2^(attempt-1), Max).
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	return time.Duration(rand.Float64() * capped(e.Initial, e.Max, attempt)) //nolint:gosec // jitter, not security
}

func capped(initial, maxDelay time.Duration, attempt int) float64 {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	return d
}

// DefaultPoll is the empty-queue backoff of the hosting loop: jittered,
// starting at 100ms and capped at 5s.
func DefaultPoll() Strategy {
	return NewExponentialWithJitter(100*time.Millisecond, 5*time.Second)
}

// DefaultConflict is the retry delay after a lost optimistic write:
// jittered, starting at 10ms and capped at 500ms.
func DefaultConflict() Strategy {
	return NewExponentialWithJitter(10*time.Millisecond, 500*time.Millisecond)
}

// Sleep waits d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
