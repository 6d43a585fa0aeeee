// Package backoff computes the delay between attempts of a retried operation.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Backoff returns the delay before the next attempt. retry is 0 for the
// first retry.
type Backoff interface {
	Next(retry int) time.Duration
}

// Exponential waits Initial * Factor^retry, capped at Max. With Jitter the
// delay is drawn uniformly from [0, delay).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64 // 2 when zero
	Jitter  bool
}

func (e *Exponential) Next(retry int) time.Duration {
	factor := e.Factor
	if factor == 0 {
		factor = 2
	}

	delay := float64(e.Initial) * math.Pow(factor, float64(retry))
	if e.Max > 0 && delay > float64(e.Max) {
		delay = float64(e.Max)
	}
	if e.Jitter {
		delay = rand.Float64() * delay
	}
	return time.Duration(delay)
}

// NewExponential returns a jittered doubling backoff suited to database
// transaction conflicts: 20ms, 40ms, 80ms... up to 2s.
func NewExponential() *Exponential {
	return &Exponential{
		Initial: 20 * time.Millisecond,
		Max:     2 * time.Second,
		Factor:  2,
		Jitter:  true,
	}
}

// Constant waits the same Interval before every attempt.
type Constant struct {
	Interval time.Duration
}

func (c *Constant) Next(int) time.Duration { return c.Interval }

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}
