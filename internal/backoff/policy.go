// Package backoff computes capped exponential delays for supervised
// restarts.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy describes a capped exponential backoff schedule.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration

	// Max caps the computed delay. Zero means uncapped.
	Max time.Duration

	// Factor is the multiplier applied per attempt; values at or below 1
	// fall back to doubling.
	Factor float64

	// Jitter is the fraction of the base delay added at random, in [0, 1].
	Jitter float64
}

// Default is the schedule used when a component has no tuned values.
func Default() Policy {
	return Policy{Initial: time.Second, Max: time.Minute, Factor: 2}
}

// Delay returns the delay before the given attempt. Attempts start at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64())
}

// DelayWithRand computes the delay with a caller-supplied jitter draw in
// [0, 1), for deterministic callers.
func (p Policy) DelayWithRand(attempt int, draw float64) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	factor := p.Factor
	if factor <= 1 {
		factor = 2
	}

	exp := math.Max(float64(attempt-1), 0)
	base := float64(initial) * math.Pow(factor, exp)
	base += base * p.Jitter * draw
	if p.Max > 0 && base > float64(p.Max) {
		return p.Max
	}
	return time.Duration(base)
}
