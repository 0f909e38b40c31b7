// Package backoff computes retry delays for the task queue and the
// notification outbox: exponential growth with jitter, capped at a
// maximum, so synchronized retry storms cannot form.
package backoff

import (
	"math/rand"
	"time"
)

// jitterFraction bounds the random perturbation applied to each delay.
const jitterFraction = 0.2

// Policy computes the delay before retry attempt n.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Cap is the upper bound applied before jitter.
	Cap time.Duration
}

// Delay returns base * 2^attempt, capped at Cap, with +/-20% jitter.
// attempt counts completed attempts, so the first retry (attempt 1) waits
// roughly 2*Base.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			d = p.Cap
			break
		}
	}
	if d > p.Cap {
		d = p.Cap
	}

	jitter := time.Duration((rand.Float64()*2 - 1) * jitterFraction * float64(d))
	d += jitter
	if d < 0 {
		d = 0
	}

	return d
}

// NextRetryAt returns the absolute retry time for the given attempt.
func (p Policy) NextRetryAt(now time.Time, attempt int) time.Time {
	return now.Add(p.Delay(attempt))
}
