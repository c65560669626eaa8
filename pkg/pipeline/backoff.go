package pipeline

import (
	"math/rand/v2"
	"time"
)

// DefaultBackoffBase is the base retry delay when none is configured.
const DefaultBackoffBase = 2 * time.Second

// maxBackoffShift caps the exponent so the shift cannot overflow; with a
// seconds-order base the cap is already beyond any sane max_attempts.
const maxBackoffShift = 16

// Backoff computes retry delays: base * 2^attempt plus a random jitter in
// [0, base). The jitter spreads out retries of notifications that failed
// together, so a channel outage does not produce a synchronized retry storm
// when it ends.
type Backoff struct {
	// Base is the unit delay. Defaults to DefaultBackoffBase when zero.
	Base time.Duration
	// Max caps the computed delay (jitter included). Zero means no cap.
	Max time.Duration
}

// Delay returns the wait before the next attempt. attempt is the number of
// attempts already made, counted after the failed attempt: the first retry
// is scheduled with attempt=1, so a three-attempt notification waits
// base*2 and then base*4. The base component is non-decreasing in attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}

	delay := base<<uint(attempt) + rand.N(base)
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay
}
