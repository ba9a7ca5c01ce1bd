package main

import (
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// backoff doubles the idle wait after each failed batch up to max and snaps
// back to base on the first success.
type backoff struct {
	base, max, cur time.Duration
}

func newBackoff(base, ceiling time.Duration) *backoff {
	return &backoff{base: base, max: ceiling, cur: base}
}

func (b *backoff) fail() time.Duration {
	b.cur = min(max(b.cur, b.base)*2, b.max)
	return jitter(b.cur)
}

func (b *backoff) ok() time.Duration {
	b.cur = b.base
	return jitter(b.base)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
