package orch

import "time"

// TimeBudget is the wall-clock limit for one run. Stages consult it at
// their boundaries; in-flight work is cancelled through the run context.
type TimeBudget struct {
	start time.Time
	limit time.Duration
}

// NewTimeBudget starts the clock. A non-positive limit means unlimited.
func NewTimeBudget(limit time.Duration) *TimeBudget {
	return &TimeBudget{start: time.Now(), limit: limit}
}

func (b *TimeBudget) Elapsed() time.Duration {
	return time.Since(b.start)
}

// Remaining returns the time left, never negative. Unlimited budgets
// report a year.
func (b *TimeBudget) Remaining() time.Duration {
	if b.limit <= 0 {
		return 365 * 24 * time.Hour
	}
	r := b.limit - b.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

func (b *TimeBudget) Expired() bool {
	return b.limit > 0 && b.Elapsed() >= b.limit
}
