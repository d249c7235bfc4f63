package readiness

import "time"

const (
	defaultInterval       = time.Second
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// Backoff returns the delay to wait after the given failed attempt. Attempts
// start at 1.
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) NextDelay(int) time.Duration {
	if b.Interval <= 0 {
		return defaultInterval
	}
	return b.Interval
}

type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := b.Max
	if max <= 0 {
		max = defaultMaxBackoff
	}
	if initial > max {
		return max
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

// Policy controls how Wait polls. A zero MaxDuration retries forever.
type Policy struct {
	Backoff     Backoff
	MaxDuration time.Duration
	DialTimeout time.Duration
}

func (p Policy) NextDelay(attempt int) time.Duration {
	if p.Backoff == nil {
		return FixedBackoff{}.NextDelay(attempt)
	}
	return p.Backoff.NextDelay(attempt)
}

func (p Policy) dialTimeout() time.Duration {
	if p.DialTimeout <= 0 {
		return 2 * time.Second
	}
	return p.DialTimeout
}
