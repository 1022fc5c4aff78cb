package rabbitmq

import "time"

// RetryPolicy of dialer reconnection.
type RetryPolicy interface {
	TryNum(i int) (duration time.Duration, stop bool)
}

const (
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultMultiplier    = 2
	DefaultMaxInterval   = 2 * time.Minute
)

// ConstantInterval retries forever at a fixed pace.
type ConstantInterval time.Duration

func (c ConstantInterval) TryNum(int) (time.Duration, bool) {
	return time.Duration(c), false
}

// Backoff grows the interval geometrically and gives up once it would exceed Max.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier int
}

func NewDefaultBackoff() Backoff {
	return Backoff{Base: DefaultRetryInterval, Max: DefaultMaxInterval, Multiplier: DefaultMultiplier}
}

func (b Backoff) TryNum(i int) (time.Duration, bool) {
	if b.Base <= 0 || b.Multiplier < 1 {
		return 0, true
	}
	d := b.Base
	for range i {
		d *= time.Duration(b.Multiplier)
		if d > b.Max {
			return 0, true
		}
	}
	if d > b.Max {
		return 0, true
	}
	return d, false
}
