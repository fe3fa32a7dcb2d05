package client

import "time"

// Backoff is the reconnection schedule: min(Base * 2^attempt, Cap), giving
// up once MaxAttempts retries have been spent.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 10 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait before retry number attempt (zero based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Cap || d <= 0 {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// Exhausted reports whether no retries are left after attempt retries.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}
