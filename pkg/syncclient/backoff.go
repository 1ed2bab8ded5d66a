package syncclient

import "time"

// Backoff doubles the delay after each consecutive failure, starting at Initial and never exceeding Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	failures int
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}
}

func (b *Backoff) Next() time.Duration {
	d := b.Max
	if b.failures < 62 {
		if shifted := b.Initial << b.failures; shifted > 0 && shifted>>b.failures == b.Initial && shifted < b.Max {
			d = shifted
		}
	}
	b.failures++
	return d
}

func (b *Backoff) Reset() {
	b.failures = 0
}
