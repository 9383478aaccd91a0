package slots

import (
	"time"

	"github.com/edup2p/peerlink/types/clock"
)

const (
	DefaultSendConnectionAttemptCount        = 12
	DefaultTimeBetweenSendConnectionAttempts = 500 * time.Millisecond
)

// Policy governs the connection requests of an outgoing attempt.
type Policy struct {
	// Count is the total amount of connection requests sent before giving up.
	Count int

	// Interval is the spacing between connection requests.
	Interval time.Duration

	// Timeout is an absolute deadline from the start of the attempt, it overrides Count when non-zero.
	Timeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Count:    DefaultSendConnectionAttemptCount,
		Interval: DefaultTimeBetweenSendConnectionAttempts,
	}
}

// Normalise replaces out-of-range values with the defaults.
func (p Policy) Normalise() Policy {
	if p.Count <= 0 {
		p.Count = DefaultSendConnectionAttemptCount
	}
	if p.Interval <= 0 {
		p.Interval = DefaultTimeBetweenSendConnectionAttempts
	}
	if p.Timeout < 0 {
		p.Timeout = 0
	}
	// deadlines must stay inside the comparable half of the counter
	if limit := time.Duration(clock.HalfSpan[clock.TimeMS]()) * time.Millisecond; p.Timeout > limit {
		p.Timeout = limit
	}
	return p
}
