// Package clock provides the monotonic millisecond/microsecond counters the handshake runs on,
// and ordering comparisons that stay correct when those counters wrap around.
package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
)

// TimeMS is the coarse 32-bit millisecond counter, it wraps roughly every 49.7 days.
type TimeMS uint32

// TimeUS is the fine 64-bit microsecond counter.
type TimeUS uint64

// Counter is any fixed-width unsigned counter that can be ordered with After and Before.
type Counter interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// HalfSpan is half the maximum representable value of T.
//
// Two counter values are only ordered correctly if their true distance is smaller than this.
func HalfSpan[T Counter]() T {
	return ^T(0) / 2
}

// After reports whether a is later than b, modulo the width of T.
func After[T Counter](a, b T) bool {
	return a != b && a-b <= HalfSpan[T]()
}

// Before reports whether a is earlier than b, modulo the width of T.
func Before[T Counter](a, b T) bool {
	return After(b, a)
}

// AfterOrEqual reports whether a is b, or later than b.
func AfterOrEqual[T Counter](a, b T) bool {
	return a == b || After(a, b)
}

// Add advances t by d, wrapping around.
func (t TimeMS) Add(d time.Duration) TimeMS {
	return t + TimeMS(d.Milliseconds())
}

// Sub returns the duration between t and an earlier u.
func (t TimeMS) Sub(u TimeMS) time.Duration {
	return time.Duration(t-u) * time.Millisecond
}

func (t TimeUS) Add(d time.Duration) TimeUS {
	return t + TimeUS(d.Microseconds())
}

func (t TimeUS) Sub(u TimeUS) time.Duration {
	return time.Duration(t-u) * time.Microsecond
}

// Source derives TimeMS and TimeUS counters from a wall clock.
//
// The counters start at their offsets when the Source is created,
// and advance with the elapsed time of the underlying clock.
type Source struct {
	base  bclock.Clock
	epoch time.Time

	offsetMS TimeMS
	offsetUS TimeUS
}

// NewSource creates a Source on top of base, or the real clock if base is nil.
func NewSource(base bclock.Clock) *Source {
	return NewSourceWithOffset(base, 0, 0)
}

// NewSourceWithOffset creates a Source whose counters start at the given values,
// which allows placing a counter right before its wraparound point.
func NewSourceWithOffset(base bclock.Clock, ms TimeMS, us TimeUS) *Source {
	if base == nil {
		base = bclock.New()
	}

	return &Source{
		base:     base,
		epoch:    base.Now(),
		offsetMS: ms,
		offsetUS: us,
	}
}

// MS returns the current coarse counter value.
func (s *Source) MS() TimeMS {
	return s.offsetMS + TimeMS(s.base.Since(s.epoch).Milliseconds())
}

// US returns the current fine counter value.
func (s *Source) US() TimeUS {
	return s.offsetUS + TimeUS(s.base.Since(s.epoch).Microseconds())
}

// Base returns the underlying wall clock.
func (s *Source) Base() bclock.Clock {
	return s.base
}
