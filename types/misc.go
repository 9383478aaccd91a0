package types

// Contains miscellaneous functions and types

import (
	"context"
	"log/slog"
	"net/netip"
)

// Incomparable is a zero-width incomparable type. If added as the
// first field in a struct, it marks that struct as not comparable
// (can't do == or be a map key) and usually doesn't add any width to
// the struct (unless the struct has only small fields).
type Incomparable [0]func()

// SliceOrEmpty makes sure a nil slice is returned as an empty one.
func SliceOrEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// IsContextDone does a quick check on a context to see if its dead.
func IsContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

const LevelTrace slog.Level = -8

// NormaliseAddrPort unmaps 4in6 addresses, so that the same remote always produces the same key.
func NormaliseAddrPort(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(NormaliseAddr(ap.Addr()), ap.Port())
}

func NormaliseAddr(addr netip.Addr) netip.Addr {
	if addr.Is4In6() {
		addr = netip.AddrFrom4(addr.As4())
	}

	return addr
}

// Map is a generic slice mapping function.
func Map[T, U any](ts []T, f func(T) U) []U {
	us := make([]U, len(ts))
	for i := range ts {
		us[i] = f(ts[i])
	}
	return us
}
