// Package sysaddr contains SystemAddress, the transient network endpoint a datagram came from or goes to.
package sysaddr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/edup2p/peerlink/types"
)

// SystemAddress is an IP and port, plus the index of the local socket it was seen on.
//
// Equality (Equal, Key) only considers the IP and port; the socket index is routing metadata.
type SystemAddress struct {
	AddrPort netip.AddrPort

	// SocketIndex is the local socket that this address is reachable through, -1 if unknown.
	SocketIndex int
}

// Unassigned represents "no specific remote".
var Unassigned = SystemAddress{SocketIndex: -1}

var ErrInvalidAddress = errors.New("invalid address")

func New(ap netip.AddrPort, socketIndex int) SystemAddress {
	return SystemAddress{
		AddrPort:    types.NormaliseAddrPort(ap),
		SocketIndex: socketIndex,
	}
}

func (a SystemAddress) IsUnassigned() bool {
	return !a.AddrPort.IsValid()
}

// Key is the comparable identity of the address, used to index per-remote state.
func (a SystemAddress) Key() netip.AddrPort {
	return a.AddrPort
}

func (a SystemAddress) Equal(o SystemAddress) bool {
	return a.AddrPort == o.AddrPort
}

func (a SystemAddress) String() string {
	if a.IsUnassigned() {
		return "unassigned"
	}
	return a.AddrPort.String()
}

// Parse parses an "ip:port" string.
func Parse(s string) (SystemAddress, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Unassigned, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	if ap.Port() == 0 {
		return Unassigned, fmt.Errorf("%w: port 0", ErrInvalidAddress)
	}

	return New(ap, -1), nil
}

// Resolve turns a host and port into a SystemAddress, looking up hostnames when needed.
//
// All failures wrap ErrInvalidAddress.
func Resolve(ctx context.Context, host string, port uint16) (SystemAddress, error) {
	if host == "" {
		return Unassigned, fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if port == 0 {
		return Unassigned, fmt.Errorf("%w: port 0", ErrInvalidAddress)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return New(netip.AddrPortFrom(ip, port), -1), nil
	}

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return Unassigned, fmt.Errorf("%w: could not resolve %s: %w", ErrInvalidAddress, host, err)
	}
	if len(ips) == 0 {
		return Unassigned, fmt.Errorf("%w: no addresses for %s", ErrInvalidAddress, host)
	}

	// Prefer IPv4, most deployments bind v4 sockets.
	best := ips[0]
	for _, ip := range ips {
		if types.NormaliseAddr(ip).Is4() {
			best = ip
			break
		}
	}

	return New(netip.AddrPortFrom(best, port), -1), nil
}

// JoinHostPort formats host and port the way net.Dial expects them.
func JoinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
