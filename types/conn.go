package types

import (
	"net"
	"net/netip"
	"sync/atomic"
	"time"
)

// UDPConn is the socket collaborator the engine reads from and writes to.
//
// *net.UDPConn satisfies it.
type UDPConn interface {
	SetReadDeadline(t time.Time) error

	ReadFromUDPAddrPort(b []byte) (n int, addr netip.AddrPort, err error)

	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)

	LocalAddr() net.Addr

	Close() error
}

// UDPConnCloseCatcher records whether Close has been called on the wrapped socket.
type UDPConnCloseCatcher struct {
	UDPConn

	closed atomic.Bool
}

func (c *UDPConnCloseCatcher) Close() error {
	c.closed.Store(true)

	return c.UDPConn.Close()
}

func (c *UDPConnCloseCatcher) Closed() bool {
	return c.closed.Load()
}

// LocalAddrPort returns the bound address of a socket, or an invalid netip.AddrPort if it is not a UDP address.
func LocalAddrPort(c UDPConn) netip.AddrPort {
	ua, ok := c.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}
	}

	return NormaliseAddrPort(ua.AddrPort())
}
