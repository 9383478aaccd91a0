package msgpeer

import (
	"fmt"
	"net/netip"

	"github.com/edup2p/peerlink/types/bin"
	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
)

// ConnectionRequest is sent, and resent, by the side attempting a connection.
type ConnectionRequest struct {
	GUID guid.PeerGUID

	Time clock.TimeMS
}

func (c *ConnectionRequest) Kind() Kind { return KindConnectionRequest }

func (c *ConnectionRequest) Marshal() []byte {
	b := append(header(KindConnectionRequest), c.GUID[:]...)
	return bin.AppendUint32(b, uint32(c.Time))
}

func (c *ConnectionRequest) Debug() string {
	return fmt.Sprintf("connection-request guid=%s time=%d", c.GUID.Debug(), c.Time)
}

// ConnectionRequestAccepted answers a ConnectionRequest that was admitted.
type ConnectionRequestAccepted struct {
	GUID guid.PeerGUID

	// YourAddress is the requester's address as the acceptor sees it.
	YourAddress netip.AddrPort

	// RequestTime echoes ConnectionRequest.Time
	RequestTime clock.TimeMS
}

func (c *ConnectionRequestAccepted) Kind() Kind { return KindConnectionRequestAccepted }

func (c *ConnectionRequestAccepted) Marshal() []byte {
	b := append(header(KindConnectionRequestAccepted), c.GUID[:]...)
	b = append(b, bin.PutAddrPort(c.YourAddress)...)
	return bin.AppendUint32(b, uint32(c.RequestTime))
}

func (c *ConnectionRequestAccepted) Debug() string {
	return fmt.Sprintf("connection-request-accepted guid=%s your-addr=%s", c.GUID.Debug(), c.YourAddress)
}

// AlreadyConnected rejects a request from an address or GUID that already holds a connection.
type AlreadyConnected struct {
	GUID guid.PeerGUID
}

func (a *AlreadyConnected) Kind() Kind { return KindAlreadyConnected }

func (a *AlreadyConnected) Marshal() []byte {
	return append(header(KindAlreadyConnected), a.GUID[:]...)
}

func (a *AlreadyConnected) Debug() string {
	return fmt.Sprintf("already-connected guid=%s", a.GUID.Debug())
}

// NoFreeIncomingConnections rejects a request because the acceptor is at its incoming limit.
type NoFreeIncomingConnections struct {
	GUID guid.PeerGUID
}

func (n *NoFreeIncomingConnections) Kind() Kind { return KindNoFreeIncomingConnections }

func (n *NoFreeIncomingConnections) Marshal() []byte {
	return append(header(KindNoFreeIncomingConnections), n.GUID[:]...)
}

func (n *NoFreeIncomingConnections) Debug() string {
	return fmt.Sprintf("no-free-incoming-connections guid=%s", n.GUID.Debug())
}
