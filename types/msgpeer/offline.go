package msgpeer

import (
	"fmt"

	"github.com/edup2p/peerlink/types/bin"
	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
)

// UnconnectedPing asks any peer for its offline response, without a connection.
type UnconnectedPing struct {
	// OnlyIfOpen makes the target stay silent unless it would admit an incoming connection.
	OnlyIfOpen bool

	Time clock.TimeMS

	GUID guid.PeerGUID
}

func (p *UnconnectedPing) Kind() Kind {
	if p.OnlyIfOpen {
		return KindUnconnectedPingOpenConnections
	}
	return KindUnconnectedPing
}

func (p *UnconnectedPing) Marshal() []byte {
	b := bin.AppendUint32(header(p.Kind()), uint32(p.Time))
	return append(b, p.GUID[:]...)
}

func (p *UnconnectedPing) Debug() string {
	return fmt.Sprintf("%s time=%d guid=%s", p.Kind(), p.Time, p.GUID.Debug())
}

// UnconnectedPong answers an UnconnectedPing with the responder's offline response bytes.
type UnconnectedPong struct {
	// Time echoes UnconnectedPing.Time, so the pinger can compute a round trip.
	Time clock.TimeMS

	GUID guid.PeerGUID

	Data []byte
}

func (p *UnconnectedPong) Kind() Kind { return KindUnconnectedPong }

func (p *UnconnectedPong) Marshal() []byte {
	b := bin.AppendUint32(header(KindUnconnectedPong), uint32(p.Time))
	b = append(b, p.GUID[:]...)
	return append(b, p.Data...)
}

func (p *UnconnectedPong) Debug() string {
	return fmt.Sprintf("unconnected-pong time=%d guid=%s data-len=%d", p.Time, p.GUID.Debug(), len(p.Data))
}

// AdvertiseSystem is a one-shot introduction to a peer there is no connection with.
type AdvertiseSystem struct {
	GUID guid.PeerGUID

	Data []byte
}

func (a *AdvertiseSystem) Kind() Kind { return KindAdvertiseSystem }

func (a *AdvertiseSystem) Marshal() []byte {
	b := append(header(KindAdvertiseSystem), a.GUID[:]...)
	return append(b, a.Data...)
}

func (a *AdvertiseSystem) Debug() string {
	return fmt.Sprintf("advertise-system guid=%s data-len=%d", a.GUID.Debug(), len(a.Data))
}
