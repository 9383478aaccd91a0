package msgpeer

import (
	"fmt"
	"net/netip"

	"github.com/edup2p/peerlink/types/bin"
	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
)

// ConnectedPing keeps a quiet connection alive.
type ConnectedPing struct {
	Time clock.TimeMS
}

func (p *ConnectedPing) Kind() Kind { return KindConnectedPing }

func (p *ConnectedPing) Marshal() []byte {
	return bin.AppendUint32(header(KindConnectedPing), uint32(p.Time))
}

func (p *ConnectedPing) Debug() string {
	return fmt.Sprintf("connected-ping time=%d", p.Time)
}

type ConnectedPong struct {
	PingTime clock.TimeMS
	PongTime clock.TimeMS
}

func (p *ConnectedPong) Kind() Kind { return KindConnectedPong }

func (p *ConnectedPong) Marshal() []byte {
	b := bin.AppendUint32(header(KindConnectedPong), uint32(p.PingTime))
	return bin.AppendUint32(b, uint32(p.PongTime))
}

func (p *ConnectedPong) Debug() string {
	return fmt.Sprintf("connected-pong ping=%d pong=%d", p.PingTime, p.PongTime)
}

// DisconnectionNotification tells the remote that the sender closed the connection.
type DisconnectionNotification struct{}

func (d *DisconnectionNotification) Kind() Kind { return KindDisconnectionNotification }

func (d *DisconnectionNotification) Marshal() []byte {
	return header(KindDisconnectionNotification)
}

func (d *DisconnectionNotification) Debug() string {
	return "disconnection-notification"
}

// RemoteNotice informs a connected peer about a connection change with a third peer.
type RemoteNotice struct {
	// NoticeKind is one of KindRemoteDisconnectionNotification, KindRemoteConnectionLost,
	// or KindRemoteNewIncomingConnection.
	NoticeKind Kind

	GUID    guid.PeerGUID
	Address netip.AddrPort
}

func (r *RemoteNotice) Kind() Kind { return r.NoticeKind }

func (r *RemoteNotice) Marshal() []byte {
	b := append(header(r.NoticeKind), r.GUID[:]...)
	return append(b, bin.PutAddrPort(r.Address)...)
}

func (r *RemoteNotice) Debug() string {
	return fmt.Sprintf("%s guid=%s addr=%s", r.NoticeKind, r.GUID.Debug(), r.Address)
}

// UserData carries opaque application bytes over a connection.
type UserData struct {
	UserKind Kind

	Data []byte
}

func (u *UserData) Kind() Kind { return u.UserKind }

func (u *UserData) Marshal() []byte {
	return append([]byte{byte(u.UserKind)}, u.Data...)
}

func (u *UserData) Debug() string {
	return fmt.Sprintf("%s len=%d", u.UserKind, len(u.Data))
}
