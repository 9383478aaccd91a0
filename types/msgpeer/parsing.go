package msgpeer

import (
	"errors"
	"fmt"
	"slices"

	"github.com/edup2p/peerlink/types/bin"
	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
)

var (
	errEmpty    = errors.New("empty datagram")
	errTooSmall = errors.New("message too small")
	errNoMagic  = errors.New("offline message without magic")
)

// LooksLikeOffline is a cheap check for whether pkt could be an offline message.
func LooksLikeOffline(pkt []byte) bool {
	if len(pkt) < 1+len(Magic) {
		return false
	}

	return Kind(pkt[0]).IsOffline() && string(pkt[1:1+len(Magic)]) == Magic
}

// Parse decodes a datagram. Payloads in the returned message never alias pkt.
func Parse(pkt []byte) (Message, error) {
	if len(pkt) == 0 {
		return nil, errEmpty
	}

	k := Kind(pkt[0])
	b := pkt[1:]

	if k.IsUser() {
		return &UserData{UserKind: k, Data: slices.Clone(b)}, nil
	}

	if k.IsOffline() {
		if !LooksLikeOffline(pkt) {
			return nil, errNoMagic
		}
		b = b[len(Magic):]
	}

	r := bin.NewReader(b)

	var m Message

	switch k {
	case KindConnectionRequest:
		m = &ConnectionRequest{GUID: readGUID(r), Time: clock.TimeMS(r.Uint32())}
	case KindConnectionRequestAccepted:
		m = &ConnectionRequestAccepted{GUID: readGUID(r), YourAddress: r.AddrPort(), RequestTime: clock.TimeMS(r.Uint32())}
	case KindAlreadyConnected:
		m = &AlreadyConnected{GUID: readGUID(r)}
	case KindNoFreeIncomingConnections:
		m = &NoFreeIncomingConnections{GUID: readGUID(r)}
	case KindUnconnectedPing, KindUnconnectedPingOpenConnections:
		m = &UnconnectedPing{OnlyIfOpen: k == KindUnconnectedPingOpenConnections, Time: clock.TimeMS(r.Uint32()), GUID: readGUID(r)}
	case KindUnconnectedPong:
		m = &UnconnectedPong{Time: clock.TimeMS(r.Uint32()), GUID: readGUID(r), Data: r.Rest()}
	case KindAdvertiseSystem:
		m = &AdvertiseSystem{GUID: readGUID(r), Data: r.Rest()}
	case KindConnectedPing:
		m = &ConnectedPing{Time: clock.TimeMS(r.Uint32())}
	case KindConnectedPong:
		m = &ConnectedPong{PingTime: clock.TimeMS(r.Uint32()), PongTime: clock.TimeMS(r.Uint32())}
	case KindDisconnectionNotification:
		m = &DisconnectionNotification{}
	case KindRemoteDisconnectionNotification, KindRemoteConnectionLost, KindRemoteNewIncomingConnection:
		m = &RemoteNotice{NoticeKind: k, GUID: readGUID(r), Address: r.AddrPort()}
	default:
		return nil, fmt.Errorf("invalid message kind: %s", k)
	}

	if r.Err != nil {
		return nil, fmt.Errorf("%w: %s", errTooSmall, k)
	}

	return m, nil
}

func readGUID(r *bin.Reader) guid.PeerGUID {
	if b := r.Fixed(guid.Len); b != nil {
		return guid.PeerGUID(b)
	}
	return guid.Unassigned
}
