package msgpeer

import "fmt"

// Magic is the 16 byte marker that follows the kind byte of every offline message,
// it keeps random traffic from being mistaken for handshake datagrams.
var Magic = string(MagicBytes)

var MagicBytes = []byte{0x00, 0xFF, 0xFF, 0x00, 0xFE, 0xFE, 0xFE, 0xFE, 0xFD, 0xFD, 0xFD, 0xFD, 0x12, 0x34, 0x56, 0x78}

// Kind is the leading one-byte message tag.
//
// Values match the identifiers used by existing deployments of the protocol, and must not change.
type Kind byte

const (
	KindConnectedPing                   = Kind(0x00)
	KindUnconnectedPing                 = Kind(0x01)
	KindUnconnectedPingOpenConnections  = Kind(0x02)
	KindConnectedPong                   = Kind(0x03)
	KindConnectionRequest               = Kind(0x09)
	KindConnectionRequestAccepted       = Kind(0x10)
	KindConnectionAttemptFailed         = Kind(0x11)
	KindAlreadyConnected                = Kind(0x12)
	KindNewIncomingConnection           = Kind(0x13)
	KindNoFreeIncomingConnections       = Kind(0x14)
	KindDisconnectionNotification       = Kind(0x15)
	KindConnectionLost                  = Kind(0x16)
	KindUnconnectedPong                 = Kind(0x1C)
	KindAdvertiseSystem                 = Kind(0x1D)
	KindRemoteDisconnectionNotification = Kind(0x1F)
	KindRemoteConnectionLost            = Kind(0x20)
	KindRemoteNewIncomingConnection     = Kind(0x21)

	// KindUserPacket is the first kind available to applications, everything at or above it is opaque data.
	KindUserPacket = Kind(0x86)
)

var kindNames = map[Kind]string{
	KindConnectedPing:                   "connected-ping",
	KindUnconnectedPing:                 "unconnected-ping",
	KindUnconnectedPingOpenConnections:  "unconnected-ping-open-connections",
	KindConnectedPong:                   "connected-pong",
	KindConnectionRequest:               "connection-request",
	KindConnectionRequestAccepted:       "connection-request-accepted",
	KindConnectionAttemptFailed:         "connection-attempt-failed",
	KindAlreadyConnected:                "already-connected",
	KindNewIncomingConnection:           "new-incoming-connection",
	KindNoFreeIncomingConnections:       "no-free-incoming-connections",
	KindDisconnectionNotification:       "disconnection-notification",
	KindConnectionLost:                  "connection-lost",
	KindUnconnectedPong:                 "unconnected-pong",
	KindAdvertiseSystem:                 "advertise-system",
	KindRemoteDisconnectionNotification: "remote-disconnection-notification",
	KindRemoteConnectionLost:            "remote-connection-lost",
	KindRemoteNewIncomingConnection:     "remote-new-incoming-connection",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	if k.IsUser() {
		return fmt.Sprintf("user(0x%02x)", byte(k))
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(k))
}

// IsUser reports whether k belongs to the application range.
func (k Kind) IsUser() bool {
	return k >= KindUserPacket
}

// IsOffline reports whether messages of this kind are exchanged without a connection,
// and so carry Magic.
func (k Kind) IsOffline() bool {
	switch k {
	case KindUnconnectedPing, KindUnconnectedPingOpenConnections, KindUnconnectedPong, KindAdvertiseSystem,
		KindConnectionRequest, KindConnectionRequestAccepted, KindAlreadyConnected, KindNoFreeIncomingConnections:
		return true
	default:
		return false
	}
}

// IsLocal reports whether k only ever appears in locally generated receive queue entries.
func (k Kind) IsLocal() bool {
	switch k {
	case KindConnectionAttemptFailed, KindNewIncomingConnection, KindConnectionLost:
		return true
	default:
		return false
	}
}
