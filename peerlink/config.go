package peerlink

import (
	"time"

	"github.com/LukaGiorgadze/gonull"
	bclock "github.com/benbjohnson/clock"
	"github.com/edup2p/peerlink/peerlink/slots"
	"github.com/edup2p/peerlink/types/alloc"
	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/sysaddr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	DefaultConnectionTimeout = 10 * time.Second
	DefaultKeepAliveInterval = time.Second
	DefaultTickInterval      = 10 * time.Millisecond
)

// Config replaces all process-wide state of a peer.
type Config struct {
	// MaxIncomingConnections is the initial incoming budget, see Peer.SetMaximumIncomingConnections.
	//
	// The zero value admits no incoming connections.
	MaxIncomingConnections int

	// ConnectionTimeout is the receive silence after which a connection is lost, zero disables.
	ConnectionTimeout time.Duration
	// KeepAliveInterval is the send silence after which a connection is pinged, zero disables.
	KeepAliveInterval time.Duration
	// TickInterval bounds how late a retry or timeout can be noticed.
	TickInterval time.Duration

	// OfflineReplyRate limits the pongs sent in reply to unconnected pings, zero does not limit.
	OfflineReplyRate  rate.Limit
	OfflineReplyBurst int

	// BroadcastRemoteNotices tells connected peers about changes to the other connections.
	BroadcastRemoteNotices bool

	// GUID is the identity of the peer, it is generated when unassigned.
	GUID guid.PeerGUID

	// Clock is the wall clock time is derived from, the real clock when nil.
	Clock bclock.Clock

	// Allocator provides receive buffers, alloc.Heap when nil.
	Allocator alloc.Allocator

	// OnSendFailure is called with every datagram that could not be written,
	// so it can be routed another way.
	OnSendFailure func(to sysaddr.SystemAddress, pkt []byte, err error)

	// Registerer receives the peer's metrics, they are not registered when nil.
	Registerer prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		ConnectionTimeout: DefaultConnectionTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
		TickInterval:      DefaultTickInterval,
	}
}

// ConnectOptions overrides the retry policy of a single connection attempt. Unset fields use the defaults.
type ConnectOptions struct {
	// SendConnectionAttemptCount is the total amount of connection requests sent.
	SendConnectionAttemptCount gonull.Nullable[int]

	TimeBetweenSendConnectionAttempts gonull.Nullable[time.Duration]

	// Timeout is an absolute deadline for the attempt, when non-zero it governs instead of the count.
	Timeout gonull.Nullable[time.Duration]
}

func (o ConnectOptions) policy() slots.Policy {
	p := slots.DefaultPolicy()

	if o.SendConnectionAttemptCount.Valid {
		p.Count = o.SendConnectionAttemptCount.Val
	}
	if o.TimeBetweenSendConnectionAttempts.Valid {
		p.Interval = o.TimeBetweenSendConnectionAttempts.Val
	}
	if o.Timeout.Valid {
		p.Timeout = o.Timeout.Val
	}

	return p.Normalise()
}
