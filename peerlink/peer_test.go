package peerlink

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/LukaGiorgadze/gonull"
	"github.com/edup2p/peerlink/peerlink/slots"
	"github.com/edup2p/peerlink/types"
	"github.com/edup2p/peerlink/types/msgpeer"
	"github.com/edup2p/peerlink/types/sysaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	assertEventuallyTick    = 5 * time.Millisecond
	assertEventuallyTimeout = 3 * time.Second
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startPeer(t *testing.T, maxConnections, maxIncoming int, mod ...func(*Config)) *Peer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.MaxIncomingConnections = maxIncoming
	for _, f := range mod {
		f(&cfg)
	}

	p := New(cfg)
	require.NoError(t, p.Startup(maxConnections, SocketDescriptor{Host: "127.0.0.1"}))

	t.Cleanup(func() {
		_ = p.Shutdown(false)
	})

	return p
}

func portOf(p *Peer) uint16 {
	return p.GetLocalAddress(0).AddrPort.Port()
}

func addrOf(p *Peer) sysaddr.SystemAddress {
	return p.GetLocalAddress(0)
}

// await polls p until an entry of kind arrives, discarding everything before it.
func await(t *testing.T, p *Peer, kind msgpeer.Kind) Packet {
	t.Helper()

	var got Packet
	require.Eventually(t, func() bool {
		for {
			pkt, ok := p.Poll()
			if !ok {
				return false
			}
			if pkt.Kind == kind {
				got = pkt
				return true
			}
		}
	}, assertEventuallyTimeout, assertEventuallyTick, "waiting for %s", kind)

	return got
}

func quickRetries() ConnectOptions {
	return ConnectOptions{
		SendConnectionAttemptCount:        gonull.NewNullable(3),
		TimeBetweenSendConnectionAttempts: gonull.NewNullable(50 * time.Millisecond),
	}
}

func connectPeers(t *testing.T, a, b *Peer) {
	t.Helper()

	require.NoError(t, a.Connect("127.0.0.1", portOf(b), ConnectOptions{}))

	got := await(t, a, msgpeer.KindConnectionRequestAccepted)
	assert.Equal(t, b.GUID(), got.GUID)

	got = await(t, b, msgpeer.KindNewIncomingConnection)
	assert.Equal(t, a.GUID(), got.GUID)
}

func TestPeer_Lifecycle(t *testing.T) {
	p := New(DefaultConfig())

	assert.ErrorIs(t, p.Connect("127.0.0.1", 1, ConnectOptions{}), ErrNotStarted)
	assert.ErrorIs(t, p.Shutdown(false), ErrNotStarted)
	assert.ErrorIs(t, p.Startup(0), errInvalidMaxConnections)

	require.NoError(t, p.Startup(1, SocketDescriptor{Host: "127.0.0.1"}))
	assert.ErrorIs(t, p.Startup(1), ErrAlreadyStarted)

	assert.False(t, addrOf(p).IsUnassigned())
	assert.True(t, p.GetLocalAddress(1).IsUnassigned())

	require.NoError(t, p.Shutdown(false))

	// peers can be restarted
	require.NoError(t, p.Startup(1, SocketDescriptor{Host: "127.0.0.1"}))
	require.NoError(t, p.Shutdown(false))
}

func TestPeer_StartupBadDescriptor(t *testing.T) {
	p := New(DefaultConfig())

	assert.ErrorIs(t, p.Startup(1, SocketDescriptor{Host: "not an address"}), ErrInvalidAddress)

	// the first socket was bound, and then released
	assert.ErrorIs(t, p.Startup(1, SocketDescriptor{Host: "127.0.0.1"}, SocketDescriptor{Host: "x"}), ErrInvalidAddress)
	assert.ErrorIs(t, p.Shutdown(false), ErrNotStarted)
}

func TestPeer_InvalidAddress(t *testing.T) {
	p := startPeer(t, 1, 0)

	assert.ErrorIs(t, p.Connect("", 1234, ConnectOptions{}), ErrInvalidAddress)
	assert.ErrorIs(t, p.Connect("127.0.0.1", 0, ConnectOptions{}), ErrInvalidAddress)
	assert.ErrorIs(t, p.Ping("", 0), ErrInvalidAddress)
	assert.ErrorIs(t, p.AdvertiseSystem("127.0.0.1", 0, nil), ErrInvalidAddress)
}

func TestPeer_Loopback(t *testing.T) {
	p := startPeer(t, 1, 0)

	data := []byte{byte(msgpeer.KindUserPacket) + 1, 'h', 'i'}
	p.SendLoopback(data)
	data[1] = 'X'

	got, ok := p.Poll()
	require.True(t, ok)
	assert.Equal(t, msgpeer.KindUserPacket, got.Kind)
	assert.True(t, got.Address.IsUnassigned())
	assert.Equal(t, p.GUID(), got.GUID)
	assert.Equal(t, []byte{byte(msgpeer.KindUserPacket) + 1, 'h', 'i'}, got.Payload)

	_, ok = p.Poll()
	assert.False(t, ok)
}

func TestPeer_OfflineResponse(t *testing.T) {
	p := New(DefaultConfig())

	p.SetOfflineResponse([]byte("before"))
	assert.Equal(t, []byte("before"), p.GetOfflineResponse())

	require.NoError(t, p.Startup(1, SocketDescriptor{Host: "127.0.0.1"}))
	defer p.Shutdown(false)

	assert.Equal(t, []byte("before"), p.GetOfflineResponse())

	p.SetOfflineResponse(nil)
	assert.Equal(t, []byte{}, p.GetOfflineResponse())

	long := make([]byte, 1000)
	p.SetOfflineResponse(long)
	assert.Len(t, p.GetOfflineResponse(), 400)
}

func TestPeer_Ping(t *testing.T) {
	a := startPeer(t, 1, 0)
	b := startPeer(t, 1, 0)

	b.SetOfflineResponse([]byte("X"))

	require.NoError(t, a.Ping("127.0.0.1", portOf(b)))

	got := await(t, a, msgpeer.KindUnconnectedPong)
	assert.Equal(t, b.GUID(), got.GUID)
	assert.Equal(t, []byte("X"), got.Payload)
	assert.Equal(t, addrOf(b).AddrPort, got.Address.AddrPort)

	// nothing is created by pings
	assert.Empty(t, a.GetConnectionList())
	assert.Empty(t, b.GetConnectionList())
}

func TestPeer_PingOpenConnections(t *testing.T) {
	a := startPeer(t, 1, 0)
	closed := startPeer(t, 1, 0)
	open := startPeer(t, 1, 1)

	require.NoError(t, a.PingOpenConnections("127.0.0.1", portOf(closed)))
	require.NoError(t, a.PingOpenConnections("127.0.0.1", portOf(open)))

	got := await(t, a, msgpeer.KindUnconnectedPong)
	assert.Equal(t, open.GUID(), got.GUID)

	// the closed peer stays silent
	time.Sleep(100 * time.Millisecond)
	_, ok := a.Poll()
	assert.False(t, ok)
}

func TestPeer_Advertise(t *testing.T) {
	a := startPeer(t, 1, 0)
	b := startPeer(t, 1, 0)

	require.NoError(t, a.AdvertiseSystem("127.0.0.1", portOf(b), []byte("hello world")))

	got := await(t, b, msgpeer.KindAdvertiseSystem)
	assert.Equal(t, a.GUID(), got.GUID)
	assert.Equal(t, []byte("hello world"), got.Payload)

	time.Sleep(50 * time.Millisecond)
	_, ok := b.Poll()
	assert.False(t, ok, "advertisement delivered more than once")

	assert.Empty(t, b.GetConnectionList())
}

func TestPeer_ConnectAndClose(t *testing.T) {
	a := startPeer(t, 1, 0)
	b := startPeer(t, 1, 1)

	connectPeers(t, a, b)

	list := a.GetConnectionList()
	require.Len(t, list, 1)
	assert.Equal(t, addrOf(b).AddrPort, list[0].Address.AddrPort)
	assert.Equal(t, b.GUID(), list[0].GUID)
	assert.Equal(t, slots.Outgoing, list[0].Direction)

	assert.Equal(t, slots.StateConnected, a.GetConnectionState(addrOf(b)))
	assert.Equal(t, slots.StateConnected, b.GetConnectionState(addrOf(a)))

	// the remote told us where it sees us
	assert.Equal(t, addrOf(a).AddrPort, a.GetExternalAddress().AddrPort)

	assert.ErrorIs(t, a.Connect("127.0.0.1", portOf(b), ConnectOptions{}), ErrAlreadyConnected)

	a.CloseConnection(addrOf(b), true, 0, PriorityLow)
	assert.Equal(t, slots.StateUnconnected, a.GetConnectionState(addrOf(b)))

	got := await(t, b, msgpeer.KindDisconnectionNotification)
	assert.Equal(t, a.GUID(), got.GUID)
	assert.Empty(t, b.GetConnectionList())
}

func TestPeer_Send(t *testing.T) {
	a := startPeer(t, 1, 0)
	b := startPeer(t, 1, 1)

	payload := []byte{byte(msgpeer.KindUserPacket), 1, 2, 3}

	assert.ErrorIs(t, a.Send(addrOf(b), payload), ErrNotConnected)

	connectPeers(t, a, b)

	assert.ErrorIs(t, a.Send(addrOf(b), []byte{byte(msgpeer.KindConnectedPing)}), ErrInvalidPayload)
	require.NoError(t, a.Send(addrOf(b), payload))

	got := await(t, b, msgpeer.KindUserPacket)
	assert.Equal(t, payload, got.Payload)
	assert.Equal(t, a.GUID(), got.GUID)
}

func TestPeer_NoFreeIncoming(t *testing.T) {
	a := startPeer(t, 1, 0)
	b := startPeer(t, 1, 0)

	require.NoError(t, a.Connect("127.0.0.1", portOf(b), ConnectOptions{}))

	got := await(t, a, msgpeer.KindNoFreeIncomingConnections)
	assert.Equal(t, b.GUID(), got.GUID)
	assert.Equal(t, slots.StateUnconnected, a.GetConnectionState(addrOf(b)))

	b.SetMaximumIncomingConnections(1)
	assert.Equal(t, 1, b.GetMaximumIncomingConnections())

	connectPeers(t, a, b)
}

func TestPeer_AttemptFails(t *testing.T) {
	a := startPeer(t, 1, 0)

	// nothing listens here
	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := uint16(silent.LocalAddr().(*net.UDPAddr).Port)
	defer silent.Close()

	require.NoError(t, a.Connect("127.0.0.1", port, quickRetries()))
	assert.ErrorIs(t, a.Connect("127.0.0.1", port, quickRetries()), ErrConnectionAttemptInProgress)

	got := await(t, a, msgpeer.KindConnectionAttemptFailed)
	assert.Equal(t, port, got.Address.AddrPort.Port())

	// the slot is free again
	require.NoError(t, a.Connect("127.0.0.1", port, quickRetries()))
}

func TestPeer_CrossConnect(t *testing.T) {
	a := startPeer(t, 1, 1)
	b := startPeer(t, 1, 1)

	require.NoError(t, a.Connect("127.0.0.1", portOf(b), ConnectOptions{}))
	require.NoError(t, b.Connect("127.0.0.1", portOf(a), ConnectOptions{}))

	assert.Eventually(t, func() bool {
		return a.GetConnectionState(addrOf(b)) == slots.StateConnected &&
			b.GetConnectionState(addrOf(a)) == slots.StateConnected
	}, assertEventuallyTimeout, assertEventuallyTick)

	assert.Len(t, a.GetConnectionList(), 1)
	assert.Len(t, b.GetConnectionList(), 1)
}

func TestPeer_CancelRace(t *testing.T) {
	a := startPeer(t, 1, 0)
	b := startPeer(t, 1, 1)

	for range 20 {
		err := a.Connect("127.0.0.1", portOf(b), ConnectOptions{})
		if err != nil {
			require.ErrorIs(t, err, ErrConnectionAttemptInProgress)
		}
		a.CancelConnectionAttempt(addrOf(b))

		if a.GetConnectionState(addrOf(b)) == slots.StateConnected {
			a.CloseConnection(addrOf(b), true, 0, PriorityImmediate)
		}
	}

	// late accepts are answered with a disconnection, so neither side keeps a slot
	assert.Eventually(t, func() bool {
		return len(a.GetConnectionList()) == 0 && len(b.GetConnectionList()) == 0
	}, assertEventuallyTimeout, assertEventuallyTick)
}

func TestPeer_Mesh(t *testing.T) {
	const n = 8

	peers := make([]*Peer, n)
	for i := range peers {
		peers[i] = startPeer(t, 4, 4)
	}

	for i, p := range peers {
		for j, o := range peers {
			if i == j {
				continue
			}
			// some attempts do not fit in the table, that is expected
			_ = p.Connect("127.0.0.1", portOf(o), quickRetries())
		}
	}

	// wait until no attempt is pending anymore
	assert.Eventually(t, func() bool {
		for i, p := range peers {
			for j, o := range peers {
				if i != j && p.GetConnectionState(addrOf(o)).IsPending() {
					return false
				}
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	total := 0
	for _, p := range peers {
		conns := p.GetConnectionList()
		assert.LessOrEqual(t, len(conns), 4)
		total += len(conns)
	}
	assert.Positive(t, total)
}

func TestPeer_ShutdownNotifies(t *testing.T) {
	a := New(DefaultConfig())
	require.NoError(t, a.Startup(1, SocketDescriptor{Host: "127.0.0.1"}))
	b := startPeer(t, 1, 1)

	connectPeers(t, a, b)

	require.NoError(t, a.Shutdown(true))

	got := await(t, b, msgpeer.KindDisconnectionNotification)
	assert.Equal(t, a.GUID(), got.GUID)
	assert.Empty(t, b.GetConnectionList())
}

func TestPeer_ConnectWithSocket(t *testing.T) {
	udp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer udp.Close()

	conn := &types.UDPConnCloseCatcher{UDPConn: udp}

	a := New(DefaultConfig())
	require.NoError(t, a.Startup(1, SocketDescriptor{Host: "127.0.0.1"}))
	b := startPeer(t, 1, 1)

	require.NoError(t, a.ConnectWithSocket("127.0.0.1", portOf(b), conn, ConnectOptions{}))
	got := await(t, b, msgpeer.KindNewIncomingConnection)
	assert.Equal(t, a.GUID(), got.GUID)

	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	assert.Equal(t, local, got.Address.AddrPort)
	assert.Equal(t, local, a.GetLocalAddress(1).AddrPort)

	require.NoError(t, a.Shutdown(false))

	// the socket was lent, not given
	assert.False(t, conn.Closed())
	_, err = udp.WriteToUDPAddrPort([]byte{byte(msgpeer.KindUserPacket)}, addrOf(b).AddrPort)
	assert.NoError(t, err)
}

func TestPeer_IsLocalAddress(t *testing.T) {
	p := startPeer(t, 1, 0)
	port := portOf(p)

	assert.True(t, p.IsLocalAddress(sysaddr.New(netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port), 0)))
	assert.False(t, p.IsLocalAddress(sysaddr.New(netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port+1), 0)))
	assert.False(t, p.IsLocalAddress(sysaddr.New(netip.AddrPortFrom(netip.MustParseAddr("192.0.2.1"), port), 0)))

	assert.Equal(t, addrOf(p).AddrPort, p.GetInternalAddress().AddrPort)
}

func TestPeer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := startPeer(t, 1, 0)
	b := startPeer(t, 1, 1, func(c *Config) {
		c.Registerer = reg
	})

	connectPeers(t, a, b)

	assert.Equal(t, float64(1), testutil.ToFloat64(b.metrics.Connected))
	assert.Equal(t, float64(1), testutil.ToFloat64(b.metrics.Handshakes.WithLabelValues("accepted")))

	n, err := testutil.GatherAndCount(reg, "peerlink_handshake_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
