package actors

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/edup2p/peerlink/peerlink/offline"
	"github.com/edup2p/peerlink/peerlink/recvq"
	"github.com/edup2p/peerlink/peerlink/registry"
	"github.com/edup2p/peerlink/peerlink/slots"
	"github.com/edup2p/peerlink/types"
	"github.com/edup2p/peerlink/types/alloc"
	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/msgpeer"
	"github.com/edup2p/peerlink/types/sysaddr"
	"golang.org/x/sync/errgroup"
)

// Config wires a NetworkManager to the state it owns, and to the state it shares with the application.
type Config struct {
	Self guid.PeerGUID

	Clock   *clock.Source
	Table   *slots.Table
	Offline *offline.Handler
	Queue   *recvq.Queue
	Metrics *Metrics

	Allocator alloc.Allocator

	// RegistryHistory is the amount of recently unbound addresses the registry remembers.
	RegistryHistory int

	// KeepAliveInterval is the send silence after which connected slots are pinged, zero disables.
	KeepAliveInterval time.Duration
	// ConnectionTimeout is the receive silence after which connected slots are lost, zero disables.
	ConnectionTimeout time.Duration
	// TickInterval bounds how long deadlines can go unchecked.
	TickInterval time.Duration

	BroadcastRemoteNotices bool

	// OnSendFailure is called for every datagram that could not be written, it may be nil.
	OnSendFailure func(to sysaddr.SystemAddress, pkt []byte, err error)
}

type socket struct {
	conn types.UDPConn
	recv *SockRecv
}

// NetworkManager is the single network processing context of a peer.
//
// It owns the slot table contents, the registry, and the offline handler;
// everything else talks to it through its inbox.
type NetworkManager struct {
	*ActorCommon

	cfg Config

	reg *registry.Registry

	socks   []*socket
	recvs   errgroup.Group
	frameCh chan RecvFrame

	// last address a remote reported seeing us at
	external netip.AddrPort
}

func NewNetworkManager(pCtx context.Context, cfg Config) *NetworkManager {
	if cfg.Allocator == nil {
		cfg.Allocator = alloc.Heap
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	return &NetworkManager{
		ActorCommon: MakeCommon(pCtx, NetManInboxChLen),

		cfg:     cfg,
		reg:     registry.New(cfg.RegistryHistory),
		frameCh: make(chan RecvFrame, SockRecvFrameChanBuffer),
	}
}

// AddSocket registers a socket and starts reading from it, returning its index.
//
// It must be called before Run, afterwards sockets are added with NManAdoptSocket.
func (nm *NetworkManager) AddSocket(conn types.UDPConn) int {
	idx := len(nm.socks)

	r := MakeSockRecv(nm.ctx, conn, idx, nm.cfg.Allocator, nm.frameCh)
	nm.socks = append(nm.socks, &socket{conn: conn, recv: r})

	nm.recvs.Go(func() error {
		r.Run()
		return nil
	})

	return idx
}

func (nm *NetworkManager) Run() {
	defer func() {
		if v := recover(); v != nil {
			L(nm).Error("panicked", "panic", v)
			nm.Cancel()
			nm.Close()
		}
	}()

	if !nm.running.CheckOrMark() {
		L(nm).Warn("tried to run agent, while already running")
		return
	}

	ticker := nm.cfg.Clock.Base().Ticker(nm.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-nm.ctx.Done():
			nm.Close()
			return
		case <-ticker.C:
			// Deadlines before inbox, so a busy inbox can not starve retries and timeouts.
			nm.tick()
		case m := <-nm.inbox:
			nm.Handle(m)
		case f := <-nm.frameCh:
			nm.handleFrame(f)
		}
	}
}

func (nm *NetworkManager) Close() {
	_ = nm.recvs.Wait()

	// drain frames that were already read
	for {
		select {
		case f := <-nm.frameCh:
			nm.cfg.Allocator.Free(f.pkt)
		default:
			return
		}
	}
}

func (nm *NetworkManager) Handle(m ActorMessage) {
	switch m := m.(type) {
	case *NManConnect:
		m.Reply <- nm.connect(m.Addr, m.Policy)
	case *NManAdoptSocket:
		m.Reply <- nm.AddSocket(m.Conn)
	case *NManClose:
		nm.closeConnection(m.Addr, m.Notify)
		if m.Done != nil {
			close(m.Done)
		}
	case *NManCancel:
		m.Reply <- nm.cancelAttempt(m.Addr)
	case *NManSend:
		m.Reply <- nm.sendUser(m.Addr, m.Data)
	case *NManPing:
		nm.ping(m.Addr, m.OnlyIfOpen)
	case *NManAdvertise:
		nm.advertise(m.Addr, m.Data)
	case *NManSetOfflineResponse:
		nm.cfg.Offline.SetResponse(m.Data)
	case *NManGetOfflineResponse:
		m.Reply <- nm.cfg.Offline.Response()
	case *NManConnectionList:
		m.Reply <- nm.cfg.Table.Connected()
	case *NManConnectionState:
		st := slots.StateUnconnected
		if s := nm.cfg.Table.Get(m.Addr); s != nil {
			st = s.State
		}
		m.Reply <- st
	case *NManExternalAddress:
		m.Reply <- nm.external
	case *NManShutdown:
		nm.shutdown(m.Notify)
		close(m.Done)
	default:
		L(nm).Warn("ignoring unknown message", "msg", fmt.Sprintf("%T", m))
	}
}

func (nm *NetworkManager) handleFrame(f RecvFrame) {
	defer nm.cfg.Allocator.Free(f.pkt)

	from := sysaddr.New(f.src, f.sock)

	m, err := msgpeer.Parse(f.pkt)
	if err != nil {
		L(nm).Log(nm.ctx, types.LevelTrace, "dropping unparsable datagram", "from", from, "err", err)
		nm.cfg.Metrics.Dropped.Inc()
		return
	}

	L(nm).Log(nm.ctx, types.LevelTrace, "received datagram", "from", from, "msg", m.Debug())

	now := nm.cfg.Clock.MS()

	switch m := m.(type) {
	case *msgpeer.UnconnectedPing, *msgpeer.UnconnectedPong, *msgpeer.AdvertiseSystem:
		nm.handleOffline(from, m)
	case *msgpeer.ConnectionRequest:
		nm.onConnectionRequest(from, m, now)
	case *msgpeer.ConnectionRequestAccepted:
		nm.onAccepted(from, m, now)
	case *msgpeer.AlreadyConnected:
		nm.onRejected(from, m.GUID, msgpeer.KindAlreadyConnected, OutcomeRemoteAlready)
	case *msgpeer.NoFreeIncomingConnections:
		nm.onRejected(from, m.GUID, msgpeer.KindNoFreeIncomingConnections, OutcomeRemoteFull)
	default:
		nm.onConnected(from, m, now)
	}
}

// tick checks the deadlines of every slot.
func (nm *NetworkManager) tick() {
	now := nm.cfg.Clock.MS()

	for _, s := range nm.cfg.Table.All() {
		switch s.Due(now, nm.cfg.KeepAliveInterval, nm.cfg.ConnectionTimeout) {
		case slots.ActionSendRequest:
			_ = nm.sendRequest(s, now)
		case slots.ActionFail:
			nm.failAttempt(s)
		case slots.ActionKeepAlive:
			_ = nm.send(s.Address, &msgpeer.ConnectedPing{Time: now})
			s.MarkPingSent(now)
		case slots.ActionLost:
			nm.lose(s)
		}
	}
}

// send writes a message from the socket the address belongs to.
func (nm *NetworkManager) send(to sysaddr.SystemAddress, m msgpeer.Message) error {
	pkt := m.Marshal()

	if to.SocketIndex < 0 || to.SocketIndex >= len(nm.socks) {
		err := fmt.Errorf("%w: no socket with index %d", ErrSocketUnavailable, to.SocketIndex)
		nm.sendFailed(to, pkt, err)
		return err
	}

	if _, err := nm.socks[to.SocketIndex].conn.WriteToUDPAddrPort(pkt, to.AddrPort); err != nil {
		nm.sendFailed(to, pkt, err)
		return err
	}

	L(nm).Log(nm.ctx, types.LevelTrace, "sent datagram", "to", to, "msg", m.Debug())

	return nil
}

func (nm *NetworkManager) sendFailed(to sysaddr.SystemAddress, pkt []byte, err error) {
	L(nm).Warn("error writing to socket", "to", to, "err", err)

	if nm.cfg.OnSendFailure != nil {
		nm.cfg.OnSendFailure(to, pkt, err)
	}
}

func (nm *NetworkManager) sendUser(to sysaddr.SystemAddress, data []byte) error {
	if len(data) == 0 || !msgpeer.Kind(data[0]).IsUser() {
		return ErrInvalidPayload
	}

	s := nm.cfg.Table.Get(to)
	if s == nil || s.State != slots.StateConnected {
		return ErrNotConnected
	}

	if err := nm.send(s.Address, &msgpeer.UserData{UserKind: msgpeer.Kind(data[0]), Data: data[1:]}); err != nil {
		return err
	}

	s.MarkSent(nm.cfg.Clock.MS())
	return nil
}

func (nm *NetworkManager) shutdown(notify bool) {
	for _, s := range nm.cfg.Table.All() {
		if s.State.IsPending() {
			nm.cfg.Table.Remove(s.Address)
			continue
		}

		nm.drop(s, notify)
	}
}
