// Package peerlink establishes and maintains connections between peers over plain UDP.
//
// A Peer binds one or more sockets, negotiates connections with remote peers through a
// request/accept handshake, and reports everything that happens as entries on a receive queue
// the application drains with Poll.
package peerlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"sync"

	"github.com/edup2p/peerlink/peerlink/actors"
	"github.com/edup2p/peerlink/peerlink/offline"
	"github.com/edup2p/peerlink/peerlink/recvq"
	"github.com/edup2p/peerlink/peerlink/slots"
	"github.com/edup2p/peerlink/types"
	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/msgpeer"
	"github.com/edup2p/peerlink/types/sysaddr"
	"go.uber.org/multierr"
	"go4.org/netipx"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type (
	Packet          = recvq.Packet
	Connection      = slots.Connection
	ConnectionState = slots.State
)

// Priority is accepted by CloseConnection for callers that order their own traffic,
// the disconnection notification itself is always sent immediately.
type Priority int

const (
	PriorityImmediate Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// SocketDescriptor describes a socket to bind on Startup.
type SocketDescriptor struct {
	// Host is the local address to bind, all addresses when empty.
	Host string
	// Port is the local port, a random one when zero.
	Port uint16
}

type boundSocket struct {
	conn  types.UDPConn
	local netip.AddrPort

	// owned sockets were bound by Startup, and are closed on Shutdown
	owned bool
}

type Peer struct {
	cfg  Config
	self guid.PeerGUID

	queue   *recvq.Queue
	metrics *actors.Metrics

	mu sync.Mutex

	maxIncoming int
	response    []byte

	// set while started
	ctx     context.Context
	cancel  context.CancelFunc
	eg      *errgroup.Group
	nm      *actors.NetworkManager
	table   *slots.Table
	socks   []boundSocket
	locals  *netipx.IPSet
	ifAddrs []netip.Addr
}

// New creates a stopped peer, zero fields in cfg get their defaults.
func New(cfg Config) *Peer {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.GUID.IsUnassigned() {
		cfg.GUID = guid.New()
	}
	if cfg.OfflineReplyRate > 0 && cfg.OfflineReplyBurst <= 0 {
		cfg.OfflineReplyBurst = 1
	}

	return &Peer{
		cfg:         cfg,
		self:        cfg.GUID,
		queue:       recvq.New(),
		metrics:     actors.NewMetrics(cfg.Registerer),
		maxIncoming: cfg.MaxIncomingConnections,
	}
}

// GUID returns the identity of this peer.
func (p *Peer) GUID() guid.PeerGUID {
	return p.self
}

// Startup binds the sockets and starts processing, a single socket on a random port is bound when
// no descriptors are given. maxConnections bounds all slots, incoming and outgoing together.
func (p *Peer) Startup(maxConnections int, descriptors ...SocketDescriptor) error {
	if maxConnections <= 0 {
		return errInvalidMaxConnections
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nm != nil {
		return ErrAlreadyStarted
	}

	if len(descriptors) == 0 {
		descriptors = []SocketDescriptor{{}}
	}

	var socks []boundSocket
	closeAll := func() {
		for _, s := range socks {
			_ = s.conn.Close()
		}
	}

	for _, d := range descriptors {
		laddr := &net.UDPAddr{Port: int(d.Port)}

		if d.Host != "" {
			ip, err := netip.ParseAddr(d.Host)
			if err != nil {
				closeAll()
				return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
			}
			laddr.IP = ip.AsSlice()
		}

		conn, err := net.ListenUDP("udp", laddr)
		if err != nil {
			closeAll()
			return fmt.Errorf("%w: %w", ErrSocketUnavailable, err)
		}

		socks = append(socks, boundSocket{conn: conn, local: types.LocalAddrPort(conn), owned: true})
	}

	p.socks = socks
	p.collectLocals()

	p.table = slots.NewTable(maxConnections, p.maxIncoming)

	var limiter *rate.Limiter
	if p.cfg.OfflineReplyRate > 0 {
		limiter = rate.NewLimiter(p.cfg.OfflineReplyRate, p.cfg.OfflineReplyBurst)
	}
	off := offline.New(p.self, limiter)
	off.SetResponse(p.response)

	p.ctx, p.cancel = context.WithCancel(context.Background())

	var eg errgroup.Group
	p.eg = &eg

	p.nm = actors.NewNetworkManager(p.ctx, actors.Config{
		Self:                   p.self,
		Clock:                  clock.NewSource(p.cfg.Clock),
		Table:                  p.table,
		Offline:                off,
		Queue:                  p.queue,
		Metrics:                p.metrics,
		Allocator:              p.cfg.Allocator,
		KeepAliveInterval:      p.cfg.KeepAliveInterval,
		ConnectionTimeout:      p.cfg.ConnectionTimeout,
		TickInterval:           p.cfg.TickInterval,
		BroadcastRemoteNotices: p.cfg.BroadcastRemoteNotices,
		OnSendFailure:          p.cfg.OnSendFailure,
	})

	for _, s := range socks {
		p.nm.AddSocket(s.conn)
	}

	nm := p.nm
	eg.Go(func() error {
		nm.Run()
		return nil
	})

	slog.Info("peer started", "guid", p.self.Debug(), "sockets", types.Map(socks, func(s boundSocket) string {
		return s.local.String()
	}))

	return nil
}

// collectLocals records the addresses that reach this host, for IsLocalAddress and GetInternalAddress.
func (p *Peer) collectLocals() {
	var b netipx.IPSetBuilder
	p.ifAddrs = nil

	add := func(ip netip.Addr) {
		ip = types.NormaliseAddr(ip.WithZone(""))
		if !ip.IsValid() || ip.IsUnspecified() {
			return
		}
		b.Add(ip)
		if !slices.Contains(p.ifAddrs, ip) {
			p.ifAddrs = append(p.ifAddrs, ip)
		}
	}

	for _, s := range p.socks {
		add(s.local.Addr())
	}

	if addrs, err := net.InterfaceAddrs(); err != nil {
		slog.Warn("could not list interface addresses", "err", err)
	} else {
		for _, a := range addrs {
			if pfx, err := netip.ParsePrefix(a.String()); err == nil {
				add(pfx.Addr())
			}
		}
	}

	set, err := b.IPSet()
	if err != nil {
		slog.Warn("could not build local address set", "err", err)
	}
	p.locals = set
}

// running returns the network manager and its context, or nil when not started.
func (p *Peer) running() (*actors.NetworkManager, context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.nm, p.ctx
}

// call sends m to the network manager, and waits for the answer on reply.
func call[T any](p *Peer, m actors.ActorMessage, reply chan T) (T, error) {
	var zero T

	nm, ctx := p.running()
	if nm == nil {
		return zero, ErrNotStarted
	}

	if !actors.SendMessage(ctx, nm.Inbox(), m) {
		return zero, ErrNotStarted
	}

	select {
	case v := <-reply:
		return v, nil
	case <-nm.Done():
		return zero, ErrNotStarted
	}
}

// tell sends m to the network manager without waiting for it to be processed.
func (p *Peer) tell(m actors.ActorMessage) error {
	nm, ctx := p.running()
	if nm == nil {
		return ErrNotStarted
	}

	if !actors.SendMessage(ctx, nm.Inbox(), m) {
		return ErrNotStarted
	}
	return nil
}

func (p *Peer) resolve(host string, port uint16) (sysaddr.SystemAddress, error) {
	nm, ctx := p.running()
	if nm == nil {
		return sysaddr.Unassigned, ErrNotStarted
	}

	addr, err := sysaddr.Resolve(ctx, host, port)
	if err != nil {
		return sysaddr.Unassigned, err
	}

	addr.SocketIndex = p.socketFor(addr.AddrPort.Addr())
	return addr, nil
}

// socketFor picks the first owned socket that can reach ip.
func (p *Peer) socketFor(ip netip.Addr) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.socks {
		if !s.owned {
			continue
		}

		la := s.local.Addr()
		if la.IsUnspecified() || la.Is4() == ip.Is4() {
			return i
		}
	}

	return 0
}

// Connect starts a connection attempt. The outcome arrives on the receive queue as
// msgpeer.KindConnectionRequestAccepted, or as one of the failure kinds.
func (p *Peer) Connect(host string, port uint16, opts ConnectOptions) error {
	addr, err := p.resolve(host, port)
	if err != nil {
		return err
	}

	return p.connect(addr, opts)
}

// ConnectWithSocket is Connect, but sends from conn, which must already be bound.
//
// conn is read from until Shutdown, and is never closed by the peer.
func (p *Peer) ConnectWithSocket(host string, port uint16, conn types.UDPConn, opts ConnectOptions) error {
	addr, err := p.resolve(host, port)
	if err != nil {
		return err
	}

	idx, err := p.adopt(conn)
	if err != nil {
		return err
	}

	addr.SocketIndex = idx
	return p.connect(addr, opts)
}

func (p *Peer) adopt(conn types.UDPConn) (int, error) {
	p.mu.Lock()
	for i, s := range p.socks {
		if s.conn == conn {
			p.mu.Unlock()
			return i, nil
		}
	}
	p.mu.Unlock()

	reply := make(chan int, 1)
	idx, err := call(p, &actors.NManAdoptSocket{Conn: conn, Reply: reply}, reply)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if idx != len(p.socks) {
		return 0, fmt.Errorf("%w: socket index mismatch", ErrSocketUnavailable)
	}
	p.socks = append(p.socks, boundSocket{conn: conn, local: types.LocalAddrPort(conn)})

	return idx, nil
}

func (p *Peer) connect(addr sysaddr.SystemAddress, opts ConnectOptions) error {
	reply := make(chan error, 1)

	err, cerr := call(p, &actors.NManConnect{Addr: addr, Policy: opts.policy(), Reply: reply}, reply)
	if cerr != nil {
		return cerr
	}
	return err
}

// CloseConnection tears down the connection or attempt with addr, optionally notifying the remote.
//
// channel and priority are accepted for callers that order their own traffic, the notification
// is sent immediately.
func (p *Peer) CloseConnection(addr sysaddr.SystemAddress, notify bool, channel uint8, priority Priority) {
	slog.Debug("closing connection", "addr", addr, "notify", notify, "channel", channel, "priority", priority)

	done := make(chan struct{})
	_, _ = call(p, &actors.NManClose{Addr: addr, Notify: notify, Done: done}, done)
}

// CancelConnectionAttempt abandons a pending attempt to addr, without a failure entry.
// It does nothing when the attempt already resolved.
func (p *Peer) CancelConnectionAttempt(addr sysaddr.SystemAddress) {
	reply := make(chan bool, 1)
	if ok, err := call(p, &actors.NManCancel{Addr: addr, Reply: reply}, reply); err == nil && !ok {
		slog.Debug("no connection attempt to cancel", "addr", addr)
	}
}

// Poll returns the next receive queue entry, it never blocks.
func (p *Peer) Poll() (Packet, bool) {
	return p.queue.Poll()
}

// SendLoopback puts a copy of data on this peer's own receive queue.
func (p *Peer) SendLoopback(data []byte) {
	p.queue.Push(Packet{
		Kind:    msgpeer.KindUserPacket,
		Address: sysaddr.Unassigned,
		GUID:    p.self,
		Payload: slices.Clone(data),
	})
}

// Send sends data to a connected peer, data must start with a user packet kind.
func (p *Peer) Send(addr sysaddr.SystemAddress, data []byte) error {
	reply := make(chan error, 1)

	err, cerr := call(p, &actors.NManSend{Addr: addr, Data: slices.Clone(data), Reply: reply}, reply)
	if cerr != nil {
		return cerr
	}
	return err
}

// SetMaximumIncomingConnections changes the incoming budget, existing connections stay.
func (p *Peer) SetMaximumIncomingConnections(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.maxIncoming = max(n, 0)
	if p.table != nil {
		p.table.SetMaxIncoming(n)
	}
}

func (p *Peer) GetMaximumIncomingConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.table != nil {
		return p.table.MaxIncoming()
	}
	return p.maxIncoming
}

// SetOfflineResponse sets the bytes sent in reply to unconnected pings, a copy of data is kept.
//
// Only the first offline.MaxResponseLen bytes are kept, so a pong always fits one datagram.
func (p *Peer) SetOfflineResponse(data []byte) {
	data = slices.Clone(data)

	p.mu.Lock()
	p.response = data
	p.mu.Unlock()

	_ = p.tell(&actors.NManSetOfflineResponse{Data: data})
}

// GetOfflineResponse returns a copy of the offline response.
func (p *Peer) GetOfflineResponse() []byte {
	reply := make(chan []byte, 1)
	if b, err := call(p, &actors.NManGetOfflineResponse{Reply: reply}, reply); err == nil {
		return b
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.response) > offline.MaxResponseLen {
		return slices.Clone(p.response[:offline.MaxResponseLen])
	}
	return types.SliceOrEmpty(slices.Clone(p.response))
}

// AdvertiseSystem sends data to a peer there need not be a connection with,
// it arrives there as a single msgpeer.KindAdvertiseSystem entry.
func (p *Peer) AdvertiseSystem(host string, port uint16, data []byte) error {
	addr, err := p.resolve(host, port)
	if err != nil {
		return err
	}

	return p.tell(&actors.NManAdvertise{Addr: addr, Data: slices.Clone(data)})
}

// Ping sends an unconnected ping, the answer arrives as a msgpeer.KindUnconnectedPong entry.
func (p *Peer) Ping(host string, port uint16) error {
	return p.ping(host, port, false)
}

// PingOpenConnections is Ping, but the remote only answers when it accepts incoming connections.
func (p *Peer) PingOpenConnections(host string, port uint16) error {
	return p.ping(host, port, true)
}

func (p *Peer) ping(host string, port uint16, onlyIfOpen bool) error {
	addr, err := p.resolve(host, port)
	if err != nil {
		return err
	}

	return p.tell(&actors.NManPing{Addr: addr, OnlyIfOpen: onlyIfOpen})
}

// GetConnectionList returns a snapshot of all connected peers.
func (p *Peer) GetConnectionList() []Connection {
	reply := make(chan []slots.Connection, 1)
	conns, _ := call(p, &actors.NManConnectionList{Reply: reply}, reply)
	return types.SliceOrEmpty(conns)
}

// GetConnectionState returns the state of the slot for addr, slots.StateUnconnected if there is none.
func (p *Peer) GetConnectionState(addr sysaddr.SystemAddress) ConnectionState {
	reply := make(chan slots.State, 1)
	st, err := call(p, &actors.NManConnectionState{Addr: addr, Reply: reply}, reply)
	if err != nil {
		return slots.StateUnconnected
	}
	return st
}

// GetLocalAddress returns the bound address of socket i, or sysaddr.Unassigned.
func (p *Peer) GetLocalAddress(i int) sysaddr.SystemAddress {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.socks) {
		return sysaddr.Unassigned
	}

	return sysaddr.New(p.socks[i].local, i)
}

// IsLocalAddress reports whether candidate is one of this peer's sockets.
func (p *Peer) IsLocalAddress(candidate sysaddr.SystemAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ip := candidate.AddrPort.Addr()

	for _, s := range p.socks {
		if s.local.Port() != candidate.AddrPort.Port() {
			continue
		}

		if s.local.Addr() == ip {
			return true
		}

		if s.local.Addr().IsUnspecified() && p.locals != nil && p.locals.Contains(ip) {
			return true
		}
	}

	return false
}

// GetInternalAddress returns the address of the first socket as other hosts on the local network reach it.
func (p *Peer) GetInternalAddress() sysaddr.SystemAddress {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.socks) == 0 {
		return sysaddr.Unassigned
	}

	local := p.socks[0].local
	if !local.Addr().IsUnspecified() {
		return sysaddr.New(local, 0)
	}

	var fallback netip.Addr
	for _, ip := range p.ifAddrs {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			if !fallback.IsValid() {
				fallback = ip
			}
			continue
		}
		if local.Addr().Is4() && !ip.Is4() {
			continue
		}
		return sysaddr.New(netip.AddrPortFrom(ip, local.Port()), 0)
	}

	if fallback.IsValid() {
		return sysaddr.New(netip.AddrPortFrom(fallback, local.Port()), 0)
	}
	return sysaddr.New(local, 0)
}

// GetExternalAddress returns this peer's address as last reported by a remote that accepted a connection,
// or sysaddr.Unassigned.
func (p *Peer) GetExternalAddress() sysaddr.SystemAddress {
	reply := make(chan netip.AddrPort, 1)
	ap, err := call(p, &actors.NManExternalAddress{Reply: reply}, reply)
	if err != nil || !ap.IsValid() {
		return sysaddr.Unassigned
	}
	return sysaddr.New(ap, -1)
}

// Shutdown stops the peer, optionally notifying every connected remote first.
//
// Sockets bound by Startup are closed, the peer can be started again afterwards.
func (p *Peer) Shutdown(notify bool) error {
	done := make(chan struct{})
	if _, err := call(p, &actors.NManShutdown{Notify: notify, Done: done}, done); err != nil && !errors.Is(err, ErrNotStarted) {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nm == nil {
		return ErrNotStarted
	}

	p.cancel()

	var err error
	for _, s := range p.socks {
		if s.owned {
			err = multierr.Append(err, s.conn.Close())
		}
	}

	// socket readers stop once their socket closes or their context ends
	_ = p.eg.Wait()

	p.nm = nil
	p.table = nil
	p.socks = nil
	p.ctx, p.cancel, p.eg = nil, nil, nil

	slog.Info("peer stopped", "guid", p.self.Debug())

	return err
}
