package actors

import (
	"fmt"
	"log/slog"

	"github.com/edup2p/peerlink/peerlink/recvq"
	"github.com/edup2p/peerlink/peerlink/slots"
	"github.com/edup2p/peerlink/types"
	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/msgpeer"
	"github.com/edup2p/peerlink/types/sysaddr"
)

// LogTransition moves s to state to, and logs the move.
func LogTransition(s *slots.Slot, to slots.State) {
	slotLog(s).Debug("transitioning state", "to-state", to.String())

	s.State = to
}

func slotLog(s *slots.Slot) *slog.Logger {
	return slog.With("addr", s.Address.String(), "guid", s.GUID.Debug(), "state", s.State.String(), "dir", s.Direction.String())
}

func (nm *NetworkManager) connect(addr sysaddr.SystemAddress, p slots.Policy) error {
	if s := nm.cfg.Table.Get(addr); s != nil {
		if s.State == slots.StateConnected {
			return ErrAlreadyConnected
		}
		return ErrConnectionAttemptInProgress
	}

	if addr.SocketIndex < 0 || addr.SocketIndex >= len(nm.socks) {
		return fmt.Errorf("%w: no socket with index %d", ErrSocketUnavailable, addr.SocketIndex)
	}

	if !nm.cfg.Table.AdmitOutgoing() {
		return ErrNoFreeConnections
	}

	now := nm.cfg.Clock.MS()

	s := slots.NewOutgoing(addr, p)
	if err := nm.cfg.Table.Add(s); err != nil {
		return err
	}

	LogTransition(s, slots.StateRequestingConnection)
	s.StartAttempt(now)

	if err := nm.sendRequest(s, now); err != nil {
		nm.cfg.Table.Remove(addr)
		return fmt.Errorf("%w: %w", ErrSocketUnavailable, err)
	}

	return nil
}

func (nm *NetworkManager) sendRequest(s *slots.Slot, now clock.TimeMS) error {
	s.MarkRequestSent(now)

	return nm.send(s.Address, &msgpeer.ConnectionRequest{GUID: nm.cfg.Self, Time: now})
}

func (nm *NetworkManager) sendAccept(to sysaddr.SystemAddress, req *msgpeer.ConnectionRequest) {
	_ = nm.send(to, &msgpeer.ConnectionRequestAccepted{
		GUID:        nm.cfg.Self,
		YourAddress: to.AddrPort,
		RequestTime: req.Time,
	})
}

func (nm *NetworkManager) onConnectionRequest(from sysaddr.SystemAddress, m *msgpeer.ConnectionRequest, now clock.TimeMS) {
	if m.GUID == nm.cfg.Self || m.GUID.IsUnassigned() {
		L(nm).Debug("dropping connection request with own or empty guid", "from", from)
		nm.cfg.Metrics.Dropped.Inc()
		return
	}

	if s := nm.cfg.Table.Get(from); s != nil {
		switch {
		case s.State.IsPending():
			// Both sides are connecting to each other, converge on one connection.
			if err := nm.reg.Bind(from, m.GUID); err != nil {
				nm.rejectAlreadyConnected(from, m.GUID)
				return
			}

			nm.sendAccept(from, m)
			LogTransition(s, slots.StateConnectionAttemptAccepted)
			nm.establish(s, m.GUID, now, msgpeer.KindConnectionRequestAccepted, OutcomeConnected)
		case s.State == slots.StateConnected && s.GUID == m.GUID:
			// Our accept got lost, the remote is still requesting.
			s.Touch(now)
			nm.sendAccept(from, m)
		case s.State == slots.StateConnected:
			nm.rejectAlreadyConnected(from, m.GUID)
		default:
			L(nm).Debug("ignoring connection request for slot", "from", from, "state", s.State)
		}
		return
	}

	if at := nm.reg.ResolveAddress(m.GUID); !at.IsUnassigned() {
		nm.rejectAlreadyConnected(from, m.GUID)
		return
	}

	if !nm.cfg.Table.AdmitIncoming() {
		L(nm).Debug("rejecting connection request, no free incoming connections", "from", from)
		nm.cfg.Metrics.Handshakes.WithLabelValues(OutcomeRejectedFull).Inc()
		_ = nm.send(from, &msgpeer.NoFreeIncomingConnections{GUID: nm.cfg.Self})
		return
	}

	s := slots.NewIncoming(from, m.GUID, now)
	if err := nm.cfg.Table.Add(s); err != nil {
		// not possible, the table was just checked
		panic(err)
	}

	if err := nm.reg.Bind(from, m.GUID); err != nil {
		panic(fmt.Errorf("binding admitted connection: %w", err))
	}

	nm.sendAccept(from, m)
	nm.establish(s, m.GUID, now, msgpeer.KindNewIncomingConnection, OutcomeAccepted)
}

func (nm *NetworkManager) rejectAlreadyConnected(to sysaddr.SystemAddress, g guid.PeerGUID) {
	L(nm).Debug("rejecting connection request, already connected", "from", to, "guid", g.Debug())
	nm.cfg.Metrics.Handshakes.WithLabelValues(OutcomeAlreadyConn).Inc()

	_ = nm.send(to, &msgpeer.AlreadyConnected{GUID: nm.cfg.Self})
}

func (nm *NetworkManager) onAccepted(from sysaddr.SystemAddress, m *msgpeer.ConnectionRequestAccepted, now clock.TimeMS) {
	s := nm.cfg.Table.Get(from)

	if s == nil {
		// The attempt was cancelled or timed out, make sure the remote does not keep a slot for us.
		L(nm).Debug("got accept without slot, sending disconnection", "from", from)
		_ = nm.send(from, &msgpeer.DisconnectionNotification{})
		return
	}

	nm.observeExternal(m.YourAddress)

	switch s.State {
	case slots.StateRequestingConnection:
		if err := nm.reg.Bind(from, m.GUID); err != nil {
			// Same peer at a different address, keep the connection we already have.
			nm.cfg.Table.Remove(from)
			_ = nm.send(from, &msgpeer.DisconnectionNotification{})
			nm.finishAttempt(s, slots.StateAlreadyConnected, msgpeer.KindAlreadyConnected, m.GUID, OutcomeRemoteAlready)
			return
		}

		LogTransition(s, slots.StateConnectionAttemptAccepted)

		if m.RequestTime == s.RequestTime && clock.AfterOrEqual(now, m.RequestTime) {
			s.RTT = now.Sub(m.RequestTime)
		}

		nm.establish(s, m.GUID, now, msgpeer.KindConnectionRequestAccepted, OutcomeConnected)
	case slots.StateConnected:
		// duplicate, from resends or a crossed connection
		s.Touch(now)
	}
}

func (nm *NetworkManager) onRejected(from sysaddr.SystemAddress, g guid.PeerGUID, kind msgpeer.Kind, outcome string) {
	s := nm.cfg.Table.Get(from)
	if s == nil || s.State != slots.StateRequestingConnection {
		return
	}

	to := slots.StateConnectionAttemptFailed
	if kind == msgpeer.KindAlreadyConnected {
		to = slots.StateAlreadyConnected
	}

	nm.cfg.Table.Remove(from)
	nm.finishAttempt(s, to, kind, g, outcome)
}

func (nm *NetworkManager) failAttempt(s *slots.Slot) {
	nm.cfg.Table.Remove(s.Address)
	nm.finishAttempt(s, slots.StateConnectionAttemptFailed, msgpeer.KindConnectionAttemptFailed, guid.Unassigned, OutcomeFailed)
}

// finishAttempt reports the outcome of an outgoing attempt whose slot was already removed.
func (nm *NetworkManager) finishAttempt(s *slots.Slot, to slots.State, kind msgpeer.Kind, g guid.PeerGUID, outcome string) {
	LogTransition(s, to)

	L(nm).Info("connection attempt ended", "addr", s.Address, "outcome", outcome, "attempts", s.Attempts())
	nm.cfg.Metrics.Handshakes.WithLabelValues(outcome).Inc()

	nm.cfg.Queue.Push(recvq.Packet{Kind: kind, Address: s.Address, GUID: g})
}

func (nm *NetworkManager) establish(s *slots.Slot, g guid.PeerGUID, now clock.TimeMS, kind msgpeer.Kind, outcome string) {
	LogTransition(s, slots.StateConnected)
	s.SetConnected(g, now)

	L(nm).Info("connection established", "addr", s.Address, "guid", g.Debug(), "dir", s.Direction.String())
	nm.cfg.Metrics.Handshakes.WithLabelValues(outcome).Inc()
	nm.cfg.Metrics.Connected.Set(float64(nm.cfg.Table.CountState(slots.StateConnected)))

	nm.cfg.Queue.Push(recvq.Packet{Kind: kind, Address: s.Address, GUID: g})

	nm.broadcastNotice(msgpeer.KindRemoteNewIncomingConnection, s)
}

func (nm *NetworkManager) cancelAttempt(addr sysaddr.SystemAddress) bool {
	s := nm.cfg.Table.Get(addr)
	if s == nil || !s.State.IsPending() {
		return false
	}

	nm.cfg.Table.Remove(addr)
	LogTransition(s, slots.StateUnconnected)
	nm.cfg.Metrics.Handshakes.WithLabelValues(OutcomeCancelled).Inc()

	return true
}

func (nm *NetworkManager) closeConnection(addr sysaddr.SystemAddress, notify bool) {
	s := nm.cfg.Table.Get(addr)
	if s == nil {
		return
	}

	if s.State.IsPending() {
		nm.cancelAttempt(addr)
		return
	}

	nm.drop(s, notify)
	nm.broadcastNotice(msgpeer.KindRemoteDisconnectionNotification, s)
}

// drop tears down a slot, and optionally tells the remote.
func (nm *NetworkManager) drop(s *slots.Slot, notify bool) {
	LogTransition(s, slots.StateDisconnecting)

	if notify {
		_ = nm.send(s.Address, &msgpeer.DisconnectionNotification{})
	}

	nm.cfg.Table.Remove(s.Address)
	nm.reg.Unbind(s.Address)

	LogTransition(s, slots.StateUnconnected)
	L(nm).Info("connection closed", "addr", s.Address, "guid", s.GUID.Debug(), "notified", notify)

	nm.cfg.Metrics.Connected.Set(float64(nm.cfg.Table.CountState(slots.StateConnected)))
}

func (nm *NetworkManager) lose(s *slots.Slot) {
	nm.drop(s, false)
	nm.cfg.Metrics.Handshakes.WithLabelValues(OutcomeConnectionLost).Inc()

	nm.cfg.Queue.Push(recvq.Packet{Kind: msgpeer.KindConnectionLost, Address: s.Address, GUID: s.GUID})
	nm.broadcastNotice(msgpeer.KindRemoteConnectionLost, s)
}

// onConnected handles traffic that is only valid on a connected slot.
func (nm *NetworkManager) onConnected(from sysaddr.SystemAddress, m msgpeer.Message, now clock.TimeMS) {
	s := nm.cfg.Table.Get(from)
	if s == nil || s.State != slots.StateConnected {
		L(nm).Log(nm.ctx, types.LevelTrace, "dropping datagram without connection", "from", from, "msg", m.Debug())
		nm.cfg.Metrics.Dropped.Inc()
		return
	}

	s.Touch(now)

	switch m := m.(type) {
	case *msgpeer.ConnectedPing:
		if nm.send(from, &msgpeer.ConnectedPong{PingTime: m.Time, PongTime: now}) == nil {
			s.MarkSent(now)
		}
	case *msgpeer.ConnectedPong:
		s.Pong(m.PingTime, now)
	case *msgpeer.DisconnectionNotification:
		nm.drop(s, false)
		nm.cfg.Metrics.Handshakes.WithLabelValues(OutcomeRemoteDisconnect).Inc()

		nm.cfg.Queue.Push(recvq.Packet{Kind: msgpeer.KindDisconnectionNotification, Address: s.Address, GUID: s.GUID})
		nm.broadcastNotice(msgpeer.KindRemoteDisconnectionNotification, s)
	case *msgpeer.RemoteNotice:
		nm.cfg.Queue.Push(recvq.Packet{
			Kind:    m.NoticeKind,
			Address: sysaddr.New(m.Address, from.SocketIndex),
			GUID:    m.GUID,
		})
	case *msgpeer.UserData:
		nm.cfg.Queue.Push(recvq.Packet{Kind: m.UserKind, Address: from, GUID: s.GUID, Payload: m.Marshal()})
	default:
		L(nm).Debug("ignoring connected message", "from", from, "msg", m.Debug())
	}
}

// broadcastNotice tells every other connected peer about a change to the connection with subject.
func (nm *NetworkManager) broadcastNotice(kind msgpeer.Kind, subject *slots.Slot) {
	if !nm.cfg.BroadcastRemoteNotices {
		return
	}

	for _, s := range nm.cfg.Table.All() {
		if s == subject || s.State != slots.StateConnected {
			continue
		}

		_ = nm.send(s.Address, &msgpeer.RemoteNotice{
			NoticeKind: kind,
			GUID:       subject.GUID,
			Address:    subject.Address.AddrPort,
		})
	}
}
