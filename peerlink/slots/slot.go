package slots

import (
	"time"

	"github.com/edup2p/peerlink/types"
	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/sysaddr"
)

// Action is what the owner of a slot has to do for it at a given time.
type Action int

const (
	ActionNone Action = iota
	ActionSendRequest
	ActionFail
	ActionKeepAlive
	ActionLost
)

// Slot is the connection record for a single remote address.
type Slot struct {
	_ types.Incomparable

	// Address is the remote, its SocketIndex is the local socket the slot sends from.
	Address sysaddr.SystemAddress

	// GUID is unassigned until the handshake reveals it.
	GUID guid.PeerGUID

	State     State
	Direction Direction

	Policy Policy

	attempts int
	nextSend clock.TimeMS
	deadline clock.TimeMS

	// RequestTime is when the latest connection request was sent.
	RequestTime clock.TimeMS

	LastRecv clock.TimeMS
	LastSend clock.TimeMS

	// the time of the outstanding keepalive ping, if pinging
	pingSent clock.TimeMS
	pinging  bool

	RTT time.Duration
}

// NewOutgoing creates a pending outgoing slot.
func NewOutgoing(addr sysaddr.SystemAddress, p Policy) *Slot {
	return &Slot{
		Address:   addr,
		State:     StateConnectionAttemptPending,
		Direction: Outgoing,
		Policy:    p.Normalise(),
	}
}

// NewIncoming creates a slot for a remote that is requesting a connection.
// The accept is sent at now, so keepalives count from there.
func NewIncoming(addr sysaddr.SystemAddress, g guid.PeerGUID, now clock.TimeMS) *Slot {
	return &Slot{
		Address:   addr,
		GUID:      g,
		State:     StateHandlingConnectionRequest,
		Direction: Incoming,
		LastRecv:  now,
		LastSend:  now,
	}
}

// StartAttempt moves a pending slot to StateRequestingConnection, with the first request due immediately.
func (s *Slot) StartAttempt(now clock.TimeMS) {
	s.State = StateRequestingConnection
	s.attempts = 0
	s.nextSend = now

	if s.Policy.Timeout > 0 {
		s.deadline = now.Add(s.Policy.Timeout)
	}
}

// Attempts returns the amount of connection requests sent so far.
func (s *Slot) Attempts() int {
	return s.attempts
}

// MarkRequestSent records a connection request sent at now, and schedules the next one.
func (s *Slot) MarkRequestSent(now clock.TimeMS) {
	s.attempts++
	s.RequestTime = now
	s.LastSend = now
	s.nextSend = now.Add(s.Policy.Interval)
}

// SetConnected completes the handshake with the remote identified by g.
func (s *Slot) SetConnected(g guid.PeerGUID, now clock.TimeMS) {
	s.GUID = g
	s.State = StateConnected
	s.LastRecv = now
	s.pinging = false
}

// Touch records inbound traffic at now.
func (s *Slot) Touch(now clock.TimeMS) {
	s.LastRecv = now
}

// MarkSent records outbound traffic at now.
func (s *Slot) MarkSent(now clock.TimeMS) {
	s.LastSend = now
}

// MarkPingSent records a keepalive ping sent at now.
func (s *Slot) MarkPingSent(now clock.TimeMS) {
	s.LastSend = now
	s.pingSent = now
	s.pinging = true
}

// Pong records the answer to a keepalive ping sent at pingTime.
func (s *Slot) Pong(pingTime, now clock.TimeMS) {
	s.LastRecv = now

	if s.pinging && pingTime == s.pingSent && clock.AfterOrEqual(now, pingTime) {
		s.RTT = now.Sub(pingTime)
		s.pinging = false
	}
}

// Due returns the action the slot needs at now.
//
// keepAlive and timeout govern connected slots, zero disables either.
func (s *Slot) Due(now clock.TimeMS, keepAlive, timeout time.Duration) Action {
	switch s.State {
	case StateRequestingConnection:
		if s.Policy.Timeout > 0 {
			if clock.AfterOrEqual(now, s.deadline) {
				return ActionFail
			}
		} else if s.attempts >= s.Policy.Count && clock.AfterOrEqual(now, s.nextSend) {
			// the last request got one full interval to be answered
			return ActionFail
		}

		if clock.AfterOrEqual(now, s.nextSend) {
			return ActionSendRequest
		}
	case StateConnected:
		if timeout > 0 && clock.AfterOrEqual(now, s.LastRecv.Add(timeout)) {
			return ActionLost
		}

		if keepAlive > 0 && clock.AfterOrEqual(now, s.LastSend.Add(keepAlive)) {
			return ActionKeepAlive
		}
	}

	return ActionNone
}
