// Package offline answers the datagrams peers exchange without a connection.
package offline

import (
	"log/slog"
	"slices"
	"time"

	"github.com/edup2p/peerlink/peerlink/recvq"
	"github.com/edup2p/peerlink/types"
	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/msgpeer"
	"github.com/edup2p/peerlink/types/sysaddr"
	"golang.org/x/time/rate"
)

// MaxResponseLen bounds the offline response, so a pong always fits a single datagram.
const MaxResponseLen = 400

// Handler holds the offline response, and turns offline datagrams into replies and queue entries.
//
// Handler keeps no per-exchange state, and is not safe for concurrent use.
type Handler struct {
	self guid.PeerGUID

	response []byte

	limiter *rate.Limiter
}

// New creates a handler replying as self. A nil limiter answers every ping.
func New(self guid.PeerGUID, limiter *rate.Limiter) *Handler {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &Handler{self: self, limiter: limiter}
}

// SetResponse replaces the offline response with a copy of b, truncated to MaxResponseLen.
func (h *Handler) SetResponse(b []byte) {
	if len(b) > MaxResponseLen {
		slog.Warn("offline response truncated", "len", len(b), "max", MaxResponseLen)
		b = b[:MaxResponseLen]
	}

	h.response = slices.Clone(b)
}

// Response returns a copy of the offline response.
func (h *Handler) Response() []byte {
	return slices.Clone(types.SliceOrEmpty(h.response))
}

// Ping builds an unconnected ping stamped with now.
func (h *Handler) Ping(now clock.TimeMS, onlyIfOpen bool) *msgpeer.UnconnectedPing {
	return &msgpeer.UnconnectedPing{OnlyIfOpen: onlyIfOpen, Time: now, GUID: h.self}
}

// Advertise builds an advertisement carrying a copy of data.
func (h *Handler) Advertise(data []byte) *msgpeer.AdvertiseSystem {
	return &msgpeer.AdvertiseSystem{GUID: h.self, Data: slices.Clone(data)}
}

// Handle processes one offline datagram from a remote.
//
// It returns the reply to send back, if any, and the receive queue entry to produce, if any.
// admitting reports whether an incoming connection would currently be accepted.
func (h *Handler) Handle(from sysaddr.SystemAddress, m msgpeer.Message, at time.Time, admitting bool) (msgpeer.Message, *recvq.Packet) {
	switch m := m.(type) {
	case *msgpeer.UnconnectedPing:
		if m.OnlyIfOpen && !admitting {
			return nil, nil
		}

		if !h.limiter.AllowN(at, 1) {
			return nil, nil
		}

		return &msgpeer.UnconnectedPong{
			Time: m.Time,
			GUID: h.self,
			Data: h.Response(),
		}, nil
	case *msgpeer.UnconnectedPong:
		return nil, &recvq.Packet{
			Kind:    msgpeer.KindUnconnectedPong,
			Address: from,
			GUID:    m.GUID,
			Payload: types.SliceOrEmpty(m.Data),
			Time:    m.Time,
		}
	case *msgpeer.AdvertiseSystem:
		return nil, &recvq.Packet{
			Kind:    msgpeer.KindAdvertiseSystem,
			Address: from,
			GUID:    m.GUID,
			Payload: types.SliceOrEmpty(m.Data),
		}
	default:
		return nil, nil
	}
}
