package actors

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/edup2p/peerlink/types"
	"github.com/edup2p/peerlink/types/alloc"
)

// RecvFrame is a single received datagram.
//
// pkt comes from the SockRecv's allocator, and must be freed by the receiver.
type RecvFrame struct {
	pkt []byte

	src netip.AddrPort

	sock int
}

// SockRecv reads datagrams from a single socket, and forwards them on outCh.
type SockRecv struct {
	*ActorCommon

	Conn types.UDPConn

	index int

	alloc alloc.Allocator

	outCh chan<- RecvFrame
}

func MakeSockRecv(pCtx context.Context, udp types.UDPConn, index int, a alloc.Allocator, outCh chan<- RecvFrame) *SockRecv {
	if a == nil {
		a = alloc.Heap
	}

	return &SockRecv{
		Conn:  udp,
		index: index,
		alloc: a,
		outCh: outCh,

		ActorCommon: MakeCommon(pCtx, -1),
	}
}

func (r *SockRecv) Run() {
	defer func() {
		if v := recover(); v != nil {
			L(r).Error("panicked", "err", v)
			r.Cancel()
		}
	}()

	if !r.running.CheckOrMark() {
		L(r).Warn("tried to run agent, while already running")
		return
	}

	defer r.Close()

	buf := make([]byte, MaxDatagramSize)

	for {
		if types.IsContextDone(r.ctx) {
			return
		}

		if err := r.Conn.SetReadDeadline(time.Now().Add(SockRecvReadTimeout)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			L(r).Warn("error when setting read deadline", "err", err, "sock", r.index)
		}

		n, ap, err := r.Conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var e net.Error
			if errors.As(err, &e) && e.Timeout() {
				continue
			}

			if errors.Is(err, net.ErrClosed) || types.IsContextDone(r.ctx) {
				return
			}

			// ICMP unreachable and similar transient errors surface here on some platforms.
			L(r).Debug("error reading from socket", "err", err, "sock", r.index)
			continue
		}

		if n == 0 {
			continue
		}

		pkt := r.alloc.Alloc(n)
		copy(pkt, buf[:n])

		select {
		case <-r.ctx.Done():
			r.alloc.Free(pkt)
			return
		case r.outCh <- RecvFrame{
			pkt:  pkt,
			src:  types.NormaliseAddrPort(ap),
			sock: r.index,
		}:
		}
	}
}

// Close does not close the socket, sockets are owned by whoever created them.
func (r *SockRecv) Close() {
	L(r).Debug("stopped reading", "sock", r.index)
}
