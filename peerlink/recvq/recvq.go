// Package recvq holds the application-visible receive queue.
package recvq

import (
	"fmt"
	"sync"

	"github.com/edup2p/peerlink/types/clock"
	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/msgpeer"
	"github.com/edup2p/peerlink/types/sysaddr"
)

// Packet is a single receive queue entry.
type Packet struct {
	Kind msgpeer.Kind

	// Address and GUID of the peer the entry is about. Loopback entries carry an unassigned address
	// and the local GUID.
	Address sysaddr.SystemAddress
	GUID    guid.PeerGUID

	// Payload is owned by the receiver of the packet.
	//
	// For user packets and loopback entries it holds the full application bytes, kind byte included.
	Payload []byte

	// Time is the echoed send time of unconnected pongs, for round trip measurements.
	Time clock.TimeMS
}

func (p Packet) String() string {
	return fmt.Sprintf("%s from=%s guid=%s len=%d", p.Kind, p.Address, p.GUID.Debug(), len(p.Payload))
}

// Queue is a FIFO with any number of producers and a single non-blocking consumer.
type Queue struct {
	mu      sync.Mutex
	entries []Packet
}

func New() *Queue {
	return &Queue{}
}

func (q *Queue) Push(p Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, p)
}

// Poll pops the oldest entry, it never blocks.
func (q *Queue) Poll() (Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Packet{}, false
	}

	p := q.entries[0]
	q.entries[0] = Packet{}
	q.entries = q.entries[1:]

	if len(q.entries) == 0 {
		// let the backing array go
		q.entries = nil
	}

	return p, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}
