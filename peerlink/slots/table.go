// Package slots contains the connection slot table, and the per-slot retry and liveness bookkeeping.
package slots

import (
	"errors"
	"net/netip"
	"slices"
	"sync/atomic"
	"time"

	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/sysaddr"
	"golang.org/x/exp/maps"
)

var ErrSlotExists = errors.New("slot already exists for address")

// Connection is a snapshot of a connected slot.
type Connection struct {
	Address   sysaddr.SystemAddress
	GUID      guid.PeerGUID
	Direction Direction
	RTT       time.Duration
}

// Table holds at most one slot per remote address, bounded by the maximum amount of connections.
//
// Everything but the incoming maximum is owned by the network processing context.
type Table struct {
	slots map[netip.AddrPort]*Slot

	maxSlots    int
	maxIncoming atomic.Int64
}

func NewTable(maxSlots, maxIncoming int) *Table {
	t := &Table{
		slots:    make(map[netip.AddrPort]*Slot),
		maxSlots: maxSlots,
	}
	t.SetMaxIncoming(maxIncoming)
	return t
}

func (t *Table) Get(addr sysaddr.SystemAddress) *Slot {
	return t.slots[addr.Key()]
}

// Add stores s, it fails if a slot for the same address exists.
func (t *Table) Add(s *Slot) error {
	if _, ok := t.slots[s.Address.Key()]; ok {
		return ErrSlotExists
	}

	t.slots[s.Address.Key()] = s
	return nil
}

// Remove deletes and returns the slot for addr, if any.
func (t *Table) Remove(addr sysaddr.SystemAddress) *Slot {
	s, ok := t.slots[addr.Key()]
	if !ok {
		return nil
	}

	delete(t.slots, addr.Key())
	return s
}

func (t *Table) Len() int {
	return len(t.slots)
}

func (t *Table) MaxSlots() int {
	return t.maxSlots
}

// SetMaxIncoming changes the incoming budget, existing connections are never evicted by it.
func (t *Table) SetMaxIncoming(n int) {
	if n < 0 {
		n = 0
	}
	t.maxIncoming.Store(int64(n))
}

func (t *Table) MaxIncoming() int {
	return int(t.maxIncoming.Load())
}

// IncomingCount returns the amount of slots that were started by the remote.
func (t *Table) IncomingCount() int {
	n := 0
	for _, s := range t.slots {
		if s.Direction == Incoming {
			n++
		}
	}
	return n
}

// AdmitOutgoing reports whether a new outgoing attempt fits in the table.
func (t *Table) AdmitOutgoing() bool {
	return len(t.slots) < t.maxSlots
}

// AdmitIncoming reports whether a new incoming connection fits in both the table and the incoming budget.
func (t *Table) AdmitIncoming() bool {
	return len(t.slots) < t.maxSlots && t.IncomingCount() < t.MaxIncoming()
}

// All returns a snapshot of all slots, ordered by address.
//
// Slots can be removed from the table while iterating the snapshot.
func (t *Table) All() []*Slot {
	all := maps.Values(t.slots)
	slices.SortFunc(all, func(a, b *Slot) int {
		return a.Address.Key().Compare(b.Address.Key())
	})
	return all
}

// Connected returns a snapshot of all connected slots, ordered by address.
func (t *Table) Connected() []Connection {
	var conns []Connection

	for _, s := range t.All() {
		if s.State != StateConnected {
			continue
		}

		conns = append(conns, Connection{
			Address:   s.Address,
			GUID:      s.GUID,
			Direction: s.Direction,
			RTT:       s.RTT,
		})
	}

	return conns
}

// CountState returns the amount of slots in state st.
func (t *Table) CountState(st State) int {
	n := 0
	for _, s := range t.slots {
		if s.State == st {
			n++
		}
	}
	return n
}
