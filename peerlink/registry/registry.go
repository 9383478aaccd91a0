// Package registry maps transient remote addresses to the stable identity of the peer behind them.
package registry

import (
	"errors"
	"net/netip"

	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/sysaddr"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/maps"
)

// DefaultHistorySize is the amount of unbound mappings Recent remembers.
const DefaultHistorySize = 256

// ErrGUIDInUse is returned by Bind when the GUID is live at another address.
var ErrGUIDInUse = errors.New("guid is bound to another address")

// Registry is the bidirectional address <-> GUID map of live connections.
//
// Registry is not safe for concurrent use, it is owned by the network processing context.
type Registry struct {
	byAddr map[netip.AddrPort]guid.PeerGUID
	byGUID map[guid.PeerGUID]sysaddr.SystemAddress

	// mappings that were unbound, for diagnostics after NAT rebinding or reconnects
	history *lru.Cache[netip.AddrPort, guid.PeerGUID]
}

func New(historySize int) *Registry {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}

	h, err := lru.New[netip.AddrPort, guid.PeerGUID](historySize)
	if err != nil {
		// only errors on non-positive sizes
		panic(err)
	}

	return &Registry{
		byAddr:  make(map[netip.AddrPort]guid.PeerGUID),
		byGUID:  make(map[guid.PeerGUID]sysaddr.SystemAddress),
		history: h,
	}
}

// ResolveGUID returns the GUID bound to addr, or guid.Unassigned.
func (r *Registry) ResolveGUID(addr sysaddr.SystemAddress) guid.PeerGUID {
	if g, ok := r.byAddr[addr.Key()]; ok {
		return g
	}
	return guid.Unassigned
}

// ResolveAddress returns the address g is bound at, or sysaddr.Unassigned.
func (r *Registry) ResolveAddress(g guid.PeerGUID) sysaddr.SystemAddress {
	if a, ok := r.byGUID[g]; ok {
		return a
	}
	return sysaddr.Unassigned
}

// Bind records that g lives at addr.
//
// A previous mapping for addr is replaced. If g is already bound at a different address,
// nothing changes and ErrGUIDInUse is returned.
func (r *Registry) Bind(addr sysaddr.SystemAddress, g guid.PeerGUID) error {
	if cur, ok := r.byGUID[g]; ok && !cur.Equal(addr) {
		return ErrGUIDInUse
	}

	if old, ok := r.byAddr[addr.Key()]; ok && old != g {
		delete(r.byGUID, old)
	}

	r.byAddr[addr.Key()] = g
	r.byGUID[g] = addr
	r.history.Remove(addr.Key())

	return nil
}

// Unbind removes the mapping for addr, if any.
func (r *Registry) Unbind(addr sysaddr.SystemAddress) {
	g, ok := r.byAddr[addr.Key()]
	if !ok {
		return
	}

	delete(r.byAddr, addr.Key())
	if cur, ok := r.byGUID[g]; ok && cur.Equal(addr) {
		delete(r.byGUID, g)
	}

	r.history.Add(addr.Key(), g)
}

// Recent returns the GUID that was last unbound from addr.
func (r *Registry) Recent(addr sysaddr.SystemAddress) (guid.PeerGUID, bool) {
	return r.history.Get(addr.Key())
}

func (r *Registry) Len() int {
	return len(r.byAddr)
}

// Addresses returns a snapshot of all bound addresses.
func (r *Registry) Addresses() []netip.AddrPort {
	return maps.Keys(r.byAddr)
}
