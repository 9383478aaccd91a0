package registry

import (
	"net/netip"
	"testing"

	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/sysaddr"
	"github.com/stretchr/testify/assert"
)

var (
	addrA = sysaddr.New(netip.MustParseAddrPort("10.0.0.1:1000"), 0)
	addrB = sysaddr.New(netip.MustParseAddrPort("10.0.0.2:1000"), 0)

	guidA = guid.PeerGUID{0xA}
	guidB = guid.PeerGUID{0xB}
)

func TestRegistry_BindResolve(t *testing.T) {
	r := New(0)

	assert.Equal(t, guid.Unassigned, r.ResolveGUID(addrA))
	assert.True(t, r.ResolveAddress(guidA).IsUnassigned())

	assert.NoError(t, r.Bind(addrA, guidA))

	assert.Equal(t, guidA, r.ResolveGUID(addrA))
	assert.Equal(t, addrA, r.ResolveAddress(guidA))
	assert.Equal(t, 1, r.Len())
	assert.ElementsMatch(t, []netip.AddrPort{addrA.Key()}, r.Addresses())
}

func TestRegistry_BindOverwritesAddress(t *testing.T) {
	r := New(0)

	assert.NoError(t, r.Bind(addrA, guidA))
	assert.NoError(t, r.Bind(addrA, guidB))

	assert.Equal(t, guidB, r.ResolveGUID(addrA))
	assert.True(t, r.ResolveAddress(guidA).IsUnassigned())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_BindRefusesLiveGUID(t *testing.T) {
	r := New(0)

	assert.NoError(t, r.Bind(addrA, guidA))
	assert.ErrorIs(t, r.Bind(addrB, guidA), ErrGUIDInUse)

	assert.Equal(t, addrA, r.ResolveAddress(guidA))
	assert.Equal(t, guid.Unassigned, r.ResolveGUID(addrB))

	// rebinding at the same address is fine
	assert.NoError(t, r.Bind(addrA, guidA))
}

func TestRegistry_UnbindHistory(t *testing.T) {
	r := New(0)

	assert.NoError(t, r.Bind(addrA, guidA))
	r.Unbind(addrA)
	r.Unbind(addrB)

	assert.Equal(t, 0, r.Len())
	assert.True(t, r.ResolveAddress(guidA).IsUnassigned())

	g, ok := r.Recent(addrA)
	assert.True(t, ok)
	assert.Equal(t, guidA, g)

	// GUID can move after unbinding
	assert.NoError(t, r.Bind(addrB, guidA))

	assert.NoError(t, r.Bind(addrA, guidB))
	_, ok = r.Recent(addrA)
	assert.False(t, ok)
}
