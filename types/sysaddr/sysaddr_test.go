package sysaddr

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual_IgnoresSocketIndex(t *testing.T) {
	a := New(netip.MustParseAddrPort("10.0.0.1:1000"), 0)
	b := New(netip.MustParseAddrPort("10.0.0.1:1000"), 3)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
}

func TestNew_Unmaps(t *testing.T) {
	a := New(netip.MustParseAddrPort("[::ffff:10.0.0.1]:1000"), 0)

	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:1000"), a.AddrPort)
}

func TestUnassigned(t *testing.T) {
	assert.True(t, Unassigned.IsUnassigned())
	assert.Equal(t, "unassigned", Unassigned.String())
	assert.False(t, New(netip.MustParseAddrPort("1.1.1.1:1"), 0).IsUnassigned())
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	a, err := Resolve(ctx, "127.0.0.1", 60000)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:60000"), a.AddrPort)

	a, err = Resolve(ctx, "localhost", 60000)
	require.NoError(t, err)
	assert.True(t, a.AddrPort.Addr().IsLoopback())
}

func TestResolve_Invalid(t *testing.T) {
	ctx := context.Background()

	_, err := Resolve(ctx, "", 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Resolve(ctx, "127.0.0.1", 0)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Resolve(ctx, "no such host.invalid", 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Parse("1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
