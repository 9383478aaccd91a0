package bin

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddrPortRoundTrip(t *testing.T) {
	for _, s := range []string{"10.0.0.1:1337", "[2000::1]:80", "127.0.0.1:65535"} {
		ap := netip.MustParseAddrPort(s)

		b := PutAddrPort(ap)
		assert.Len(t, b, AddrPortLen)
		assert.Equal(t, ap, ParseAddrPort([AddrPortLen]byte(b)))
	}
}

func TestReader(t *testing.T) {
	b := AppendUint32(nil, 0xDEADBEEF)
	b = AppendUint64(b, 42)
	b = append(b, PutAddrPort(netip.MustParseAddrPort("1.2.3.4:5"))...)
	b = append(b, "rest"...)

	r := NewReader(b)
	assert.Equal(t, uint32(0xDEADBEEF), r.Uint32())
	assert.Equal(t, uint64(42), r.Uint64())
	assert.Equal(t, netip.MustParseAddrPort("1.2.3.4:5"), r.AddrPort())
	assert.Equal(t, []byte("rest"), r.Rest())
	assert.NoError(t, r.Err)
}

func TestReader_Short(t *testing.T) {
	r := NewReader([]byte{1, 2})

	assert.Equal(t, uint32(0), r.Uint32())
	assert.ErrorIs(t, r.Err, ErrShortBuffer)

	// Sticky error
	assert.Nil(t, r.Fixed(1))
	assert.Nil(t, r.Rest())
}
