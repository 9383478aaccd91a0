package offline

import (
	"net/netip"
	"testing"
	"time"

	"github.com/edup2p/peerlink/types/guid"
	"github.com/edup2p/peerlink/types/msgpeer"
	"github.com/edup2p/peerlink/types/sysaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var (
	self   = guid.PeerGUID{0x51}
	remote = guid.PeerGUID{0x52}

	from = sysaddr.New(netip.MustParseAddrPort("10.0.0.9:9000"), 0)
)

func TestHandler_ResponseRoundTrip(t *testing.T) {
	h := New(self, nil)

	assert.Equal(t, []byte{}, h.Response())

	in := []byte("X")
	h.SetResponse(in)
	in[0] = 'Y'

	out := h.Response()
	assert.Equal(t, []byte("X"), out)

	out[0] = 'Z'
	assert.Equal(t, []byte("X"), h.Response())
}

func TestHandler_ResponseTruncated(t *testing.T) {
	h := New(self, nil)

	long := make([]byte, MaxResponseLen+10)
	for i := range long {
		long[i] = byte(i)
	}

	h.SetResponse(long)
	assert.Equal(t, long[:MaxResponseLen], h.Response())

	// at the limit, the round trip is exact
	h.SetResponse(long[:MaxResponseLen])
	assert.Equal(t, long[:MaxResponseLen], h.Response())
}

func TestHandler_PingPong(t *testing.T) {
	h := New(self, nil)
	h.SetResponse([]byte("X"))

	reply, entry := h.Handle(from, &msgpeer.UnconnectedPing{Time: 77, GUID: remote}, time.Now(), true)
	assert.Nil(t, entry)
	require.IsType(t, &msgpeer.UnconnectedPong{}, reply)

	pong := reply.(*msgpeer.UnconnectedPong)
	assert.Equal(t, self, pong.GUID)
	assert.Equal(t, []byte("X"), pong.Data)
	assert.EqualValues(t, 77, pong.Time)

	// the pinging side turns the pong into an entry
	other := New(remote, nil)
	reply, entry = other.Handle(from, pong, time.Now(), true)
	assert.Nil(t, reply)
	require.NotNil(t, entry)
	assert.Equal(t, msgpeer.KindUnconnectedPong, entry.Kind)
	assert.Equal(t, self, entry.GUID)
	assert.Equal(t, []byte("X"), entry.Payload)
	assert.EqualValues(t, 77, entry.Time)
}

func TestHandler_PingOpenConnections(t *testing.T) {
	h := New(self, nil)

	ping := h.Ping(1, true)
	assert.Equal(t, msgpeer.KindUnconnectedPingOpenConnections, ping.Kind())

	reply, _ := h.Handle(from, ping, time.Now(), false)
	assert.Nil(t, reply)

	reply, _ = h.Handle(from, ping, time.Now(), true)
	assert.NotNil(t, reply)
}

func TestHandler_RateLimited(t *testing.T) {
	h := New(self, rate.NewLimiter(rate.Every(time.Second), 1))

	now := time.Unix(1000, 0)
	ping := &msgpeer.UnconnectedPing{GUID: remote}

	reply, _ := h.Handle(from, ping, now, true)
	assert.NotNil(t, reply)

	reply, _ = h.Handle(from, ping, now, true)
	assert.Nil(t, reply)

	reply, _ = h.Handle(from, ping, now.Add(time.Second), true)
	assert.NotNil(t, reply)
}

func TestHandler_Advertise(t *testing.T) {
	h := New(self, nil)

	data := []byte("hello world")
	adv := h.Advertise(data)
	data[0] = 'j'

	reply, entry := New(remote, nil).Handle(from, adv, time.Now(), true)
	assert.Nil(t, reply)
	require.NotNil(t, entry)
	assert.Equal(t, msgpeer.KindAdvertiseSystem, entry.Kind)
	assert.Equal(t, []byte("hello world"), entry.Payload)
	assert.Equal(t, from, entry.Address)
	assert.Equal(t, self, entry.GUID)
}

func TestHandler_IgnoresOthers(t *testing.T) {
	reply, entry := New(self, nil).Handle(from, &msgpeer.ConnectionRequest{}, time.Now(), true)
	assert.Nil(t, reply)
	assert.Nil(t, entry)
}
