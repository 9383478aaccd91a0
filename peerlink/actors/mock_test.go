package actors

import (
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type mockWrite struct {
	pkt []byte
	to  netip.AddrPort
}

type mockRead struct {
	pkt  []byte
	from netip.AddrPort
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// MockUDPConn records writes, and serves reads from readCh.
type MockUDPConn struct {
	local netip.AddrPort

	mu     sync.Mutex
	writes []mockWrite

	writeErr error

	readCh chan mockRead
	closed atomic.Bool
}

func newMockUDPConn(local netip.AddrPort) *MockUDPConn {
	return &MockUDPConn{
		local:  local,
		readCh: make(chan mockRead, 16),
	}
}

func (m *MockUDPConn) SetReadDeadline(time.Time) error {
	if m.closed.Load() {
		return net.ErrClosed
	}
	return nil
}

func (m *MockUDPConn) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	select {
	case r := <-m.readCh:
		return copy(b, r.pkt), r.from, nil
	case <-time.After(5 * time.Millisecond):
		if m.closed.Load() {
			return 0, netip.AddrPort{}, net.ErrClosed
		}
		return 0, netip.AddrPort{}, timeoutError{}
	}
}

func (m *MockUDPConn) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes = append(m.writes, mockWrite{pkt: slices.Clone(b), to: addr})
	return len(b), nil
}

func (m *MockUDPConn) LocalAddr() net.Addr {
	return net.UDPAddrFromAddrPort(m.local)
}

func (m *MockUDPConn) Close() error {
	m.closed.Store(true)
	return nil
}

// take removes and returns all writes to addr, in order.
func (m *MockUDPConn) take(addr netip.AddrPort) []mockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()

	var got, rest []mockWrite
	for _, w := range m.writes {
		if w.to == addr {
			got = append(got, w)
		} else {
			rest = append(rest, w)
		}
	}
	m.writes = rest

	return got
}

func (m *MockUDPConn) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.writes)
}
