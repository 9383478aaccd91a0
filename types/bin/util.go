// Package bin contains the big-endian field helpers used by the datagram codecs.
package bin

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"slices"
)

// AddrPortLen is the length of an address on the wire; v4-mapped ipv6 for IPv4.
const AddrPortLen = 16 + 2

var ErrShortBuffer = errors.New("buffer too short")

// AppendUint32 appends v in big-endian order to b.
func AppendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

// AppendUint64 appends v in big-endian order to b.
func AppendUint64(b []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(b, v)
}

// ParseAddrPort reads an address written by PutAddrPort.
func ParseAddrPort(b [AddrPortLen]byte) netip.AddrPort {
	addr := netip.AddrFrom16([16]byte(b[:16])).Unmap()

	port := binary.BigEndian.Uint16(b[16:])

	return netip.AddrPortFrom(addr, port)
}

func PutAddrPort(ap netip.AddrPort) []byte {
	port := make([]byte, 2)

	as16 := ap.Addr().As16()
	binary.BigEndian.PutUint16(port, ap.Port())

	return slices.Concat(as16[:], port)
}

// Reader consumes fixed-width fields from the front of a datagram.
//
// The first short read sets Err, and all following reads return zero values.
type Reader struct {
	b   []byte
	Err error
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) take(n int) []byte {
	if r.Err != nil {
		return nil
	}
	if len(r.b) < n {
		r.Err = ErrShortBuffer
		return nil
	}

	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

func (r *Reader) Uint32() uint32 {
	if v := r.take(4); v != nil {
		return binary.BigEndian.Uint32(v)
	}
	return 0
}

func (r *Reader) Uint64() uint64 {
	if v := r.take(8); v != nil {
		return binary.BigEndian.Uint64(v)
	}
	return 0
}

// Fixed reads exactly n bytes, the returned slice aliases the datagram.
func (r *Reader) Fixed(n int) []byte {
	return r.take(n)
}

func (r *Reader) AddrPort() netip.AddrPort {
	if v := r.take(AddrPortLen); v != nil {
		return ParseAddrPort([AddrPortLen]byte(v))
	}
	return netip.AddrPort{}
}

// Rest returns a copy of all remaining bytes.
func (r *Reader) Rest() []byte {
	if r.Err != nil {
		return nil
	}

	v := slices.Clone(r.b)
	r.b = r.b[len(r.b):]
	return v
}

func (r *Reader) Len() int {
	return len(r.b)
}
