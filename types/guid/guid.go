// Package guid contains PeerGUID, the identity a peer instance keeps for its whole lifetime,
// regardless of which addresses it is reachable on.
package guid

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go4.org/mem"
)

const Len = 16

const hexPrefix = "guid:"

// PeerGUID is a globally unique peer identifier.
//
// The zero value is the Unassigned sentinel.
type PeerGUID [Len]byte

// Unassigned represents "no known peer".
var Unassigned = PeerGUID{}

// New generates a fresh random GUID, once per engine instance.
func New() PeerGUID {
	return PeerGUID(uuid.New())
}

func (g PeerGUID) IsUnassigned() bool {
	return g == Unassigned
}

func (g PeerGUID) String() string {
	if g.IsUnassigned() {
		return "unassigned"
	}
	return uuid.UUID(g).String()
}

// Debug returns a short form for logging.
func (g PeerGUID) Debug() string {
	return fmt.Sprintf("%x", g[:4])
}

// AppendText implements encoding.TextAppender.
// It appends a typed prefix followed by the hex encoded representation of g.
func (g PeerGUID) AppendText(b []byte) ([]byte, error) {
	const hexDigits = "0123456789abcdef"

	b = append(b, hexPrefix...)
	for _, c := range g {
		b = append(b, hexDigits[c>>4], hexDigits[c&0xf])
	}
	return b, nil
}

// MarshalText implements encoding.TextMarshaler.
func (g PeerGUID) MarshalText() ([]byte, error) {
	return g.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler, it expects the form produced by MarshalText.
func (g *PeerGUID) UnmarshalText(b []byte) error {
	return parseHex(g[:], mem.B(b), mem.S(hexPrefix))
}

var errInvalidHex = errors.New("invalid hex character in guid")

func parseHex(out []byte, in, prefix mem.RO) error {
	if !mem.HasPrefix(in, prefix) {
		return fmt.Errorf("guid string doesn't have expected prefix %q", prefix.StringCopy())
	}

	in = in.SliceFrom(prefix.Len())
	if want := len(out) * 2; in.Len() != want {
		return fmt.Errorf("guid hex has the wrong size, got %d want %d", in.Len(), want)
	}

	for i := range out {
		hi, ok1 := fromHexChar(in.At(i * 2))
		lo, ok2 := fromHexChar(in.At(i*2 + 1))
		if !ok1 || !ok2 {
			return errInvalidHex
		}
		out[i] = hi<<4 | lo
	}

	return nil
}

func fromHexChar(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}
