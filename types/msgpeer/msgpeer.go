// Package msgpeer contains the datagram definitions of the connection layer, and their parsing methods.
//
// Every datagram starts with a Kind byte. Offline kinds are followed by Magic, then by their fields.
package msgpeer

// Message is a single decoded datagram.
type Message interface {
	Kind() Kind

	Marshal() []byte

	Debug() string
}

func header(k Kind) []byte {
	if k.IsOffline() {
		b := make([]byte, 0, 1+len(MagicBytes)+64)
		b = append(b, byte(k))
		return append(b, MagicBytes...)
	}

	return []byte{byte(k)}
}
