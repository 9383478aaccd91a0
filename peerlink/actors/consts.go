package actors

import "time"

const (
	SockRecvReadTimeout = 250 * time.Millisecond

	// MaxDatagramSize is the size of the receive buffers.
	MaxDatagramSize = 1 << 16

	NetManInboxChLen = 64

	SockRecvFrameChanBuffer = 256

	DefaultTickInterval = 10 * time.Millisecond
)
