package peerlink

import (
	"errors"

	"github.com/edup2p/peerlink/peerlink/actors"
	"github.com/edup2p/peerlink/types/sysaddr"
)

var (
	// ErrAlreadyConnected is returned by Connect for an address that is connected.
	ErrAlreadyConnected = actors.ErrAlreadyConnected
	// ErrConnectionAttemptInProgress is returned by Connect for an address that is being connected to.
	ErrConnectionAttemptInProgress = actors.ErrConnectionAttemptInProgress
	// ErrNoFreeConnections is returned by Connect when all connection slots are taken.
	ErrNoFreeConnections = actors.ErrNoFreeConnections
	// ErrSocketUnavailable is returned when a socket could not be bound or written to.
	ErrSocketUnavailable = actors.ErrSocketUnavailable
	ErrInvalidAddress    = sysaddr.ErrInvalidAddress

	ErrNotConnected   = actors.ErrNotConnected
	ErrInvalidPayload = actors.ErrInvalidPayload

	ErrNotStarted     = errors.New("peer is not started")
	ErrAlreadyStarted = errors.New("peer is already started")

	errInvalidMaxConnections = errors.New("maximum connections must be positive")
)
