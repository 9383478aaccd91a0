package actors

import "errors"

var (
	ErrAlreadyConnected            = errors.New("already connected")
	ErrConnectionAttemptInProgress = errors.New("connection attempt already in progress")
	ErrNoFreeConnections           = errors.New("no free connection slots")
	ErrSocketUnavailable           = errors.New("socket unavailable")
	ErrNotConnected                = errors.New("not connected")
	ErrInvalidPayload              = errors.New("payload does not start with a user packet kind")
)
