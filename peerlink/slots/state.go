package slots

import "fmt"

// State is the lifecycle state of a connection slot.
type State int

const (
	StateUnconnected State = iota
	StateConnectionAttemptPending
	StateRequestingConnection
	StateHandlingConnectionRequest
	StateConnectionAttemptAccepted
	StateConnected
	StateDisconnecting

	// Outcomes only, a slot is never stored in these.
	StateConnectionAttemptFailed
	StateAlreadyConnected
)

var stateNames = [...]string{
	StateUnconnected:               "unconnected",
	StateConnectionAttemptPending:  "connection-attempt-pending",
	StateRequestingConnection:      "requesting-connection",
	StateHandlingConnectionRequest: "handling-connection-request",
	StateConnectionAttemptAccepted: "connection-attempt-accepted",
	StateConnected:                 "connected",
	StateDisconnecting:             "disconnecting",
	StateConnectionAttemptFailed:   "connection-attempt-failed",
	StateAlreadyConnected:          "already-connected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsPending reports whether a slot in this state is an outgoing attempt that can still be cancelled.
func (s State) IsPending() bool {
	return s == StateConnectionAttemptPending || s == StateRequestingConnection
}

// Direction records which side started a connection.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}
