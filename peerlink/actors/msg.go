package actors

import (
	"net/netip"

	"github.com/edup2p/peerlink/peerlink/slots"
	"github.com/edup2p/peerlink/types"
	"github.com/edup2p/peerlink/types/sysaddr"
)

// ActorMessage is anything that can be sent to an actor inbox.
type ActorMessage interface {
	amsg()
}

// Messages

// ======================================================================================================
// NetworkManager commands
//
// Commands with a Reply channel are answered exactly once; the channel must have room for that answer.

type NManConnect struct {
	Addr   sysaddr.SystemAddress
	Policy slots.Policy

	Reply chan error
}

// NManAdoptSocket hands a caller-owned socket to the manager, Reply receives its socket index.
type NManAdoptSocket struct {
	Conn types.UDPConn

	Reply chan int
}

type NManClose struct {
	Addr   sysaddr.SystemAddress
	Notify bool

	// Done is closed once the slot is gone, it may be nil.
	Done chan struct{}
}

// NManCancel cancels a pending outgoing attempt, Reply receives whether there was one.
type NManCancel struct {
	Addr sysaddr.SystemAddress

	Reply chan bool
}

type NManSend struct {
	Addr sysaddr.SystemAddress
	Data []byte

	Reply chan error
}

type NManPing struct {
	Addr       sysaddr.SystemAddress
	OnlyIfOpen bool
}

type NManAdvertise struct {
	Addr sysaddr.SystemAddress
	Data []byte
}

type NManSetOfflineResponse struct {
	Data []byte
}

type NManGetOfflineResponse struct {
	Reply chan []byte
}

type NManConnectionList struct {
	Reply chan []slots.Connection
}

type NManConnectionState struct {
	Addr sysaddr.SystemAddress

	Reply chan slots.State
}

type NManExternalAddress struct {
	Reply chan netip.AddrPort
}

// NManShutdown notifies all connected peers if asked, and drops all slots.
type NManShutdown struct {
	Notify bool

	Done chan struct{}
}

func (o *NManConnect) amsg()            {}
func (o *NManAdoptSocket) amsg()        {}
func (o *NManClose) amsg()              {}
func (o *NManCancel) amsg()             {}
func (o *NManSend) amsg()               {}
func (o *NManPing) amsg()               {}
func (o *NManAdvertise) amsg()          {}
func (o *NManSetOfflineResponse) amsg() {}
func (o *NManGetOfflineResponse) amsg() {}
func (o *NManConnectionList) amsg()     {}
func (o *NManConnectionState) amsg()    {}
func (o *NManExternalAddress) amsg()    {}
func (o *NManShutdown) amsg()           {}
