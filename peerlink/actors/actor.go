// Package actors contains the network processing context of a peer: one NetworkManager that owns every
// slot and the registry, and one SockRecv per local socket that feeds it.
package actors

import (
	"context"
)

type Actor interface {
	Run()

	Inbox() chan<- ActorMessage

	// Cancel this actor's context.
	Cancel()

	// Close is called by the actor's Run loop when cancelled.
	Close()
}

type ActorCommon struct {
	inbox   chan ActorMessage
	ctx     context.Context
	ctxCan  context.CancelFunc
	running RunCheck
}

// MakeCommon creates the shared actor state. A negative chLen creates no inbox.
func MakeCommon(pCtx context.Context, chLen int) *ActorCommon {
	ctx, ctxCan := context.WithCancel(pCtx)

	var inbox chan ActorMessage

	if chLen >= 0 {
		inbox = make(chan ActorMessage, chLen)
	}

	return &ActorCommon{
		inbox:   inbox,
		ctx:     ctx,
		ctxCan:  ctxCan,
		running: MakeRunCheck(),
	}
}

func (ac *ActorCommon) Inbox() chan<- ActorMessage {
	return ac.inbox
}

func (ac *ActorCommon) Cancel() {
	ac.ctxCan()
}

// Done is closed when the actor's context is cancelled.
func (ac *ActorCommon) Done() <-chan struct{} {
	return ac.ctx.Done()
}
