package actors

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// RunCheck ensures that only one instance of the actor is running at all times.
type RunCheck struct {
	*atomic.Bool
}

func MakeRunCheck() RunCheck {
	return RunCheck{
		&atomic.Bool{},
	}
}

// CheckOrMark atomically checks if its already running, else marks as running, returns a false value if the instance is already running.
func (rc *RunCheck) CheckOrMark() bool {
	return rc.CompareAndSwap(false, true)
}

// SendMessage delivers msg to an actor inbox, and gives up when ctx is done.
func SendMessage(ctx context.Context, ch chan<- ActorMessage, msg ActorMessage) bool {
	select {
	case ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// L stands for Log
func L(a Actor) *slog.Logger {
	return slog.With("actor", fmt.Sprintf("%T", a))
}
