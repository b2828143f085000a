package session

import (
	"context"
	"time"

	"github.com/peerdrop/peerdrop/internal/signaling"
	"github.com/peerdrop/peerdrop/internal/transfer"
	"github.com/peerdrop/peerdrop/internal/webrtc"
)

// Observer receives everything the presentation layer needs. Callbacks may
// arrive from more than one goroutine and must not block.
type Observer interface {
	transfer.Observer
	OnStatusChange(status Status)
}

// SignalConn is an open connection to the signaling server.
type SignalConn interface {
	Send(msg *signaling.Message) error
	// Incoming is closed when the connection drops.
	Incoming() <-chan *signaling.Message
	Close() error
}

// Dialer opens signaling connections.
type Dialer interface {
	Dial(ctx context.Context) (SignalConn, error)
}

type DialerFunc func(ctx context.Context) (SignalConn, error)

func (f DialerFunc) Dial(ctx context.Context) (SignalConn, error) {
	return f(ctx)
}

// ServerDialer dials the signaling server at url.
func ServerDialer(url string) Dialer {
	return DialerFunc(func(ctx context.Context) (SignalConn, error) {
		conn, err := signaling.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Dialer   Dialer
	Peers    webrtc.Factory
	Observer Observer
	Clock    Clock
}

// Options tune an Orchestrator.
type Options struct {
	ChunkSize  int
	Tagged     bool
	ReadyDelay time.Duration
}

// NopObserver ignores every notification.
type NopObserver struct {
	transfer.NopObserver
}

func (NopObserver) OnStatusChange(Status) {}
