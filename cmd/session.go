package cmd

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/peerdrop/peerdrop/internal/config"
	"github.com/peerdrop/peerdrop/internal/session"
	"github.com/peerdrop/peerdrop/internal/transfer"
	"github.com/peerdrop/peerdrop/internal/webrtc"
)

const statusPollInterval = 50 * time.Millisecond

var (
	errCancelled = errors.New("cancelled")
	errFailed    = errors.New("session failed")
)

func loadConfig(opts config.Options) (*config.Config, error) {
	opts.SignalingURL = flagServer
	opts.STUNServer = flagSTUN
	opts.TURNServer = flagTURN
	opts.TURNUser = flagTURNUser
	opts.TURNPass = flagTURNPass
	opts.ForceRelay = flagRelay

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}

func newOrchestrator(cfg *config.Config, obs session.Observer) *session.Orchestrator {
	return session.New(session.Deps{
		Dialer:   session.ServerDialer(cfg.SignalingURL),
		Peers:    webrtc.NewFactory(cfg),
		Observer: obs,
	}, session.Options{
		ChunkSize:  cfg.ChunkSize,
		Tagged:     cfg.Tagged,
		ReadyDelay: cfg.ReadyDelay,
	})
}

// tap sits between the orchestrator and the terminal. Notifications go to
// the current target (nothing until the live view starts); completed files
// and the latest log line are kept for the command itself.
type tap struct {
	mu      sync.Mutex
	target  session.Observer
	lastLog string
	added   int
	done    int
	ready   []*transfer.Handle

	// notify is signalled when ready gains a handle.
	notify chan struct{}
}

func newTap() *tap {
	return &tap{
		target: session.NopObserver{},
		notify: make(chan struct{}, 1),
	}
}

func (t *tap) attach(obs session.Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.target = obs
}

func (t *tap) current() session.Observer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

func (t *tap) OnStatusChange(s session.Status) { t.current().OnStatusChange(s) }

func (t *tap) OnTransferAdded(item transfer.Item) {
	t.mu.Lock()
	t.added++
	t.mu.Unlock()
	t.current().OnTransferAdded(item)
}

func (t *tap) OnProgress(id string, percent int) { t.current().OnProgress(id, percent) }

func (t *tap) OnCompleted(id string, h *transfer.Handle) {
	t.mu.Lock()
	t.done++
	t.ready = append(t.ready, h)
	t.mu.Unlock()
	t.current().OnCompleted(id, h)

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// takeCompleted returns the handles completed since the last call.
func (t *tap) takeCompleted() []*transfer.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	hs := t.ready
	t.ready = nil
	return hs
}

func (t *tap) OnLog(message string) {
	t.mu.Lock()
	t.lastLog = message
	t.mu.Unlock()
	t.current().OnLog(message)
}

func (t *tap) reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastLog
}

// inFlight reports transfers announced but not yet completed.
func (t *tap) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.added - t.done
}

// waitConnected blocks until the session is connected, failed or ctx ends.
func waitConnected(ctx context.Context, o *session.Orchestrator, t *tap) error {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		switch status := o.Status(); {
		case status == session.StatusConnected:
			return nil
		case status == session.StatusFailed:
			return transfer.WrapError("connect", errFailed, t.reason())
		case !status.InFlight():
			return transfer.NewError("connect", errCancelled)
		}

		select {
		case <-ctx.Done():
			return transfer.NewError("connect", errCancelled)
		case <-ticker.C:
		}
	}
}
