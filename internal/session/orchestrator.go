// Package session negotiates a direct peer connection through the signaling
// server and hands the resulting data channel to the transfer engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/peerdrop/peerdrop/internal/roomcode"
	"github.com/peerdrop/peerdrop/internal/signaling"
	"github.com/peerdrop/peerdrop/internal/transfer"
	"github.com/peerdrop/peerdrop/internal/webrtc"
	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

const (
	DefaultReadyDelay = 500 * time.Millisecond

	eventQueueSize = 256
	drainInterval  = 50 * time.Millisecond
)

var ErrClosed = errors.New("session closed")

// session is the state of one handshake attempt. A fresh one replaces it on
// every reset; callbacks carrying an older generation are dropped.
type session struct {
	gen    uint64
	status Status
	role   Role
	code   string

	conn    SignalConn
	peer    webrtc.Peer
	channel webrtc.DataChannel
	ready   Timer

	remoteSet bool
	pending   []pion.ICECandidateInit

	receiver *transfer.Receiver
}

func (s *session) teardown() {
	if s.ready != nil {
		s.ready.Stop()
	}
	if s.channel != nil {
		s.channel.Close()
	}
	if s.peer != nil {
		s.peer.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

type snapshot struct {
	status Status
	role   Role
	code   string
}

// Orchestrator runs one peer session at a time. All session state is owned
// by a single event loop goroutine; signaling messages, transport callbacks
// and commands reach it as posted events.
//
// Observer callbacks run on the loop or on the goroutine calling Send and
// must not call back into Initiate, Join, Send, Reset, Drain or Close.
type Orchestrator struct {
	deps   Deps
	opts   Options
	sender *transfer.Sender

	s    *session
	snap atomic.Pointer[snapshot]

	sendMu sync.Mutex

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if opts.ReadyDelay <= 0 {
		opts.ReadyDelay = DefaultReadyDelay
	}

	o := &Orchestrator{
		deps:   deps,
		opts:   opts,
		sender: transfer.NewSender(opts.ChunkSize, opts.Tagged, deps.Observer),
		events: make(chan func(), eventQueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	o.s = o.newSession(0)
	o.publish()

	go o.run()
	return o
}

func (o *Orchestrator) newSession(gen uint64) *session {
	return &session{
		gen:      gen,
		status:   StatusIdle,
		receiver: transfer.NewReceiver(o.deps.Observer),
	}
}

func (o *Orchestrator) Status() Status { return o.snap.Load().status }

func (o *Orchestrator) Role() Role { return o.snap.Load().role }

func (o *Orchestrator) Code() string { return o.snap.Load().code }

// Initiate starts a sender session: it picks a room code, joins the room and
// waits for a receiver.
func (o *Orchestrator) Initiate(ctx context.Context) (string, error) {
	var code string
	var gen uint64
	var err error

	if cerr := o.call(func() {
		if o.s.status != StatusIdle {
			err = transfer.NewError("initiate", transfer.ErrNotIdle)
			return
		}
		o.s.role = RoleSender
		o.s.code = roomcode.Generate()
		o.apply(EventInitiate)
		code, gen = o.s.code, o.s.gen
	}); cerr != nil {
		return "", cerr
	}
	if err != nil {
		return "", err
	}

	if err := o.connect(ctx, gen); err != nil {
		return "", err
	}
	return code, nil
}

// Join starts a receiver session in the room identified by code.
func (o *Orchestrator) Join(ctx context.Context, code string) error {
	if !roomcode.Valid(code) {
		return transfer.WrapError("join", transfer.ErrInvalidCode, code)
	}

	var gen uint64
	var err error

	if cerr := o.call(func() {
		if o.s.status != StatusIdle {
			err = transfer.NewError("join", transfer.ErrNotIdle)
			return
		}
		o.s.role = RoleReceiver
		o.s.code = code
		o.apply(EventJoin)
		gen = o.s.gen
	}); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}

	return o.connect(ctx, gen)
}

// connect dials the signaling server outside the loop and joins the room of
// session gen.
func (o *Orchestrator) connect(ctx context.Context, gen uint64) error {
	conn, dialErr := o.deps.Dialer.Dial(ctx)

	var result error
	cerr := o.call(func() {
		if o.s.gen != gen {
			if conn != nil {
				conn.Close()
			}
			result = transfer.NewError("connect", transfer.Classify(transfer.ErrSignaling, ErrClosed))
			return
		}
		if dialErr != nil {
			result = transfer.NewError("connect", transfer.Classify(transfer.ErrSignaling, dialErr))
			o.fail(result)
			return
		}

		o.s.conn = conn
		go o.readSignals(gen, conn)

		join, _ := signaling.NewMessage(signaling.TypeJoin, o.s.code, nil)
		if err := conn.Send(join); err != nil {
			result = transfer.NewError("join room", transfer.Classify(transfer.ErrSignaling, err))
			o.fail(result)
			return
		}
		o.logf("Joined room %s", o.s.code)

		switch o.s.role {
		case RoleSender:
			o.apply(EventCodeReady)
		case RoleReceiver:
			o.s.ready = o.deps.Clock.AfterFunc(o.opts.ReadyDelay, func() {
				o.postFor(gen, o.sendReady)
			})
		}
	})
	if cerr != nil {
		if conn != nil {
			conn.Close()
		}
		return cerr
	}
	return result
}

// Send streams src to the peer and returns the transfer id. Calls are
// serialised so chunk streams never interleave.
func (o *Orchestrator) Send(ctx context.Context, src transfer.Source) (string, error) {
	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	var ch webrtc.DataChannel
	if err := o.call(func() {
		if o.s.status == StatusConnected {
			ch = o.s.channel
		}
	}); err != nil {
		return "", err
	}
	if ch == nil {
		return "", transfer.NewFileError("send", src.Name, transfer.ErrChannelNotOpen)
	}

	id := uuid.NewString()
	o.sender.Announce(src, id)
	return id, o.sender.Send(ctx, ch, src, id)
}

// Drain blocks until the data channel has flushed everything queued on it.
func (o *Orchestrator) Drain(ctx context.Context) error {
	var ch webrtc.DataChannel
	if err := o.call(func() { ch = o.s.channel }); err != nil {
		return err
	}
	if ch == nil {
		return nil
	}

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for ch.BufferedAmount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Reset tears down the transport, the data channel and the signaling
// connection and returns to idle. In-flight transfers are abandoned.
func (o *Orchestrator) Reset() {
	var old *session
	if err := o.call(func() { old = o.reset() }); err != nil {
		return
	}
	old.teardown()
}

// Close resets the session and stops the event loop.
func (o *Orchestrator) Close() error {
	o.Reset()
	o.closeOnce.Do(func() { close(o.quit) })
	<-o.done
	return nil
}

func (o *Orchestrator) reset() *session {
	old := o.s
	if old.ready != nil {
		old.ready.Stop()
	}

	o.s = o.newSession(old.gen + 1)
	o.publish()

	if old.status != StatusIdle {
		logrus.WithFields(logrus.Fields{"from": old.status, "code": old.code}).Info("Session reset")
		o.deps.Observer.OnStatusChange(StatusIdle)
	}
	return old
}

func (o *Orchestrator) run() {
	defer close(o.done)

	for {
		select {
		case fn := <-o.events:
			fn()
		case <-o.quit:
			return
		}
	}
}

func (o *Orchestrator) post(fn func()) bool {
	select {
	case <-o.quit:
		return false
	default:
	}

	select {
	case o.events <- fn:
		return true
	case <-o.quit:
		return false
	}
}

// postFor posts fn to run only if session gen is still current.
func (o *Orchestrator) postFor(gen uint64, fn func()) {
	o.post(func() {
		if o.s.gen != gen {
			return
		}
		fn()
	})
}

// call runs fn on the loop and waits for it.
func (o *Orchestrator) call(fn func()) error {
	finished := make(chan struct{})
	if !o.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-o.done:
		return ErrClosed
	}
}

func (o *Orchestrator) publish() {
	o.snap.Store(&snapshot{status: o.s.status, role: o.s.role, code: o.s.code})
}

func (o *Orchestrator) apply(ev Event) {
	next, ok := Transition(o.s.status, ev)
	if !ok {
		logrus.WithFields(logrus.Fields{"status": o.s.status, "event": ev}).Debug("Ignoring event")
		return
	}
	if next == o.s.status {
		return
	}

	logrus.WithFields(logrus.Fields{
		"from":  o.s.status,
		"to":    next,
		"event": ev,
		"role":  o.s.role,
	}).Info("Session status changed")

	o.s.status = next
	o.publish()
	o.deps.Observer.OnStatusChange(next)
}

func (o *Orchestrator) fail(err error) {
	logrus.WithError(err).WithField("role", o.s.role).Error("Session failed")
	o.deps.Observer.OnLog(err.Error())
	o.apply(EventTransportFailed)
}

func (o *Orchestrator) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logrus.WithFields(logrus.Fields{"role": o.s.role, "code": o.s.code}).Info(msg)
	o.deps.Observer.OnLog(msg)
}

// negotiationFailed reports a failed negotiation step. The status is left
// alone; only transport state events move the session to failed.
func (o *Orchestrator) negotiationFailed(op string, err error) {
	e := transfer.NewError(op, transfer.Classify(transfer.ErrNegotiation, err))
	logrus.WithError(e).WithField("role", o.s.role).Warn("Negotiation step failed")
	o.deps.Observer.OnLog(e.Error())
}

func (o *Orchestrator) readSignals(gen uint64, conn SignalConn) {
	for msg := range conn.Incoming() {
		if !o.post(func() {
			if o.s.gen == gen {
				o.handleSignal(msg)
			}
		}) {
			return
		}
	}
	o.postFor(gen, o.signalingLost)
}

func (o *Orchestrator) handleSignal(msg *signaling.Message) {
	log := logrus.WithFields(logrus.Fields{"type": msg.Type, "role": o.s.role, "status": o.s.status})
	log.Debug("Signaling message")

	switch msg.Type {
	case signaling.TypeReady:
		if o.s.role != RoleSender || o.s.status != StatusWaiting {
			log.Debug("Ignoring ready")
			return
		}
		o.startOffer()

	case signaling.TypeOffer:
		if o.s.role != RoleReceiver {
			log.Debug("Ignoring offer")
			return
		}
		o.acceptOffer(msg)

	case signaling.TypeAnswer:
		if o.s.role != RoleSender || o.s.peer == nil {
			log.Debug("Ignoring answer")
			return
		}
		o.applyAnswer(msg)

	case signaling.TypeCandidate:
		o.addCandidate(msg)

	case signaling.TypeError:
		text := msg.ErrorText()
		err := transfer.WrapError("signaling", transfer.ErrSignaling, text)
		if text == signaling.ErrRoomFull {
			err = transfer.WrapError("join room", transfer.ErrRoomFull, o.s.code)
		}
		log.WithError(err).Warn("Rejected by signaling server")
		o.deps.Observer.OnLog(err.Error())
		o.apply(EventRejected)

	default:
		log.Debug("Ignoring unknown signaling message")
	}
}

func (o *Orchestrator) newPeer() (webrtc.Peer, error) {
	peer, err := o.deps.Peers.NewPeer()
	if err != nil {
		return nil, err
	}

	gen := o.s.gen
	peer.OnICECandidate(func(c pion.ICECandidateInit) {
		o.postFor(gen, func() { o.sendCandidate(c) })
	})
	peer.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		o.postFor(gen, func() { o.transportState(state) })
	})

	o.s.peer = peer
	return peer, nil
}

func (o *Orchestrator) startOffer() {
	peer, err := o.newPeer()
	if err != nil {
		o.negotiationFailed("create peer", err)
		return
	}

	dc, err := peer.CreateDataChannel(webrtc.ChannelLabel)
	if err != nil {
		o.negotiationFailed("create data channel", err)
		return
	}
	o.s.channel = dc
	o.watchChannel(o.s.gen, dc)

	offer, err := peer.CreateOffer()
	if err != nil {
		o.negotiationFailed("create offer", err)
		return
	}
	if err := peer.SetLocalDescription(offer); err != nil {
		o.negotiationFailed("set local description", err)
		return
	}
	if err := o.signal(signaling.TypeOffer, offer); err != nil {
		o.negotiationFailed("send offer", err)
		return
	}

	o.logf("Offer sent")
	o.apply(EventOfferSent)
}

func (o *Orchestrator) acceptOffer(msg *signaling.Message) {
	if o.s.peer != nil {
		logrus.Warn("Ignoring repeated offer")
		return
	}

	var offer pion.SessionDescription
	if err := msg.Decode(&offer); err != nil {
		o.negotiationFailed("decode offer", err)
		return
	}

	peer, err := o.newPeer()
	if err != nil {
		o.negotiationFailed("create peer", err)
		return
	}

	gen := o.s.gen
	peer.OnDataChannel(func(dc webrtc.DataChannel) {
		o.watchChannel(gen, dc)
		o.postFor(gen, func() {
			o.s.channel = dc
			logrus.WithField("label", dc.Label()).Debug("Inbound data channel")
		})
	})

	if err := peer.SetRemoteDescription(offer); err != nil {
		o.negotiationFailed("set remote description", err)
		return
	}
	o.remoteApplied()

	answer, err := peer.CreateAnswer()
	if err != nil {
		o.negotiationFailed("create answer", err)
		return
	}
	if err := peer.SetLocalDescription(answer); err != nil {
		o.negotiationFailed("set local description", err)
		return
	}
	if err := o.signal(signaling.TypeAnswer, answer); err != nil {
		o.negotiationFailed("send answer", err)
		return
	}

	o.logf("Answer sent")
}

func (o *Orchestrator) applyAnswer(msg *signaling.Message) {
	var answer pion.SessionDescription
	if err := msg.Decode(&answer); err != nil {
		o.negotiationFailed("decode answer", err)
		return
	}
	if err := o.s.peer.SetRemoteDescription(answer); err != nil {
		o.negotiationFailed("set remote description", err)
		return
	}
	o.remoteApplied()
}

// remoteApplied flushes candidates that arrived before the remote
// description, in arrival order.
func (o *Orchestrator) remoteApplied() {
	o.s.remoteSet = true

	pending := o.s.pending
	o.s.pending = nil
	for _, c := range pending {
		if err := o.s.peer.AddICECandidate(c); err != nil {
			o.negotiationFailed("add queued candidate", err)
		}
	}
	if len(pending) > 0 {
		logrus.WithField("count", len(pending)).Debug("Applied queued candidates")
	}
}

func (o *Orchestrator) addCandidate(msg *signaling.Message) {
	var c pion.ICECandidateInit
	if err := msg.Decode(&c); err != nil {
		o.negotiationFailed("decode candidate", err)
		return
	}

	if o.s.peer == nil || !o.s.remoteSet {
		o.s.pending = append(o.s.pending, c)
		return
	}
	if err := o.s.peer.AddICECandidate(c); err != nil {
		o.negotiationFailed("add candidate", err)
	}
}

func (o *Orchestrator) sendCandidate(c pion.ICECandidateInit) {
	if err := o.signal(signaling.TypeCandidate, c); err != nil {
		logrus.WithError(err).Warn("Failed to send candidate")
	}
}

func (o *Orchestrator) sendReady() {
	o.s.ready = nil
	if o.s.role != RoleReceiver || o.s.status != StatusConnecting {
		return
	}
	if err := o.signal(signaling.TypeReady, nil); err != nil {
		o.negotiationFailed("send ready", err)
		return
	}
	logrus.WithField("code", o.s.code).Debug("Ready sent")
}

func (o *Orchestrator) signal(msgType string, payload any) error {
	if o.s.conn == nil {
		return ErrClosed
	}
	msg, err := signaling.NewMessage(msgType, o.s.code, payload)
	if err != nil {
		return err
	}
	return o.s.conn.Send(msg)
}

// watchChannel forwards channel callbacks to the loop. It only touches dc,
// so it may run off the loop.
func (o *Orchestrator) watchChannel(gen uint64, dc webrtc.DataChannel) {
	dc.OnOpen(func() {
		o.postFor(gen, func() {
			o.s.channel = dc
			o.logf("Data channel open")
			o.apply(EventChannelOpen)
		})
	})
	dc.OnMessage(func(msg webrtc.Message) {
		o.postFor(gen, func() { o.s.receiver.Handle(msg) })
	})
	dc.OnError(func(err error) {
		o.postFor(gen, func() {
			o.fail(transfer.NewError("data channel", transfer.Classify(transfer.ErrTransport, err)))
		})
	})
	dc.OnClose(func() {
		o.postFor(gen, func() {
			logrus.WithField("role", o.s.role).Debug("Data channel closed")
		})
	})
}

func (o *Orchestrator) transportState(state pion.PeerConnectionState) {
	logrus.WithFields(logrus.Fields{"state": state.String(), "role": o.s.role}).Debug("Peer connection state")

	switch state {
	case pion.PeerConnectionStateConnected:
		o.logf("Peer connected")
		o.apply(EventTransportConnected)
	case pion.PeerConnectionStateDisconnected, pion.PeerConnectionStateFailed:
		o.fail(transfer.WrapError("peer connection", transfer.ErrTransport, state.String()))
	}
}

func (o *Orchestrator) signalingLost() {
	if o.s.conn != nil {
		o.s.conn.Close()
		o.s.conn = nil
	}

	switch o.s.status {
	case StatusGenerating, StatusWaiting, StatusConnecting:
		o.fail(transfer.NewError("signaling", transfer.Classify(transfer.ErrSignaling, ErrClosed)))
	default:
		logrus.WithField("status", o.s.status).Info("Signaling connection closed")
	}
}
