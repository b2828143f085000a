package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/peerdrop/peerdrop/internal/signaling"
	"github.com/peerdrop/peerdrop/internal/transfer"
	"github.com/peerdrop/peerdrop/internal/webrtc"
	pion "github.com/pion/webrtc/v4"
)

// recorder is a session.Observer that keeps everything it is told.
type recorder struct {
	mu        sync.Mutex
	statuses  []Status
	added     []transfer.Item
	progress  map[string][]int
	completed map[string]*transfer.Handle
	logs      []string
}

func newRecorder() *recorder {
	return &recorder{
		progress:  make(map[string][]int),
		completed: make(map[string]*transfer.Handle),
	}
}

func (r *recorder) OnStatusChange(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) OnTransferAdded(item transfer.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, item)
}

func (r *recorder) OnProgress(id string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[id] = append(r.progress[id], percent)
}

func (r *recorder) OnCompleted(id string, h *transfer.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[id] = h
}

func (r *recorder) OnLog(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *recorder) statusList() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *recorder) logged(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if strings.Contains(strings.ToLower(l), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

func (r *recorder) completedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}

func (r *recorder) handle(id string) *transfer.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed[id]
}

func (r *recorder) progressOf(id string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progress[id]...)
}

// fakeConn is an in-memory signaling connection.
type fakeConn struct {
	mu       sync.Mutex
	sent     []*signaling.Message
	incoming chan *signaling.Message
	closed   bool
	sendErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan *signaling.Message, 64)}
}

func (c *fakeConn) Send(msg *signaling.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signaling.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Incoming() <-chan *signaling.Message {
	return c.incoming
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	return nil
}

// deliver simulates a message from the server.
func (c *fakeConn) deliver(msgType string, payload any) {
	msg, err := signaling.NewMessage(msgType, "", payload)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.incoming <- msg
	}
}

// drop simulates the server going away.
func (c *fakeConn) drop() {
	c.Close()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, len(c.sent))
	for i, m := range c.sent {
		types[i] = m.Type
	}
	return types
}

func (c *fakeConn) sentOf(msgType string) []*signaling.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*signaling.Message
	for _, m := range c.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type connDialer struct {
	conn *fakeConn
	err  error
}

func (d *connDialer) Dial(context.Context) (SignalConn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// fakeClock fires timers only when told to.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every scheduled callback, including stopped ones, so tests
// can check that late timers are harmless.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		t.fn()
	}
}

func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

var errFake = errors.New("fake failure")

// fakeChannel is a DataChannel. When linked, frames are delivered to the
// other end.
type fakeChannel struct {
	label string

	mu       sync.Mutex
	onOpen   func()
	onClose  func()
	onMsg    func(webrtc.Message)
	onErr    func(error)
	peer     *fakeChannel
	sent     int
	failFrom int
	closed   bool
	open     bool
}

func newFakeChannel(label string) *fakeChannel {
	return &fakeChannel{label: label}
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) OnOpen(f func()) {
	c.mu.Lock()
	c.onOpen = f
	open := c.open
	c.mu.Unlock()
	if open {
		go f()
	}
}

func (c *fakeChannel) OnClose(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = f
}

func (c *fakeChannel) OnMessage(f func(webrtc.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = f
}

func (c *fakeChannel) OnError(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onErr = f
}

func (c *fakeChannel) Send(data []byte) error {
	return c.send(webrtc.Message{Data: append([]byte(nil), data...)})
}

func (c *fakeChannel) SendText(text string) error {
	return c.send(webrtc.Message{IsString: true, Data: []byte(text)})
}

func (c *fakeChannel) send(msg webrtc.Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return webrtc.ErrChannelClosed
	}
	c.sent++
	if c.failFrom > 0 && c.sent >= c.failFrom {
		c.mu.Unlock()
		return errFake
	}
	peer := c.peer
	c.mu.Unlock()

	if peer != nil && peer.isClosed() {
		return webrtc.ErrChannelClosed
	}
	if peer != nil {
		peer.receive(msg)
	}
	return nil
}

func (c *fakeChannel) receive(msg webrtc.Message) {
	c.mu.Lock()
	f := c.onMsg
	c.mu.Unlock()
	if f != nil {
		f(msg)
	}
}

func (c *fakeChannel) BufferedAmount() uint64 { return 0 }

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fireOpen marks the channel open and runs the open handler.
func (c *fakeChannel) fireOpen() {
	c.mu.Lock()
	c.open = true
	f := c.onOpen
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

func (c *fakeChannel) fireError(err error) {
	c.mu.Lock()
	f := c.onErr
	c.mu.Unlock()
	if f != nil {
		f(err)
	}
}

func (c *fakeChannel) failAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failFrom = c.sent + n + 1
}

// fakePeer records negotiation calls.
type fakePeer struct {
	mu         sync.Mutex
	channels   []*fakeChannel
	local      *pion.SessionDescription
	remote     *pion.SessionDescription
	candidates []pion.ICECandidateInit
	closed     bool

	offerErr error

	onCandidate func(pion.ICECandidateInit)
	onState     func(pion.PeerConnectionState)
	onChannel   func(webrtc.DataChannel)

	// link, when set, is called after the remote description is applied.
	link func(p *fakePeer)
}

func (p *fakePeer) CreateDataChannel(label string) (webrtc.DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := newFakeChannel(label)
	p.channels = append(p.channels, ch)
	return ch, nil
}

func (p *fakePeer) CreateOffer() (pion.SessionDescription, error) {
	if p.offerErr != nil {
		return pion.SessionDescription{}, p.offerErr
	}
	return pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (p *fakePeer) CreateAnswer() (pion.SessionDescription, error) {
	return pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (p *fakePeer) SetLocalDescription(d pion.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &d
	return nil
}

func (p *fakePeer) SetRemoteDescription(d pion.SessionDescription) error {
	p.mu.Lock()
	p.remote = &d
	link := p.link
	p.mu.Unlock()
	if link != nil {
		go link(p)
	}
	return nil
}

func (p *fakePeer) AddICECandidate(c pion.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) OnICECandidate(f func(pion.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = f
}

func (p *fakePeer) OnConnectionStateChange(f func(pion.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = f
}

func (p *fakePeer) OnDataChannel(f func(webrtc.DataChannel)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChannel = f
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) emitCandidate(c pion.ICECandidateInit) {
	p.mu.Lock()
	f := p.onCandidate
	p.mu.Unlock()
	f(c)
}

func (p *fakePeer) setState(s pion.PeerConnectionState) {
	p.mu.Lock()
	f := p.onState
	p.mu.Unlock()
	f(s)
}

func (p *fakePeer) openInbound(ch *fakeChannel) {
	p.mu.Lock()
	f := p.onChannel
	p.mu.Unlock()
	f(ch)
}

func (p *fakePeer) remoteDesc() *pion.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) addedCandidates() []pion.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pion.ICECandidateInit(nil), p.candidates...)
}

func (p *fakePeer) channel(i int) *fakeChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[i]
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// peerFactory hands out prepared peers in order.
type peerFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	made  []*fakePeer
	err   error
}

func (f *peerFactory) NewPeer() (webrtc.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var p *fakePeer
	if len(f.peers) > 0 {
		p, f.peers = f.peers[0], f.peers[1:]
	} else {
		p = &fakePeer{}
	}
	f.made = append(f.made, p)
	return p, nil
}

func (f *peerFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.made) == 0 {
		return nil
	}
	return f.made[len(f.made)-1]
}

func (f *peerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}

// linkedPeers returns an offering and an answering peer wired together. Once
// the offerer applies the answer, the transports report connected and the
// offerer's channel is delivered to the answerer.
func linkedPeers() (offerer, answerer *fakePeer) {
	offerer = &fakePeer{}
	answerer = &fakePeer{}

	offerer.link = func(p *fakePeer) {
		out := p.channel(0)
		in := newFakeChannel(out.label)

		out.mu.Lock()
		out.peer = in
		out.mu.Unlock()
		in.mu.Lock()
		in.peer = out
		in.mu.Unlock()

		answerer.openInbound(in)
		in.fireOpen()
		answerer.setState(pion.PeerConnectionStateConnected)
		offerer.setState(pion.PeerConnectionStateConnected)
		out.fireOpen()
	}
	return offerer, answerer
}
