package webrtc

import (
	"fmt"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/peerdrop/peerdrop/internal/config"
	"github.com/peerdrop/peerdrop/internal/netutil"
)

// Backpressure thresholds for outgoing data.
const (
	HighWaterMark = 2 * 1024 * 1024 // pause sending above this
	LowWaterMark  = 512 * 1024      // resume below this
	SendTimeout   = 60 * time.Second
)

// PionFactory builds pion-backed peers from configuration.
type PionFactory struct {
	cfg *config.Config
}

// NewFactory returns a Factory using cfg's ICE servers.
func NewFactory(cfg *config.Config) *PionFactory {
	return &PionFactory{cfg: cfg}
}

// NewPeer creates a peer connection.
func (f *PionFactory) NewPeer() (Peer, error) {
	pc, err := NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	return &pionPeer{pc: pc}, nil
}

// ICEServers builds the STUN and TURN server list.
func ICEServers(cfg *config.Config) []pion.ICEServer {
	var servers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		servers = append(servers, pion.ICEServer{URLs: stun})
	}

	if turn := cfg.GetTURNServers(); turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}
	return servers
}

// NewPeerConnection centralizes ICE server configuration.
func NewPeerConnection(cfg *config.Config) (*pion.PeerConnection, error) {
	policy := pion.ICETransportPolicyAll
	if cfg.GetTURNServers() != nil {
		switch {
		case cfg.ForceRelay:
			policy = pion.ICETransportPolicyRelay
		case netutil.ShouldForceRelay():
			logrus.Info("VPN or CGNAT interface detected, relaying through TURN")
			policy = pion.ICETransportPolicyRelay
		}
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         ICEServers(cfg),
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

type pionPeer struct {
	pc *pion.PeerConnection
}

func (p *pionPeer) CreateDataChannel(label string) (DataChannel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return newPionChannel(dc), nil
}

func (p *pionPeer) CreateOffer() (pion.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionPeer) CreateAnswer() (pion.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionPeer) SetLocalDescription(desc pion.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *pionPeer) SetRemoteDescription(desc pion.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *pionPeer) AddICECandidate(candidate pion.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *pionPeer) OnICECandidate(fn func(pion.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (p *pionPeer) OnConnectionStateChange(fn func(pion.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

func (p *pionPeer) OnDataChannel(fn func(DataChannel)) {
	p.pc.OnDataChannel(func(dc *pion.DataChannel) {
		fn(newPionChannel(dc))
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

// pionChannel adds write backpressure to a pion data channel: Send blocks
// while the channel buffers more than HighWaterMark.
type pionChannel struct {
	dc        *pion.DataChannel
	low       chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newPionChannel(dc *pion.DataChannel) *pionChannel {
	c := &pionChannel{
		dc:     dc,
		low:    make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	dc.SetBufferedAmountLowThreshold(LowWaterMark)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.low <- struct{}{}:
		default:
		}
	})
	return c
}

func (c *pionChannel) Label() string { return c.dc.Label() }

func (c *pionChannel) OnOpen(fn func()) { c.dc.OnOpen(fn) }

func (c *pionChannel) OnClose(fn func()) {
	c.dc.OnClose(func() {
		c.markClosed()
		fn()
	})
}

func (c *pionChannel) OnMessage(fn func(Message)) {
	c.dc.OnMessage(func(msg pion.DataChannelMessage) {
		fn(Message{IsString: msg.IsString, Data: msg.Data})
	})
}

func (c *pionChannel) OnError(fn func(error)) { c.dc.OnError(fn) }

func (c *pionChannel) Send(data []byte) error {
	if err := c.waitForWindow(); err != nil {
		return err
	}
	return c.dc.Send(data)
}

func (c *pionChannel) SendText(text string) error {
	if err := c.waitForWindow(); err != nil {
		return err
	}
	return c.dc.SendText(text)
}

func (c *pionChannel) BufferedAmount() uint64 { return c.dc.BufferedAmount() }

func (c *pionChannel) Close() error {
	c.markClosed()
	return c.dc.Close()
}

func (c *pionChannel) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *pionChannel) waitForWindow() error {
	if c.dc.ReadyState() != pion.DataChannelStateOpen {
		return ErrChannelClosed
	}

	buffered := c.dc.BufferedAmount()
	if buffered < HighWaterMark {
		return nil
	}

	timer := time.NewTimer(SendTimeout)
	defer timer.Stop()

	for c.dc.BufferedAmount() >= HighWaterMark {
		select {
		case <-c.low:
		case <-c.closed:
			return ErrChannelClosed
		case <-timer.C:
			if c.dc.BufferedAmount() < buffered {
				return nil
			}
			return ErrBufferTimeout
		}
	}
	return nil
}
