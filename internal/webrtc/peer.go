// Package webrtc wraps pion peer connections behind small interfaces so the
// session logic can be driven by fakes in tests.
package webrtc

import (
	"errors"

	pion "github.com/pion/webrtc/v4"
)

// ChannelLabel names the single data channel a sender opens.
const ChannelLabel = "file-transfer"

var (
	ErrChannelClosed = errors.New("data channel closed")
	ErrBufferTimeout = errors.New("buffer drain timeout")
)

// Message is one frame received on a data channel.
type Message struct {
	IsString bool
	Data     []byte
}

// DataChannel is an ordered, reliable message channel between peers.
type DataChannel interface {
	Label() string
	OnOpen(func())
	OnClose(func())
	OnMessage(func(Message))
	OnError(func(error))
	Send(data []byte) error
	SendText(text string) error
	BufferedAmount() uint64
	Close() error
}

// Peer is the transport object negotiated through signaling.
type Peer interface {
	CreateDataChannel(label string) (DataChannel, error)
	CreateOffer() (pion.SessionDescription, error)
	CreateAnswer() (pion.SessionDescription, error)
	SetLocalDescription(desc pion.SessionDescription) error
	SetRemoteDescription(desc pion.SessionDescription) error
	AddICECandidate(candidate pion.ICECandidateInit) error

	// OnICECandidate fires for every locally gathered candidate. The
	// end-of-gathering marker is not reported.
	OnICECandidate(func(pion.ICECandidateInit))
	OnConnectionStateChange(func(pion.PeerConnectionState))

	// OnDataChannel fires when the remote side opens a channel.
	OnDataChannel(func(DataChannel))

	Close() error
}

// Factory builds a fresh Peer for each negotiation.
type Factory interface {
	NewPeer() (Peer, error)
}
