// Package signaling implements the rendezvous protocol peers use to exchange
// session descriptions and ICE candidates before the direct transport opens.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type constants.
const (
	TypeJoin      = "join"
	TypeReady     = "ready"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeError     = "error" // server to client only
)

// ErrRoomFull is the payload sent to a third peer joining a room.
const ErrRoomFull = "Room is full"

var ErrMalformed = errors.New("malformed signaling message")

// Message is the JSON object exchanged over the signaling socket. Payload is
// kept raw: the server never inspects it and peers decode it by type.
type Message struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// raw holds the bytes the message was parsed from, so the hub can relay
	// it unchanged.
	raw []byte

	// client is the connection that sent the message. Server side only.
	client *Client
}

// NewMessage builds a message, marshalling payload when it is not nil.
func NewMessage(msgType, room string, payload any) (*Message, error) {
	msg := &Message{Type: msgType, Room: room}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// ErrorMessage returns an error message carrying text as its payload.
func ErrorMessage(text string) *Message {
	payload, _ := json.Marshal(text)
	return &Message{Type: TypeError, Payload: payload}
}

// wireMessage accepts any JSON value for type and room. Peers sometimes send
// the room code as a number.
type wireMessage struct {
	Type    json.RawMessage `json:"type"`
	Room    json.RawMessage `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Parse decodes one wire message. Any JSON object is accepted; a missing type
// or room reads as empty.
func Parse(data []byte) (*Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Message{
		Type:    looseString(wire.Type),
		Room:    looseString(wire.Room),
		Payload: wire.Payload,
		raw:     data,
	}, nil
}

// looseString returns a JSON string's value, or the literal text of any other
// value. null reads as empty.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Encode returns the wire form of the message. Parsed messages return the
// bytes they were read from.
func (m *Message) Encode() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	return json.Marshal(m)
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, m.Type)
	}
	return json.Unmarshal(m.Payload, v)
}

// ErrorText returns the human readable text of an error message. Payloads that
// are not JSON strings are returned verbatim.
func (m *Message) ErrorText() string {
	var text string
	if err := json.Unmarshal(m.Payload, &text); err == nil {
		return text
	}
	return string(m.Payload)
}
