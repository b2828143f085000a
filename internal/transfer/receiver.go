package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/peerdrop/peerdrop/internal/webrtc"
	"github.com/sirupsen/logrus"
)

type incoming struct {
	meta     Meta
	chunks   [][]byte
	received int64
	progress int
}

// Receiver reassembles files from frames delivered by a data channel. It is
// not safe for concurrent use; the owner feeds it from a single goroutine.
type Receiver struct {
	observer Observer

	// order holds ids in registration order; untagged chunks go to the
	// oldest entry.
	order    []string
	incoming map[string]*incoming
}

func NewReceiver(obs Observer) *Receiver {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Receiver{
		observer: obs,
		incoming: make(map[string]*incoming),
	}
}

// Pending returns the number of transfers still receiving chunks.
func (r *Receiver) Pending() int {
	return len(r.order)
}

// Reset drops every partially received file.
func (r *Receiver) Reset() {
	r.order = nil
	r.incoming = make(map[string]*incoming)
}

// Handle processes one frame. Errors are also reported to the observer log;
// the receiver stays usable after any of them.
func (r *Receiver) Handle(msg webrtc.Message) error {
	var err error
	if msg.IsString {
		err = r.handleControl(msg.Data)
	} else {
		err = r.handleChunk(msg.Data)
	}
	if err != nil {
		logrus.WithError(err).Warn("Dropped frame")
		r.observer.OnLog(err.Error())
	}
	return err
}

func (r *Receiver) handleControl(data []byte) error {
	var ctl control
	if err := json.Unmarshal(data, &ctl); err != nil {
		return WrapError("parse control message", Classify(ErrProtocolViolation, err), truncate(data))
	}

	switch ctl.Type {
	case MessageTypeMeta:
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			return WrapError("parse meta", Classify(ErrProtocolViolation, err), truncate(data))
		}
		return r.register(meta)
	default:
		return WrapError("control message", ErrProtocolViolation, fmt.Sprintf("unknown type %q", ctl.Type))
	}
}

func (r *Receiver) register(meta Meta) error {
	if meta.ID == "" || meta.Size < 0 {
		return WrapError("register", ErrProtocolViolation, "invalid meta")
	}
	if _, exists := r.incoming[meta.ID]; exists {
		return WrapError("register", ErrProtocolViolation, fmt.Sprintf("duplicate id %s", meta.ID))
	}

	in := &incoming{meta: meta}
	r.incoming[meta.ID] = in
	r.order = append(r.order, meta.ID)

	logrus.WithFields(logrus.Fields{
		"id":     meta.ID,
		"file":   meta.Name,
		"size":   meta.Size,
		"tagged": meta.Tagged,
	}).Info("Receiving file")

	r.observer.OnTransferAdded(Item{
		ID:        meta.ID,
		Name:      meta.Name,
		Size:      meta.Size,
		Type:      meta.FileType,
		Progress:  0,
		Status:    StatusTransferring,
		Timestamp: time.Now(),
	})
	r.observer.OnLog(fmt.Sprintf("Receiving: %s", meta.Name))

	if meta.Size == 0 {
		r.complete(in)
	}
	return nil
}

func (r *Receiver) handleChunk(data []byte) error {
	if r.hasTagged() {
		if frame, err := DecodeChunk(data); err == nil {
			if in, ok := r.incoming[frame.ID]; ok && in.meta.Tagged {
				if frame.Offset != in.received {
					return WrapError("chunk", ErrProtocolViolation,
						fmt.Sprintf("offset %d, expected %d for %s", frame.Offset, in.received, in.meta.Name))
				}
				r.append(in, frame.Data)
				return nil
			}
		}
	}

	in := r.oldestUntagged()
	if in == nil {
		return WrapError("chunk", ErrProtocolViolation, "no active transfer")
	}
	r.append(in, data)
	return nil
}

func (r *Receiver) append(in *incoming, data []byte) {
	in.chunks = append(in.chunks, data)
	in.received += int64(len(data))

	if p := Percent(in.received, in.meta.Size); p != in.progress {
		in.progress = p
		r.observer.OnProgress(in.meta.ID, p)
	}

	if in.received >= in.meta.Size {
		r.complete(in)
	}
}

func (r *Receiver) complete(in *incoming) {
	id := in.meta.ID
	handle := &Handle{
		ID:   id,
		Name: in.meta.Name,
		Type: in.meta.FileType,
		data: bytes.Join(in.chunks, nil),
	}

	delete(r.incoming, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if in.meta.Size == 0 {
		r.observer.OnProgress(id, 100)
	}

	logrus.WithFields(logrus.Fields{"id": id, "file": in.meta.Name, "size": handle.Size()}).Info("File received")
	r.observer.OnCompleted(id, handle)
	r.observer.OnLog(fmt.Sprintf("Received: %s", in.meta.Name))
}

func (r *Receiver) hasTagged() bool {
	for _, id := range r.order {
		if r.incoming[id].meta.Tagged {
			return true
		}
	}
	return false
}

func (r *Receiver) oldestUntagged() *incoming {
	for _, id := range r.order {
		if in := r.incoming[id]; !in.meta.Tagged {
			return in
		}
	}
	return nil
}

func truncate(data []byte) string {
	const limit = 64
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
