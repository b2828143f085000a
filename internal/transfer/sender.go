package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultChunkSize = 64 * 1024

// Channel is the sending half of an open data channel.
type Channel interface {
	Send(data []byte) error
	SendText(text string) error
}

// Source is a file to be sent. Body is read sequentially, one chunk at a
// time.
type Source struct {
	Name string
	Size int64
	Type string
	Body io.Reader
}

// BytesSource wraps in-memory content.
func BytesSource(name, fileType string, data []byte) Source {
	return Source{
		Name: name,
		Size: int64(len(data)),
		Type: fileType,
		Body: bytes.NewReader(data),
	}
}

// Sender streams files over a channel as a meta message followed by chunks.
type Sender struct {
	ChunkSize int
	Tagged    bool
	Observer  Observer
}

func NewSender(chunkSize int, tagged bool, obs Observer) *Sender {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &Sender{ChunkSize: chunkSize, Tagged: tagged, Observer: obs}
}

// Announce reports a new outgoing item in the pending state.
func (s *Sender) Announce(src Source, id string) {
	s.Observer.OnTransferAdded(Item{
		ID:        id,
		Name:      src.Name,
		Size:      src.Size,
		Type:      src.Type,
		Status:    StatusPending,
		Timestamp: time.Now(),
	})
}

// Send writes src to ch under id. Each chunk is read only after the previous
// one was handed to the channel. On failure the item keeps its last reported
// progress.
func (s *Sender) Send(ctx context.Context, ch Channel, src Source, id string) error {
	log := logrus.WithFields(logrus.Fields{"id": id, "file": src.Name, "size": src.Size})

	meta, err := encodeMeta(Meta{
		ID:       id,
		Name:     src.Name,
		Size:     src.Size,
		FileType: src.Type,
		Tagged:   s.Tagged,
	})
	if err != nil {
		return err
	}
	if err := ch.SendText(meta); err != nil {
		return s.fail(log, src, "send meta", Classify(ErrTransport, err))
	}

	s.Observer.OnLog(fmt.Sprintf("Sending: %s", src.Name))
	log.Debug("Meta sent")

	if src.Size == 0 {
		s.Observer.OnProgress(id, 100)
		s.Observer.OnLog(fmt.Sprintf("Sent: %s", src.Name))
		return nil
	}

	body := io.LimitReader(src.Body, src.Size)
	buf := make([]byte, s.ChunkSize)
	var sent int64
	last := 0

	for {
		if err := ctx.Err(); err != nil {
			return s.fail(log, src, "send chunk", err)
		}

		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			payload := buf[:n]
			if s.Tagged {
				payload, err = EncodeChunk(ChunkFrame{ID: id, Offset: sent, Data: buf[:n]})
				if err != nil {
					return s.fail(log, src, "send chunk", err)
				}
			}

			if err := ch.Send(payload); err != nil {
				return s.fail(log, src, "send chunk", Classify(ErrTransport, err))
			}

			sent += int64(n)
			if p := Percent(sent, src.Size); p != last {
				last = p
				s.Observer.OnProgress(id, p)
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return s.fail(log, src, "read", readErr)
		}
	}

	// The peer still expects the missing bytes, so the stream is unusable.
	if sent < src.Size {
		log.WithField("sent", sent).Warn("Source shorter than declared size")
		return s.fail(log, src, "read", Classify(ErrProtocolViolation, io.ErrUnexpectedEOF))
	}

	s.Observer.OnLog(fmt.Sprintf("Sent: %s", src.Name))
	log.Info("Transfer sent")
	return nil
}

func (s *Sender) fail(log *logrus.Entry, src Source, op string, err error) error {
	ferr := NewFileError(op, src.Name, err)
	log.WithError(err).Error("Transfer failed")
	s.Observer.OnLog(fmt.Sprintf("Failed to send %s: %v", src.Name, err))
	return ferr
}
