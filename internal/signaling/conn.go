package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/peerdrop/peerdrop/internal/netutil"
)

var ErrClosed = errors.New("signaling connection closed")

const handshakeTimeout = 10 * time.Second

// Conn is the peer side of a signaling connection.
type Conn struct {
	conn     *websocket.Conn
	incoming chan *Message
	outgoing chan []byte

	// done is closed by Close; writerDone when the write pump exits.
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// Dial establishes a WebSocket connection to the signaling server.
func Dial(ctx context.Context, serverURL string) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		NetDialContext:   netutil.DialContext,
	}

	ws, _, err := dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}

	c := &Conn{
		conn:       ws,
		incoming:   make(chan *Message, 32),
		outgoing:   make(chan []byte, 32),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)

	go c.readPump()
	go c.writePump()

	return c, nil
}

// readPump reads messages from the WebSocket connection until it fails.
// Malformed messages are logged and skipped.
func (c *Conn) readPump() {
	defer close(c.incoming)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				logrus.WithError(err).Debug("signaling read ended")
			}
			return
		}

		msg, err := Parse(data)
		if err != nil {
			logrus.WithError(err).Warn("dropping unparseable signaling message")
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logrus.WithError(err).Warn("signaling write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the server.
func (c *Conn) Send(msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	case <-c.writerDone:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.writerDone:
		return ErrClosed
	}
}

// Incoming returns the channel of received messages. It is closed when the
// connection drops.
func (c *Conn) Incoming() <-chan *Message {
	return c.incoming
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
