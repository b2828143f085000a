package signaling

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Hub is the central brain of the signaling server.
// It owns the room table; connection code reaches it only through its
// methods, which hand work to the single goroutine started by Run.
type Hub struct {
	// rooms maps room codes to Room instances.
	rooms map[string]*Room

	// clients holds every registered connection until it unregisters.
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	// inbound carries parsed messages from every read pump.
	inbound chan *Message

	// queries runs read-only inspections on the hub goroutine.
	queries chan func()

	done chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *Message),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main processing loop and returns when ctx is done.
// This is the single goroutine that manages all rooms.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			logrus.WithField("remote", client.Remote()).Debug("client registered")

		case client := <-h.unregister:
			h.drop(client)
			logrus.WithField("remote", client.Remote()).Debug("client unregistered")

		case msg := <-h.inbound:
			h.handle(msg)

		case query := <-h.queries:
			query()
		}
	}
}

// Register announces a new connection. It reports false once the hub has
// stopped, in which case the caller must close the connection itself.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a connection from its room and closes its send queue.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// drop unbinds c and closes its send queue, which ends its write pump.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.leave(c)
	close(c.send)
}

// shutdown drops every connection so their pumps exit with the hub.
func (h *Hub) shutdown() {
	if len(h.clients) > 0 {
		logrus.WithField("clients", len(h.clients)).Info("closing signaling connections")
	}
	for c := range h.clients {
		h.drop(c)
	}
}

// Dispatch hands a message read from c to the hub.
func (h *Hub) Dispatch(msg *Message) {
	select {
	case h.inbound <- msg:
	case <-h.done:
	}
}

// RoomSize returns the number of members bound to code, 0 if the room does
// not exist.
func (h *Hub) RoomSize(code string) int {
	var n int
	h.query(func() {
		if room, ok := h.rooms[code]; ok {
			n = room.size()
		}
	})
	return n
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	var n int
	h.query(func() { n = len(h.rooms) })
	return n
}

func (h *Hub) query(fn func()) {
	ran := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(ran) }:
		<-ran
	case <-h.done:
	}
}

func (h *Hub) handle(msg *Message) {
	log := logrus.WithFields(logrus.Fields{"type": msg.Type, "remote": msg.client.Remote()})

	switch msg.Type {
	case TypeJoin:
		h.join(msg.client, msg.Room)

	default:
		if msg.client.room == "" {
			log.Debug("dropping message from client outside any room")
			return
		}
		h.broadcast(msg.client, msg)
	}
}

// join binds c to the room named code, creating it if needed. A full room
// answers with an error and leaves c unbound.
func (h *Hub) join(c *Client, code string) {
	log := logrus.WithFields(logrus.Fields{"room": code, "remote": c.Remote()})

	if code == "" {
		log.Warn("join without room code ignored")
		return
	}
	if c.room == code {
		return
	}
	if c.room != "" {
		h.leave(c)
	}

	room, ok := h.rooms[code]
	if !ok {
		room = newRoom(code)
		h.rooms[code] = room
	}

	if room.full() {
		log.Info("room is full, rejecting join")
		if data, err := ErrorMessage(ErrRoomFull).Encode(); err == nil {
			c.enqueue(data)
		}
		return
	}

	room.add(c)
	c.room = code
	log.WithField("peers", room.size()).Info("client joined room")
}

// leave unbinds c and deletes its room once empty.
func (h *Hub) leave(c *Client) {
	if c.room == "" {
		return
	}
	code := c.room
	c.room = ""

	room, ok := h.rooms[code]
	if !ok || !room.has(c) {
		return
	}
	room.remove(c)

	log := logrus.WithFields(logrus.Fields{"room": code, "remote": c.Remote()})
	if room.size() == 0 {
		delete(h.rooms, code)
		log.Info("room deleted")
		return
	}
	log.Info("client left room")
}

// broadcast relays msg verbatim to every other member of the sender's room.
// A member whose queue is full loses this message; the rest still get it.
func (h *Hub) broadcast(from *Client, msg *Message) {
	room, ok := h.rooms[from.room]
	if !ok {
		return
	}

	data, err := msg.Encode()
	if err != nil {
		logrus.WithError(err).Warn("cannot encode message for relay")
		return
	}

	for _, peer := range room.others(from) {
		if !peer.enqueue(data) {
			logrus.WithFields(logrus.Fields{
				"room":   room.Code,
				"remote": peer.Remote(),
				"type":   msg.Type,
			}).Warn("peer send queue full, message dropped")
		}
	}
}
