package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-cloak/internal/log"
)

// ErrClosed is returned when registering with a hub that has stopped.
var ErrClosed = errors.New("hub: closed")

// Hub tracks connected clients and broadcasts to them.
// A client whose queue is full is disconnected rather than allowed to
// stall the others.
type Hub struct {
	name string

	clients map[*Client]struct{}
	mu      sync.RWMutex

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	running atomic.Bool
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New creates a hub. name only appears in logs.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled,
// then disconnects every client. Call it in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
		close(h.done)
		h.running.Store(false)
		log.Info("hub stopped", "hub", h.name)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			log.Info("client connected", "hub", h.name, "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Info("client disconnected", "hub", h.name, "clients", n)

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
			h.sent.Add(1)
		default:
			close(c.send)
			delete(h.clients, c)
			log.Warn("dropped slow client", "hub", h.name, "clients", len(h.clients))
		}
	}
}

// Broadcast queues msg for every client. If the hub is backed up the
// message is discarded.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastFrame queues a JPEG frame.
func (h *Hub) BroadcastFrame(jpeg []byte) {
	h.Broadcast(NewBinaryMessage(jpeg))
}

// BroadcastEvent encodes and queues a JSON event.
func (h *Hub) BroadcastEvent(kind string, data any) error {
	msg, err := NewEvent(kind, data)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Dropped returns how many broadcasts were discarded because the hub
// queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Sent returns how many messages were queued to clients.
func (h *Hub) Sent() uint64 {
	return h.sent.Load()
}
