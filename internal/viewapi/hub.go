package viewapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// subscriberBuffer is how many frames a stream client may fall behind
// before it is disconnected.
const subscriberBuffer = 16

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// subscriber is one connected stream client.
type subscriber struct {
	msgs      chan []byte
	closeSlow func()
}

// Hub fans encoded frames out to every connected stream client. A client
// that cannot keep up is closed rather than allowed to block the others.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Broadcast queues msg for every subscriber without blocking. A subscriber
// whose buffer is full is dropped from the hub and closed once.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.msgs <- msg:
		default:
			delete(h.subs, s)
			h.logger.Warn("stream client too slow, disconnecting")

			go s.closeSlow()
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[s] = struct{}{}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs, s)
}

// serve registers conn, writes the frame built by first, then forwards
// broadcast frames until the client goes away or ctx is canceled. first
// runs after registration so no broadcast falls between the two. Client
// frames are discarded.
func (h *Hub) serve(ctx context.Context, conn *websocket.Conn, first func() ([]byte, error)) error {
	s := &subscriber{
		msgs: make(chan []byte, subscriberBuffer),
		closeSlow: func() {
			conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		},
	}

	h.add(s)
	defer h.remove(s)

	ctx = conn.CloseRead(ctx)

	msg, err := first()
	if err != nil {
		return err
	}

	if err := writeFrame(ctx, conn, msg); err != nil {
		return err
	}

	for {
		select {
		case msg := <-s.msgs:
			if err := writeFrame(ctx, conn, msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, msg)
}
