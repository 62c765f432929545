package observer

import (
	"errors"
	"log/slog"
	"sync"

	ws "github.com/gorilla/websocket"

	"github.com/stereoloc/locator/internal/rendezvous"
)

// ErrClosed is returned by Serve after Close.
var ErrClosed = errors.New("observer hub closed")

// Submitter receives measurements from observers.
type Submitter interface {
	Submit(role rendezvous.Role, payload []byte) error
}

// Hub tracks connected observers and fans the measurement trigger out to
// all of them. Several connections may share a role.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*conn]struct{}
	closed bool

	logger *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[*conn]struct{}),
		logger: logger,
	}
}

// Serve registers an upgraded connection under role and forwards each text
// frame to s. It blocks until the connection ends.
func (h *Hub) Serve(c *ws.Conn, role rendezvous.Role, s Submitter) error {
	oc := newConn(c, role, h.logger)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		oc.close()
		return ErrClosed
	}
	h.conns[oc] = struct{}{}
	h.mu.Unlock()

	oc.logger.Info("Observer connected")
	defer func() {
		h.mu.Lock()
		delete(h.conns, oc)
		h.mu.Unlock()
		oc.shutdown()
		oc.logger.Info("Observer disconnected")
	}()

	go oc.writeLoop()
	oc.readLoop(func(role rendezvous.Role, payload []byte) {
		if err := s.Submit(role, payload); err != nil {
			oc.logger.Warn("Invalid measurement", "error", err)
		}
	})
	return nil
}

// Broadcast sends trigger to every connected observer without waiting.
func (h *Hub) Broadcast(trigger string) int {
	data := []byte(trigger)

	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.conns {
		if c.send(data) {
			n++
		}
	}
	return n
}

// Counts returns the number of connected observers per role.
func (h *Hub) Counts() map[string]int {
	counts := map[string]int{}
	for _, r := range rendezvous.Roles {
		counts[r.String()] = 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		counts[c.role.String()]++
	}
	return counts
}

// Close disconnects every observer. Later Serve calls fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
