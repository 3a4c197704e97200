package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Central registry of live connections. Each connection runs a read pump and a
// write pump in their own goroutines; the only state they share is this map
// of connection ID -> outbound queue.

var ErrDuplicateConnection = errors.New("connection id already registered")

// ConnectionID identifies one live connection; derived from the peer address.
type ConnectionID string

// Forwarder receives every locally originated relay payload, e.g. to mirror
// it to other relay instances.
type Forwarder interface {
	Forward(payload []byte)
}

type Hub struct {
	mu      sync.Mutex // guards map bookkeeping only, never held across I/O
	queues  map[ConnectionID]*OutboundQueue
	forward Forwarder
	logger  *slog.Logger
}

// constructor for Hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		queues: make(map[ConnectionID]*OutboundQueue),
		logger: logger,
	}
}

// SetForwarder attaches f to the relay path. Pass nil to detach.
func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	h.forward = f
	h.mu.Unlock()
}

// Register inserts queue under id. It fails only when id is still held by a
// live connection.
func (h *Hub) Register(id ConnectionID, queue *OutboundQueue) error {
	h.mu.Lock()
	if _, exists := h.queues[id]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}
	h.queues[id] = queue
	total := len(h.queues)
	h.mu.Unlock()

	h.logger.Info("client_added",
		"client_id", id,
		"total_clients", total,
	)
	return nil
}

// Unregister removes id and closes its queue so the write pump drains and
// exits. Both pumps call it on exit; only the first call has any effect and
// reports true.
func (h *Hub) Unregister(id ConnectionID) bool {
	h.mu.Lock()
	queue, exists := h.queues[id]
	if exists {
		delete(h.queues, id)
	}
	total := len(h.queues)
	h.mu.Unlock()

	if !exists {
		return false
	}
	queue.Close()
	h.logger.Info("client_removed",
		"client_id", id,
		"total_clients", total,
	)
	return true
}

// Broadcast enqueues msg onto every queue registered at the moment of the
// call and returns how many accepted it. A closed queue is logged and skipped.
func (h *Hub) Broadcast(msg []byte) int {
	type target struct {
		id    ConnectionID
		queue *OutboundQueue
	}

	// snapshot handles; pushes happen outside the lock
	h.mu.Lock()
	targets := make([]target, 0, len(h.queues))
	for id, q := range h.queues {
		targets = append(targets, target{id: id, queue: q})
	}
	h.mu.Unlock()

	delivered := 0
	for _, t := range targets {
		if err := t.queue.Push(msg); err != nil {
			h.logger.Warn("broadcast_enqueue_failed",
				"client_id", t.id,
				"error", err.Error(),
			)
			continue
		}
		delivered++
	}
	h.logger.Debug("broadcast_sent",
		"clients", len(targets),
		"delivered", delivered,
	)
	return delivered
}

// Relay broadcasts a locally originated message and hands it to the
// forwarder, if any.
func (h *Hub) Relay(msg []byte) int {
	delivered := h.Broadcast(msg)

	h.mu.Lock()
	f := h.forward
	h.mu.Unlock()
	if f != nil {
		f.Forward(msg)
	}
	return delivered
}

// Publish relays a server-side envelope through the same fan-out client
// messages use.
func (h *Hub) Publish(env Envelope) (int, error) {
	payload, err := env.Encode()
	if err != nil {
		return 0, fmt.Errorf("failed to encode envelope: %w", err)
	}
	h.logger.Info("publishing_event",
		"event", env.Type,
	)
	return h.Relay(payload), nil
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queues)
}

// IDs returns a snapshot of the registered connection IDs.
func (h *Hub) IDs() []ConnectionID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]ConnectionID, 0, len(h.queues))
	for id := range h.queues {
		ids = append(ids, id)
	}
	return ids
}

// CloseAllConnections unregisters every connection. Each write pump then
// sends a close frame and tears its transport down.
func (h *Hub) CloseAllConnections() int {
	closed := 0
	for _, id := range h.IDs() {
		if h.Unregister(id) {
			closed++
		}
	}
	return closed
}
