package websocket

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("outbound queue closed")

// OutboundQueue is the private, unbounded outgoing queue of one connection.
// Many producers (any reader doing a broadcast) push; exactly one consumer
// (the connection's write pump) pops.
type OutboundQueue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{} // 1-slot wakeup for the consumer
	closed bool
}

// constructor for OutboundQueue
func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{
		notify: make(chan struct{}, 1),
	}
}

// Push appends msg to the tail. Never blocks.
func (q *OutboundQueue) Push(msg []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default: // consumer already has a pending wakeup
	}
	return nil
}

// TryPop removes the head message without blocking. closed reports that the
// queue is closed and fully drained.
func (q *OutboundQueue) TryPop() (msg []byte, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		msg = q.items[0]
		q.items[0] = nil // release reference for GC
		q.items = q.items[1:]
		return msg, true, false
	}
	return nil, false, q.closed
}

// Wait returns a channel that fires after a push or close. The consumer must
// call TryPop again after every wakeup; spurious wakeups are possible.
func (q *OutboundQueue) Wait() <-chan struct{} {
	return q.notify
}

// Pop blocks until a message is available, the queue is closed and drained
// (ok=false, err=nil), or ctx is done.
func (q *OutboundQueue) Pop(ctx context.Context) (msg []byte, ok bool, err error) {
	for {
		m, got, closed := q.TryPop()
		if got {
			return m, true, nil
		}
		if closed {
			return nil, false, nil
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Close stops further pushes. Messages already queued can still be popped.
// Safe to call more than once.
func (q *OutboundQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued messages.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
