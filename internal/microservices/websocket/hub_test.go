package websocket

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drain(t *testing.T, q *OutboundQueue) []string {
	t.Helper()
	var out []string
	for {
		msg, ok, _ := q.TryPop()
		if !ok {
			return out
		}
		out = append(out, string(msg))
	}
}

type recordingForwarder struct {
	mu       sync.Mutex
	payloads []string
}

func (f *recordingForwarder) Forward(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, string(payload))
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(quietLogger())
	q := NewOutboundQueue()

	require.NoError(t, hub.Register("10.0.0.1:4000", q))
	assert.Equal(t, 1, hub.Count())

	assert.True(t, hub.Unregister("10.0.0.1:4000"))
	assert.Equal(t, 0, hub.Count())

	// redundant removal is a no-op
	assert.False(t, hub.Unregister("10.0.0.1:4000"))
	assert.False(t, hub.Unregister("never-registered"))

	// removal closes the queue so the writer can finish
	assert.ErrorIs(t, q.Push([]byte("x")), ErrQueueClosed)
}

func TestHub_DuplicateRegister(t *testing.T) {
	hub := NewHub(quietLogger())
	first := NewOutboundQueue()
	require.NoError(t, hub.Register("peer", first))

	err := hub.Register("peer", NewOutboundQueue())
	assert.ErrorIs(t, err, ErrDuplicateConnection)
	assert.Equal(t, 1, hub.Count())

	// the first entry is untouched
	hub.Broadcast([]byte("still-here"))
	assert.Equal(t, []string{"still-here"}, drain(t, first))
}

func TestHub_BroadcastReachesAll(t *testing.T) {
	hub := NewHub(quietLogger())
	queues := make([]*OutboundQueue, 3)
	for i := range queues {
		queues[i] = NewOutboundQueue()
		require.NoError(t, hub.Register(ConnectionID(fmt.Sprintf("c%d", i)), queues[i]))
	}

	assert.Equal(t, 3, hub.Broadcast([]byte("one")))
	assert.Equal(t, 3, hub.Broadcast([]byte("two")))

	for _, q := range queues {
		assert.Equal(t, []string{"one", "two"}, drain(t, q))
	}
}

func TestHub_BroadcastSkipsClosedQueue(t *testing.T) {
	hub := NewHub(quietLogger())
	live, dead, alsoLive := NewOutboundQueue(), NewOutboundQueue(), NewOutboundQueue()
	require.NoError(t, hub.Register("a", live))
	require.NoError(t, hub.Register("b", dead))
	require.NoError(t, hub.Register("c", alsoLive))

	// writer gone but entry not yet removed
	dead.Close()

	assert.Equal(t, 2, hub.Broadcast([]byte("msg")))
	assert.Equal(t, []string{"msg"}, drain(t, live))
	assert.Equal(t, []string{"msg"}, drain(t, alsoLive))
}

func TestHub_BroadcastAfterUnregister(t *testing.T) {
	hub := NewHub(quietLogger())
	c1, c2, c3 := NewOutboundQueue(), NewOutboundQueue(), NewOutboundQueue()
	require.NoError(t, hub.Register("c1", c1))
	require.NoError(t, hub.Register("c2", c2))
	require.NoError(t, hub.Register("c3", c3))

	require.True(t, hub.Unregister("c2"))
	assert.Equal(t, 2, hub.Count())

	assert.Equal(t, 2, hub.Broadcast([]byte("after")))
	assert.Equal(t, []string{"after"}, drain(t, c1))
	assert.Empty(t, drain(t, c2))
	assert.Equal(t, []string{"after"}, drain(t, c3))
}

func TestHub_RelayForwardsAndPublishEncodes(t *testing.T) {
	hub := NewHub(quietLogger())
	fwd := &recordingForwarder{}
	hub.SetForwarder(fwd)

	q := NewOutboundQueue()
	require.NoError(t, hub.Register("c1", q))

	n, err := hub.Publish(NewEnvelope(EventTrailerArrived, "TRL-88"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	want := `{"type":"trailer_arrived","data":{"message":"TRL-88"}}`
	assert.Equal(t, []string{want}, drain(t, q))
	assert.Equal(t, []string{want}, fwd.payloads)

	// plain Broadcast never reaches the forwarder
	hub.Broadcast([]byte("local-only"))
	assert.Len(t, fwd.payloads, 1)
}

func TestHub_CloseAllConnections(t *testing.T) {
	hub := NewHub(quietLogger())
	qs := []*OutboundQueue{NewOutboundQueue(), NewOutboundQueue()}
	require.NoError(t, hub.Register("a", qs[0]))
	require.NoError(t, hub.Register("b", qs[1]))

	assert.Equal(t, 2, hub.CloseAllConnections())
	assert.Equal(t, 0, hub.Count())
	for _, q := range qs {
		_, ok, err := q.Pop(context.Background())
		assert.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestHub_ConcurrentChurnAndBroadcast(t *testing.T) {
	hub := NewHub(quietLogger())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ConnectionID(fmt.Sprintf("peer-%d", i))
			q := NewOutboundQueue()
			if err := hub.Register(id, q); err != nil {
				t.Error(err)
				return
			}
			hub.Broadcast([]byte(id))
			// both pumps exit and both remove the entry
			hub.Unregister(id)
			hub.Unregister(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Count())
}
