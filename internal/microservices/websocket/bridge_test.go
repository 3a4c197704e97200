package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterBridge_HandleSkipsOwnOrigin(t *testing.T) {
	hub := NewHub(quietLogger())
	q := NewOutboundQueue()
	require.NoError(t, hub.Register("c1", q))

	bridge := NewClusterBridge(nil, "test", hub, quietLogger())

	own, err := encodeClusterMessage(clusterMessage{Origin: bridge.Origin(), Payload: []byte(holdLoad123)})
	require.NoError(t, err)
	bridge.handle(own)
	assert.Empty(t, drain(t, q))

	foreign, err := encodeClusterMessage(clusterMessage{Origin: "other-instance", Payload: []byte(holdLoad123)})
	require.NoError(t, err)
	bridge.handle(foreign)
	assert.Equal(t, []string{holdLoad123}, drain(t, q))
}

func TestClusterBridge_HandleRejectsBadPayload(t *testing.T) {
	hub := NewHub(quietLogger())
	q := NewOutboundQueue()
	require.NoError(t, hub.Register("c1", q))
	bridge := NewClusterBridge(nil, "test", hub, quietLogger())

	bridge.handle([]byte("garbage"))
	bridge.handle([]byte(`{"origin":"x","payload":{"type":"set_door"}}`))
	assert.Empty(t, drain(t, q))
}

func TestClusterBridge_EncodeKeepsPayloadBytes(t *testing.T) {
	payload := `{"type":"verified_by","data":{"message":"<QA & co>"}}`
	data, err := encodeClusterMessage(clusterMessage{Origin: "o", Payload: []byte(payload)})
	require.NoError(t, err)
	assert.Equal(t, `{"origin":"o","payload":`+payload+`}`, string(data))

	payload = "{\"type\":\"set_door\",\"data\":{\"message\":\"D1\u2028D2\"}}"
	data, err = encodeClusterMessage(clusterMessage{Origin: "o", Payload: []byte(payload)})
	require.NoError(t, err)
	assert.Equal(t, `{"origin":"o","payload":`+payload+`}`, string(data))
}

func TestClusterBridge_ForwardAfterStopIsDropped(t *testing.T) {
	bridge := NewClusterBridge(nil, "test", NewHub(quietLogger()), quietLogger())
	bridge.Forward([]byte("queued"))
	assert.Equal(t, 1, bridge.outbox.Len())

	bridge.outbox.Close()
	bridge.Forward([]byte("dropped"))
	assert.Equal(t, 1, bridge.outbox.Len())
}

// TestClusterBridge_Redis runs two bridges against a real Redis; skipped when
// none is reachable on localhost:6379.
func TestClusterBridge_Redis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Skip("Redis not available, skipping cluster bridge test")
	}

	channel := "dockhub:test:" + time.Now().Format("150405.000000")
	hubA, hubB := NewHub(quietLogger()), NewHub(quietLogger())
	qA, qB := NewOutboundQueue(), NewOutboundQueue()
	require.NoError(t, hubA.Register("a1", qA))
	require.NoError(t, hubB.Register("b1", qB))

	bridgeA := NewClusterBridge(client, channel, hubA, quietLogger())
	bridgeB := NewClusterBridge(client, channel, hubB, quietLogger())
	hubA.SetForwarder(bridgeA)
	hubB.SetForwarder(bridgeB)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go bridgeA.Run(ctx)
	go bridgeB.Run(ctx)

	// wait for both subscriptions
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, channel).Result()
		return err == nil && n[channel] == 2
	}, 3*time.Second, 20*time.Millisecond)

	hubA.Relay([]byte(holdLoad123))

	popCtx, popCancel := context.WithTimeout(ctx, 3*time.Second)
	defer popCancel()
	msg, ok, err := qB.Pop(popCtx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, holdLoad123, string(msg))

	// A saw it once locally and must not receive its own echo
	assert.Equal(t, []string{holdLoad123}, drain(t, qA))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, drain(t, qA))
}
