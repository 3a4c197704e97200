package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterBridge mirrors relay traffic between relay instances over a Redis
// pub/sub channel. Each instance tags what it publishes with its origin id
// and ignores its own echoes, so a message fans out exactly once per
// instance. Pub/sub gives no durability: instances that are down miss events.
type ClusterBridge struct {
	client  *redis.Client
	channel string
	origin  string
	hub     *Hub
	outbox  *OutboundQueue // decouples read pumps from Redis round trips
	logger  *slog.Logger
}

type clusterMessage struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

const publishTimeout = 2 * time.Second

// constructor for ClusterBridge
func NewClusterBridge(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *ClusterBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClusterBridge{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		hub:     hub,
		outbox:  NewOutboundQueue(),
		logger:  logger,
	}
}

// Origin returns this instance's id on the cluster channel.
func (b *ClusterBridge) Origin() string {
	return b.origin
}

// Forward implements Forwarder. It only queues; Run does the publishing.
func (b *ClusterBridge) Forward(payload []byte) {
	if err := b.outbox.Push(payload); err != nil {
		b.logger.Debug("cluster_forward_dropped", "error", err.Error())
	}
}

// Run subscribes to the cluster channel and relays foreign messages into the
// local hub until ctx is done. It returns an error only if the initial
// subscription fails.
func (b *ClusterBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// wait for the subscription confirmation
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("cluster_bridge_started",
		"channel", b.channel,
		"origin", b.origin,
	)

	go b.publishLoop(ctx)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.outbox.Close()
			return nil
		case msg, ok := <-ch:
			if !ok {
				b.outbox.Close()
				return nil
			}
			b.handle([]byte(msg.Payload))
		}
	}
}

func (b *ClusterBridge) publishLoop(ctx context.Context) {
	for {
		payload, ok, err := b.outbox.Pop(ctx)
		if err != nil || !ok {
			return
		}
		data, err := encodeClusterMessage(clusterMessage{Origin: b.origin, Payload: payload})
		if err != nil {
			b.logger.Error("cluster_encode_failed", "error", err.Error())
			continue
		}

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = b.client.Publish(pubCtx, b.channel, data).Err()
		cancel()
		if err != nil {
			b.logger.Warn("cluster_publish_failed",
				"channel", b.channel,
				"error", err.Error(),
			)
		}
	}
}

// payload bytes must survive the trip unchanged
func encodeClusterMessage(msg clusterMessage) ([]byte, error) {
	return encodeRaw(msg)
}

// handle relays one message from the cluster channel to local clients only.
func (b *ClusterBridge) handle(data []byte) {
	var msg clusterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.logger.Warn("cluster_message_invalid", "error", err.Error())
		return
	}
	if msg.Origin == b.origin {
		return
	}
	if _, err := ParseEnvelope(msg.Payload); err != nil {
		b.logger.Warn("cluster_message_invalid",
			"origin", msg.Origin,
			"error", err.Error(),
		)
		return
	}
	b.hub.Broadcast(msg.Payload)
}
