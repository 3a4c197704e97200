package websocket

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Individual client connection: one read pump and one write pump share the
// transport and a single registry entry.

const ( // ping pong(2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time to write a message to the peer
	PongWait       = 60 * time.Second    // max time to wait for pong from peer => no pong = no connection
	PingPeriod     = (PongWait * 9) / 10 // send ping before pong wait expires
	MaxMessageSize = 64 * 1024           // maximum message size allowed from peer
)

// ClientOptions tunes the per-connection pumps. Zero fields take the package
// defaults.
type ClientOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = MaxMessageSize
	}
	return o
}

type Client struct {
	ID    ConnectionID    // peer address of the connection
	Conn  *websocket.Conn // WebSocket connection
	Queue *OutboundQueue  // private outbound queue, drained by WritePump
	Hub   *Hub            // registry this connection is entered in

	dispatcher *Dispatcher
	opts       ClientOptions
	logger     *slog.Logger
	leaveOnce  sync.Once
}

// constructor new client
func NewClient(id ConnectionID, conn *websocket.Conn, hub *Hub, dispatcher *Dispatcher, opts ClientOptions, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	return &Client{
		ID:         id,
		Conn:       conn,
		Queue:      NewOutboundQueue(),
		Hub:        hub,
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

// leave removes this connection from the hub. Called from both pump exit
// paths; the first caller wins.
func (c *Client) leave(reason string) {
	c.leaveOnce.Do(func() {
		c.Hub.Unregister(c.ID)
		c.logger.Info("client_left",
			"client_id", c.ID,
			"reason", reason,
		)
	})
}

// ReadPump: reads frames until close or transport error. Every valid
// envelope is dispatched and then relayed to all connections, sender included.
func (c *Client) ReadPump() {
	reason := "closed"
	defer func() {
		c.leave(reason)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.opts.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		msgType, data, err := c.Conn.ReadMessage()
		if err != nil {
			reason = c.classifyReadError(err)
			return
		}
		// any frame is proof of life
		c.Conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		switch msgType {
		case websocket.TextMessage:
			c.handleText(data)
		case websocket.BinaryMessage:
			c.logger.Info("binary_message_ignored",
				"client_id", c.ID,
				"size", len(data),
			)
		}
	}
}

func (c *Client) classifyReadError(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		c.logger.Info("client_disconnected",
			"client_id", c.ID,
		)
		return "closed"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.logger.Warn("client_read_timeout",
			"client_id", c.ID,
		)
		return "timeout"
	}
	if errors.Is(err, net.ErrClosed) {
		return "closed" // local side already tore the transport down
	}
	c.logger.Warn("client_read_error",
		"client_id", c.ID,
		"error", err.Error(),
	)
	return "errored"
}

func (c *Client) handleText(data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		// malformed payloads never cost the connection
		c.logger.Warn("invalid_envelope",
			"client_id", c.ID,
			"error", err.Error(),
		)
		return
	}

	c.dispatcher.Dispatch(c.logger, c.ID, env)

	payload, err := env.Encode()
	if err != nil {
		c.logger.Error("failed_to_encode_envelope",
			"client_id", c.ID,
			"error", err.Error(),
		)
		return
	}
	c.Hub.Relay(payload)
}

// WritePump: drains the outbound queue onto the transport and keeps the
// connection alive with pings. Exits on write failure or once the queue is
// closed and drained.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	reason := "closed"
	defer func() {
		ticker.Stop()
		c.leave(reason)
		c.Conn.Close()
	}()

	for {
		msg, ok, closed := c.Queue.TryPop()
		switch {
		case ok:
			c.Conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("client_write_error",
					"client_id", c.ID,
					"error", err.Error(),
				)
				reason = "write_failed"
				return
			}
			continue
		case closed:
			// unregistered: say goodbye, best effort
			c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}

		select {
		case <-c.Queue.Wait():
		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				reason = "ping_failed"
				return
			}
		}
	}
}
