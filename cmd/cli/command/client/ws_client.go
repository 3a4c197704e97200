package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	relay "dockhub/internal/microservices/websocket"
)

// ws_client.go = relay client used by the dockctl commands.

// ErrEchoTimeout is returned when a sent envelope is not relayed back in time.
var ErrEchoTimeout = errors.New("timed out waiting for relay echo")

type RelayClient struct {
	conn *websocket.Conn
}

// Dial connects to the relay. token is optional and only needed when the
// relay runs with WS_REQUIRE_TOKEN.
func Dial(ctx context.Context, rawURL, token string) (*RelayClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid relay URL %q: scheme must be ws or wss", rawURL)
	}

	header := http.Header{}
	if token != "" {
		header.Add("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connection failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return &RelayClient{conn: conn}, nil
}

// Send writes one envelope as a text frame and returns the exact bytes sent.
func (c *RelayClient) Send(env relay.Envelope) ([]byte, error) {
	payload, err := env.Encode()
	if err != nil {
		return nil, err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}
	return payload, nil
}

// Next blocks for the next text frame. Binary frames are skipped.
func (c *RelayClient) Next() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

// WaitForEcho reads until payload comes back from the relay or timeout.
// Other traffic seen meanwhile is handed to onOther, which may be nil.
func (c *RelayClient) WaitForEcho(payload []byte, timeout time.Duration, onOther func([]byte)) error {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		data, err := c.Next()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return ErrEchoTimeout
			}
			return err
		}
		if bytes.Equal(data, payload) {
			return nil
		}
		if onOther != nil {
			onOther(data)
		}
	}
}

// Close sends a normal close frame and drops the connection.
func (c *RelayClient) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

// PrintEnvelope pretty prints one relayed frame.
func PrintEnvelope(w io.Writer, raw []byte) {
	env, err := relay.ParseEnvelope(raw)
	if err != nil {
		color.New(color.FgHiBlack).Fprintf(w, "? %s\n", raw)
		return
	}

	ts := time.Now().Format("15:04:05")
	if env.Kind() == relay.EventUnrecognized {
		color.New(color.FgYellow).Fprintf(w, "%s [%s] %s\n", ts, env.Type, env.Data.Message)
		return
	}
	color.New(color.FgCyan).Fprintf(w, "%s [%s] ", ts, env.Type)
	fmt.Fprintln(w, env.Data.Message)
}
