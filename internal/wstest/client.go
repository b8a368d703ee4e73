// File: internal/wstest/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package wstest provides a thin gorilla/websocket client wrapper for
// end-to-end tests against a running server.Server: dial, send,
// receive, and close, without every test re-deriving dial options.
package wstest

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Client wraps a single client-side WebSocket connection.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to addr ("host:port") at path over ws://, failing if
// the handshake doesn't complete within timeout.
func Dial(addr, path string, timeout time.Duration) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: path}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wstest: dial %s: %w", u.String(), err)
	}
	return &Client{conn: conn}, nil
}

// SendText writes a text message.
func (c *Client) SendText(msg string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// SendBinary writes a binary message.
func (c *Client) SendBinary(msg []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, msg)
}

// ReadMessage blocks until the next message arrives or deadline elapses.
func (c *Client) ReadMessage(deadline time.Duration) (isBinary bool, payload []byte, err error) {
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return false, nil, err
	}
	return kind == websocket.BinaryMessage, data, nil
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
