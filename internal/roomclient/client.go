// Package roomclient speaks the relay's signaling protocol from the client
// side.
package roomclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/camrelay/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	codec     signaling.Codec
	serverURL string
	msgpack   bool

	incoming chan *signaling.Message
	outgoing chan *signaling.Message
	done     chan struct{}
	once     sync.Once
}

// NewClient creates a new signaling client. With msgpack set the client asks
// for the binary codec and falls back to JSON if the server declines.
func NewClient(serverURL string, msgpack bool) *Client {
	return &Client{
		serverURL: serverURL,
		msgpack:   msgpack,
		incoming:  make(chan *signaling.Message, 16),
		outgoing:  make(chan *signaling.Message, 16),
		done:      make(chan struct{}),
	}
}

// Connect establishes WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	protocols := []string{signaling.SubprotocolJSON}
	if c.msgpack {
		protocols = []string{signaling.SubprotocolMsgpack, signaling.SubprotocolJSON}
	}
	dialer := websocket.Dialer{
		NetDialContext:   newResolver().dialContext,
		HandshakeTimeout: 15 * time.Second,
		Subprotocols:     protocols,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.codec = signaling.CodecFor(conn.Subprotocol())

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// Subprotocol reports the negotiated codec.
func (c *Client) Subprotocol() string {
	if c.codec == nil {
		return ""
	}
	return c.codec.Subprotocol()
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := c.codec.Decode(data)
		if err != nil {
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			data, err := c.codec.Encode(message)
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the server.
func (c *Client) Send(msg *signaling.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// CreateRoom asks the server for a new room with this client as streamer.
func (c *Client) CreateRoom() error {
	return c.Send(&signaling.Message{Type: signaling.MessageTypeCreateRoom})
}

// JoinRoom joins code as a viewer.
func (c *Client) JoinRoom(code string) error {
	return c.Send(&signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomCode: code})
}

// LeaveRoom leaves code. For the streamer this closes the room.
func (c *Client) LeaveRoom(code string) error {
	return c.Send(&signaling.Message{Type: signaling.MessageTypeLeaveRoom, RoomCode: code})
}

// SendSignal relays an opaque payload to target ("phone" or a monitor ID).
func (c *Client) SendSignal(code, target string, payload any) error {
	return c.Send(&signaling.Message{
		Type:     signaling.MessageTypeSignal,
		RoomCode: code,
		Target:   target,
		Signal:   payload,
	})
}

// Incoming returns the channel for receiving messages. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan *signaling.Message {
	return c.incoming
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}
