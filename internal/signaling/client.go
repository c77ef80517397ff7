package signaling

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/camrelay/internal/metrics"
	"github.com/BioHazard786/camrelay/internal/ratelimit"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is a wrapper for a single websocket connection (a peer)
type Client struct {
	// ID is the connection identity shown to other peers (monitorId, from).
	ID string

	// Hub is a pointer to the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// Send is a buffered channel for all outbound messages.
	// The hub writes to this channel without blocking, and WritePump
	// reads from it and writes to the websocket.
	Send chan *Message

	codec   Codec
	limiter *ratelimit.MessageLimiter

	// Membership, owned by the hub goroutine.
	owned  map[string]*Room
	joined map[string]*Room
	gone   bool
}

// NewClient wraps conn for use with hub. The codec follows the negotiated
// websocket subprotocol.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := newClient(uuid.NewString(), hub.cfg.SendQueue)
	c.Hub = hub
	c.Conn = conn
	c.codec = CodecFor(conn.Subprotocol())
	c.limiter = ratelimit.NewMessageLimiter(nil, hub.cfg.MessagesPerSecond)
	return c
}

func newClient(id string, queue int) *Client {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	return &Client{
		ID:     id,
		Send:   make(chan *Message, queue),
		codec:  JSONCodec{},
		owned:  make(map[string]*Room),
		joined: make(map[string]*Room),
	}
}

// deliver queues msg without blocking. It must only be called from the hub
// goroutine, which is also the only closer of Send.
func (c *Client) deliver(msg *Message) bool {
	if c.gone {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	log := c.Hub.log.With("client", c.ID)

	// When this function exits (e.g., connection closes), unregister the client
	defer func() {
		c.Hub.unregisterClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.cfg.MaxMessageBytes)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read failed", "err", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.Hub.metrics.Inc(metrics.RateLimited)
			log.Debug("inbound message rate limited", "dropped", c.limiter.Dropped())
			continue
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			c.Hub.metrics.Inc(metrics.DecodeError)
			log.Debug("inbound message malformed", "err", err)
			msg = &Message{Type: messageTypeMalformed}
		}

		// Attach the client pointer to the message
		msg.client = c

		if !c.Hub.dispatch(msg) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	log := c.Hub.log.With("client", c.ID)
	ticker := time.NewTicker(pingPeriod)

	// When this function exits, stop the ticker and close the connection
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.codec.Encode(message)
			if err != nil {
				log.Error("encode outbound message", "type", message.Type, "err", err)
				continue
			}
			if err := c.Conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				log.Debug("websocket write failed", "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

