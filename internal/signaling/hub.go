package signaling

import (
	"context"
	"log/slog"
	"time"

	"github.com/BioHazard786/camrelay/internal/metrics"
)

// Defaults for Config.
const (
	DefaultRoomTTL           = time.Hour
	DefaultSweepInterval     = 30 * time.Minute
	DefaultGracePeriod       = 30 * time.Second
	DefaultTombstoneTTL      = 10 * time.Minute
	DefaultMaxMessageBytes   = 64 * 1024 // enough for SDP with many candidates
	DefaultMessagesPerSecond = 50
	DefaultSendQueue         = 256
)

// Config tunes room lifecycle and per-connection limits.
type Config struct {
	RoomTTL       time.Duration
	SweepInterval time.Duration
	GracePeriod   time.Duration
	TombstoneTTL  time.Duration

	MaxMessageBytes   int64
	MessagesPerSecond int64
	SendQueue         int
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		RoomTTL:           DefaultRoomTTL,
		SweepInterval:     DefaultSweepInterval,
		GracePeriod:       DefaultGracePeriod,
		TombstoneTTL:      DefaultTombstoneTTL,
		MaxMessageBytes:   DefaultMaxMessageBytes,
		MessagesPerSecond: DefaultMessagesPerSecond,
		SendQueue:         DefaultSendQueue,
	}
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Clients int `json:"clients"`
	Rooms   int `json:"rooms"`
	Viewers int `json:"viewers"`
}

// Hub is the central brain of the signaling server.
// It manages all active rooms and clients.
//
// Every piece of room state is owned by the goroutine running Run; other
// goroutines talk to it through channels only.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries decoded client messages to the hub for processing.
	Inbound chan *Message

	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	rooms   *Registry
	clients map[*Client]struct{}

	graceChecks chan graceCheck
	schedule    func(graceCheck)
	statsReq    chan chan Stats
	done        chan struct{}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RoomTTL <= 0 {
		c.RoomTTL = d.RoomTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	if c.SendQueue <= 0 {
		c.SendQueue = d.SendQueue
	}
	return c
}

// NewHub creates a new Hub instance. Zero durations and limits in cfg fall
// back to the defaults; a zero TombstoneTTL or MessagesPerSecond disables
// that feature.
func NewHub(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	h := &Hub{
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Inbound:     make(chan *Message),
		cfg:         cfg,
		log:         logger,
		metrics:     m,
		now:         time.Now,
		rooms:       NewRegistry(NewCodeGenerator(), cfg.TombstoneTTL),
		clients:     make(map[*Client]struct{}),
		graceChecks: make(chan graceCheck),
		statsReq:    make(chan chan Stats),
		done:        make(chan struct{}),
	}
	h.schedule = h.afterGracePeriod
	return h
}

// Metrics returns the counters the hub writes to.
func (h *Hub) Metrics() *metrics.Metrics {
	return h.metrics
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (rooms, clients).
// It returns when ctx is cancelled, closing every client's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case message := <-h.Inbound:
			h.handle(message)

		case check := <-h.graceChecks:
			h.graceExpired(check)

		case <-sweep.C:
			h.sweep()

		case reply := <-h.statsReq:
			reply <- h.stats()
		}
	}
}

// Stats asks the run loop for current counts.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.statsReq <- reply:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// RegisterClient hands c to the run loop. It reports false if the hub has
// stopped.
func (h *Hub) RegisterClient(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(msg *Message) bool {
	select {
	case h.Inbound <- msg:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) stats() Stats {
	return Stats{
		Clients: len(h.clients),
		Rooms:   h.rooms.Len(),
		Viewers: h.rooms.Viewers(),
	}
}

func (h *Hub) register(c *Client) {
	h.clients[c] = struct{}{}
	h.metrics.Inc(metrics.ClientConnected)
	h.log.Debug("client registered", "client", c.ID)
}

// unregister removes c from every room it belongs to. Rooms it streams are
// torn down immediately; rooms it watches lose a viewer.
func (h *Hub) unregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.metrics.Inc(metrics.ClientDisconnected)
	h.log.Debug("client unregistered", "client", c.ID, "owned", len(c.owned), "joined", len(c.joined))

	for _, room := range c.owned {
		h.closeRoom(room, closeStreamerGone)
	}
	for _, room := range c.joined {
		h.removeViewer(room, c)
	}

	c.gone = true
	close(c.Send)
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		c.gone = true
		close(c.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.log.Info("hub stopped", "rooms", h.rooms.Len())
}

// handle processes one inbound message on the run goroutine.
func (h *Hub) handle(msg *Message) {
	c := msg.client
	if c == nil || c.gone {
		return
	}

	switch msg.Type {
	case MessageTypeCreateRoom:
		h.createRoom(c)

	case MessageTypeJoinRoom:
		h.joinRoom(c, msg.RoomCode)

	case MessageTypeLeaveRoom:
		h.leaveRoom(c, msg.RoomCode)

	case MessageTypeSignal:
		h.relay(c, msg.RoomCode, msg.Target, msg.Signal)

	case messageTypeMalformed:
		h.emit(c, errorMessage("Malformed message"))

	default:
		h.log.Debug("unknown message type", "client", c.ID, "type", msg.Type)
		h.emit(c, errorMessage("Unknown message type: "+msg.Type))
	}
}

// emit queues msg for c without blocking the run loop.
func (h *Hub) emit(c *Client, msg *Message) {
	if c.deliver(msg) {
		return
	}
	if !c.gone {
		h.metrics.Inc(metrics.SendQueueFull)
		h.log.Warn("send queue full, dropping message", "client", c.ID, "type", msg.Type)
	}
}

func (h *Hub) createRoom(c *Client) {
	room, err := h.rooms.Create(c, h.now())
	if err != nil {
		// Only reachable if the registry is corrupt or vastly oversized.
		h.log.Error("room creation failed", "client", c.ID, "rooms", h.rooms.Len(), "err", err)
		panic(err)
	}
	c.owned[room.Code] = room
	h.metrics.Inc(metrics.RoomCreated)
	h.log.Info("room created", "room", room.Code, "client", c.ID)

	h.emit(c, &Message{Type: MessageTypeRoomCreated, RoomCode: room.Code})
}

func (h *Hub) joinRoom(c *Client, code string) {
	now := h.now()

	room, err := h.rooms.Get(code)
	if err != nil && h.rooms.Departed(code, now) {
		err = ErrStreamerGone
	}
	var (
		count int
		added bool
	)
	if err == nil {
		count, added, err = room.Join(c, now)
	}
	if err != nil {
		h.metrics.Inc(metrics.JoinRejected)
		h.log.Info("room join rejected", "room", code, "client", c.ID, "err", err)
		h.emit(c, errorMessage(clientMessage(err)))
		return
	}

	c.joined[room.Code] = room
	h.emit(c, &Message{Type: MessageTypeRoomJoined, RoomCode: room.Code})
	if !added {
		return
	}

	h.metrics.Inc(metrics.ViewerJoined)
	h.log.Info("viewer joined", "room", room.Code, "client", c.ID, "viewers", count)
	h.emit(room.Streamer, &Message{
		Type:         MessageTypeMonitorJoined,
		MonitorID:    c.ID,
		RoomCode:     room.Code,
		TotalViewers: viewerTotal(count),
	})
}

// leaveRoom handles an explicit leave-room. A streamer leaving its own room
// ends the room just like a disconnect would.
func (h *Hub) leaveRoom(c *Client, code string) {
	room, err := h.rooms.Get(code)
	if err != nil {
		h.log.Debug("leave for unknown room", "room", code, "client", c.ID)
		return
	}
	if room.Streamer == c {
		h.closeRoom(room, closeStreamerGone)
		return
	}
	h.removeViewer(room, c)
}

func (h *Hub) removeViewer(room *Room, c *Client) {
	remaining, ok := room.Leave(c)
	if !ok {
		return
	}
	delete(c.joined, room.Code)
	h.metrics.Inc(metrics.ViewerLeft)
	h.log.Info("viewer left", "room", room.Code, "client", c.ID, "viewers", remaining)

	if room.Streamer != nil {
		h.emit(room.Streamer, &Message{
			Type:         MessageTypeMonitorLeft,
			MonitorID:    c.ID,
			RoomCode:     room.Code,
			TotalViewers: viewerTotal(remaining),
		})
	}
	if remaining == 0 {
		h.scheduleGraceCheck(room)
	}
}
