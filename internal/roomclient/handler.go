package roomclient

import (
	"github.com/BioHazard786/camrelay/internal/signaling"
)

// Presence describes a monitor-joined or monitor-left notice.
type Presence struct {
	RoomCode     string
	MonitorID    string
	TotalViewers int
}

// Signal is a relayed payload and the connection it came from.
type Signal struct {
	RoomCode string
	From     string
	Payload  any
}

// Closure reports that a room ended.
type Closure struct {
	RoomCode string
	// Reason is "idle" or "expired" for room-closed, empty when the
	// streamer disconnected.
	Reason string
}

// Handler routes incoming signaling messages to appropriate channels.
type Handler struct {
	client *Client

	RoomCreated       chan string
	RoomJoined        chan string
	MonitorJoined     chan Presence
	MonitorLeft       chan Presence
	Signal            chan Signal
	PhoneDisconnected chan Closure
	RoomClosed        chan Closure
	Error             chan string

	done chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:            client,
		RoomCreated:       make(chan string, 1),
		RoomJoined:        make(chan string, 1),
		MonitorJoined:     make(chan Presence, 16),
		MonitorLeft:       make(chan Presence, 16),
		Signal:            make(chan Signal, 32),
		PhoneDisconnected: make(chan Closure, 1),
		RoomClosed:        make(chan Closure, 1),
		Error:             make(chan string, 4),
		done:              make(chan struct{}),
	}
}

// Done is closed once the connection has ended and Start returned.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Start begins listening to incoming messages and routing them. It returns
// when the client's connection ends.
func (h *Handler) Start() {
	defer close(h.done)

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case signaling.MessageTypeRoomCreated:
			forward(h, h.RoomCreated, msg.RoomCode)

		case signaling.MessageTypeRoomJoined:
			forward(h, h.RoomJoined, msg.RoomCode)

		case signaling.MessageTypeMonitorJoined:
			forward(h, h.MonitorJoined, presence(msg))

		case signaling.MessageTypeMonitorLeft:
			forward(h, h.MonitorLeft, presence(msg))

		case signaling.MessageTypeSignal:
			forward(h, h.Signal, Signal{RoomCode: msg.RoomCode, From: msg.From, Payload: msg.Signal})

		case signaling.MessageTypePhoneDisconnected:
			forward(h, h.PhoneDisconnected, Closure{RoomCode: msg.RoomCode})

		case signaling.MessageTypeRoomClosed:
			forward(h, h.RoomClosed, Closure{RoomCode: msg.RoomCode, Reason: msg.Reason})

		case signaling.MessageTypeError:
			forward(h, h.Error, msg.Message)

		default:
		}
	}
}

// forward blocks until the consumer takes v or the client is closed.
func forward[T any](h *Handler, ch chan T, v T) {
	select {
	case ch <- v:
	case <-h.client.done:
	}
}

func presence(msg *signaling.Message) Presence {
	p := Presence{RoomCode: msg.RoomCode, MonitorID: msg.MonitorID}
	if msg.TotalViewers != nil {
		p.TotalViewers = *msg.TotalViewers
	}
	return p
}
