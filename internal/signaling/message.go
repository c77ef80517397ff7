package signaling

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
//
// Only the fields relevant to a given Type are set; the rest are omitted
// on the wire. Signal is never inspected by the server.
type Message struct {
	Type         string `json:"type"`
	RoomCode     string `json:"roomCode,omitempty"`
	Target       string `json:"target,omitempty"`
	Signal       any    `json:"signal,omitempty"`
	From         string `json:"from,omitempty"`
	MonitorID    string `json:"monitorId,omitempty"`
	TotalViewers *int   `json:"totalViewers,omitempty"`
	Message      string `json:"message,omitempty"`
	Reason       string `json:"reason,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over the wire.
	client *Client
}

// Inbound message types.
const (
	MessageTypeCreateRoom = "create-room"
	MessageTypeJoinRoom   = "join-room"
	MessageTypeLeaveRoom  = "leave-room"
	MessageTypeSignal     = "signal"
)

// Outbound message types.
const (
	MessageTypeRoomCreated       = "room-created"
	MessageTypeRoomJoined        = "room-joined"
	MessageTypeMonitorJoined     = "monitor-joined"
	MessageTypeMonitorLeft       = "monitor-left"
	MessageTypePhoneDisconnected = "phone-disconnected"
	MessageTypeRoomClosed        = "room-closed"
	MessageTypeError             = "error"
)

// messageTypeMalformed marks a frame the read pump could not decode.
const messageTypeMalformed = "malformed"

// TargetStreamer is the symbolic signal target addressing a room's streamer.
const TargetStreamer = "phone"

// Reasons carried by room-closed.
const (
	CloseReasonIdle    = "idle"
	CloseReasonExpired = "expired"
)

func errorMessage(text string) *Message {
	return &Message{Type: MessageTypeError, Message: text}
}

func viewerTotal(n int) *int {
	return &n
}
