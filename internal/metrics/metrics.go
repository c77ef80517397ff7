package metrics

import "sync"

// Event names counted by the signaling hub and transport.
const (
	RoomCreated             = "room_created"
	RoomDeletedStreamerGone = "room_deleted_streamer_gone"
	RoomDeletedIdle         = "room_deleted_idle"
	RoomDeletedExpired      = "room_deleted_expired"
	ViewerJoined            = "viewer_joined"
	ViewerLeft              = "viewer_left"
	JoinRejected            = "join_rejected"
	SignalRelayed           = "signal_relayed"
	SignalDropped           = "signal_dropped"
	RateLimited             = "rate_limited"
	SendQueueFull           = "send_queue_full"
	DecodeError             = "decode_error"
	ClientConnected         = "client_connected"
	ClientDisconnected      = "client_disconnected"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A nil *Metrics is valid and discards everything.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
