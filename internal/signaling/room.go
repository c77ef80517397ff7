package signaling

import "time"

// Viewer is a connection watching a room.
type Viewer struct {
	Client   *Client
	JoinedAt time.Time
}

// Room is one streamer and the viewers negotiating with it.
//
// Rooms are owned by the Registry and must only be touched from the hub
// goroutine.
type Room struct {
	// Code is the 6-digit identifier viewers use to join.
	Code string

	// Streamer is the connection that created the room. It is nil once the
	// streamer has gone, after which the room is never joinable.
	Streamer *Client

	// Viewers maps connection IDs to their membership record.
	Viewers map[string]*Viewer

	// CreatedAt is fixed at creation and drives the TTL sweep.
	CreatedAt time.Time
}

func newRoom(code string, streamer *Client, now time.Time) *Room {
	return &Room{
		Code:      code,
		Streamer:  streamer,
		Viewers:   make(map[string]*Viewer),
		CreatedAt: now,
	}
}

// Join adds c as a viewer and returns the resulting viewer count. added is
// false when c was already a viewer, in which case nothing changes.
func (r *Room) Join(c *Client, now time.Time) (count int, added bool, err error) {
	if r.Streamer == nil {
		return 0, false, ErrStreamerGone
	}
	if r.Streamer == c {
		return 0, false, ErrAlreadyStreamer
	}
	if _, ok := r.Viewers[c.ID]; ok {
		return len(r.Viewers), false, nil
	}
	r.Viewers[c.ID] = &Viewer{Client: c, JoinedAt: now}
	return len(r.Viewers), true, nil
}

// Leave removes c from the viewer set. ok is false if c was not a viewer.
func (r *Room) Leave(c *Client) (remaining int, ok bool) {
	v, found := r.Viewers[c.ID]
	if !found || v.Client != c {
		return len(r.Viewers), false
	}
	delete(r.Viewers, c.ID)
	return len(r.Viewers), true
}

func (r *Room) ViewerCount() int {
	return len(r.Viewers)
}

// HasMember reports whether c is the streamer or a viewer of the room.
func (r *Room) HasMember(c *Client) bool {
	if c == nil {
		return false
	}
	if r.Streamer == c {
		return true
	}
	v, ok := r.Viewers[c.ID]
	return ok && v.Client == c
}

// Route resolves a signal target to a connection in the room.
func (r *Room) Route(target string) (*Client, error) {
	if target == TargetStreamer {
		if r.Streamer == nil {
			return nil, ErrStreamerGone
		}
		return r.Streamer, nil
	}
	v, ok := r.Viewers[target]
	if !ok {
		return nil, ErrTargetNotFound
	}
	return v.Client, nil
}

func (r *Room) viewerClients() []*Client {
	clients := make([]*Client, 0, len(r.Viewers))
	for _, v := range r.Viewers {
		clients = append(clients, v.Client)
	}
	return clients
}
