package signaling

import (
	"fmt"
	"time"
)

// Registry is the table of active rooms keyed by code.
//
// It is not safe for concurrent use; the Hub serializes all access by owning
// the registry on its run goroutine.
type Registry struct {
	rooms map[string]*Room

	// tombstones holds codes whose streamer left recently, mapped to the
	// time the tombstone lapses. Tombstoned codes are not reissued.
	tombstones   map[string]time.Time
	tombstoneTTL time.Duration

	codes *CodeGenerator
}

func NewRegistry(codes *CodeGenerator, tombstoneTTL time.Duration) *Registry {
	if codes == nil {
		codes = NewCodeGenerator()
	}
	return &Registry{
		rooms:        make(map[string]*Room),
		tombstones:   make(map[string]time.Time),
		tombstoneTTL: tombstoneTTL,
		codes:        codes,
	}
}

// Create registers a new room streamed by streamer under a fresh code.
func (r *Registry) Create(streamer *Client, now time.Time) (*Room, error) {
	code, err := r.codes.Generate(func(code string) bool {
		return r.taken(code, now)
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	room := newRoom(code, streamer, now)
	r.rooms[code] = room
	return room, nil
}

// Get returns the room registered under code.
func (r *Registry) Get(code string) (*Room, error) {
	room, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Delete removes the room registered under code. Deleting an unknown code
// is a no-op.
func (r *Registry) Delete(code string) {
	delete(r.rooms, code)
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	return len(r.rooms)
}

// Viewers returns the total number of viewers across all rooms.
func (r *Registry) Viewers() int {
	n := 0
	for _, room := range r.rooms {
		n += room.ViewerCount()
	}
	return n
}

// CreatedBefore returns every room created strictly before cutoff.
func (r *Registry) CreatedBefore(cutoff time.Time) []*Room {
	var rooms []*Room
	for _, room := range r.rooms {
		if room.CreatedAt.Before(cutoff) {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

// Tombstone records that code's streamer left at now.
func (r *Registry) Tombstone(code string, now time.Time) {
	if r.tombstoneTTL <= 0 {
		return
	}
	r.tombstones[code] = now.Add(r.tombstoneTTL)
}

// Departed reports whether code belonged to a room whose streamer left
// within the tombstone window.
func (r *Registry) Departed(code string, now time.Time) bool {
	until, ok := r.tombstones[code]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(r.tombstones, code)
		return false
	}
	return true
}

// PurgeTombstones drops lapsed tombstones and returns how many were removed.
func (r *Registry) PurgeTombstones(now time.Time) int {
	n := 0
	for code, until := range r.tombstones {
		if !now.Before(until) {
			delete(r.tombstones, code)
			n++
		}
	}
	return n
}

func (r *Registry) taken(code string, now time.Time) bool {
	if _, ok := r.rooms[code]; ok {
		return true
	}
	return r.Departed(code, now)
}
