package signaling

import (
	"time"

	"github.com/BioHazard786/camrelay/internal/metrics"
)

type closeReason int

const (
	closeStreamerGone closeReason = iota
	closeIdle
	closeExpired
)

func (r closeReason) String() string {
	switch r {
	case closeStreamerGone:
		return "streamer_gone"
	case closeIdle:
		return CloseReasonIdle
	case closeExpired:
		return CloseReasonExpired
	default:
		return "unknown"
	}
}

// graceCheck asks the run loop to re-examine a room that lost its last
// viewer. room pins the exact instance so a reissued code is never touched.
type graceCheck struct {
	code string
	room *Room
}

// scheduleGraceCheck arranges for the room to be re-examined after the grace
// period. Timers are never cancelled; graceExpired re-validates instead.
func (h *Hub) scheduleGraceCheck(room *Room) {
	h.schedule(graceCheck{code: room.Code, room: room})
}

func (h *Hub) afterGracePeriod(check graceCheck) {
	time.AfterFunc(h.cfg.GracePeriod, func() {
		select {
		case h.graceChecks <- check:
		case <-h.done:
		}
	})
}

func (h *Hub) graceExpired(check graceCheck) {
	room, err := h.rooms.Get(check.code)
	if err != nil || room != check.room {
		return
	}
	if room.ViewerCount() > 0 {
		return
	}
	h.closeRoom(room, closeIdle)
}

// sweep deletes every room older than the TTL, whatever its activity.
func (h *Hub) sweep() {
	now := h.now()
	for _, room := range h.rooms.CreatedBefore(now.Add(-h.cfg.RoomTTL)) {
		h.closeRoom(room, closeExpired)
	}
	if n := h.rooms.PurgeTombstones(now); n > 0 {
		h.log.Debug("purged tombstones", "count", n)
	}
}

// closeRoom tears a room down: viewers get phone-disconnected, a streamer
// that is still connected gets room-closed, and the room leaves the
// registry.
func (h *Hub) closeRoom(room *Room, reason closeReason) {
	for _, v := range room.viewerClients() {
		delete(v.joined, room.Code)
		h.emit(v, &Message{Type: MessageTypePhoneDisconnected, RoomCode: room.Code})
	}
	clear(room.Viewers)

	if s := room.Streamer; s != nil {
		delete(s.owned, room.Code)
		if reason != closeStreamerGone {
			h.emit(s, &Message{Type: MessageTypeRoomClosed, RoomCode: room.Code, Reason: reason.String()})
		}
		room.Streamer = nil
	}

	h.rooms.Delete(room.Code)

	switch reason {
	case closeStreamerGone:
		h.rooms.Tombstone(room.Code, h.now())
		h.metrics.Inc(metrics.RoomDeletedStreamerGone)
	case closeIdle:
		h.metrics.Inc(metrics.RoomDeletedIdle)
	case closeExpired:
		h.metrics.Inc(metrics.RoomDeletedExpired)
	}
	h.log.Info("room deleted", "room", room.Code, "reason", reason.String())
}
