package signaling

import "github.com/BioHazard786/camrelay/internal/metrics"

// relay forwards an opaque signal from one member of a room to another.
//
// Signaling is best effort: either peer may vanish mid-negotiation, so an
// undeliverable signal is logged and dropped rather than reported back to
// the sender.
func (h *Hub) relay(from *Client, code, target string, payload any) {
	room, err := h.rooms.Get(code)
	if err == nil && !room.HasMember(from) {
		err = ErrNotMember
	}
	var dest *Client
	if err == nil {
		dest, err = room.Route(target)
	}
	if err != nil {
		h.metrics.Inc(metrics.SignalDropped)
		h.log.Debug("signal dropped", "room", code, "client", from.ID, "target", target, "err", err)
		return
	}

	h.metrics.Inc(metrics.SignalRelayed)
	h.emit(dest, &Message{
		Type:     MessageTypeSignal,
		RoomCode: room.Code,
		From:     from.ID,
		Signal:   payload,
	})
}
