package signaling

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrStreamerGone       = errors.New("streamer disconnected")
	ErrTargetNotFound     = errors.New("signal target not found")
	ErrNotMember          = errors.New("sender is not a member of the room")
	ErrAlreadyStreamer    = errors.New("already streaming in this room")
	ErrCodeSpaceExhausted = errors.New("room code space exhausted")
	ErrHubStopped         = errors.New("hub stopped")
)

// clientMessage maps an error to the text sent in an "error" message.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, ErrStreamerGone):
		return "Streamer disconnected"
	case errors.Is(err, ErrAlreadyStreamer):
		return "You are already streaming in this room"
	default:
		return "Internal error"
	}
}
