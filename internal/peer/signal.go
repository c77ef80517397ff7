package peer

import (
	"encoding/json"
	"errors"
	"fmt"

	pion "github.com/pion/webrtc/v4"
)

// Signal kinds carried in a relayed payload.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

var ErrUnexpectedSignal = errors.New("unexpected signal type")

// Signal is the payload camrelay peers put in a relay message. Offers and
// answers carry SDP; trickled candidates carry Candidate. The shape matches
// what a browser gets from RTCSessionDescription and RTCIceCandidate.toJSON.
type Signal struct {
	Type      string                 `json:"type"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

// ParseSignal converts the opaque payload from a relay message into a
// Signal. The payload arrives as a generic map from either codec, so it is
// round-tripped through JSON.
func ParseSignal(payload any) (*Signal, error) {
	if payload == nil {
		return nil, fmt.Errorf("parse signal: %w", ErrUnexpectedSignal)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("parse signal: %w", err)
	}
	var sig Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("parse signal: %w", err)
	}
	switch sig.Type {
	case SignalOffer, SignalAnswer:
		if sig.SDP == "" {
			return nil, fmt.Errorf("parse signal: %s without sdp", sig.Type)
		}
	case SignalCandidate:
		if sig.Candidate == nil {
			return nil, fmt.Errorf("parse signal: candidate without body")
		}
	default:
		return nil, fmt.Errorf("parse signal %q: %w", sig.Type, ErrUnexpectedSignal)
	}
	return &sig, nil
}
