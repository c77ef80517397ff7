// Package peer drives one WebRTC peer connection through the relay's
// offer/answer exchange.
package peer

import (
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"
)

// SendFunc delivers a signal to the remote peer through the relay.
type SendFunc func(sig *Signal) error

// Session owns a peer connection to a single remote endpoint.
//
// Candidates that arrive before the remote description are held back and
// applied once it is set.
type Session struct {
	pc   *pion.PeerConnection
	send SendFunc
	log  *slog.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []pion.ICECandidateInit
}

// NewSession creates a peer connection from cfg. Local candidates are
// trickled through send as they are gathered.
func NewSession(cfg pion.Configuration, send SendFunc, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pion.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	s := &Session{pc: pc, send: send, log: logger}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := s.send(&Signal{Type: SignalCandidate, Candidate: &init}); err != nil {
			s.log.Debug("send ice candidate", "err", err)
		}
	})
	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		s.log.Debug("ice connection state", "state", state.String())
	})
	return s, nil
}

// PeerConnection exposes the underlying connection for data channel and
// state callbacks.
func (s *Session) PeerConnection() *pion.PeerConnection {
	return s.pc
}

// CreateDataChannel opens an ordered data channel.
func (s *Session) CreateDataChannel(label string) (*pion.DataChannel, error) {
	ordered := true
	dc, err := s.pc.CreateDataChannel(label, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return dc, nil
}

// Offer creates a local offer and sends it.
func (s *Session) Offer() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return s.send(&Signal{Type: SignalOffer, SDP: s.pc.LocalDescription().SDP})
}

// Handle applies a signal from the remote peer. An offer is answered.
func (s *Session) Handle(sig *Signal) error {
	switch sig.Type {
	case SignalOffer:
		if err := s.setRemote(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sig.SDP}); err != nil {
			return err
		}
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		return s.send(&Signal{Type: SignalAnswer, SDP: s.pc.LocalDescription().SDP})

	case SignalAnswer:
		return s.setRemote(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: sig.SDP})

	case SignalCandidate:
		s.mu.Lock()
		if !s.remoteSet {
			s.pending = append(s.pending, *sig.Candidate)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		if err := s.pc.AddICECandidate(*sig.Candidate); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("handle signal %q: %w", sig.Type, ErrUnexpectedSignal)
	}
}

func (s *Session) setRemote(desc pion.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	s.mu.Lock()
	s.remoteSet = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
	}
	return nil
}

// Close tears the peer connection down.
func (s *Session) Close() error {
	return s.pc.Close()
}
