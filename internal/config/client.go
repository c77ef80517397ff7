package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/pion/webrtc/v4"
)

// DefaultServerURL is the signaling endpoint used when nothing else is set.
const DefaultServerURL = "ws://localhost:8080/ws"

// EnvServerURL overrides the signaling endpoint for the camrelay client.
const EnvServerURL = "CAMRELAY_SERVER"

// Client holds camrelay client configuration
type Client struct {
	// ServerURL is the websocket endpoint of the relay.
	ServerURL string

	// Msgpack asks the relay for the binary codec.
	Msgpack bool

	// ForceRelay restricts WebRTC to TURN candidates.
	ForceRelay bool

	ICE
}

// ClientOptions for loading config with CLI flag overrides
type ClientOptions struct {
	ServerURL  string
	Msgpack    bool
	ForceRelay bool
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// LoadClient reads client configuration: CLI flag > env > default.
func LoadClient(opts ClientOptions) (*Client, error) {
	return loadClient(envLookup(), opts)
}

func loadClient(lookup lookupFunc, opts ClientOptions) (*Client, error) {
	cfg := &Client{
		ServerURL:  resolve(lookup, opts.ServerURL, EnvServerURL, DefaultServerURL),
		Msgpack:    opts.Msgpack,
		ForceRelay: opts.ForceRelay,
		ICE:        loadICE(lookup, opts.STUNServer, opts.TURNServer, opts.TURNUser, opts.TURNPass),
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("server url %q: scheme must be ws or wss", cfg.ServerURL)
	}
	if err := cfg.ICE.validate(); err != nil {
		return nil, err
	}
	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

// PeerConfiguration builds the pion configuration for a new peer connection.
func (c *Client) PeerConfiguration() webrtc.Configuration {
	policy := webrtc.ICETransportPolicyAll
	if c.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}
	return webrtc.Configuration{
		ICEServers:         c.ICEServers(),
		ICETransportPolicy: policy,
	}
}
