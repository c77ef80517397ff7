// Package config resolves settings for the relay server and the camrelay
// client.
//
// Every value is resolved with the same priority:
//  1. CLI flags (passed via options) - highest priority
//  2. Environment variables
//  3. Hardcoded defaults - lowest priority
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// Default ICE configuration.
const (
	DefaultSTUN      = "stun:stun.l.google.com:19302"
	DefaultTURNPort  = 3478
	DefaultTURNSPort = 5349
)

// Environment variable names shared by both binaries.
const (
	EnvSTUNServer = "STUN_SERVER"
	EnvTURNServer = "TURN_SERVER"
	EnvTURNUser   = "TURN_USERNAME"
	EnvTURNPass   = "TURN_PASSWORD"
	EnvLogLevel   = "LOG_LEVEL"
	EnvLogFormat  = "LOG_FORMAT"
)

// lookupFunc matches os.LookupEnv; tests pass a map-backed one.
type lookupFunc func(string) (string, bool)

// resolve returns flag if set, then the env var, then def.
func resolve(lookup lookupFunc, flag, env, def string) string {
	if v := strings.TrimSpace(flag); v != "" {
		return v
	}
	if v, ok := lookup(env); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func resolveDuration(lookup lookupFunc, flag, env string, def time.Duration) (time.Duration, error) {
	raw := resolve(lookup, flag, env, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", env, raw, err)
	}
	return d, nil
}

func resolveInt(lookup lookupFunc, flag, env string, def int64) (int64, error) {
	raw := resolve(lookup, flag, env, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", env, raw, err)
	}
	return n, nil
}

// ICE holds the STUN/TURN servers handed to WebRTC peers.
type ICE struct {
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

func loadICE(lookup lookupFunc, stun, turn, user, pass string) ICE {
	return ICE{
		STUNServer: resolve(lookup, stun, EnvSTUNServer, DefaultSTUN),
		TURNServer: resolve(lookup, turn, EnvTURNServer, ""),
		TURNUser:   resolve(lookup, user, EnvTURNUser, ""),
		TURNPass:   resolve(lookup, pass, EnvTURNPass, ""),
	}
}

// GetSTUNServers returns STUN server URLs as strings
func (c ICE) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. A bare host is
// expanded to udp, tcp and tls variants; a full turn: or turns: URL is used
// as is.
func (c ICE) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.HasPrefix(c.TURNServer, "turn:") || strings.HasPrefix(c.TURNServer, "turns:") {
		return []string{c.TURNServer}
	}
	return []string{
		fmt.Sprintf("turn:%s:%d?transport=udp", c.TURNServer, DefaultTURNPort),
		fmt.Sprintf("turn:%s:%d?transport=tcp", c.TURNServer, DefaultTURNPort),
		fmt.Sprintf("turns:%s:%d?transport=tcp", c.TURNServer, DefaultTURNSPort),
	}
}

// ICEServers converts the configuration into pion ICE servers.
func (c ICE) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if urls := c.GetSTUNServers(); len(urls) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: urls})
	}
	if urls := c.GetTURNServers(); len(urls) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:           urls,
			Username:       c.TURNUser,
			Credential:     c.TURNPass,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers
}

func (c ICE) validate() error {
	if c.TURNServer != "" && (c.TURNUser == "" || c.TURNPass == "") {
		return fmt.Errorf("turn server %q needs %s and %s", c.TURNServer, EnvTURNUser, EnvTURNPass)
	}
	return nil
}

func envLookup() lookupFunc {
	return os.LookupEnv
}
