package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/camrelay/internal/signaling"
)

// Server defaults not already owned by the signaling package.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Server environment variables.
const (
	EnvAddr              = "ADDR"
	EnvAllowedOrigins    = "ALLOWED_ORIGINS"
	EnvRoomTTL           = "ROOM_TTL"
	EnvSweepInterval     = "SWEEP_INTERVAL"
	EnvGracePeriod       = "GRACE_PERIOD"
	EnvTombstoneTTL      = "TOMBSTONE_TTL"
	EnvMaxMessageBytes   = "MAX_MESSAGE_BYTES"
	EnvMessagesPerSecond = "MESSAGES_PER_SECOND"
	EnvSendQueue         = "SEND_QUEUE"
	EnvStaticDir         = "STATIC_DIR"
	EnvShutdownTimeout   = "SHUTDOWN_TIMEOUT"
)

// ServerOptions carries raw flag values; an empty string means the flag was
// not given.
type ServerOptions struct {
	Addr              string
	AllowedOrigins    string
	RoomTTL           string
	SweepInterval     string
	GracePeriod       string
	TombstoneTTL      string
	MaxMessageBytes   string
	MessagesPerSecond string
	SendQueue         string
	StaticDir         string
	ShutdownTimeout   string
	LogLevel          string
	LogFormat         string

	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Server is the resolved relay server configuration.
type Server struct {
	Addr            string
	AllowedOrigins  []string
	StaticDir       string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string

	Hub signaling.Config
	ICE ICE
}

// LoadServer resolves the server configuration from flags, the process
// environment and defaults.
func LoadServer(opts ServerOptions) (*Server, error) {
	return loadServer(envLookup(), opts)
}

func loadServer(lookup lookupFunc, opts ServerOptions) (*Server, error) {
	cfg := &Server{
		Addr:      resolve(lookup, opts.Addr, EnvAddr, DefaultAddr),
		StaticDir: resolve(lookup, opts.StaticDir, EnvStaticDir, ""),
		LogLevel:  resolve(lookup, opts.LogLevel, EnvLogLevel, DefaultLogLevel),
		LogFormat: resolve(lookup, opts.LogFormat, EnvLogFormat, DefaultLogFormat),
		ICE:       loadICE(lookup, opts.STUNServer, opts.TURNServer, opts.TURNUser, opts.TURNPass),
	}
	cfg.AllowedOrigins = splitList(resolve(lookup, opts.AllowedOrigins, EnvAllowedOrigins, ""))

	var err error
	durations := []struct {
		flag, env string
		def       time.Duration
		dst       *time.Duration
	}{
		{opts.RoomTTL, EnvRoomTTL, signaling.DefaultRoomTTL, &cfg.Hub.RoomTTL},
		{opts.SweepInterval, EnvSweepInterval, signaling.DefaultSweepInterval, &cfg.Hub.SweepInterval},
		{opts.GracePeriod, EnvGracePeriod, signaling.DefaultGracePeriod, &cfg.Hub.GracePeriod},
		{opts.TombstoneTTL, EnvTombstoneTTL, signaling.DefaultTombstoneTTL, &cfg.Hub.TombstoneTTL},
		{opts.ShutdownTimeout, EnvShutdownTimeout, DefaultShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = resolveDuration(lookup, d.flag, d.env, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.Hub.MaxMessageBytes, err = resolveInt(lookup, opts.MaxMessageBytes, EnvMaxMessageBytes, signaling.DefaultMaxMessageBytes); err != nil {
		return nil, err
	}
	if cfg.Hub.MessagesPerSecond, err = resolveInt(lookup, opts.MessagesPerSecond, EnvMessagesPerSecond, signaling.DefaultMessagesPerSecond); err != nil {
		return nil, err
	}
	queue, err := resolveInt(lookup, opts.SendQueue, EnvSendQueue, signaling.DefaultSendQueue)
	if err != nil {
		return nil, err
	}
	cfg.Hub.SendQueue = int(queue)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the hub cannot run with. A zero tombstone TTL or
// message rate disables that feature and is accepted.
func (c *Server) Validate() error {
	var errs []error
	positive := []struct {
		name string
		ok   bool
	}{
		{EnvRoomTTL, c.Hub.RoomTTL > 0},
		{EnvSweepInterval, c.Hub.SweepInterval > 0},
		{EnvGracePeriod, c.Hub.GracePeriod > 0},
		{EnvMaxMessageBytes, c.Hub.MaxMessageBytes > 0},
		{EnvSendQueue, c.Hub.SendQueue > 0},
		{EnvShutdownTimeout, c.ShutdownTimeout > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, fmt.Errorf("%s must be positive", p.name))
		}
	}
	if c.Hub.TombstoneTTL < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvTombstoneTTL))
	}
	if c.Hub.MessagesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvMessagesPerSecond))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%s must be text or json, got %q", EnvLogFormat, c.LogFormat))
	}
	if err := c.ICE.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
