package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/camrelay/internal/config"
	"github.com/BioHazard786/camrelay/internal/logging"
	"github.com/BioHazard786/camrelay/internal/metrics"
	"github.com/BioHazard786/camrelay/internal/server"
	"github.com/BioHazard786/camrelay/internal/signaling"
	"github.com/BioHazard786/camrelay/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "camrelay-server:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts config.ServerOptions

	cmd := &cobra.Command{
		Use:           "camrelay-server",
		Short:         "Signaling relay pairing one phone camera with any number of monitors",
		Version:       version.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Addr, "addr", "", "listen address (env ADDR, default :8080)")
	f.StringVar(&opts.AllowedOrigins, "allowed-origins", "", "comma separated browser origins; empty means same host, * means any (env ALLOWED_ORIGINS)")
	f.StringVar(&opts.RoomTTL, "room-ttl", "", "maximum room lifetime (env ROOM_TTL, default 1h)")
	f.StringVar(&opts.SweepInterval, "sweep-interval", "", "how often expired rooms are swept (env SWEEP_INTERVAL, default 30m)")
	f.StringVar(&opts.GracePeriod, "grace-period", "", "how long a room with no viewers is kept (env GRACE_PERIOD, default 30s)")
	f.StringVar(&opts.TombstoneTTL, "tombstone-ttl", "", "how long a departed streamer's code answers \"Streamer disconnected\"; 0 disables (env TOMBSTONE_TTL, default 10m)")
	f.StringVar(&opts.MaxMessageBytes, "max-message-bytes", "", "largest accepted websocket message (env MAX_MESSAGE_BYTES, default 65536)")
	f.StringVar(&opts.MessagesPerSecond, "messages-per-second", "", "per-connection inbound message rate; 0 disables (env MESSAGES_PER_SECOND, default 50)")
	f.StringVar(&opts.SendQueue, "send-queue", "", "outbound messages buffered per connection (env SEND_QUEUE, default 256)")
	f.StringVar(&opts.StaticDir, "static-dir", "", "serve a web client from this directory (env STATIC_DIR)")
	f.StringVar(&opts.ShutdownTimeout, "shutdown-timeout", "", "graceful shutdown limit (env SHUTDOWN_TIMEOUT, default 10s)")
	f.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL, default info)")
	f.StringVar(&opts.LogFormat, "log-format", "", "text or json (env LOG_FORMAT, default text)")
	f.StringVar(&opts.STUNServer, "stun", "", "STUN server advertised on /ice (env STUN_SERVER)")
	f.StringVar(&opts.TURNServer, "turn", "", "TURN server advertised on /ice (env TURN_SERVER)")
	f.StringVar(&opts.TURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	f.StringVar(&opts.TURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")

	return cmd
}

func run(parent context.Context, cfg *config.Server) error {
	logger, err := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := signaling.NewHub(cfg.Hub, logger, metrics.New())
	go hub.Run(hubCtx)

	srv := server.New(cfg, hub, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("camrelay server starting",
		"addr", cfg.Addr,
		"version", version.Version,
		"room_ttl", cfg.Hub.RoomTTL,
		"grace_period", cfg.Hub.GracePeriod,
		"allowed_origins", cfg.AllowedOrigins,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, server.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)

	// Stopping the hub closes every websocket with a close frame.
	stopHub()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}

	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
