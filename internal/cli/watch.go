package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/camrelay/internal/peer"
	"github.com/BioHazard786/camrelay/internal/signaling"
	"github.com/BioHazard786/camrelay/internal/ui"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "watch <code>",
		Aliases: []string{"w"},
		Short:   "Join a room as a monitor and watch the stream",
		Long: `Join a room by its 6-digit code and connect to the streamer.

Examples:
  camrelay watch 482913
  camrelay watch --server wss://relay.example/ws 482913`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !signaling.ValidCode(args[0]) {
				return WrapError("watch", ErrInvalidCode, args[0])
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			conn, err := NewConnectionContext(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runWatch(cmd.Context(), conn, args[0])
		},
	}
}

func runWatch(ctx context.Context, conn *ConnectionContext, code string) error {
	stop := ui.RunWaitingSpinner(fmt.Sprintf("Joining room %s...", code))
	defer stop()

	if err := conn.Client.JoinRoom(code); err != nil {
		return NewError("join room", err)
	}
	if _, err := awaitReply[string](ctx, conn, "join room", conn.Handler.RoomJoined); err != nil {
		return err
	}
	stop()
	ui.PrintSuccessf("Joined room %s", code)

	send := func(sig *peer.Signal) error {
		return conn.Client.SendSignal(code, signaling.TargetStreamer, sig)
	}
	sess, err := peer.NewSession(conn.Config.PeerConfiguration(), send, slog.Default())
	if err != nil {
		return NewError("create session", err)
	}
	defer sess.Close()

	dc, err := sess.CreateDataChannel("camrelay")
	if err != nil {
		return NewError("create session", err)
	}
	dc.OnOpen(func() {
		ui.PrintSuccess("Connected to streamer")
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		fmt.Println(ui.MutedStyle.Render(string(msg.Data)))
	})

	failed := make(chan struct{})
	var failOnce sync.Once
	sess.PeerConnection().OnConnectionStateChange(func(state pion.PeerConnectionState) {
		if state == pion.PeerConnectionStateFailed {
			failOnce.Do(func() { close(failed) })
		}
	})

	if err := sess.Offer(); err != nil {
		return NewError("send offer", err)
	}

	for {
		select {
		case <-ctx.Done():
			conn.Client.LeaveRoom(code)
			return nil

		case <-conn.Handler.Done():
			return NewError("watch", ErrServerGone)

		case <-failed:
			return WrapError("watch", ErrRoomClosed, "peer connection failed")

		case s := <-conn.Handler.Signal:
			sig, err := peer.ParseSignal(s.Payload)
			if err != nil {
				slog.Debug("ignoring signal", "from", s.From, "err", err)
				continue
			}
			if err := sess.Handle(sig); err != nil {
				slog.Warn("handle signal", "type", sig.Type, "err", err)
			}

		case <-conn.Handler.PhoneDisconnected:
			ui.PrintWarning("Streamer disconnected")
			return nil

		case msg := <-conn.Handler.Error:
			slog.Warn("server error", "message", msg)
		}
	}
}
