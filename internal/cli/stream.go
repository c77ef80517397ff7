package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/camrelay/internal/peer"
	"github.com/BioHazard786/camrelay/internal/roomclient"
	"github.com/BioHazard786/camrelay/internal/ui"
)

// beaconInterval paces the frames a streamer sends to each connected monitor.
const beaconInterval = time.Second

func newStreamCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "stream",
		Aliases: []string{"s"},
		Short:   "Create a room and stream to every monitor that joins",
		Long: `Create a room on the signaling server and answer every monitor that joins.

Examples:
  camrelay stream
  camrelay stream --server wss://relay.example/ws --msgpack`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			conn, err := NewConnectionContext(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runStream(cmd.Context(), conn)
		},
	}
}

func runStream(ctx context.Context, conn *ConnectionContext) error {
	if err := conn.Client.CreateRoom(); err != nil {
		return NewError("create room", err)
	}
	code, err := awaitReply[string](ctx, conn, "create room", conn.Handler.RoomCreated)
	if err != nil {
		return err
	}
	ui.NewRoomInfo(code, conn.Config.ServerURL).Render()

	dash := ui.NewDashboard(code)
	dash.Start()
	defer dash.Stop()

	st := newStreamer(conn, code, dash, slog.Default())
	defer st.closeAll()

	for {
		select {
		case <-ctx.Done():
			conn.Client.LeaveRoom(code)
			return nil

		case <-dash.Done():
			conn.Client.LeaveRoom(code)
			return nil

		case <-conn.Handler.Done():
			return NewError("stream", ErrServerGone)

		case p := <-conn.Handler.MonitorJoined:
			dash.ViewerJoined(p.MonitorID, p.TotalViewers)

		case p := <-conn.Handler.MonitorLeft:
			st.drop(p.MonitorID)
			dash.ViewerLeft(p.MonitorID, p.TotalViewers)

		case s := <-conn.Handler.Signal:
			st.handle(s)

		case c := <-conn.Handler.RoomClosed:
			dash.RoomEnded(c.Reason)
			return WrapError("stream", ErrRoomClosed, c.Reason)

		case msg := <-conn.Handler.Error:
			slog.Warn("server error", "message", msg)
		}
	}
}

// streamer keeps one peer session per monitor.
type streamer struct {
	conn     *ConnectionContext
	code     string
	viewers  viewerUI
	log      *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	sessions map[string]*peer.Session
}

// viewerUI is the part of the dashboard the streamer reports to.
type viewerUI interface {
	ViewerState(id, state string)
}

func newStreamer(conn *ConnectionContext, code string, viewers viewerUI, logger *slog.Logger) *streamer {
	return &streamer{
		conn:     conn,
		code:     code,
		viewers:  viewers,
		log:      logger,
		interval: beaconInterval,
		sessions: make(map[string]*peer.Session),
	}
}

// handle applies a monitor's signal, creating its session on first contact.
// Candidates can overtake the offer, so any signal type may open a session.
func (s *streamer) handle(in roomclient.Signal) {
	sig, err := peer.ParseSignal(in.Payload)
	if err != nil {
		s.log.Debug("ignoring signal", "from", in.From, "err", err)
		return
	}

	sess, err := s.session(in.From)
	if err != nil {
		s.log.Error("create session", "monitor", in.From, "err", err)
		s.viewers.ViewerState(in.From, ui.StateFailed)
		return
	}
	if err := sess.Handle(sig); err != nil {
		s.log.Warn("handle signal", "monitor", in.From, "type", sig.Type, "err", err)
	}
}

func (s *streamer) session(monitorID string) (*peer.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[monitorID]; ok {
		return sess, nil
	}

	send := func(sig *peer.Signal) error {
		return s.conn.Client.SendSignal(s.code, monitorID, sig)
	}
	sess, err := peer.NewSession(s.conn.Config.PeerConfiguration(), send, s.log.With("monitor", monitorID))
	if err != nil {
		return nil, err
	}

	pc := sess.PeerConnection()
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		switch state {
		case pion.PeerConnectionStateConnected:
			s.viewers.ViewerState(monitorID, ui.StateConnected)
		case pion.PeerConnectionStateFailed:
			s.viewers.ViewerState(monitorID, ui.StateFailed)
		}
	})
	pc.OnDataChannel(func(dc *pion.DataChannel) {
		dc.OnOpen(func() {
			go s.beacon(dc)
		})
	})

	s.sessions[monitorID] = sess
	return sess, nil
}

// beacon sends a numbered frame marker until the channel stops accepting
// writes.
func (s *streamer) beacon(dc *pion.DataChannel) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for n := 1; ; n++ {
		if err := dc.SendText(fmt.Sprintf("frame %d from room %s", n, s.code)); err != nil {
			return
		}
		<-ticker.C
	}
}

func (s *streamer) drop(monitorID string) {
	s.mu.Lock()
	sess, ok := s.sessions[monitorID]
	delete(s.sessions, monitorID)
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
}

func (s *streamer) closeAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*peer.Session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
}
