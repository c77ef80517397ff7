package signaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/camrelay/internal/metrics"
)

type testHub struct {
	*Hub
	clock  time.Time
	checks []graceCheck
}

func newTestHub(t *testing.T, cfg Config) *testHub {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	th := &testHub{
		Hub:   NewHub(cfg, log, metrics.New()),
		clock: time.Unix(1_700_000_000, 0),
	}
	th.now = func() time.Time { return th.clock }
	th.schedule = func(c graceCheck) { th.checks = append(th.checks, c) }
	return th
}

func (th *testHub) advance(d time.Duration) {
	th.clock = th.clock.Add(d)
}

func (th *testHub) connect(id string) *Client {
	c := newClient(id, 16)
	th.register(c)
	return c
}

func (th *testHub) send(c *Client, msg *Message) {
	msg.client = c
	th.handle(msg)
}

func (th *testHub) fireGraceChecks() {
	checks := th.checks
	th.checks = nil
	for _, c := range checks {
		th.graceExpired(c)
	}
}

// createRoom runs create-room for c and returns the new code.
func (th *testHub) createRoom(t *testing.T, c *Client) string {
	t.Helper()
	th.send(c, &Message{Type: MessageTypeCreateRoom})
	msg := recv(t, c)
	if msg.Type != MessageTypeRoomCreated || !ValidCode(msg.RoomCode) {
		t.Fatalf("got %+v, want room-created", msg)
	}
	return msg.RoomCode
}

// joinRoom joins c to code and drains the streamer's monitor-joined.
func (th *testHub) joinRoom(t *testing.T, c, streamer *Client, code string) {
	t.Helper()
	th.send(c, &Message{Type: MessageTypeJoinRoom, RoomCode: code})
	if msg := recv(t, c); msg.Type != MessageTypeRoomJoined || msg.RoomCode != code {
		t.Fatalf("got %+v, want room-joined", msg)
	}
	if msg := recv(t, streamer); msg.Type != MessageTypeMonitorJoined || msg.MonitorID != c.ID {
		t.Fatalf("got %+v, want monitor-joined for %s", msg, c.ID)
	}
}

func recv(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		if !ok {
			t.Fatalf("client %s: send queue closed", c.ID)
		}
		return msg
	default:
		t.Fatalf("client %s: no message queued", c.ID)
		return nil
	}
}

func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		if ok {
			t.Fatalf("client %s: unexpected message %+v", c.ID, msg)
		}
	default:
	}
}

func expectError(t *testing.T, c *Client, text string) {
	t.Helper()
	msg := recv(t, c)
	if msg.Type != MessageTypeError || msg.Message != text {
		t.Fatalf("got %+v, want error %q", msg, text)
	}
}

func TestSignalingScenario(t *testing.T) {
	th := newTestHub(t, Config{TombstoneTTL: DefaultTombstoneTTL})
	phone := th.connect("phone-conn")
	monitor := th.connect("monitor-conn")

	code := th.createRoom(t, phone)

	th.send(monitor, &Message{Type: MessageTypeJoinRoom, RoomCode: code})
	if msg := recv(t, monitor); msg.Type != MessageTypeRoomJoined || msg.RoomCode != code {
		t.Fatalf("monitor got %+v, want room-joined", msg)
	}
	joined := recv(t, phone)
	if joined.Type != MessageTypeMonitorJoined || joined.MonitorID != monitor.ID || joined.RoomCode != code {
		t.Fatalf("phone got %+v, want monitor-joined", joined)
	}
	if joined.TotalViewers == nil || *joined.TotalViewers != 1 {
		t.Fatalf("totalViewers=%v, want 1", joined.TotalViewers)
	}

	offer := map[string]any{"type": "offer"}
	th.send(monitor, &Message{Type: MessageTypeSignal, RoomCode: code, Target: TargetStreamer, Signal: offer})
	sig := recv(t, phone)
	if sig.Type != MessageTypeSignal || sig.From != monitor.ID {
		t.Fatalf("phone got %+v, want signal from monitor", sig)
	}
	if got, ok := sig.Signal.(map[string]any); !ok || got["type"] != "offer" {
		t.Fatalf("signal payload=%v, want offer passed through", sig.Signal)
	}

	th.unregister(phone)
	if msg := recv(t, monitor); msg.Type != MessageTypePhoneDisconnected || msg.RoomCode != code {
		t.Fatalf("monitor got %+v, want phone-disconnected", msg)
	}
	if _, err := th.rooms.Get(code); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("room still registered: %v", err)
	}

	late := th.connect("late")
	th.send(late, &Message{Type: MessageTypeJoinRoom, RoomCode: code})
	expectError(t, late, "Streamer disconnected")
}

func TestJoinUnknownRoom(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	code := th.createRoom(t, streamer)
	before := th.stats()

	viewer := th.connect("v")
	missing := "999999"
	if code == missing {
		missing = "999998"
	}
	th.send(viewer, &Message{Type: MessageTypeJoinRoom, RoomCode: missing})
	expectError(t, viewer, "Room not found")
	expectNone(t, streamer)

	if after := th.stats(); after.Rooms != before.Rooms || after.Viewers != before.Viewers {
		t.Fatalf("stats changed: before=%+v after=%+v", before, after)
	}
	if len(viewer.joined) != 0 {
		t.Fatalf("viewer membership mutated: %v", viewer.joined)
	}
	if got := th.metrics.Get(metrics.JoinRejected); got != 1 {
		t.Fatalf("join_rejected=%d, want 1", got)
	}
}

func TestJoinAfterStreamerGoneWithoutTombstones(t *testing.T) {
	th := newTestHub(t, Config{TombstoneTTL: 0})
	streamer := th.connect("s")
	code := th.createRoom(t, streamer)
	th.unregister(streamer)

	viewer := th.connect("v")
	th.send(viewer, &Message{Type: MessageTypeJoinRoom, RoomCode: code})
	expectError(t, viewer, "Room not found")
}

func TestTombstoneLapses(t *testing.T) {
	th := newTestHub(t, Config{TombstoneTTL: time.Minute})
	streamer := th.connect("s")
	code := th.createRoom(t, streamer)
	th.unregister(streamer)

	viewer := th.connect("v")
	th.send(viewer, &Message{Type: MessageTypeJoinRoom, RoomCode: code})
	expectError(t, viewer, "Streamer disconnected")

	th.advance(2 * time.Minute)
	th.send(viewer, &Message{Type: MessageTypeJoinRoom, RoomCode: code})
	expectError(t, viewer, "Room not found")
}

func TestStreamerCannotJoinOwnRoom(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	code := th.createRoom(t, streamer)

	th.send(streamer, &Message{Type: MessageTypeJoinRoom, RoomCode: code})
	expectError(t, streamer, "You are already streaming in this room")
	if room, _ := th.rooms.Get(code); room.ViewerCount() != 0 {
		t.Fatalf("viewers=%d, want 0", room.ViewerCount())
	}
}

func TestViewerCountAccounting(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	code := th.createRoom(t, streamer)
	room, _ := th.rooms.Get(code)

	viewers := make([]*Client, 5)
	for i := range viewers {
		viewers[i] = th.connect(fmt.Sprintf("v%d", i))
		th.joinRoom(t, viewers[i], streamer, code)
		if room.ViewerCount() != i+1 {
			t.Fatalf("after join %d: viewers=%d", i, room.ViewerCount())
		}
	}

	// Rejoining is idempotent and does not notify the streamer.
	th.send(viewers[0], &Message{Type: MessageTypeJoinRoom, RoomCode: code})
	if msg := recv(t, viewers[0]); msg.Type != MessageTypeRoomJoined {
		t.Fatalf("got %+v, want room-joined", msg)
	}
	expectNone(t, streamer)
	if room.ViewerCount() != 5 {
		t.Fatalf("viewers=%d after rejoin, want 5", room.ViewerCount())
	}

	// Explicit leave.
	th.send(viewers[1], &Message{Type: MessageTypeLeaveRoom, RoomCode: code})
	left := recv(t, streamer)
	if left.Type != MessageTypeMonitorLeft || left.MonitorID != viewers[1].ID || *left.TotalViewers != 4 {
		t.Fatalf("got %+v, want monitor-left with 4 viewers", left)
	}

	// Leaving twice is a no-op.
	th.send(viewers[1], &Message{Type: MessageTypeLeaveRoom, RoomCode: code})
	expectNone(t, streamer)

	// Implicit leave via disconnect.
	th.unregister(viewers[2])
	left = recv(t, streamer)
	if left.Type != MessageTypeMonitorLeft || *left.TotalViewers != 3 {
		t.Fatalf("got %+v, want monitor-left with 3 viewers", left)
	}
	if room.ViewerCount() != 3 {
		t.Fatalf("viewers=%d, want 3", room.ViewerCount())
	}
	if got := th.stats().Viewers; got != 3 {
		t.Fatalf("stats viewers=%d, want 3", got)
	}
}

func TestMonitorLeftReportsZeroViewers(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	viewer := th.connect("v")
	code := th.createRoom(t, streamer)
	th.joinRoom(t, viewer, streamer, code)

	th.send(viewer, &Message{Type: MessageTypeLeaveRoom, RoomCode: code})
	left := recv(t, streamer)
	if left.TotalViewers == nil || *left.TotalViewers != 0 {
		t.Fatalf("totalViewers=%v, want explicit 0", left.TotalViewers)
	}
}

func TestStreamerDisconnectNotifiesEachViewerOnce(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	code := th.createRoom(t, streamer)

	viewers := []*Client{th.connect("a"), th.connect("b"), th.connect("c")}
	for _, v := range viewers {
		th.joinRoom(t, v, streamer, code)
	}
	bystander := th.connect("x")

	th.unregister(streamer)

	for _, v := range viewers {
		if msg := recv(t, v); msg.Type != MessageTypePhoneDisconnected {
			t.Fatalf("viewer %s got %+v, want phone-disconnected", v.ID, msg)
		}
		expectNone(t, v)
		if len(v.joined) != 0 {
			t.Fatalf("viewer %s still tracks rooms: %v", v.ID, v.joined)
		}
	}
	expectNone(t, bystander)

	if _, err := th.rooms.Get(code); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("err=%v, want %v", err, ErrRoomNotFound)
	}
	if len(th.checks) != 0 {
		t.Fatalf("streamer teardown must not schedule grace checks")
	}
	if got := th.metrics.Get(metrics.RoomDeletedStreamerGone); got != 1 {
		t.Fatalf("room_deleted_streamer_gone=%d, want 1", got)
	}

	// The streamer's queue is closed once it is unregistered.
	if _, ok := <-streamer.Send; ok {
		t.Fatalf("expected streamer send queue to be closed")
	}
}

func TestStreamerLeaveRoomClosesIt(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	viewer := th.connect("v")
	code := th.createRoom(t, streamer)
	th.joinRoom(t, viewer, streamer, code)

	th.send(streamer, &Message{Type: MessageTypeLeaveRoom, RoomCode: code})
	if msg := recv(t, viewer); msg.Type != MessageTypePhoneDisconnected {
		t.Fatalf("got %+v, want phone-disconnected", msg)
	}
	expectNone(t, streamer)
	if len(streamer.owned) != 0 {
		t.Fatalf("streamer still owns %v", streamer.owned)
	}

	// The connection stays usable.
	th.createRoom(t, streamer)
}

func TestCreateRoomTwice(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	first := th.createRoom(t, streamer)
	second := th.createRoom(t, streamer)
	if first == second {
		t.Fatalf("codes must differ, both %q", first)
	}
	if th.rooms.Len() != 2 || len(streamer.owned) != 2 {
		t.Fatalf("rooms=%d owned=%d, want 2 and 2", th.rooms.Len(), len(streamer.owned))
	}

	th.unregister(streamer)
	if th.rooms.Len() != 0 {
		t.Fatalf("rooms=%d after disconnect, want 0", th.rooms.Len())
	}
}

func TestRelayToViewer(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	a := th.connect("a")
	b := th.connect("b")
	code := th.createRoom(t, streamer)
	th.joinRoom(t, a, streamer, code)
	th.joinRoom(t, b, streamer, code)

	answer := map[string]any{"type": "answer", "sdp": "v=0"}
	th.send(streamer, &Message{Type: MessageTypeSignal, RoomCode: code, Target: b.ID, Signal: answer})

	msg := recv(t, b)
	if msg.Type != MessageTypeSignal || msg.From != streamer.ID || msg.RoomCode != code {
		t.Fatalf("got %+v, want signal from streamer", msg)
	}
	expectNone(t, a)
	expectNone(t, streamer)
}

func TestRelayDropsUndeliverableSignals(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	viewer := th.connect("v")
	outsider := th.connect("o")
	code := th.createRoom(t, streamer)
	th.joinRoom(t, viewer, streamer, code)

	cases := []struct {
		name string
		from *Client
		msg  *Message
	}{
		{"unknown target", streamer, &Message{RoomCode: code, Target: "nobody"}},
		{"unknown room", viewer, &Message{RoomCode: "000000", Target: TargetStreamer}},
		{"non member", outsider, &Message{RoomCode: code, Target: TargetStreamer}},
		{"empty target", viewer, &Message{RoomCode: code}},
	}
	for _, tc := range cases {
		tc.msg.Type = MessageTypeSignal
		tc.msg.Signal = "candidate"
		th.send(tc.from, tc.msg)
		for _, c := range []*Client{streamer, viewer, outsider} {
			select {
			case got := <-c.Send:
				t.Fatalf("%s: client %s unexpectedly got %+v", tc.name, c.ID, got)
			default:
			}
		}
	}
	if got := th.metrics.Get(metrics.SignalDropped); got != uint64(len(cases)) {
		t.Fatalf("signal_dropped=%d, want %d", got, len(cases))
	}
}

func TestGraceDeletesEmptyRoom(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	viewer := th.connect("v")
	code := th.createRoom(t, streamer)
	th.joinRoom(t, viewer, streamer, code)

	th.unregister(viewer)
	recv(t, streamer) // monitor-left
	if len(th.checks) != 1 {
		t.Fatalf("grace checks=%d, want 1", len(th.checks))
	}

	th.fireGraceChecks()
	if _, err := th.rooms.Get(code); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("room should be deleted after the grace period: %v", err)
	}
	msg := recv(t, streamer)
	if msg.Type != MessageTypeRoomClosed || msg.Reason != CloseReasonIdle || msg.RoomCode != code {
		t.Fatalf("got %+v, want room-closed idle", msg)
	}
	if len(streamer.owned) != 0 {
		t.Fatalf("streamer still owns %v", streamer.owned)
	}
}

func TestGraceSparedByRejoin(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := th.connect("s")
	first := th.connect("a")
	second := th.connect("b")
	code := th.createRoom(t, streamer)
	th.joinRoom(t, first, streamer, code)

	th.send(first, &Message{Type: MessageTypeLeaveRoom, RoomCode: code})
	recv(t, streamer) // monitor-left
	th.joinRoom(t, second, streamer, code)

	th.fireGraceChecks()
	if _, err := th.rooms.Get(code); err != nil {
		t.Fatalf("room must survive a grace check once a viewer rejoined: %v", err)
	}
	expectNone(t, streamer)
	expectNone(t, second)
}

func TestGraceIgnoresReissuedCode(t *testing.T) {
	th := newTestHub(t, Config{TombstoneTTL: 0})
	th.rooms = NewRegistry(&CodeGenerator{rand: drawBytes(5, 5)}, 0)

	streamer := th.connect("s")
	viewer := th.connect("v")
	code := th.createRoom(t, streamer)
	th.joinRoom(t, viewer, streamer, code)
	th.unregister(viewer)
	recv(t, streamer)

	// The original room goes away and a new one takes the same code.
	th.unregister(streamer)
	other := th.connect("s2")
	if got := th.createRoom(t, other); got != code {
		t.Fatalf("code=%q, want reissued %q", got, code)
	}

	th.fireGraceChecks()
	if _, err := th.rooms.Get(code); err != nil {
		t.Fatalf("stale grace check deleted the new room: %v", err)
	}
}

func TestSweepRemovesExpiredRooms(t *testing.T) {
	th := newTestHub(t, Config{RoomTTL: time.Hour})
	oldStreamer := th.connect("old")
	viewers := []*Client{th.connect("a"), th.connect("b")}
	oldCode := th.createRoom(t, oldStreamer)
	for _, v := range viewers {
		th.joinRoom(t, v, oldStreamer, oldCode)
	}

	th.advance(45 * time.Minute)
	youngStreamer := th.connect("young")
	youngCode := th.createRoom(t, youngStreamer)

	th.advance(16 * time.Minute)
	th.sweep()

	if _, err := th.rooms.Get(oldCode); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expired room survived the sweep: %v", err)
	}
	for _, v := range viewers {
		if msg := recv(t, v); msg.Type != MessageTypePhoneDisconnected {
			t.Fatalf("viewer %s got %+v, want phone-disconnected", v.ID, msg)
		}
		expectNone(t, v)
	}
	if msg := recv(t, oldStreamer); msg.Type != MessageTypeRoomClosed || msg.Reason != CloseReasonExpired {
		t.Fatalf("got %+v, want room-closed expired", msg)
	}

	if _, err := th.rooms.Get(youngCode); err != nil {
		t.Fatalf("young room was swept: %v", err)
	}
	expectNone(t, youngStreamer)
}

func TestUnknownAndMalformedMessages(t *testing.T) {
	th := newTestHub(t, Config{})
	c := th.connect("c")

	th.send(c, &Message{Type: "dance"})
	expectError(t, c, "Unknown message type: dance")

	th.send(c, &Message{Type: messageTypeMalformed})
	expectError(t, c, "Malformed message")
}

func TestFullSendQueueDoesNotBlock(t *testing.T) {
	th := newTestHub(t, Config{})
	streamer := newClient("s", 1)
	th.register(streamer)
	code := th.createRoom(t, streamer)

	for i := 0; i < 3; i++ {
		v := th.connect(fmt.Sprintf("v%d", i))
		th.send(v, &Message{Type: MessageTypeJoinRoom, RoomCode: code})
		recv(t, v)
	}

	if got := th.metrics.Get(metrics.SendQueueFull); got != 2 {
		t.Fatalf("send_queue_full=%d, want 2", got)
	}
	if room, _ := th.rooms.Get(code); room.ViewerCount() != 3 {
		t.Fatalf("viewers=%d, want 3", room.ViewerCount())
	}
}

func TestMessagesFromUnregisteredClientAreIgnored(t *testing.T) {
	th := newTestHub(t, Config{})
	c := th.connect("c")
	th.unregister(c)
	th.unregister(c) // second unregister must not double-close

	th.send(c, &Message{Type: MessageTypeCreateRoom})
	if th.rooms.Len() != 0 {
		t.Fatalf("rooms=%d, want 0", th.rooms.Len())
	}
}

func TestRunCreatesDistinctCodesConcurrently(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHub(Config{}, log, metrics.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	const n = 64
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = newClient(fmt.Sprintf("c%d", i), 4)
		if !h.RegisterClient(clients[i]) {
			t.Fatalf("hub stopped early")
		}
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			h.dispatch(&Message{Type: MessageTypeCreateRoom, client: c})
		}(c)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, c := range clients {
		select {
		case msg := <-c.Send:
			if seen[msg.RoomCode] {
				t.Fatalf("duplicate code %q", msg.RoomCode)
			}
			seen[msg.RoomCode] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("client %s: no room-created", c.ID)
		}
	}

	stats, err := h.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Rooms != n || stats.Clients != n {
		t.Fatalf("stats=%+v, want %d rooms and clients", stats, n)
	}

	cancel()
	<-h.Done()
	for _, c := range clients {
		if _, ok := <-c.Send; ok {
			t.Fatalf("client %s: send queue not closed on shutdown", c.ID)
		}
	}
	if _, err := h.Stats(context.Background()); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("err=%v, want %v", err, ErrHubStopped)
	}
}

func TestRunGracePeriodTimer(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHub(Config{GracePeriod: 20 * time.Millisecond}, log, metrics.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	streamer := newClient("s", 8)
	viewer := newClient("v", 8)
	h.RegisterClient(streamer)
	h.RegisterClient(viewer)

	h.dispatch(&Message{Type: MessageTypeCreateRoom, client: streamer})
	code := (<-streamer.Send).RoomCode
	h.dispatch(&Message{Type: MessageTypeJoinRoom, RoomCode: code, client: viewer})
	<-viewer.Send
	<-streamer.Send
	h.dispatch(&Message{Type: MessageTypeLeaveRoom, RoomCode: code, client: viewer})
	<-streamer.Send

	select {
	case msg := <-streamer.Send:
		if msg.Type != MessageTypeRoomClosed || msg.Reason != CloseReasonIdle {
			t.Fatalf("got %+v, want room-closed idle", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("grace timer never fired")
	}

	stats, err := h.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Rooms != 0 {
		t.Fatalf("rooms=%d, want 0", stats.Rooms)
	}
}
