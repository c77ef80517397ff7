package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestDashboardTracksViewers(t *testing.T) {
	m := newDashboardModel("482913", make(chan tea.Msg, 1))
	start := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return start }

	if view := m.View(); !strings.Contains(view, "482913") || !strings.Contains(view, "Waiting for monitors") {
		t.Fatalf("initial view=%q", view)
	}

	m.Update(viewerJoinedMsg{id: "aaaaaaaa-1111", total: 1})
	m.Update(viewerJoinedMsg{id: "bbbbbbbb-2222", total: 2})
	m.Update(viewerJoinedMsg{id: "aaaaaaaa-1111", total: 2})
	if len(m.viewers) != 2 {
		t.Fatalf("viewers=%d, want 2", len(m.viewers))
	}

	m.Update(viewerStateMsg{id: "bbbbbbbb-2222", state: StateConnected})
	view := m.View()
	if !strings.Contains(view, "2 watching") || !strings.Contains(view, "bbbbbbbb") || !strings.Contains(view, StateConnected) {
		t.Fatalf("view=%q", view)
	}
	if strings.Contains(view, "bbbbbbbb-2222") {
		t.Fatalf("monitor ids should be shortened: %q", view)
	}

	m.Update(viewerLeftMsg{id: "aaaaaaaa-1111", total: 1})
	if len(m.viewers) != 1 || m.viewers[0].id != "bbbbbbbb-2222" {
		t.Fatalf("viewers=%v", m.viewers)
	}
}

func TestDashboardRoomEndedQuits(t *testing.T) {
	m := newDashboardModel("000001", make(chan tea.Msg, 1))
	_, cmd := m.Update(roomEndedMsg{reason: "expired"})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("cmd did not quit")
	}
	if view := m.View(); !strings.Contains(view, "Room ended: expired") {
		t.Fatalf("view=%q", view)
	}
}

func TestDashboardQuitKey(t *testing.T) {
	m := newDashboardModel("000001", make(chan tea.Msg, 1))
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !m.quitting || m.View() != "" {
		t.Fatalf("q should quit and clear the view")
	}
}

func TestRoomInfoView(t *testing.T) {
	view := NewRoomInfo("012345", "ws://localhost:8080/ws").View()
	if !strings.Contains(view, "012345") || !strings.Contains(view, "camrelay watch 012345") {
		t.Fatalf("view=%q", view)
	}
}
