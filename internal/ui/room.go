package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// RoomInfo is the box shown once a room exists.
type RoomInfo struct {
	Code      string
	ServerURL string
}

func NewRoomInfo(code, serverURL string) *RoomInfo {
	return &RoomInfo{Code: code, ServerURL: serverURL}
}

func (r *RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room Created!\n\n%s Room Code:  %s\n%s Relay:      %s\n\n%s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.Code),
		IconConnect, MutedStyle.Render(r.ServerURL),
		MutedStyle.Render("Run `camrelay watch "+r.Code+"` on a monitor"),
	)

	return boxStyle.Render(content)
}

func (r *RoomInfo) Render() {
	fmt.Println(r.View())
}
