package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Monitor connection states shown in the dashboard.
const (
	StateSignaling = "signaling"
	StateConnected = "connected"
	StateFailed    = "failed"
)

// Dashboard is the live view of a streaming room: who is watching and how
// each peer connection is doing.
type Dashboard struct {
	program *tea.Program
	model   *dashboardModel
	updates chan tea.Msg
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

type viewerJoinedMsg struct {
	id    string
	total int
}

type viewerLeftMsg struct {
	id    string
	total int
}

type viewerStateMsg struct {
	id    string
	state string
}

type roomEndedMsg struct {
	reason string
}

type viewerRow struct {
	id       string
	state    string
	joinedAt time.Time
}

type dashboardModel struct {
	code     string
	viewers  []*viewerRow
	total    int
	spinner  spinner.Model
	updates  chan tea.Msg
	now      func() time.Time
	ended    string
	quitting bool
}

// NewDashboard prepares a dashboard for room code.
func NewDashboard(code string) *Dashboard {
	updates := make(chan tea.Msg, 64)
	return &Dashboard{
		model:   newDashboardModel(code, updates),
		updates: updates,
		done:    make(chan struct{}),
	}
}

func newDashboardModel(code string, updates chan tea.Msg) *dashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle
	return &dashboardModel{
		code:    code,
		spinner: s,
		updates: updates,
		now:     time.Now,
	}
}

// Start runs the UI in a goroutine. Done is closed when it exits, either
// because Stop was called or the user pressed q.
func (d *Dashboard) Start() {
	d.program = tea.NewProgram(d.model)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.once.Do(func() { close(d.done) })
		if _, err := d.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Done is closed once the UI has exited.
func (d *Dashboard) Done() <-chan struct{} {
	return d.done
}

func (d *Dashboard) push(msg tea.Msg) {
	select {
	case d.updates <- msg:
	default:
	}
}

func (d *Dashboard) ViewerJoined(id string, total int) {
	d.push(viewerJoinedMsg{id: id, total: total})
}

func (d *Dashboard) ViewerLeft(id string, total int) {
	d.push(viewerLeftMsg{id: id, total: total})
}

func (d *Dashboard) ViewerState(id, state string) {
	d.push(viewerStateMsg{id: id, state: state})
}

// RoomEnded shows why the room went away and stops the UI.
func (d *Dashboard) RoomEnded(reason string) {
	d.push(roomEndedMsg{reason: reason})
}

// Stop stops the UI
func (d *Dashboard) Stop() {
	if d.program != nil {
		d.program.Quit()
	}
	d.wg.Wait()
}

func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates())
}

func (m *dashboardModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case viewerJoinedMsg:
		if m.find(msg.id) == nil {
			m.viewers = append(m.viewers, &viewerRow{id: msg.id, state: StateSignaling, joinedAt: m.now()})
		}
		m.total = msg.total
		return m, m.listenForUpdates()

	case viewerLeftMsg:
		for i, v := range m.viewers {
			if v.id == msg.id {
				m.viewers = append(m.viewers[:i], m.viewers[i+1:]...)
				break
			}
		}
		m.total = msg.total
		return m, m.listenForUpdates()

	case viewerStateMsg:
		if v := m.find(msg.id); v != nil {
			v.state = msg.state
		}
		return m, m.listenForUpdates()

	case roomEndedMsg:
		m.ended = msg.reason
		return m, tea.Quit
	}

	return m, nil
}

func (m *dashboardModel) find(id string) *viewerRow {
	for _, v := range m.viewers {
		if v.id == id {
			return v
		}
	}
	return nil
}

func (m *dashboardModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s Streaming in room %s\n\n", IconCamera, BoldStyle.Foreground(Primary).Render(m.code))

	if m.ended != "" {
		fmt.Fprintf(&b, "%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render("Room ended: "+m.ended))
		return b.String()
	}

	if len(m.viewers) == 0 {
		fmt.Fprintf(&b, "%s Waiting for monitors...\n", m.spinner.View())
	} else {
		fmt.Fprintf(&b, "%s %d watching\n\n", IconMonitor, m.total)
		b.WriteString(m.viewerTable())
		b.WriteString("\n")
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to stop streaming"))
	return b.String()
}

func (m *dashboardModel) viewerTable() string {
	rows := make([][]string, 0, len(m.viewers))
	for i, v := range m.viewers {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			shortID(v.id),
			v.state,
			m.now().Sub(v.joinedAt).Truncate(time.Second).String(),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Monitor", "State", "Watching").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
