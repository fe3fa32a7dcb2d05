package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/watchparty/internal/client"
	"github.com/BioHazard786/watchparty/internal/session"
)

// SnapshotMsg carries a new session snapshot into the status view.
type SnapshotMsg session.Snapshot

// LinkMsg carries a relay link status change.
type LinkMsg struct {
	Status  client.Status
	Attempt int
	Delay   time.Duration
	Err     error
}

// Actions are the key bindings the view can trigger. Nil actions are
// not offered.
type Actions struct {
	Retry       func()
	ToggleShare func()
}

// StatusModel is the live view of a watch party from one participant.
type StatusModel struct {
	roomID  string
	self    string
	role    session.Role
	actions Actions

	link    LinkMsg
	snap    session.Snapshot
	spinner spinner.Model

	quitting bool
}

func NewStatusModel(roomID, self string, role session.Role, actions Actions) StatusModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return StatusModel{
		roomID:  roomID,
		self:    self,
		role:    role,
		actions: actions,
		link:    LinkMsg{Status: client.StatusConnecting},
		snap:    session.Snapshot{Role: role},
		spinner: s,
	}
}

func (m StatusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.actions.Retry != nil {
				m.actions.Retry()
			}
		case "s":
			if m.actions.ToggleShare != nil {
				m.actions.ToggleShare()
			}
		}
		return m, nil

	case SnapshotMsg:
		m.snap = session.Snapshot(msg)
		return m, nil

	case LinkMsg:
		m.link = msg
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m StatusModel) View() string {
	if m.quitting {
		return MutedStyle.Render("Leaving room "+m.roomID) + "\n"
	}

	var b strings.Builder

	icon := IconViewer
	if m.role == session.RoleHost {
		icon = IconHost
	}
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Room %s", IconRoom, m.roomID)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s as %s\n", icon, BoldStyle.Render(m.self), m.role)
	b.WriteString(m.linkLine())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Participants: %d\n", m.snap.Participants)

	if m.role == session.RoleHost {
		if m.snap.Sharing {
			fmt.Fprintf(&b, "%s %s\n", IconLive, SuccessStyle.Render("Sharing"))
		} else {
			b.WriteString(MutedStyle.Render("Not sharing") + "\n")
		}
	} else {
		switch {
		case m.snap.RemoteStream != nil:
			fmt.Fprintf(&b, "%s Watching %s\n", IconLive, SuccessStyle.Render(m.snap.HostID))
		case m.snap.HostID != "":
			fmt.Fprintf(&b, "Host: %s\n", m.snap.HostID)
		default:
			fmt.Fprintf(&b, "%s Waiting for the host to share\n", IconWaiting)
		}
	}

	if len(m.snap.Sessions) > 0 {
		b.WriteString("\n")
		for _, s := range m.snap.Sessions {
			b.WriteString(sessionLine(s))
			b.WriteString("\n")
		}
	}

	if m.snap.LastError != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(IconError + " " + m.snap.LastError.Error()))
		b.WriteString("\n")
	}

	b.WriteString(FooterStyle.Render(m.help()))
	b.WriteString("\n")
	return b.String()
}

func (m StatusModel) linkLine() string {
	switch m.link.Status {
	case client.StatusConnected:
		return SuccessStyle.Render(IconConnect + " Connected to relay")
	case client.StatusReconnecting:
		return fmt.Sprintf("%s %s", m.spinner.View(),
			WarningStyle.Render(fmt.Sprintf("Reconnecting (attempt %d, in %s)", m.link.Attempt, m.link.Delay)))
	case client.StatusDisconnected:
		text := "Disconnected from relay"
		if m.link.Err != nil {
			text += ": " + m.link.Err.Error()
		}
		return ErrorStyle.Render(IconError + " " + text)
	default:
		return fmt.Sprintf("%s Connecting to relay", m.spinner.View())
	}
}

func sessionLine(s session.SessionInfo) string {
	label := fmt.Sprintf("  %s  %s", s.RemoteID, s.State)
	switch s.State {
	case session.StateConnected:
		return SuccessStyle.Render(label)
	case session.StateFailed:
		if s.Err != nil {
			label += ": " + s.Err.Error()
		}
		return ErrorStyle.Render(label)
	default:
		return MutedStyle.Render(label)
	}
}

func (m StatusModel) help() string {
	keys := []string{"q quit"}
	if m.actions.Retry != nil {
		keys = append(keys, "r retry")
	}
	if m.actions.ToggleShare != nil {
		keys = append(keys, "s start/stop sharing")
	}
	return strings.Join(keys, " • ")
}
