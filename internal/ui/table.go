package ui

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	pretty "github.com/jedib0t/go-pretty/v6/table"

	"github.com/BioHazard786/watchparty/internal/server/converter"
)

// RenderRooms writes the relay's room list as a table.
func RenderRooms(w io.Writer, rooms *converter.RoomsResponse) {
	if rooms == nil || len(rooms.Rooms) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No active rooms"))
		return
	}

	t := pretty.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(pretty.StyleRounded)
	t.AppendHeader(pretty.Row{"#", "Room", "Participants"})

	total := 0
	for i, r := range rooms.Rooms {
		t.AppendRow(pretty.Row{i + 1, r.RoomID, r.ParticipantCount})
		total += r.ParticipantCount
	}
	t.AppendFooter(pretty.Row{"", "Total", total})
	t.Render()
}

// RoomDetailView renders one room and its members.
func RoomDetailView(r *converter.RoomResponse, now time.Time) string {
	rows := make([][]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		role := IconViewer + " viewer"
		if p.IsHost {
			role = IconHost + " host"
		}
		state := "connected"
		if !p.Connected {
			state = "closing"
		}
		rows = append(rows, []string{p.UserID, role, state})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Participant", "Role", "State").
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

	header := fmt.Sprintf("%s Room %s  %s participants  %s",
		IconRoom,
		BoldStyle.Foreground(Primary).Render(r.RoomID),
		strconv.Itoa(r.ParticipantCount),
		MutedStyle.Render("open for "+age(now.Sub(r.CreatedAt))),
	)
	return lipgloss.JoinVertical(lipgloss.Left, header, tbl.Render())
}

func age(d time.Duration) string {
	if d < time.Minute {
		return "under a minute"
	}
	return d.Truncate(time.Minute).String()
}

// RoomInfoView is shown to a host once the room exists.
func RoomInfoView(roomID, joinCommand string) string {
	content := fmt.Sprintf("%s Room ready\n\n%s Room ID:  %s\n%s Join:     %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
		IconViewer, MutedStyle.Render(joinCommand),
	)
	return SuccessBoxStyle.Render(content)
}
