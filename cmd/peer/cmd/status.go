package cmd

import (
	"fmt"
	"strconv"

	"roomlink/internal/core/domain"
	"roomlink/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	accent = lipgloss.Color("#22d3ee")
	muted  = lipgloss.Color("#6B7280")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
)

// renderPeerTable draws the remote peer table for the terminal.
func renderPeerTable(roomID domain.RoomID, peers []domain.RemotePeerInfo) string {
	title := headerStyle.Render(fmt.Sprintf("room %s", roomID))
	if len(peers) == 0 {
		return title + "\n" + mutedStyle.Render("  no other members yet")
	}

	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		rtt := "-"
		if p.State == domain.StateConnected {
			rtt = utils.FormatDuration(p.Quality.RTT())
		}
		rows = append(rows, []string{
			utils.TruncateString(string(p.ID), 36),
			string(p.Role),
			p.State.String(),
			rtt,
			strconv.FormatInt(p.Quality.PacketsLost, 10),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		Headers("PEER", "ROLE", "STATE", "RTT", "LOST").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	return title + "\n" + t.String()
}
