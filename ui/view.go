package ui

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/CrowderSoup/retro-board/database"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))
	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Reverse(true)
	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B6B")).
			Padding(1, 2)
)

var stepNames = map[int]string{
	1: "Reflect",
	2: "Vote",
	3: "Act",
}

func (m Model) View() string {
	var body string
	switch m.screen {
	case screenLoading:
		body = dimStyle.Render("Loading session " + m.sessionID + "...")
	case screenBoard:
		body = m.renderBoard()
	case screenPolls:
		body = m.renderPolls()
	case screenActions:
		body = m.renderActions()
	case screenSignedOut:
		body = dialogStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Signed out"),
			"",
			"Your session expired or was revoked. Run `retro login` to sign in again.",
			"",
			hintStyle.Render("enter: quit")))
	case screenNotFound:
		body = dialogStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Session not found"),
			"",
			fmt.Sprintf("There is no retro session %q, or it was deleted.", m.sessionID),
			"",
			hintStyle.Render("enter: back to the session list")))
	case screenError:
		msg := "The session ended unexpectedly."
		if m.fatal != nil {
			msg = m.fatal.Error()
		}
		body = dialogStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Something went wrong"),
			"",
			msg,
			"",
			hintStyle.Render("enter: back to the session list")))
	}
	if m.mode != editNone {
		body = lipgloss.JoinVertical(lipgloss.Left, body, inputLabels[m.mode]+m.input.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), body, m.renderFooter())
}

func (m Model) renderHeader() string {
	name := m.sessionID
	step := database.MinStep
	if s := m.retro.Session; s != nil {
		if s.Name != "" {
			name = s.Name
		}
		step = s.Step
	}
	var steps []string
	for i := database.MinStep; i <= database.MaxStep; i++ {
		label := fmt.Sprintf("%d %s", i, stepNames[i])
		if i == step {
			label = selectedStyle.Render(label)
		} else {
			label = dimStyle.Render(label)
		}
		steps = append(steps, label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("retro · "+name), "   ", strings.Join(steps, dimStyle.Render(" › ")))
}

func (m Model) renderBoard() string {
	cols := m.board.Columns
	if len(cols) == 0 {
		return dimStyle.Render("No columns.")
	}
	width := 28
	if m.width > 0 {
		width = max(20, m.width/len(cols)-2)
	}

	rendered := make([]string, 0, len(cols))
	for ci, col := range cols {
		lines := []string{
			lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(col.Color)).Render(col.Icon + " " + col.Title),
			dimStyle.Render(col.Question),
			"",
		}
		cards := m.board.TasksIn(database.TaskStatus(col.ID))
		if len(cards) == 0 {
			lines = append(lines, dimStyle.Render("(empty)"))
		}
		for ri, card := range cards {
			line := fmt.Sprintf("▲%-2d %s", card.Votes, card.Title)
			if ci == m.col && ri == m.row {
				line = selectedStyle.Render(line)
			}
			lines = append(lines, line)
		}

		border := lipgloss.Color("#444444")
		if ci == m.col {
			border = lipgloss.Color(col.Color)
		}
		rendered = append(rendered, lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Width(width).
			Padding(0, 1).
			Render(strings.Join(lines, "\n")))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) renderActions() string {
	items := m.actionItems()
	if len(items) == 0 {
		return dimStyle.Render("No action items yet.")
	}
	lines := make([]string, 0, len(items))
	for i, it := range items {
		box := "[ ]"
		if it.Status == database.ActionDone {
			box = "[x]"
		}
		line := box + " " + it.Title
		if it.AssigneeTo != "" {
			line += dimStyle.Render("  @" + it.AssigneeTo)
		}
		if i == m.action {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPolls() string {
	if len(m.polls.Questions) == 0 {
		return dimStyle.Render("No poll questions yet.")
	}
	var lines []string
	for qi, q := range m.polls.Questions {
		head := fmt.Sprintf("%s  (%d votes)", q.Text, q.Votes)
		if qi == m.question {
			head = selectedStyle.Render(head)
		}
		lines = append(lines, head)
		picked := m.polls.SelectedOption(q.ID, m.userID)
		for oi, o := range q.Options {
			marker := "( )"
			if o.ID == picked {
				marker = "(•)"
			}
			lines = append(lines, fmt.Sprintf("   %d %s %s  %s", oi+1, marker, o.Text, dimStyle.Render(fmt.Sprintf("%d", len(o.Votes)))))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	var hint string
	switch m.screen {
	case screenBoard:
		hint = "←/→ column · ↑/↓ card · a add · e edit · d delete · +/- vote · H/L move · J/K reorder · C column · [/] step · tab polls · q quit"
	case screenPolls:
		hint = "↑/↓ question · 1-9 vote · n new · e edit · d delete · r refresh · tab actions · q quit"
	case screenActions:
		hint = "↑/↓ item · a add · e edit · space done · d delete · i insights · r radar · tab board · q quit"
	}
	footer := hintStyle.Render(hint)
	if m.toast.text == "" {
		return footer
	}
	color := lipgloss.Color("#4CAF50")
	switch {
	case m.toast.level >= slog.LevelError:
		color = lipgloss.Color("#FF6B6B")
	case m.toast.level >= slog.LevelWarn:
		color = lipgloss.Color("#F5A623")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(color).Render(m.toast.text), footer)
}
