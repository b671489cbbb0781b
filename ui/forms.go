package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/handlers"
)

var placeholders = map[editMode]string{
	editAdd:          "card title",
	editTitle:        "card title",
	editColumn:       "column title | question",
	editQuestion:     "question | option, option, ...",
	editQuestionText: "question",
	editAction:       "action item",
	editActionTitle:  "action item",
	editInsights:     "insight; insight; ...",
	editRadar:        "criterion=score, criterion=score, ...",
}

var inputLabels = map[editMode]string{
	editAdd:          "New card: ",
	editTitle:        "Edit card: ",
	editColumn:       "New column: ",
	editQuestion:     "New question: ",
	editQuestionText: "Edit question: ",
	editAction:       "New action item: ",
	editActionTitle:  "Edit action item: ",
	editInsights:     "Key insights: ",
	editRadar:        "Radar criteria: ",
}

// submit applies a finished input line.
func (m Model) submit(mode editMode, id, value string) (tea.Model, tea.Cmd) {
	switch mode {
	case editAdd:
		if m.col >= len(m.board.Columns) {
			return m, nil
		}
		status := database.TaskStatus(m.board.Columns[m.col].ID)
		_, err := m.hooks.Board.AddPlan(value, "", status)
		return m.report(err)

	case editTitle:
		return m.report(m.hooks.Board.EditPlan(id, value, ""))

	case editColumn:
		title, question, _ := strings.Cut(value, "|")
		if _, err := m.hooks.Board.AddColumn(title, question); err != nil {
			return m.report(err)
		}
		m.col, m.row = len(m.board.Columns), 0
		return m, nil

	case editQuestion:
		q, err := parseQuestion(value)
		if err != nil {
			return m.report(err)
		}
		return m, m.runHook(func(ctx context.Context) error {
			_, err := m.hooks.Polls.CreateQuestion(ctx, q)
			return err
		})

	case editQuestionText:
		q, ok := m.polls.Question(id)
		if !ok {
			return m.report(handlers.ErrUnknownQuestion)
		}
		q.Text = value
		return m.report(m.hooks.Polls.EditQuestion(q))

	case editAction:
		item := database.ActionItem{Title: value, Status: database.ActionTodo}
		return m, m.runHook(func(ctx context.Context) error {
			_, err := m.hooks.ActionItems.Create(ctx, item)
			return err
		})

	case editActionTitle:
		item, ok := m.actionItem(id)
		if !ok {
			return m, nil
		}
		item.Title = value
		return m, m.editActionCmd(item)

	case editInsights:
		return m.report(m.hooks.Steps.CreateKeyInsights(splitList(value, ";")))

	case editRadar:
		criteria, err := parseRadar(value)
		if err != nil {
			return m.report(err)
		}
		return m.report(m.hooks.Steps.CreateRadarCriteria(criteria))
	}
	return m, nil
}

// parseQuestion reads "text | option, option".
func parseQuestion(line string) (database.PollQuestion, error) {
	text, opts, _ := strings.Cut(line, "|")
	q := database.PollQuestion{Text: strings.TrimSpace(text)}
	for _, o := range splitList(opts, ",") {
		q.Options = append(q.Options, database.Option{Text: o})
	}
	if q.Text == "" || len(q.Options) < 2 {
		return q, errors.New("a question needs text and at least two options: text | a, b")
	}
	return q, nil
}

// parseRadar reads "name=score, name=score".
func parseRadar(line string) ([]handlers.RadarCriterion, error) {
	var out []handlers.RadarCriterion
	for _, part := range splitList(line, ",") {
		name, raw, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("criterion %q: want name=score", part)
		}
		score, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("criterion %q: %w", part, err)
		}
		out = append(out, handlers.RadarCriterion{Name: strings.TrimSpace(name), Score: score})
	}
	if len(out) == 0 {
		return nil, errors.New("no criteria given")
	}
	return out, nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
