package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/CrowderSoup/retro-board/database"
)

func (m Model) updateActions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.actionItems()
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		m.screen = screenBoard
	case "up", "k":
		if m.action > 0 {
			m.action--
		}
	case "down", "j":
		if m.action < len(items)-1 {
			m.action++
		}
	case "a":
		return m.startInput(editAction, "", "")
	case "e":
		if item, ok := m.selectedAction(); ok {
			return m.startInput(editActionTitle, item.ID, item.Title)
		}
	case " ", "enter":
		if item, ok := m.selectedAction(); ok {
			if item.Status == database.ActionDone {
				item.Status = database.ActionTodo
			} else {
				item.Status = database.ActionDone
			}
			return m, m.editActionCmd(item)
		}
	case "d", "x":
		if item, ok := m.selectedAction(); ok {
			id := item.ID
			return m, m.runHook(func(ctx context.Context) error {
				return m.hooks.ActionItems.Delete(ctx, id)
			})
		}
	case "i":
		return m.startInput(editInsights, "", "")
	case "r":
		return m.startInput(editRadar, "", "")
	}
	return m, nil
}

func (m Model) editActionCmd(item database.ActionItem) tea.Cmd {
	return m.runHook(func(ctx context.Context) error {
		_, err := m.hooks.ActionItems.Edit(ctx, item)
		return err
	})
}

func (m Model) actionItems() []database.ActionItem {
	if m.retro.Session == nil {
		return nil
	}
	return m.retro.Session.ActionItems
}

func (m Model) actionItem(id string) (database.ActionItem, bool) {
	for _, it := range m.actionItems() {
		if it.ID == id {
			return it, true
		}
	}
	return database.ActionItem{}, false
}

func (m Model) selectedAction() (database.ActionItem, bool) {
	items := m.actionItems()
	if m.action < 0 || m.action >= len(items) {
		return database.ActionItem{}, false
	}
	return items[m.action], true
}
