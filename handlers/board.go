package handlers

import (
	"errors"
	"strings"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/store"
)

// BoardHooks applies card changes locally first and then tells the room.
// Nothing is rolled back when the emit is dropped.
type BoardHooks struct {
	tasks *store.TaskStore
	users *store.UserStore
	room  Room
}

func NewBoardHooks(tasks *store.TaskStore, users *store.UserStore, room Room) *BoardHooks {
	return &BoardHooks{tasks: tasks, users: users, room: room}
}

// AddPlan creates a card in status and broadcasts add-plan.
func (h *BoardHooks) AddPlan(title, description string, status database.TaskStatus) (database.Task, error) {
	t := h.tasks.AddTask(database.Task{
		Title:       strings.TrimSpace(title),
		Description: description,
		Status:      status,
		Position:    len(h.tasks.Get().TasksIn(status)),
		CreatedBy:   h.users.UserID(),
	})
	return t, h.room.Emit(EventAddPlan, planFromTask(t, h.room.SessionID()))
}

var errEmptyColumnTitle = errors.New("column title is required")

// AddColumn adds a lane to the local board. Columns are not shared with the room.
func (h *BoardHooks) AddColumn(title, question string) (database.Column, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return database.Column{}, errEmptyColumnTitle
	}
	return h.tasks.AddColumn(title, strings.TrimSpace(question)), nil
}

func (h *BoardHooks) EditPlan(id, title, description string) error {
	if !h.tasks.EditTask(id, strings.TrimSpace(title), description) {
		return ErrUnknownPlan
	}
	return h.emitPlan(id)
}

func (h *BoardHooks) DeletePlan(id string) error {
	if !h.tasks.DeleteTask(id) {
		return ErrUnknownPlan
	}
	return h.room.Emit(EventDeletePlan, Ref{ID: id})
}

// VotePlan adds (up) or removes one vote and broadcasts the card.
func (h *BoardHooks) VotePlan(id string, up bool) error {
	var ok bool
	if up {
		ok = h.tasks.IncrementVote(id)
	} else {
		ok = h.tasks.DecrementVote(id)
	}
	if !ok {
		return ErrUnknownPlan
	}
	return h.emitPlan(id)
}

// Drop finishes a drag: the card lands in status at index. Only a column
// change is broadcast; reordering inside a column stays local.
func (h *BoardHooks) Drop(id string, status database.TaskStatus, index int) error {
	before, ok := h.tasks.Get().Task(id)
	if !ok {
		return ErrUnknownPlan
	}
	h.tasks.Reorder(id, status, index)
	if before.Status == status {
		return nil
	}
	after, _ := h.tasks.Get().Task(id)
	return h.room.Emit(EventChangePositionPlan, MovePayload{ID: id, Status: status, Position: after.Position})
}

func (h *BoardHooks) emitPlan(id string) error {
	t, ok := h.tasks.Get().Task(id)
	if !ok {
		return ErrUnknownPlan
	}
	return h.room.Emit(EventEditPlan, planFromTask(t, h.room.SessionID()))
}
