// Package handlers connects the session view to the relay: it keeps the local
// stores in step with room events and turns user actions into emits and REST calls.
package handlers

import (
	"errors"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/services"
)

// Application events exchanged inside a room.
const (
	EventAddPlan            = "add-plan"
	EventEditPlan           = "edit-plan"
	EventDeletePlan         = "delete-plan"
	EventChangePositionPlan = "change-position-plan"
	EventVoteQuestion       = "vote-question"
	EventEditPollQuestion   = "edit-poll-question"
	EventDeleteQuestion     = "delete-question"
	EventAddActionItem      = "add-action-item"
	EventEditActionItem     = "edit-action-item"
	EventDeleteActionItem   = "delete-action-item"
	EventCreateKeyInsights  = "create-key-insights"
	EventCreateRadar        = "create-radar-criteria"
)

var (
	ErrSessionNotFound = errors.New("retro session not found")
	ErrNoSession       = errors.New("no retro session open")
	ErrUnknownPlan     = errors.New("unknown plan")
	ErrUnknownQuestion = errors.New("unknown poll question")
)

// Ref names a record by id; used by the delete events.
type Ref struct {
	ID string `json:"_id"`
}

// MovePayload is carried by change-position-plan. Position is the index inside
// the destination column.
type MovePayload struct {
	ID       string              `json:"_id"`
	Status   database.TaskStatus `json:"status"`
	Position int                 `json:"position"`
}

// VotePayload is carried by vote-question.
type VotePayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
	UserID     string `json:"created_by,omitempty"`
}

// StepPayload is carried by set-step and set-step-success.
type StepPayload struct {
	RetroSessionID string `json:"retroSessionId"`
	Step           int    `json:"step"`
}

type KeyInsightsPayload struct {
	RetroSessionID string   `json:"retroSessionId"`
	Insights       []string `json:"insights"`
}

type RadarCriterion struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type RadarCriteriaPayload struct {
	RetroSessionID string           `json:"retroSessionId"`
	Criteria       []RadarCriterion `json:"criteria"`
}

// Room is the open session as seen by the hooks: somewhere to emit and the id
// of the session being synced. *SessionSync implements it.
type Room interface {
	Emit(event string, payload any) error
	SessionID() string
}

// EventSource registers event handlers. *services.Socket implements it.
type EventSource interface {
	On(event string, fn services.Handler) func()
}

func planFromTask(t database.Task, sessionID string) database.Plan {
	return database.Plan{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         t.Status,
		Votes:          t.Votes,
		Position:       t.Position,
		CreatedBy:      t.CreatedBy,
		RetroSessionID: sessionID,
	}
}
