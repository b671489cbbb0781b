package handlers

import (
	"context"
	"fmt"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/services"
	"github.com/CrowderSoup/retro-board/store"
)

type PollHooks struct {
	polls *store.PollStore
	users *store.UserStore
	api   *services.Client
	room  Room
}

func NewPollHooks(polls *store.PollStore, users *store.UserStore, api *services.Client, room Room) *PollHooks {
	return &PollHooks{polls: polls, users: users, api: api, room: room}
}

// Vote moves the user's vote record to optionID, marks it as the local choice
// and then emits vote-question. Unknown questions or options change nothing.
func (h *PollHooks) Vote(questionID, optionID string) error {
	user := h.users.UserID()
	if !h.polls.ApplyVote(questionID, optionID, user) {
		return ErrUnknownQuestion
	}
	h.polls.Select(questionID, optionID)
	return h.room.Emit(EventVoteQuestion, VotePayload{
		QuestionID: questionID,
		OptionID:   optionID,
		UserID:     user,
	})
}

func (h *PollHooks) EditQuestion(q database.PollQuestion) error {
	if _, ok := h.polls.Get().Question(q.ID); !ok {
		return ErrUnknownQuestion
	}
	h.polls.UpsertQuestion(q)
	return h.room.Emit(EventEditPollQuestion, q)
}

func (h *PollHooks) DeleteQuestion(id string) error {
	if !h.polls.DeleteQuestion(id) {
		return ErrUnknownQuestion
	}
	return h.room.Emit(EventDeleteQuestion, Ref{ID: id})
}

// CreateQuestion stores a new question through the API and shares it with the
// room as an edit-poll-question upsert.
func (h *PollHooks) CreateQuestion(ctx context.Context, q database.PollQuestion) (database.PollQuestion, error) {
	q.RetroSessionID = h.room.SessionID()
	if q.RetroSessionID == "" {
		return q, ErrNoSession
	}
	created, err := h.api.CreatePollQuestion(ctx, q)
	if err != nil {
		return q, fmt.Errorf("create poll question: %w", err)
	}
	h.polls.UpsertQuestion(created)
	return created, h.room.Emit(EventEditPollQuestion, created)
}

// Refresh refetches every question of the open session.
func (h *PollHooks) Refresh(ctx context.Context) error {
	id := h.room.SessionID()
	if id == "" {
		return ErrNoSession
	}
	qs, err := h.api.ListPollQuestions(ctx, id)
	if err != nil {
		return fmt.Errorf("list poll questions: %w", err)
	}
	h.polls.SetQuestions(qs)
	return nil
}
