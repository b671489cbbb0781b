package handlers

import (
	"errors"
	"log/slog"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/services"
	"github.com/CrowderSoup/retro-board/store"
)

// Stores is the application state the listeners and hooks write to.
type Stores struct {
	Tasks *store.TaskStore
	Polls *store.PollStore
	Retro *store.RetroStore
	Users *store.UserStore
}

// listener applies one decoded room event to the stores.
type listener func(st Stores, msg services.WebSocketMessage) error

// listeners maps each inbound room event to exactly one store command. There is
// no conflict resolution: whatever arrives last wins.
var listeners = map[string]listener{
	EventAddPlan: func(st Stores, msg services.WebSocketMessage) error {
		var p database.Plan
		if err := decodeWithID(msg, &p, &p.ID); err != nil {
			return err
		}
		st.Tasks.AddTask(p.Task())
		return nil
	},
	EventEditPlan: func(st Stores, msg services.WebSocketMessage) error {
		var p database.Plan
		if err := decodeWithID(msg, &p, &p.ID); err != nil {
			return err
		}
		if !st.Tasks.ApplyTask(p.Task()) {
			st.Tasks.AddTask(p.Task())
		}
		return nil
	},
	EventDeletePlan: func(st Stores, msg services.WebSocketMessage) error {
		var ref Ref
		if err := msg.Decode(&ref); err != nil {
			return err
		}
		st.Tasks.DeleteTask(ref.ID)
		return nil
	},
	EventChangePositionPlan: func(st Stores, msg services.WebSocketMessage) error {
		var mv MovePayload
		if err := msg.Decode(&mv); err != nil {
			return err
		}
		st.Tasks.Reorder(mv.ID, mv.Status, mv.Position)
		return nil
	},
	EventVoteQuestion: func(st Stores, msg services.WebSocketMessage) error {
		var v VotePayload
		if err := msg.Decode(&v); err != nil {
			return err
		}
		// the relay stamps the sender; the payload copy covers relays that don't
		user := msg.User
		if user == "" {
			user = v.UserID
		}
		if !st.Polls.ApplyVote(v.QuestionID, v.OptionID, user) {
			slog.Debug("vote for unknown question or option", "question", v.QuestionID, "option", v.OptionID)
		}
		return nil
	},
	EventEditPollQuestion: func(st Stores, msg services.WebSocketMessage) error {
		var q database.PollQuestion
		if err := decodeWithID(msg, &q, &q.ID); err != nil {
			return err
		}
		st.Polls.UpsertQuestion(q)
		return nil
	},
	EventDeleteQuestion: func(st Stores, msg services.WebSocketMessage) error {
		var ref Ref
		if err := msg.Decode(&ref); err != nil {
			return err
		}
		st.Polls.DeleteQuestion(ref.ID)
		return nil
	},
	EventAddActionItem: func(st Stores, msg services.WebSocketMessage) error {
		var item database.ActionItem
		if err := decodeWithID(msg, &item, &item.ID); err != nil {
			return err
		}
		st.Retro.AddActionItem(item)
		return nil
	},
	EventEditActionItem: func(st Stores, msg services.WebSocketMessage) error {
		var item database.ActionItem
		if err := decodeWithID(msg, &item, &item.ID); err != nil {
			return err
		}
		if !st.Retro.EditActionItem(item) {
			st.Retro.AddActionItem(item)
		}
		return nil
	},
	EventDeleteActionItem: func(st Stores, msg services.WebSocketMessage) error {
		var ref Ref
		if err := msg.Decode(&ref); err != nil {
			return err
		}
		st.Retro.DeleteActionItem(ref.ID)
		return nil
	},
	services.EventSetStepSuccess: func(st Stores, msg services.WebSocketMessage) error {
		var p StepPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return st.Retro.SetStep(p.Step)
	},
}

// RegisterListeners subscribes src to every room event and returns a func that
// removes all of them.
func RegisterListeners(src EventSource, st Stores) func() {
	offs := make([]func(), 0, len(listeners))
	for event, apply := range listeners {
		event, apply := event, apply
		offs = append(offs, src.On(event, func(msg services.WebSocketMessage) {
			if err := apply(st, msg); err != nil {
				slog.Warn("room event not applied", "event", event, "from", msg.User, "err", err)
			}
		}))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

var errMissingID = errors.New("payload has no id")

// decodeWithID decodes msg into v and insists the record it names has an id.
func decodeWithID(msg services.WebSocketMessage, v any, id *string) error {
	if err := msg.Decode(v); err != nil {
		return err
	}
	if *id == "" {
		return errMissingID
	}
	return nil
}
