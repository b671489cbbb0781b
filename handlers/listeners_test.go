package handlers

import (
	"encoding/json"
	"testing"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/services"
)

// fakeSource records handlers so tests can fire events synchronously.
type fakeSource struct {
	handlers map[string][]services.Handler
}

func (f *fakeSource) On(event string, fn services.Handler) func() {
	if f.handlers == nil {
		f.handlers = map[string][]services.Handler{}
	}
	f.handlers[event] = append(f.handlers[event], fn)
	return func() { delete(f.handlers, event) }
}

func (f *fakeSource) fire(t *testing.T, event, user string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, fn := range f.handlers[event] {
		fn(services.WebSocketMessage{Type: event, Data: raw, User: user})
	}
}

func TestListenerTableCoversRoomEvents(t *testing.T) {
	want := []string{
		EventAddPlan, EventEditPlan, EventDeletePlan, EventChangePositionPlan,
		EventVoteQuestion, EventEditPollQuestion, EventDeleteQuestion,
		EventAddActionItem, EventEditActionItem, EventDeleteActionItem,
		services.EventSetStepSuccess,
	}
	src := &fakeSource{}
	off := RegisterListeners(src, memoryStores(t, ""))
	for _, event := range want {
		if len(src.handlers[event]) != 1 {
			t.Fatalf("expected one handler for %s", event)
		}
	}
	if len(src.handlers) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(src.handlers))
	}
	off()
	if len(src.handlers) != 0 {
		t.Fatalf("off should remove every handler")
	}
}

func TestPlanListeners(t *testing.T) {
	st := memoryStores(t, "me")
	src := &fakeSource{}
	RegisterListeners(src, st)

	src.fire(t, EventAddPlan, "u2", database.Plan{ID: "p1", Title: "Retro notes", Status: "keep", Votes: -3})
	got, ok := st.Tasks.Get().Task("p1")
	if !ok || got.Status != database.StatusKeep || got.Votes != 0 {
		t.Fatalf("add-plan not applied: %+v", got)
	}

	src.fire(t, EventEditPlan, "u2", database.Plan{ID: "p1", Title: "Retro notes v2", Status: "KEEP", Votes: 2})
	if got, _ := st.Tasks.Get().Task("p1"); got.Title != "Retro notes v2" || got.Votes != 2 {
		t.Fatalf("edit-plan not applied: %+v", got)
	}

	// an edit for a card we never saw inserts it
	src.fire(t, EventEditPlan, "u2", database.Plan{ID: "p2", Title: "late", Status: "ADD"})
	if _, ok := st.Tasks.Get().Task("p2"); !ok {
		t.Fatalf("edit-plan for an unknown card should insert it")
	}

	src.fire(t, EventChangePositionPlan, "u2", MovePayload{ID: "p1", Status: database.StatusDrop, Position: 0})
	if got, _ := st.Tasks.Get().Task("p1"); got.Status != database.StatusDrop {
		t.Fatalf("change-position-plan not applied: %+v", got)
	}

	src.fire(t, EventDeletePlan, "u2", Ref{ID: "p1"})
	if _, ok := st.Tasks.Get().Task("p1"); ok {
		t.Fatalf("delete-plan not applied")
	}

	// malformed payloads are dropped
	src.fire(t, EventAddPlan, "u2", database.Plan{Title: "no id"})
	if n := len(st.Tasks.Get().Tasks); n != 1 {
		t.Fatalf("expected 1 task, got %d", n)
	}
}

func TestVoteQuestionListener(t *testing.T) {
	st := memoryStores(t, "me")
	st.Polls.SetQuestions([]database.PollQuestion{{
		ID: "q1",
		Options: []database.Option{
			{ID: "o1", Votes: []database.Vote{{CreatedBy: "alice"}, {CreatedBy: "bob"}}},
			{ID: "o2"},
			{ID: "o3", Votes: []database.Vote{{CreatedBy: "alice"}}},
		},
	}})
	src := &fakeSource{}
	RegisterListeners(src, st)

	src.fire(t, EventVoteQuestion, "alice", VotePayload{QuestionID: "q1", OptionID: "o2"})

	q, _ := st.Polls.Get().Question("q1")
	holders := map[string][]string{}
	for _, o := range q.Options {
		for _, v := range o.Votes {
			holders[v.CreatedBy] = append(holders[v.CreatedBy], o.ID)
		}
	}
	if got := holders["alice"]; len(got) != 1 || got[0] != "o2" {
		t.Fatalf("alice should hold exactly one vote on o2, got %v", got)
	}
	if got := holders["bob"]; len(got) != 1 || got[0] != "o1" {
		t.Fatalf("bob's vote must be untouched, got %v", got)
	}
	if q.Votes != 2 {
		t.Fatalf("expected 2 votes, got %d", q.Votes)
	}

	// without relay attribution the payload's created_by is used
	src.fire(t, EventVoteQuestion, "", VotePayload{QuestionID: "q1", OptionID: "o3", UserID: "bob"})
	if got := st.Polls.Get().SelectedOption("q1", "bob"); got != "o3" {
		t.Fatalf("bob should now be on o3, got %q", got)
	}
}

func TestQuestionAndStepListeners(t *testing.T) {
	st := memoryStores(t, "me")
	st.Polls.SetQuestions([]database.PollQuestion{{ID: "q1"}, {ID: "q2"}})
	st.Retro.SetSession(database.RetroSession{ID: "s1", Step: 1})
	src := &fakeSource{}
	RegisterListeners(src, st)

	src.fire(t, EventEditPollQuestion, "u2", database.PollQuestion{ID: "q3", Text: "new"})
	src.fire(t, EventDeleteQuestion, "u2", Ref{ID: "q1"})
	qs := st.Polls.Get().Questions
	if len(qs) != 2 || qs[0].ID != "q2" || qs[1].ID != "q3" {
		t.Fatalf("unexpected questions %+v", qs)
	}

	src.fire(t, services.EventSetStepSuccess, "u2", StepPayload{RetroSessionID: "s1", Step: 3})
	if step := st.Retro.Get().Session.Step; step != 3 {
		t.Fatalf("expected step 3, got %d", step)
	}
	src.fire(t, services.EventSetStepSuccess, "u2", StepPayload{RetroSessionID: "s1", Step: 7})
	if step := st.Retro.Get().Session.Step; step != 3 {
		t.Fatalf("out-of-range step must be ignored, got %d", step)
	}
}

func TestActionItemListeners(t *testing.T) {
	st := memoryStores(t, "me")
	st.Retro.SetSession(database.RetroSession{ID: "s1"})
	src := &fakeSource{}
	RegisterListeners(src, st)

	src.fire(t, EventAddActionItem, "u2", database.ActionItem{ID: "a1", Title: "Fix CI", Status: "todo"})
	src.fire(t, EventEditActionItem, "u2", database.ActionItem{ID: "a1", Title: "Fix CI", Status: "done"})
	src.fire(t, EventAddActionItem, "u2", database.ActionItem{ID: "a2", Title: "Write docs"})
	src.fire(t, EventDeleteActionItem, "u2", Ref{ID: "a2"})

	items := st.Retro.Get().Session.ActionItems
	if len(items) != 1 || items[0].ID != "a1" || items[0].Status != "done" {
		t.Fatalf("unexpected action items %+v", items)
	}
}
