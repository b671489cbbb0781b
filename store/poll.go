package store

import (
	"maps"
	"slices"
	"time"

	"github.com/CrowderSoup/retro-board/database"
)

// PollState holds the session's poll questions and the options this client
// picked locally, keyed by question id.
type PollState struct {
	Questions []database.PollQuestion `json:"questions"`
	Selected  map[string]string       `json:"selected"`
}

// Question looks a question up by id.
func (p PollState) Question(id string) (database.PollQuestion, bool) {
	for _, q := range p.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return database.PollQuestion{}, false
}

// SelectedOption returns the option holding userID's vote on a question. When
// several options carry such a vote the first wins; when none does the local
// selection is used.
func (p PollState) SelectedOption(questionID, userID string) string {
	if q, ok := p.Question(questionID); ok && userID != "" {
		for _, o := range q.Options {
			if slices.ContainsFunc(o.Votes, func(v database.Vote) bool { return v.CreatedBy == userID }) {
				return o.ID
			}
		}
	}
	return p.Selected[questionID]
}

// PollStore owns the "poll-storage" slice.
type PollStore struct {
	view[PollState]
	now func() time.Time
}

func NewPollStore(p Persister) *PollStore {
	s := New(database.PollStorage, func() PollState {
		return PollState{Selected: map[string]string{}}
	}, p)
	return &PollStore{view: view[PollState]{s: s}, now: time.Now}
}

// SetQuestions replaces every question, e.g. after a REST fetch.
func (ps *PollStore) SetQuestions(qs []database.PollQuestion) {
	qs = slices.Clone(qs)
	for i := range qs {
		qs[i].Votes = countVotes(qs[i])
	}
	ps.s.Update(func(p *PollState) {
		p.Questions = qs
	})
}

// UpsertQuestion replaces the question with the same id or appends it.
func (ps *PollStore) UpsertQuestion(q database.PollQuestion) {
	q.Votes = countVotes(q)
	ps.s.Update(func(p *PollState) {
		qs := slices.Clone(p.Questions)
		if i := questionIndex(qs, q.ID); i >= 0 {
			qs[i] = q
		} else {
			qs = append(qs, q)
		}
		p.Questions = qs
	})
}

// DeleteQuestion removes exactly the question with id, keeping the order of the rest.
func (ps *PollStore) DeleteQuestion(id string) bool {
	removed := false
	ps.s.Update(func(p *PollState) {
		i := questionIndex(p.Questions, id)
		if i < 0 {
			return
		}
		p.Questions = slices.Delete(slices.Clone(p.Questions), i, i+1)
		if _, ok := p.Selected[id]; ok {
			sel := maps.Clone(p.Selected)
			delete(sel, id)
			p.Selected = sel
		}
		removed = true
	})
	return removed
}

// Select records the local choice for a question without touching vote records.
func (ps *PollStore) Select(questionID, optionID string) {
	ps.s.Update(func(p *PollState) {
		sel := maps.Clone(p.Selected)
		if sel == nil {
			sel = map[string]string{}
		}
		sel[questionID] = optionID
		p.Selected = sel
	})
}

// ApplyVote moves userID's vote on questionID to optionID. Any vote the user held
// on another option of the same question is removed, so each user keeps at most
// one vote per question. Returns false when the question or option is unknown.
func (ps *PollStore) ApplyVote(questionID, optionID, userID string) bool {
	applied := false
	now := ps.now()
	ps.s.Update(func(p *PollState) {
		qi := questionIndex(p.Questions, questionID)
		if qi < 0 {
			return
		}
		q := p.Questions[qi]
		if !slices.ContainsFunc(q.Options, func(o database.Option) bool { return o.ID == optionID }) {
			return
		}

		opts := make([]database.Option, len(q.Options))
		for i, o := range q.Options {
			votes := slices.DeleteFunc(slices.Clone(o.Votes), func(v database.Vote) bool {
				return v.CreatedBy == userID
			})
			if o.ID == optionID {
				votes = append(votes, database.Vote{CreatedBy: userID, CreatedAt: &now})
			}
			o.Votes = votes
			opts[i] = o
		}
		q.Options = opts
		q.Votes = countVotes(q)

		qs := slices.Clone(p.Questions)
		qs[qi] = q
		p.Questions = qs
		applied = true
	})
	return applied
}

func questionIndex(qs []database.PollQuestion, id string) int {
	return slices.IndexFunc(qs, func(q database.PollQuestion) bool { return q.ID == id })
}

func countVotes(q database.PollQuestion) int {
	n := 0
	for _, o := range q.Options {
		n += len(o.Votes)
	}
	return n
}
