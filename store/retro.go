package store

import (
	"fmt"
	"slices"

	"github.com/CrowderSoup/retro-board/database"
)

// SyncStatus is the lifecycle of the session view.
type SyncStatus string

const (
	SyncIdle     SyncStatus = "idle"
	SyncFetching SyncStatus = "fetching"
	SyncReady    SyncStatus = "ready"
	SyncError    SyncStatus = "error"
	SyncClosed   SyncStatus = "closed"
)

// RetroState is the session-scoped slice: the aggregate plus where the view is
// in its lifecycle.
type RetroState struct {
	Session *database.RetroSession `json:"session"`
	Status  SyncStatus             `json:"status"`
	Error   string                 `json:"error,omitempty"`
}

// RetroStore owns the "retrospective-store" slice.
type RetroStore struct {
	view[RetroState]
}

func NewRetroStore(p Persister) *RetroStore {
	s := New(database.RetroStorage, func() RetroState {
		return RetroState{Status: SyncIdle}
	}, p)
	return &RetroStore{view: view[RetroState]{s: s}}
}

// SetStatus moves the lifecycle along. errMsg is kept only for SyncError.
func (rs *RetroStore) SetStatus(status SyncStatus, errMsg string) {
	rs.s.Update(func(r *RetroState) {
		r.Status = status
		r.Error = ""
		if status == SyncError {
			r.Error = errMsg
		}
	})
}

// SetSession stores a freshly fetched aggregate.
func (rs *RetroStore) SetSession(sess database.RetroSession) {
	rs.s.Update(func(r *RetroState) {
		r.Session = &sess
	})
}

// Clear drops the session but keeps the lifecycle status.
func (rs *RetroStore) Clear() {
	rs.s.Update(func(r *RetroState) {
		r.Session = nil
	})
}

// SetStep advances the session's step; steps outside 1..3 are rejected.
func (rs *RetroStore) SetStep(step int) error {
	if step < database.MinStep || step > database.MaxStep {
		return fmt.Errorf("step %d out of range %d..%d", step, database.MinStep, database.MaxStep)
	}
	rs.mutate(func(s *database.RetroSession) { s.Step = step })
	return nil
}

// AddActionItem appends an item, replacing one with the same id.
func (rs *RetroStore) AddActionItem(item database.ActionItem) {
	rs.mutate(func(s *database.RetroSession) {
		items := slices.Clone(s.ActionItems)
		if i := actionItemIndex(items, item.ID); i >= 0 {
			items[i] = item
		} else {
			items = append(items, item)
		}
		s.ActionItems = items
	})
}

// EditActionItem overwrites an existing item. Unknown ids are ignored.
func (rs *RetroStore) EditActionItem(item database.ActionItem) bool {
	found := false
	rs.mutate(func(s *database.RetroSession) {
		i := actionItemIndex(s.ActionItems, item.ID)
		if i < 0 {
			return
		}
		items := slices.Clone(s.ActionItems)
		items[i] = item
		s.ActionItems = items
		found = true
	})
	return found
}

// DeleteActionItem removes the item with id.
func (rs *RetroStore) DeleteActionItem(id string) bool {
	found := false
	rs.mutate(func(s *database.RetroSession) {
		i := actionItemIndex(s.ActionItems, id)
		if i < 0 {
			return
		}
		s.ActionItems = slices.Delete(slices.Clone(s.ActionItems), i, i+1)
		found = true
	})
	return found
}

// mutate edits a copy of the session so earlier snapshots stay untouched.
func (rs *RetroStore) mutate(fn func(*database.RetroSession)) {
	rs.s.Update(func(r *RetroState) {
		if r.Session == nil {
			return
		}
		sess := *r.Session
		fn(&sess)
		r.Session = &sess
	})
}

func actionItemIndex(items []database.ActionItem, id string) int {
	return slices.IndexFunc(items, func(a database.ActionItem) bool { return a.ID == id })
}
