package store

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/CrowderSoup/retro-board/database"
)

// BoardState is the kanban board: its columns and the cards inside them.
// Tasks keep their in-column order by slice position.
type BoardState struct {
	Columns []database.Column `json:"columns"`
	Tasks   []database.Task   `json:"tasks"`
}

// TasksIn returns the cards of one column in display order.
func (b BoardState) TasksIn(status database.TaskStatus) []database.Task {
	var out []database.Task
	for _, t := range b.Tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Task looks a card up by id.
func (b BoardState) Task(id string) (database.Task, bool) {
	for _, t := range b.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return database.Task{}, false
}

func (b BoardState) indexOf(id string) int {
	return slices.IndexFunc(b.Tasks, func(t database.Task) bool { return t.ID == id })
}

// TaskStore owns the board of the current session.
type TaskStore struct {
	view[BoardState]
	columns []database.Column
}

// NewTaskStore creates the "task-store". columns overrides the default preset when non-empty.
func NewTaskStore(p Persister, columns []database.Column) *TaskStore {
	if len(columns) == 0 {
		columns = database.DefaultColumns()
	}
	preset := slices.Clone(columns)
	s := New(database.TaskStorage, func() BoardState {
		return BoardState{Columns: slices.Clone(preset)}
	}, p)
	return &TaskStore{view: view[BoardState]{s: s}, columns: preset}
}

// Hydrate restores the persisted board, seeding the defaults when nothing was saved.
func (ts *TaskStore) Hydrate(ctx context.Context) (bool, error) {
	found, err := ts.s.Hydrate(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		ts.Seed()
	}
	return found, nil
}

// Seed resets the board to the column preset with no cards.
func (ts *TaskStore) Seed() {
	ts.s.Update(func(b *BoardState) {
		b.Columns = slices.Clone(ts.columns)
		b.Tasks = nil
	})
}

// ReplaceFromPlans rebuilds the cards from the session's server plans.
func (ts *TaskStore) ReplaceFromPlans(plans []database.Plan) {
	sorted := slices.Clone(plans)
	slices.SortStableFunc(sorted, func(a, b database.Plan) int { return a.Position - b.Position })
	tasks := make([]database.Task, 0, len(sorted))
	for _, p := range sorted {
		tasks = append(tasks, p.Task())
	}
	ts.s.Update(func(b *BoardState) {
		b.Tasks = tasks
		b.Columns = ensureColumns(b.Columns, tasks)
	})
}

// AddTask inserts a card, or replaces the card with the same id.
func (ts *TaskStore) AddTask(t database.Task) database.Task {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Votes = max(t.Votes, 0)
	ts.s.Update(func(b *BoardState) {
		tasks := slices.Clone(b.Tasks)
		if i := b.indexOf(t.ID); i >= 0 {
			tasks[i] = t
		} else {
			tasks = append(tasks, t)
		}
		b.Tasks = tasks
		b.Columns = ensureColumns(b.Columns, []database.Task{t})
	})
	return t
}

// EditTask changes a card's title and description. Unknown ids are ignored.
func (ts *TaskStore) EditTask(id, title, description string) bool {
	return ts.patch(id, func(t *database.Task) {
		t.Title = title
		t.Description = description
	})
}

// ApplyTask overwrites a card with a remote copy, keeping the local position.
func (ts *TaskStore) ApplyTask(remote database.Task) bool {
	return ts.patch(remote.ID, func(t *database.Task) {
		pos := t.Position
		*t = remote
		t.Votes = max(t.Votes, 0)
		t.Position = pos
	})
}

// DeleteTask removes the card with the given id.
func (ts *TaskStore) DeleteTask(id string) bool {
	removed := false
	ts.s.Update(func(b *BoardState) {
		i := b.indexOf(id)
		if i < 0 {
			return
		}
		b.Tasks = slices.Delete(slices.Clone(b.Tasks), i, i+1)
		removed = true
	})
	return removed
}

// SetStatus moves a card to the end of another column.
func (ts *TaskStore) SetStatus(id string, status database.TaskStatus) bool {
	return ts.Reorder(id, status, -1)
}

// Reorder moves a card into status at index within that column. A negative or
// out-of-range index appends.
func (ts *TaskStore) Reorder(id string, status database.TaskStatus, index int) bool {
	moved := false
	ts.s.Update(func(b *BoardState) {
		i := b.indexOf(id)
		if i < 0 {
			return
		}
		task := b.Tasks[i]
		task.Status = status
		rest := slices.Delete(slices.Clone(b.Tasks), i, i+1)

		// translate the in-column index to a slice index
		at, seen := len(rest), 0
		for j, t := range rest {
			if t.Status != status {
				continue
			}
			if seen == index {
				at = j
				break
			}
			seen++
			at = j + 1
		}
		if index < 0 {
			at = len(rest)
			if last := lastIndexOfStatus(rest, status); last >= 0 {
				at = last + 1
			}
		}
		b.Tasks = renumber(slices.Insert(rest, at, task))
		b.Columns = ensureColumns(b.Columns, []database.Task{task})
		moved = true
	})
	return moved
}

// IncrementVote adds one vote to a card.
func (ts *TaskStore) IncrementVote(id string) bool {
	return ts.patch(id, func(t *database.Task) { t.Votes++ })
}

// DecrementVote removes one vote from a card. The count never drops below zero.
func (ts *TaskStore) DecrementVote(id string) bool {
	return ts.patch(id, func(t *database.Task) {
		t.Votes = max(t.Votes-1, 0)
	})
}

// AddColumn appends a custom column and returns it. Ids are upper case like
// every task status.
func (ts *TaskStore) AddColumn(title, question string) database.Column {
	col := database.Column{
		ID:       strings.ToUpper(uuid.New().String()),
		Title:    strings.TrimSpace(title),
		Question: question,
		Color:    "#888888",
		Icon:     "#",
	}
	ts.s.Update(func(b *BoardState) {
		b.Columns = append(slices.Clone(b.Columns), col)
	})
	return col
}

func (ts *TaskStore) patch(id string, fn func(*database.Task)) bool {
	found := false
	ts.s.Update(func(b *BoardState) {
		i := b.indexOf(id)
		if i < 0 {
			return
		}
		tasks := slices.Clone(b.Tasks)
		fn(&tasks[i])
		b.Tasks = tasks
		found = true
	})
	return found
}

func lastIndexOfStatus(tasks []database.Task, status database.TaskStatus) int {
	for i := len(tasks) - 1; i >= 0; i-- {
		if tasks[i].Status == status {
			return i
		}
	}
	return -1
}

// renumber rewrites Position as the 0-based index within each column.
func renumber(tasks []database.Task) []database.Task {
	next := map[database.TaskStatus]int{}
	for i := range tasks {
		tasks[i].Position = next[tasks[i].Status]
		next[tasks[i].Status]++
	}
	return tasks
}

// ensureColumns appends a bare column for any status the board does not know yet.
func ensureColumns(cols []database.Column, tasks []database.Task) []database.Column {
	out := cols
	for _, t := range tasks {
		if t.Status == "" {
			continue
		}
		if slices.ContainsFunc(out, func(c database.Column) bool { return strings.EqualFold(c.ID, string(t.Status)) }) {
			continue
		}
		out = append(slices.Clone(out), database.Column{ID: string(t.Status), Title: string(t.Status)})
	}
	return out
}
