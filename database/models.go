package database

import (
	"strings"
	"time"
)

// TaskStatus identifies the board column a task lives in. Custom columns use
// their column ID as the status value.
type TaskStatus string

const (
	StatusDrop    TaskStatus = "DROP"
	StatusAdd     TaskStatus = "ADD"
	StatusKeep    TaskStatus = "KEEP"
	StatusImprove TaskStatus = "IMPROVE"
)

// Task is a card on the kanban board.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Votes       int        `json:"votes"`
	Position    int        `json:"position"`
	CreatedBy   string     `json:"created_by,omitempty"`
}

// Column is one lane of the board.
type Column struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Question string `json:"question"`
	Color    string `json:"color"`
	Icon     string `json:"icon"`
}

// DefaultColumns returns the fixed Drop/Add/Keep/Improve set.
func DefaultColumns() []Column {
	return []Column{
		{ID: string(StatusDrop), Title: "Drop", Question: "What should we stop doing?", Color: "#FF6B6B", Icon: "x"},
		{ID: string(StatusAdd), Title: "Add", Question: "What should we start doing?", Color: "#5B8DEF", Icon: "+"},
		{ID: string(StatusKeep), Title: "Keep", Question: "What went well?", Color: "#4CAF50", Icon: "*"},
		{ID: string(StatusImprove), Title: "Improve", Question: "What could be better?", Color: "#F5A623", Icon: "^"},
	}
}

// Plan is the server-side record behind a board card.
type Plan struct {
	ID             string     `json:"_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         TaskStatus `json:"status"`
	Votes          int        `json:"votes"`
	Position       int        `json:"position"`
	CreatedBy      string     `json:"created_by,omitempty"`
	RetroSessionID string     `json:"retro_session_id,omitempty"`
}

// Task converts a plan into the board's card shape.
func (p Plan) Task() Task {
	return Task{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Status:      TaskStatus(strings.ToUpper(string(p.Status))),
		Votes:       max(p.Votes, 0),
		Position:    p.Position,
		CreatedBy:   p.CreatedBy,
	}
}

// Vote records one participant's choice of an option.
type Vote struct {
	ID        string    `json:"_id,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Option is a selectable answer of a poll question.
type Option struct {
	ID    string `json:"_id"`
	Text  string `json:"text"`
	Votes []Vote `json:"votes"`
}

// PollQuestion is a single-choice question with vote-tracked options.
type PollQuestion struct {
	ID             string   `json:"_id"`
	Text           string   `json:"text"`
	Criterion      string   `json:"criterion,omitempty"`
	Options        []Option `json:"options"`
	Votes          int      `json:"votes"`
	RetroSessionID string   `json:"retro_session_id,omitempty"`
}

// Action item statuses used by the client. The server may send others.
const (
	ActionTodo = "todo"
	ActionDone = "done"
)

// ActionItem is a follow-up agreed during the retrospective.
type ActionItem struct {
	ID             string `json:"_id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Status         string `json:"status"`
	Priority       string `json:"priority,omitempty"`
	AssigneeTo     string `json:"assignee_to,omitempty"`
	RetroSessionID string `json:"retro_session_id,omitempty"`
}

const (
	MinStep = 1
	MaxStep = 3
)

// RetroSession is the aggregate record of one retrospective meeting.
type RetroSession struct {
	ID          string         `json:"_id"`
	Name        string         `json:"name,omitempty"`
	Questions   []PollQuestion `json:"questions"`
	ActionItems []ActionItem   `json:"actionItems"`
	Plans       []Plan         `json:"plans"`
	Step        int            `json:"step"`
	CreatedBy   string         `json:"created_by"`
	TeamID      string         `json:"team_id,omitempty"`
	SprintID    string         `json:"sprint_id,omitempty"`
}

// Tokens is the access/refresh pair issued by the login endpoint.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// User is the signed-in participant's profile.
type User struct {
	ID     string `json:"_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Team struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
}

type Sprint struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	TeamID    string `json:"team_id,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}
