// Package ui is the terminal front-end of a retro session. It follows the Elm
// architecture of bubbletea: store changes and hook results arrive as messages,
// Update folds them into the Model and View renders it.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/handlers"
	"github.com/CrowderSoup/retro-board/store"
)

// screen is what the model is currently showing
type screen int

const (
	screenLoading screen = iota
	screenBoard
	screenPolls
	screenActions
	screenNotFound
	screenError
	screenSignedOut
)

// ErrSignedOut ends the program when the stored credentials were wiped.
var ErrSignedOut = errors.New("signed out")

const toastTTL = 4 * time.Second

// Hooks are the session actions the views can trigger.
type Hooks struct {
	Board       *handlers.BoardHooks
	Polls       *handlers.PollHooks
	ActionItems *handlers.ActionItemHooks
	Steps       *handlers.StepHooks
}

// Opener loads a session and joins its room.
type Opener func(ctx context.Context, id string) error

// Messages fed into the program from outside.
type (
	BoardMsg store.BoardState
	PollMsg  store.PollState
	RetroMsg store.RetroState

	// ToastMsg shows a transient notice.
	ToastMsg struct {
		Level slog.Level
		Text  string
	}

	// FatalMsg switches to the error dialog.
	FatalMsg struct{ Err error }

	// SignedOutMsg reports that the credentials were wiped.
	SignedOutMsg struct{}
)

type openedMsg struct{ err error }

// hookDoneMsg carries the result of a hook that talks to the API.
type hookDoneMsg struct{ err error }

type clearToastMsg struct{ id int }

type editMode int

const (
	editNone editMode = iota
	editAdd
	editTitle
	editColumn
	editQuestion
	editQuestionText
	editAction
	editActionTitle
	editInsights
	editRadar
)

type toast struct {
	id    int
	level slog.Level
	text  string
}

// Model is the session screen.
type Model struct {
	hooks     Hooks
	open      Opener
	sessionID string
	userID    string

	screen screen
	board  store.BoardState
	polls  store.PollState
	retro  store.RetroState

	// board cursor: column index and card index inside it
	col, row int
	// poll cursor
	question int
	// action item cursor
	action int

	mode   editMode
	editID string
	input  textinput.Model

	toast   toast
	toastID int
	fatal   error

	width, height int
}

// New builds the model for one session. open may be nil when the caller has
// already opened the session.
func New(sessionID, userID string, hooks Hooks, open Opener) Model {
	in := textinput.New()
	in.CharLimit = 200
	return Model{
		hooks:     hooks,
		open:      open,
		sessionID: sessionID,
		userID:    userID,
		screen:    screenLoading,
		input:     in,
	}
}

func (m Model) Init() tea.Cmd {
	if m.open == nil {
		return nil
	}
	open, id := m.open, m.sessionID
	return func() tea.Msg {
		return openedMsg{err: open(context.Background(), id)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case BoardMsg:
		m.board = store.BoardState(msg)
		m.clampCursor()
		return m, nil

	case PollMsg:
		m.polls = store.PollState(msg)
		m.question = clamp(m.question, len(m.polls.Questions))
		return m, nil

	case RetroMsg:
		return m.applyRetro(store.RetroState(msg)), nil

	case openedMsg:
		switch {
		case msg.err == nil:
		case errors.Is(msg.err, handlers.ErrSessionNotFound):
			m.screen = screenNotFound
		case m.screen != screenError:
			m.fatal = msg.err
			m.screen = screenError
		}
		return m, nil

	case FatalMsg:
		if m.screen == screenSignedOut {
			return m, nil
		}
		m.fatal = msg.Err
		m.screen = screenError
		return m, nil

	case SignedOutMsg:
		m.mode = editNone
		m.input.Blur()
		m.screen = screenSignedOut
		return m, nil

	case hookDoneMsg:
		return m.report(msg.err)

	case ToastMsg:
		return m.showToast(msg.Level, msg.Text)

	case clearToastMsg:
		if msg.id == m.toast.id {
			m.toast = toast{}
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.mode != editNone {
			return m.updateInput(msg)
		}
		switch m.screen {
		case screenBoard:
			return m.updateBoard(msg)
		case screenPolls:
			return m.updatePolls(msg)
		case screenActions:
			return m.updateActions(msg)
		case screenNotFound, screenError, screenSignedOut:
			// the single recovery action: leave the session
			if msg.Type == tea.KeyEnter || msg.String() == "q" || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
		case screenLoading:
			if msg.String() == "q" {
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m Model) applyRetro(r store.RetroState) Model {
	m.retro = r
	m.action = clamp(m.action, len(m.actionItems()))
	if m.screen == screenSignedOut {
		return m
	}
	switch r.Status {
	case store.SyncReady:
		if m.screen == screenLoading {
			m.screen = screenBoard
		}
	case store.SyncError:
		if r.Error == handlers.ErrSessionNotFound.Error() {
			m.screen = screenNotFound
		} else {
			m.fatal = errors.New(r.Error)
			m.screen = screenError
		}
	}
	return m
}

func (m Model) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cols := m.board.Columns
	if len(cols) == 0 {
		return m, nil
	}
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		m.screen = screenPolls
	case "left", "h":
		m.col = (m.col + len(cols) - 1) % len(cols)
		m.clampCursor()
	case "right", "l":
		m.col = (m.col + 1) % len(cols)
		m.clampCursor()
	case "up", "k":
		if m.row > 0 {
			m.row--
		}
	case "down", "j":
		if m.row < len(m.cards())-1 {
			m.row++
		}
	case "a":
		return m.startInput(editAdd, "", "")
	case "e":
		if card, ok := m.selected(); ok {
			return m.startInput(editTitle, card.ID, card.Title)
		}
	case "C":
		return m.startInput(editColumn, "", "")
	case "d", "x":
		if card, ok := m.selected(); ok {
			return m.report(m.hooks.Board.DeletePlan(card.ID))
		}
	case "+", "=":
		if card, ok := m.selected(); ok {
			return m.report(m.hooks.Board.VotePlan(card.ID, true))
		}
	case "-":
		if card, ok := m.selected(); ok {
			return m.report(m.hooks.Board.VotePlan(card.ID, false))
		}
	case "H", "<":
		return m.moveCard(-1)
	case "L", ">":
		return m.moveCard(1)
	case "K":
		return m.shiftCard(-1)
	case "J":
		return m.shiftCard(1)
	case "[":
		return m.report(m.hooks.Steps.SetStep(m.step() - 1))
	case "]":
		return m.report(m.hooks.Steps.SetStep(m.step() + 1))
	}
	return m, nil
}

// moveCard drops the selected card at the end of the neighbouring column.
func (m Model) moveCard(dir int) (tea.Model, tea.Cmd) {
	card, ok := m.selected()
	if !ok {
		return m, nil
	}
	target := m.col + dir
	if target < 0 || target >= len(m.board.Columns) {
		return m, nil
	}
	status := database.TaskStatus(m.board.Columns[target].ID)
	index := len(m.board.TasksIn(status))
	err := m.hooks.Board.Drop(card.ID, status, index)
	m.col, m.row = target, index
	return m.report(err)
}

// shiftCard reorders the selected card inside its column.
func (m Model) shiftCard(dir int) (tea.Model, tea.Cmd) {
	card, ok := m.selected()
	if !ok {
		return m, nil
	}
	index := m.row + dir
	if index < 0 || index >= len(m.cards()) {
		return m, nil
	}
	err := m.hooks.Board.Drop(card.ID, card.Status, index)
	m.row = index
	return m.report(err)
}

func (m Model) updatePolls(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q":
		return m, tea.Quit
	case "tab":
		m.screen = screenActions
		return m, nil
	case "up", "k":
		if m.question > 0 {
			m.question--
		}
		return m, nil
	case "n":
		return m.startInput(editQuestion, "", "")
	case "r":
		return m, m.runHook(m.hooks.Polls.Refresh)
	case "e":
		if q, ok := m.selectedQuestion(); ok {
			return m.startInput(editQuestionText, q.ID, q.Text)
		}
		return m, nil
	case "d", "x":
		if q, ok := m.selectedQuestion(); ok {
			return m.report(m.hooks.Polls.DeleteQuestion(q.ID))
		}
		return m, nil
	case "down", "j":
		if m.question < len(m.polls.Questions)-1 {
			m.question++
		}
		return m, nil
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' && len(m.polls.Questions) > 0 {
		q := m.polls.Questions[m.question]
		i := int(key[0] - '1')
		if i < len(q.Options) {
			return m.report(m.hooks.Polls.Vote(q.ID, q.Options[i].ID))
		}
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode, m.editID = editNone, ""
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		mode, id := m.mode, m.editID
		m.mode, m.editID = editNone, ""
		m.input.Blur()
		m.input.Reset()
		if value == "" {
			return m, nil
		}
		return m.submit(mode, id, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) startInput(mode editMode, id, value string) (tea.Model, tea.Cmd) {
	m.mode, m.editID = mode, id
	m.input.Reset()
	m.input.Placeholder = placeholders[mode]
	m.input.SetValue(value)
	return m, m.input.Focus()
}

// runHook runs fn off the event loop; its error comes back as a toast.
func (m Model) runHook(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return hookDoneMsg{err: fn(context.Background())}
	}
}

// report surfaces a hook error as a toast. Local state already changed.
func (m Model) report(err error) (tea.Model, tea.Cmd) {
	if err == nil {
		return m, nil
	}
	return m.showToast(slog.LevelWarn, err.Error())
}

func (m Model) showToast(level slog.Level, text string) (tea.Model, tea.Cmd) {
	m.toastID++
	m.toast = toast{id: m.toastID, level: level, text: text}
	id := m.toastID
	return m, tea.Tick(toastTTL, func(time.Time) tea.Msg { return clearToastMsg{id: id} })
}

func (m Model) cards() []database.Task {
	if m.col >= len(m.board.Columns) {
		return nil
	}
	return m.board.TasksIn(database.TaskStatus(m.board.Columns[m.col].ID))
}

func (m Model) selected() (database.Task, bool) {
	cards := m.cards()
	if m.row < 0 || m.row >= len(cards) {
		return database.Task{}, false
	}
	return cards[m.row], true
}

func (m *Model) clampCursor() {
	m.col = clamp(m.col, len(m.board.Columns))
	m.row = clamp(m.row, len(m.cards()))
}

func (m Model) selectedQuestion() (database.PollQuestion, bool) {
	if m.question < 0 || m.question >= len(m.polls.Questions) {
		return database.PollQuestion{}, false
	}
	return m.polls.Questions[m.question], true
}

func (m Model) step() int {
	if m.retro.Session == nil {
		return database.MinStep
	}
	return m.retro.Session.Step
}

// clamp keeps i inside [0, n).
func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Err returns the error that ended the session, if any.
func (m Model) Err() error {
	switch m.screen {
	case screenNotFound:
		return fmt.Errorf("session %s: %w", m.sessionID, handlers.ErrSessionNotFound)
	case screenSignedOut:
		return ErrSignedOut
	}
	return m.fatal
}
