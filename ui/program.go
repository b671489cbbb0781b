package ui

import (
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/CrowderSoup/retro-board/handlers"
	"github.com/CrowderSoup/retro-board/services"
	"github.com/CrowderSoup/retro-board/store"
)

// Toaster is a services.Notifier that shows messages in the running program.
type Toaster struct {
	p *tea.Program
}

func NewToaster(p *tea.Program) *Toaster {
	return &Toaster{p: p}
}

// Notify may be called from inside Update, so it must not block on the program.
func (t *Toaster) Notify(level slog.Level, message string) {
	go t.p.Send(ToastMsg{Level: level, Text: message})
}

// forwarder queues messages for the program in order. Store writes happen on
// the program's own goroutine, so sending inline would deadlock.
type forwarder struct {
	p *tea.Program

	mu     sync.Mutex
	queue  []tea.Msg
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func newForwarder(p *tea.Program) *forwarder {
	f := &forwarder{p: p, wake: make(chan struct{}, 1), done: make(chan struct{})}
	go f.loop()
	return f
}

func (f *forwarder) push(msg tea.Msg) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, msg)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *forwarder) loop() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}
		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		f.mu.Unlock()
		for _, msg := range batch {
			f.p.Send(msg)
		}
	}
}

func (f *forwarder) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
}

// Subscribe forwards every store change to p and primes it with the current
// snapshots. The returned func stops forwarding.
func Subscribe(p *tea.Program, st handlers.Stores) func() {
	f := newForwarder(p)
	offs := []func(){
		st.Tasks.Subscribe(func(b store.BoardState) { f.push(BoardMsg(b)) }),
		st.Polls.Subscribe(func(s store.PollState) { f.push(PollMsg(s)) }),
		st.Retro.Subscribe(func(r store.RetroState) { f.push(RetroMsg(r)) }),
	}
	f.push(BoardMsg(st.Tasks.Get()))
	f.push(PollMsg(st.Polls.Get()))
	return func() {
		for _, off := range offs {
			off()
		}
		f.stop()
	}
}

// Session is everything Run needs to show one retro session.
type Session struct {
	ID     string
	UserID string
	Hooks  Hooks
	Sync   *handlers.SessionSync
	Stores handlers.Stores
	// Toasts, when set, routes API failure messages into the program.
	Toasts interface{ SetNotifier(services.Notifier) }
	// SignOuts, when set, ends the program on a forced sign-out.
	SignOuts interface{ OnSignOut(func()) }
}

// Run shows the session until the user leaves it. The returned error is the
// one that ended the session, if any.
func Run(s Session, opts ...tea.ProgramOption) error {
	m := New(s.ID, s.UserID, s.Hooks, s.Sync.Open)
	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)

	stop := Subscribe(p, s.Stores)
	defer stop()
	if s.Toasts != nil {
		s.Toasts.SetNotifier(NewToaster(p))
		defer s.Toasts.SetNotifier(nil)
	}
	if s.SignOuts != nil {
		s.SignOuts.OnSignOut(func() { go p.Send(SignedOutMsg{}) })
	}
	s.Sync.OnFatal = func(err error) { go p.Send(FatalMsg{Err: err}) }

	final, err := p.Run()
	s.Sync.Close()
	s.Sync.OnFatal = nil
	if err != nil {
		return err
	}
	if fm, ok := final.(Model); ok {
		return fm.Err()
	}
	return nil
}
