package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CrowderSoup/retro-board/services"
	"github.com/CrowderSoup/retro-board/store"
)

// SessionSync drives one retro session view through
// idle -> fetching -> ready -> error/closed. It fills the stores from REST,
// joins the session's room and keeps the listener table attached while open.
type SessionSync struct {
	api       *services.Client
	transport *services.Transport
	socketURL string
	tokens    services.TokenSource
	stores    Stores

	// OnFatal runs after the view fell into the error state: a failed join or a
	// reconnect cycle that gave up. The UI shows its dialog and navigates away.
	OnFatal func(error)

	// lifecycle orders the ready transition against fail
	lifecycle sync.Mutex

	mu        sync.Mutex
	socket    *services.Socket
	sessionID string
	offs      []func()
}

func NewSessionSync(api *services.Client, transport *services.Transport, socketURL string, tokens services.TokenSource, stores Stores) *SessionSync {
	return &SessionSync{
		api:       api,
		transport: transport,
		socketURL: socketURL,
		tokens:    tokens,
		stores:    stores,
	}
}

// SessionID returns the id of the open session, or "".
func (s *SessionSync) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Emit sends an event to the room. Events are dropped with ErrNotConnected while
// the socket is down; the caller's local change stays applied either way.
func (s *SessionSync) Emit(event string, payload any) error {
	s.mu.Lock()
	socket := s.socket
	s.mu.Unlock()

	if socket == nil {
		slog.Warn("emit without an open session", "event", event)
		return services.ErrNotConnected
	}
	if err := socket.Emit(event, payload); err != nil {
		slog.Warn("room event dropped", "event", event, "err", err)
		return err
	}
	return nil
}

// Open fetches the session, populates the stores and joins its room. A missing
// session yields ErrSessionNotFound. A cancelled ctx leaves the view idle.
func (s *SessionSync) Open(ctx context.Context, id string) error {
	s.Close()
	retro := s.stores.Retro
	retro.SetStatus(store.SyncFetching, "")

	sess, err := s.api.GetRetroSession(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			retro.SetStatus(store.SyncIdle, "")
			return err
		case services.IsNotFound(err):
			retro.Clear()
			retro.SetStatus(store.SyncError, ErrSessionNotFound.Error())
			return fmt.Errorf("open %s: %w", id, ErrSessionNotFound)
		default:
			retro.Clear()
			retro.SetStatus(store.SyncError, err.Error())
			return fmt.Errorf("open %s: %w", id, err)
		}
	}

	retro.SetSession(sess)
	s.stores.Tasks.ReplaceFromPlans(sess.Plans)
	s.stores.Polls.SetQuestions(sess.Questions)

	socket, err := s.transport.Connect(ctx, s.socketURL, services.ConnectOptions{
		AccessToken: s.tokens.AccessToken(),
	})
	if err != nil {
		if socket != nil {
			socket.Disconnect()
		}
		s.fail(fmt.Errorf("connect to room: %w", err))
		return err
	}

	s.mu.Lock()
	s.socket = socket
	s.sessionID = sess.ID
	s.offs = append(s.offs,
		RegisterListeners(socket, s.stores),
		socket.On(services.EventJoinRoomError, s.onJoinError),
		socket.On(services.EventReconnectFailed, func(services.WebSocketMessage) {
			s.fail(errors.New("lost connection to the room"))
		}),
		// the relay forgets memberships when a connection drops
		socket.On(services.EventReconnect, func(services.WebSocketMessage) { s.join() }),
	)
	s.mu.Unlock()

	if err := s.join(); err != nil {
		s.fail(fmt.Errorf("join room: %w", err))
		return err
	}
	s.lifecycle.Lock()
	if s.SessionID() != sess.ID {
		// a join-room-error already failed the session
		s.lifecycle.Unlock()
		return ErrNoSession
	}
	retro.SetStatus(store.SyncReady, "")
	s.lifecycle.Unlock()
	slog.Info("session open", "session", sess.ID, "plans", len(sess.Plans), "questions", len(sess.Questions))
	return nil
}

func (s *SessionSync) join() error {
	id := s.SessionID()
	if id == "" {
		return ErrNoSession
	}
	return s.Emit(services.EventJoinRoom, services.RoomPayload{RetroSessionID: id})
}

func (s *SessionSync) onJoinError(msg services.WebSocketMessage) {
	var p services.ErrorPayload
	if err := msg.Decode(&p); err != nil || p.Message == "" {
		p.Message = "could not join the session room"
	}
	s.fail(errors.New(p.Message))
}

// fail drops the session, tears the socket down and hands err to OnFatal.
func (s *SessionSync) fail(err error) {
	slog.Error("session sync failed", "session", s.SessionID(), "err", err)
	s.lifecycle.Lock()
	s.teardown(false)
	s.stores.Retro.Clear()
	s.stores.Retro.SetStatus(store.SyncError, err.Error())
	s.lifecycle.Unlock()
	if s.OnFatal != nil {
		s.OnFatal(err)
	}
}

// Close leaves the room, disconnects and clears the session store.
func (s *SessionSync) Close() {
	if !s.teardown(true) {
		return
	}
	s.stores.Retro.Clear()
	s.stores.Retro.SetStatus(store.SyncClosed, "")
}

// teardown detaches handlers and closes the socket. It reports whether a
// session was open.
func (s *SessionSync) teardown(leave bool) bool {
	s.mu.Lock()
	socket, id, offs := s.socket, s.sessionID, s.offs
	s.socket, s.sessionID, s.offs = nil, "", nil
	s.mu.Unlock()

	for _, off := range offs {
		off()
	}
	if socket == nil {
		return id != ""
	}
	if leave {
		if err := socket.Emit(services.EventLeaveRoom, services.RoomPayload{RetroSessionID: id}); err != nil {
			slog.Debug("leave-room not sent", "session", id, "err", err)
		}
	}
	socket.Disconnect()
	return true
}
