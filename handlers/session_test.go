package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/services"
	"github.com/CrowderSoup/retro-board/store"
)

type staticTokens string

func (s staticTokens) AccessToken() string { return string(s) }

// backend serves a fake REST API and the real relay under /api.
type backend struct {
	apiURL    string
	socketURL string
	auth      *services.AuthService
	hub       *services.Hub
	srv       *httptest.Server
	conns     *connRecorder
}

// connRecorder keeps the raw connection behind every websocket upgrade so a
// test can cut it from the server side.
type connRecorder struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (c *connRecorder) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&hijackWriter{ResponseWriter: w, rec: c}, r)
	})
}

func (c *connRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// drop closes the i-th recorded connection.
func (c *connRecorder) drop(t *testing.T, i int) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.conns) {
		t.Fatalf("no connection %d, have %d", i, len(c.conns))
	}
	c.conns[i].Close()
}

type hijackWriter struct {
	http.ResponseWriter
	rec *connRecorder
}

func (w *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(w.ResponseWriter).Hijack()
	if err == nil {
		w.rec.mu.Lock()
		w.rec.conns = append(w.rec.conns, conn)
		w.rec.mu.Unlock()
	}
	return conn, rw, err
}

func (w *hijackWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func newBackend(t *testing.T, sessions map[string]database.RetroSession) *backend {
	t.Helper()
	auth := services.NewAuthService("test-secret")
	hub := services.NewHub()
	go hub.Run()

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/retro-session/{id}", func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessions[mux.Vars(r)["id"]]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		data, _ := json.Marshal(sess)
		json.NewEncoder(w).Encode(services.Envelope{Code: 200, Data: data, Msg: "ok"})
	}).Methods(http.MethodGet)

	relay := NewRelayHandler(hub)
	conns := &connRecorder{}
	api.Handle("/ws", conns.wrap(NewAuthMiddleware(auth).Auth(http.HandlerFunc(relay.HandleWebSocket))))
	api.HandleFunc("/health", relay.Health)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})

	socketURL, err := services.SocketURL(srv.URL + "/api")
	if err != nil {
		t.Fatalf("socket url: %v", err)
	}
	return &backend{apiURL: srv.URL + "/api", socketURL: socketURL, auth: auth, hub: hub, srv: srv, conns: conns}
}

func (b *backend) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := b.auth.CreateJWT(services.Identity{UserID: user, Email: user + "@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func (b *backend) session(t *testing.T, user string, st Stores) *SessionSync {
	t.Helper()
	tokens := staticTokens(b.token(t, user))
	client := services.NewClient(b.apiURL, tokens)
	return NewSessionSync(client, services.NewTransport(services.WithReconnect(1, 0)), b.socketURL, tokens, st)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fixtureSession() database.RetroSession {
	return database.RetroSession{
		ID:   "s1",
		Name: "Sprint 12",
		Step: 1,
		Plans: []database.Plan{
			{ID: "p2", Title: "second", Status: "keep", Position: 1},
			{ID: "p1", Title: "first", Status: "keep", Position: 0},
		},
		Questions: []database.PollQuestion{{ID: "q1", Options: []database.Option{{ID: "o1"}, {ID: "o2"}}}},
	}
}

func TestSessionOpenSyncsRoom(t *testing.T) {
	be := newBackend(t, map[string]database.RetroSession{"s1": fixtureSession()})

	aliceStores := memoryStores(t, "alice")
	alice := be.session(t, "alice", aliceStores)
	if err := alice.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("alice open: %v", err)
	}
	defer alice.Close()

	state := aliceStores.Retro.Get()
	if state.Status != store.SyncReady || state.Session == nil || state.Session.Name != "Sprint 12" {
		t.Fatalf("unexpected retro state %+v", state)
	}
	if tasks := aliceStores.Tasks.Get().TasksIn(database.StatusKeep); len(tasks) != 2 || tasks[0].ID != "p1" {
		t.Fatalf("plans not loaded in position order: %+v", tasks)
	}
	if len(aliceStores.Polls.Get().Questions) != 1 {
		t.Fatalf("questions not loaded")
	}

	bobStores := memoryStores(t, "bob")
	bob := be.session(t, "bob", bobStores)
	if err := bob.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("bob open: %v", err)
	}
	defer bob.Close()

	eventually(t, "both in the room", func() bool { return be.hub.Stats().Rooms["s1"] == 2 })

	board := NewBoardHooks(bobStores.Tasks, bobStores.Users, bob)
	task, err := board.AddPlan("from bob", "", database.StatusImprove)
	if err != nil {
		t.Fatalf("add plan: %v", err)
	}
	eventually(t, "alice sees bob's card", func() bool {
		_, ok := aliceStores.Tasks.Get().Task(task.ID)
		return ok
	})

	polls := NewPollHooks(aliceStores.Polls, aliceStores.Users, nil, alice)
	if err := polls.Vote("q1", "o2"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	eventually(t, "bob sees alice's vote", func() bool {
		return bobStores.Polls.Get().SelectedOption("q1", "alice") == "o2"
	})

	if err := NewStepHooks(bob).SetStep(2); err != nil {
		t.Fatalf("set step: %v", err)
	}
	for name, st := range map[string]Stores{"alice": aliceStores, "bob": bobStores} {
		st := st
		eventually(t, name+" on step 2", func() bool {
			s := st.Retro.Get().Session
			return s != nil && s.Step == 2
		})
	}
}

func TestSessionOpenNotFound(t *testing.T) {
	be := newBackend(t, map[string]database.RetroSession{})
	st := memoryStores(t, "alice")
	ss := be.session(t, "alice", st)

	err := ss.Open(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	state := st.Retro.Get()
	if state.Status != store.SyncError || state.Session != nil {
		t.Fatalf("unexpected state %+v", state)
	}
	if ss.SessionID() != "" {
		t.Fatalf("no session should be open")
	}
}

func TestSessionClose(t *testing.T) {
	be := newBackend(t, map[string]database.RetroSession{"s1": fixtureSession()})
	st := memoryStores(t, "alice")
	ss := be.session(t, "alice", st)
	if err := ss.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	eventually(t, "joined", func() bool { return be.hub.Stats().Rooms["s1"] == 1 })

	ss.Close()
	state := st.Retro.Get()
	if state.Status != store.SyncClosed || state.Session != nil {
		t.Fatalf("unexpected state after close %+v", state)
	}
	if err := ss.Emit("add-plan", Ref{ID: "x"}); !errors.Is(err, services.ErrNotConnected) {
		t.Fatalf("emit after close should fail, got %v", err)
	}
	eventually(t, "room empty", func() bool { return be.hub.Stats().Clients == 0 })
}

func TestSessionJoinErrorIsFatal(t *testing.T) {
	sessions := map[string]database.RetroSession{"s1": fixtureSession()}
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal(sessions["s1"])
		json.NewEncoder(w).Encode(services.Envelope{Code: 200, Data: data})
	}))
	defer apiSrv.Close()

	// a relay that refuses every join
	upgrader := websocket.Upgrader{}
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			data, _ := json.Marshal(services.ErrorPayload{Message: "room is locked"})
			reply, _ := json.Marshal(services.WebSocketMessage{Type: services.EventJoinRoomError, Data: data})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}))
	defer wsSrv.Close()

	be := &backend{auth: services.NewAuthService("test-secret")}
	tokens := staticTokens(be.token(t, "alice"))
	st := memoryStores(t, "alice")
	ss := NewSessionSync(
		services.NewClient(apiSrv.URL, tokens),
		services.NewTransport(),
		"ws"+strings.TrimPrefix(wsSrv.URL, "http"),
		tokens, st)

	var mu sync.Mutex
	var fatal error
	ss.OnFatal = func(err error) {
		mu.Lock()
		defer mu.Unlock()
		fatal = err
	}

	ss.Open(context.Background(), "s1")
	eventually(t, "fatal callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fatal != nil
	})
	mu.Lock()
	got := fatal
	mu.Unlock()
	if !strings.Contains(got.Error(), "room is locked") {
		t.Fatalf("unexpected fatal error %v", got)
	}
	state := st.Retro.Get()
	if state.Status != store.SyncError || state.Session != nil {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestSessionRejoinsAfterReconnect(t *testing.T) {
	be := newBackend(t, map[string]database.RetroSession{"s1": fixtureSession()})

	aliceStores := memoryStores(t, "alice")
	alice := be.session(t, "alice", aliceStores)
	if err := alice.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("alice open: %v", err)
	}
	defer alice.Close()
	eventually(t, "alice joined", func() bool { return be.hub.Stats().Rooms["s1"] == 1 })

	bobStores := memoryStores(t, "bob")
	bob := be.session(t, "bob", bobStores)
	if err := bob.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("bob open: %v", err)
	}
	defer bob.Close()
	eventually(t, "both in the room", func() bool { return be.hub.Stats().Rooms["s1"] == 2 })

	// alice dialed first
	be.conns.drop(t, 0)
	eventually(t, "alice back in the room", func() bool {
		st := be.hub.Stats()
		return be.conns.count() == 3 && st.Clients == 2 && st.Rooms["s1"] == 2
	})
	if st := aliceStores.Retro.Get(); st.Status != store.SyncReady || st.Session == nil {
		t.Fatalf("a reconnect must keep the session, got %+v", st)
	}

	if err := NewStepHooks(bob).SetStep(3); err != nil {
		t.Fatalf("set step: %v", err)
	}
	eventually(t, "alice receives set-step-success", func() bool {
		s := aliceStores.Retro.Get().Session
		return s != nil && s.Step == 3
	})

	task, err := NewBoardHooks(aliceStores.Tasks, aliceStores.Users, alice).AddPlan("after the drop", "", database.StatusKeep)
	if err != nil {
		t.Fatalf("add plan: %v", err)
	}
	eventually(t, "bob sees alice's card", func() bool {
		_, ok := bobStores.Tasks.Get().Task(task.ID)
		return ok
	})
}

func TestSessionReconnectFailedIsFatal(t *testing.T) {
	be := newBackend(t, map[string]database.RetroSession{"s1": fixtureSession()})
	st := memoryStores(t, "alice")
	ss := be.session(t, "alice", st)

	fatal := make(chan error, 1)
	ss.OnFatal = func(err error) { fatal <- err }
	if err := ss.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	eventually(t, "joined", func() bool { return be.hub.Stats().Rooms["s1"] == 1 })

	// nothing to reconnect to
	be.srv.Close()
	be.conns.drop(t, 0)

	select {
	case err := <-fatal:
		if !strings.Contains(err.Error(), "lost connection") {
			t.Fatalf("unexpected fatal error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnFatal was not called")
	}
	state := st.Retro.Get()
	if state.Status != store.SyncError || state.Session != nil {
		t.Fatalf("unexpected state %+v", state)
	}
	if ss.SessionID() != "" {
		t.Fatalf("session should be dropped")
	}
	if err := ss.Emit("add-plan", Ref{ID: "x"}); !errors.Is(err, services.ErrNotConnected) {
		t.Fatalf("emit after a failed reconnect should fail, got %v", err)
	}
}
