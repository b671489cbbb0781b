// Package app assembles the client: persisted stores, the REST client, the
// realtime transport and the session hooks, passed around as one value.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/CrowderSoup/retro-board/config"
	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/handlers"
	"github.com/CrowderSoup/retro-board/services"
	"github.com/CrowderSoup/retro-board/store"
)

const storageTimeout = 5 * time.Second

var timeNow = time.Now

// ErrSignedOut is returned by calls that need a signed-in user.
var ErrSignedOut = errors.New("not signed in")

// App is the client's application state.
type App struct {
	Config *config.Config

	db      *sql.DB
	storage *database.Storage

	Auth  *store.AuthStore
	Users *store.UserStore
	Tasks *store.TaskStore
	Polls *store.PollStore
	Retro *store.RetroStore

	API       *services.Client
	Transport *services.Transport
	Session   *handlers.SessionSync

	Board       *handlers.BoardHooks
	PollHooks   *handlers.PollHooks
	ActionItems *handlers.ActionItemHooks
	Steps       *handlers.StepHooks

	mu        sync.Mutex
	notifier  services.Notifier
	onSignOut func()
}

// New opens the store file under cfg.DataDir and wires every component.
func New(cfg *config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := database.InitDB(cfg.StorePath())
	if err != nil {
		return nil, err
	}
	return newApp(cfg, db, database.NewStorage(db)), nil
}

func newApp(cfg *config.Config, db *sql.DB, storage *database.Storage) *App {
	a := &App{
		Config:  cfg,
		db:      db,
		storage: storage,
		Auth:    store.NewAuthStore(storage),
		Users:   store.NewUserStore(storage),
		Tasks:   store.NewTaskStore(storage, cfg.Columns),
		Polls:   store.NewPollStore(storage),
		Retro:   store.NewRetroStore(storage),
	}

	a.API = services.NewClient(cfg.APIURL, a.Auth,
		services.WithNotifier(services.NotifierFunc(a.notify)),
		services.WithSignOut(a.SignOut))
	a.Transport = services.NewTransport(services.WithReconnect(cfg.ReconnectAttempts, cfg.ReconnectDelay))

	a.Session = handlers.NewSessionSync(a.API, a.Transport, cfg.SocketURL, a.Auth, a.Stores())
	a.Board = handlers.NewBoardHooks(a.Tasks, a.Users, a.Session)
	a.PollHooks = handlers.NewPollHooks(a.Polls, a.Users, a.API, a.Session)
	a.ActionItems = handlers.NewActionItemHooks(a.Retro, a.API, a.Session)
	a.Steps = handlers.NewStepHooks(a.Session)
	return a
}

// Stores returns the store set shared by listeners and hooks.
func (a *App) Stores() handlers.Stores {
	return handlers.Stores{Tasks: a.Tasks, Polls: a.Polls, Retro: a.Retro, Users: a.Users}
}

// Hydrate restores every store from disk. A board with nothing saved is seeded.
func (a *App) Hydrate(ctx context.Context) error {
	type hydrator interface {
		Hydrate(context.Context) (bool, error)
		Name() string
	}
	for _, s := range []hydrator{a.Auth, a.Users, a.Tasks, a.Polls, a.Retro} {
		if _, err := s.Hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate %s: %w", s.Name(), err)
		}
	}
	return nil
}

// SignedIn reports whether an unexpired access token is stored.
func (a *App) SignedIn() bool {
	return a.Auth.AccessToken() != "" && !services.TokenExpired(a.Auth.AccessToken(), timeNow())
}

// Login exchanges an identity-provider token and loads the profile.
func (a *App) Login(ctx context.Context, idToken string) (database.User, error) {
	tokens, err := a.API.LoginGoogle(ctx, idToken)
	if err != nil {
		return database.User{}, fmt.Errorf("login: %w", err)
	}
	a.Auth.SetTokens(tokens)
	return a.RefreshProfile(ctx)
}

// RefreshProfile fetches the signed-in user's profile into the user store.
func (a *App) RefreshProfile(ctx context.Context) (database.User, error) {
	if a.Auth.AccessToken() == "" {
		return database.User{}, ErrSignedOut
	}
	u, err := a.API.Profile(ctx)
	if err != nil {
		return database.User{}, fmt.Errorf("profile: %w", err)
	}
	a.Users.SetProfile(u)
	return u, nil
}

// SetNotifier routes API failure messages to n, typically the TUI toast.
func (a *App) SetNotifier(n services.Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifier = n
}

// OnSignOut registers what happens after the stores are wiped, e.g. returning
// to the sign-in screen.
func (a *App) OnSignOut(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSignOut = fn
}

func (a *App) notify(level slog.Level, message string) {
	a.mu.Lock()
	n := a.notifier
	a.mu.Unlock()
	if n == nil {
		slog.Log(context.Background(), level, message)
		return
	}
	n.Notify(level, message)
}

// SignOut leaves any open session and wipes every persisted store.
func (a *App) SignOut() {
	slog.Info("signing out", "user", a.Users.UserID())
	a.Session.Close()

	a.Auth.Reset()
	a.Users.Reset()
	a.Tasks.Reset()
	a.Polls.Reset()
	a.Retro.Reset()
	if a.storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
		defer cancel()
		if err := a.storage.Clear(ctx); err != nil {
			slog.Warn("clear client storage", "err", err)
		}
	}

	a.mu.Lock()
	fn := a.onSignOut
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Close ends the session and releases the store file.
func (a *App) Close() error {
	a.Session.Close()
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
