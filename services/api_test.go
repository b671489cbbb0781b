package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CrowderSoup/retro-board/database"
)

type staticTokens string

func (s staticTokens) AccessToken() string { return string(s) }

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ slog.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, code int, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Envelope{Code: code, Data: raw, Msg: "ok"})
}

func validToken(t *testing.T) string {
	return signedToken(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()})
}

func TestErrorMessageTable(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 406, 410, 422, 500, 502, 503, 504} {
		msg := ErrorMessage(status)
		if msg == "" || msg == MsgGeneric {
			t.Fatalf("status %d should have a canned message, got %q", status, msg)
		}
		if msg != statusMessages[status] {
			t.Fatalf("status %d: got %q want %q", status, msg, statusMessages[status])
		}
	}
	for _, status := range []int{0, 302, 405, 409, 418, 501} {
		if got := ErrorMessage(status); got != MsgGeneric {
			t.Fatalf("status %d should fall back, got %q", status, got)
		}
	}
}

func TestExpiredTokenNeverDispatches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	var signOuts atomic.Int32
	notes := &recordingNotifier{}
	expired := signedToken(t, jwt.MapClaims{"exp": 1})
	c := NewClient(srv.URL, staticTokens(expired),
		WithSignOut(func() { signOuts.Add(1) }),
		WithNotifier(notes))

	env, err := c.Request(context.Background(), "/user/profile", RequestOptions{})
	if env != nil {
		t.Fatalf("expected no envelope")
	}
	if StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401-shaped error, got %v", err)
	}
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired in chain, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("request must not reach the server")
	}
	if signOuts.Load() != 1 {
		t.Fatalf("expected exactly one sign-out, got %d", signOuts.Load())
	}
	if got := notes.all(); len(got) != 1 || got[0] != ErrorMessage(401) {
		t.Fatalf("expected a single 401 toast, got %v", got)
	}
}

func TestNoAuthSkipsExpiryCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("no-auth request carried an Authorization header")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["token"] != "id-token" {
			t.Errorf("unexpected body %v", body)
		}
		writeEnvelope(t, w, 200, database.Tokens{AccessToken: "a", RefreshToken: "r"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticTokens(""), WithSignOut(func() { t.Errorf("unexpected sign-out") }))
	tokens, err := c.LoginGoogle(context.Background(), "id-token")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken != "a" || tokens.RefreshToken != "r" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
}

func TestRequestAttachesBearerAndParams(t *testing.T) {
	token := validToken(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+token {
			t.Errorf("unexpected auth header %q", got)
		}
		if r.URL.Path != "/api/action-item" || r.URL.Query().Get("retro_session_id") != "s1" {
			t.Errorf("unexpected url %s", r.URL)
		}
		writeEnvelope(t, w, 200, []database.ActionItem{{ID: "a1", Title: "t"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", staticTokens(token))
	items, err := c.ListActionItems(context.Background(), "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a1" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestHTTPFailuresMapToMessages(t *testing.T) {
	tests := []struct {
		status  int
		signOut bool
	}{
		{status: http.StatusNotFound, signOut: false},
		{status: http.StatusUnprocessableEntity, signOut: false},
		{status: http.StatusInternalServerError, signOut: false},
		{status: http.StatusTeapot, signOut: false},
		{status: http.StatusUnauthorized, signOut: true},
		{status: http.StatusForbidden, signOut: true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			var signOuts atomic.Int32
			notes := &recordingNotifier{}
			c := NewClient(srv.URL, staticTokens(validToken(t)),
				WithSignOut(func() { signOuts.Add(1) }),
				WithNotifier(notes))

			_, err := c.GetRetroSession(context.Background(), "s1")
			if StatusOf(err) != tt.status {
				t.Fatalf("expected status %d, got %v", tt.status, err)
			}
			if got := notes.all(); len(got) != 1 || got[0] != ErrorMessage(tt.status) {
				t.Fatalf("expected one toast %q, got %v", ErrorMessage(tt.status), got)
			}
			if (signOuts.Load() == 1) != tt.signOut {
				t.Fatalf("sign-out count %d, want signOut=%v", signOuts.Load(), tt.signOut)
			}
		})
	}
}

func TestNetworkFailureSignsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	var signOuts atomic.Int32
	notes := &recordingNotifier{}
	c := NewClient(url, staticTokens(validToken(t)),
		WithSignOut(func() { signOuts.Add(1) }),
		WithNotifier(notes))

	_, err := c.Request(context.Background(), "/teams", RequestOptions{})
	if err == nil || StatusOf(err) != 0 {
		t.Fatalf("expected transport error, got %v", err)
	}
	if got := notes.all(); len(got) != 1 || got[0] != MsgNetworkError {
		t.Fatalf("expected network toast, got %v", got)
	}
	if signOuts.Load() != 1 {
		t.Fatalf("expected sign-out on network failure")
	}
}

func TestCancelledRequestResolvesToNil(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	notes := &recordingNotifier{}
	c := NewClient(srv.URL, staticTokens(validToken(t)),
		WithNotifier(notes),
		WithSignOut(func() { t.Errorf("cancel must not sign out") }))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	env, err := c.Request(ctx, "/sprints", RequestOptions{})
	if env != nil || err != nil {
		t.Fatalf("cancelled request should resolve to (nil, nil), got %v, %v", env, err)
	}
	if len(notes.all()) != 0 {
		t.Fatalf("cancel must not toast")
	}
}

func TestEnvelopeCodeChecked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Envelope{Code: 404, Msg: "session missing"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticTokens(validToken(t)))
	_, err := c.GetRetroSession(context.Background(), "gone")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "session missing" {
		t.Fatalf("expected envelope message to be kept, got %v", err)
	}
}
