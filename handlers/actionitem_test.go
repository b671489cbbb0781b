package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CrowderSoup/retro-board/database"
	"github.com/CrowderSoup/retro-board/services"
)

func TestActionItemHooks(t *testing.T) {
	var posted database.ActionItem
	mux := http.NewServeMux()
	mux.HandleFunc("/api/action-item", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&posted)
		created := posted
		created.ID = "a1"
		raw, _ := json.Marshal(created)
		json.NewEncoder(w).Encode(services.Envelope{Code: 200, Data: raw})
	})
	mux.HandleFunc("/api/action-item/a1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(services.Envelope{Code: 200})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	token, err := services.NewAuthService("test").CreateJWT(services.Identity{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	api := services.NewClient(srv.URL+"/api", staticTokens(token),
		services.WithNotifier(services.NotifierFunc(func(slog.Level, string) {})))

	st := memoryStores(t, "u1")
	st.Retro.SetSession(database.RetroSession{ID: "s1"})
	ctx := context.Background()

	if _, err := NewActionItemHooks(st.Retro, api, &fakeRoom{}).Create(ctx, database.ActionItem{Title: "x"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("create without a session: %v", err)
	}

	room := &fakeRoom{id: "s1"}
	hooks := NewActionItemHooks(st.Retro, api, room)

	item, err := hooks.Create(ctx, database.ActionItem{Title: "Fix CI", Status: "todo"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if posted.RetroSessionID != "s1" || item.ID != "a1" {
		t.Fatalf("posted %+v, got %+v", posted, item)
	}
	if items := st.Retro.Get().Session.ActionItems; len(items) != 1 || items[0].ID != "a1" {
		t.Fatalf("store items = %+v", items)
	}
	if room.last(t).event != EventAddActionItem {
		t.Fatalf("expected add-action-item, got %s", room.last(t).event)
	}

	item.Title = "Fix CI for good"
	if _, err := hooks.Edit(ctx, item); services.StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("edit should surface the 500, got %v", err)
	}
	if got := st.Retro.Get().Session.ActionItems[0].Title; got != "Fix CI" {
		t.Fatalf("failed edit must not touch the store, got %q", got)
	}
	if len(room.emitted) != 1 {
		t.Fatalf("failed edit must not be emitted")
	}

	if err := hooks.Delete(ctx, "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(st.Retro.Get().Session.ActionItems) != 0 || room.last(t).event != EventDeleteActionItem {
		t.Fatalf("delete not applied")
	}
}
