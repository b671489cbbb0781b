package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/retro-board/services"
)

// RelayHandler serves the dev relay: websocket upgrades into the room hub and a
// health endpoint.
type RelayHandler struct {
	hub      *services.Hub
	upgrader websocket.Upgrader
}

func NewRelayHandler(hub *services.Hub) *RelayHandler {
	return &RelayHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}
}

// HandleWebSocket upgrades the HTTP connection to a WebSocket connection
func (h *RelayHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("relay upgrade failed", "user", id.UserID, "err", err)
		return
	}

	// Several connections per user are fine: one per terminal or device
	client := &services.HubClient{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: id.UserID,
	}

	h.hub.Register(client)

	// Start goroutines for reading and writing
	go client.WritePump()
	go client.ReadPump()
}

// Health reports hub occupancy.
func (h *RelayHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"hub":    h.hub.Stats(),
	})
}
