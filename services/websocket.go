package services

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024 * 1024 // 1MB
)

// Room control and server-originated events handled by the relay itself.
const (
	EventJoinRoom        = "join-room"
	EventJoinRoomSuccess = "join-room-success"
	EventJoinRoomError   = "join-room-error"
	EventLeaveRoom       = "leave-room"
	EventSetStep         = "set-step"
	EventSetStepSuccess  = "set-step-success"
)

// RoomPayload names the room (retro session) a client joins or leaves.
type RoomPayload struct {
	RetroSessionID string `json:"retroSessionId"`
}

// ErrorPayload explains a refused room operation.
type ErrorPayload struct {
	Message string `json:"message"`
}

// HubClient is one websocket connection to the relay
type HubClient struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string // User identifier
}

type inbound struct {
	client  *HubClient
	message WebSocketMessage
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *HubClient) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Warn("relay websocket error", "user", c.UserID, "err", err)
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))

		var wsMessage WebSocketMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			slog.Warn("relay discarding malformed message", "user", c.UserID, "err", err)
			continue
		}

		// Attribute the event to the authenticated connection, never to the payload
		wsMessage.User = c.UserID

		slog.Debug("relay received", "user", c.UserID, "type", wsMessage.Type)
		select {
		case c.Hub.inbound <- inbound{client: c, message: wsMessage}:
		case <-c.Hub.done:
			return
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *HubClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub fans room events out to the other members of the room. It keeps no
// application data: every event is forwarded as received.
type Hub struct {
	clients    map[*HubClient]string // client -> room id ("" before join)
	rooms      map[string]map[*HubClient]bool
	inbound    chan inbound
	register   chan *HubClient
	unregister chan *HubClient
	stats      chan chan HubStats
	done       chan struct{}
}

// HubStats is a point-in-time view of the hub.
type HubStats struct {
	Clients int            `json:"clients"`
	Rooms   map[string]int `json:"rooms"`
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*HubClient]string),
		rooms:      make(map[string]map[*HubClient]bool),
		inbound:    make(chan inbound),
		register:   make(chan *HubClient),
		unregister: make(chan *HubClient),
		stats:      make(chan chan HubStats),
		done:       make(chan struct{}),
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *HubClient) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *HubClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Stats reports connected clients and room sizes.
func (h *Hub) Stats() HubStats {
	reply := make(chan HubStats, 1)
	select {
	case h.stats <- reply:
		return <-reply
	case <-h.done:
		return HubStats{Rooms: map[string]int{}}
	}
}

// Stop ends Run.
func (h *Hub) Stop() {
	close(h.done)
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case client := <-h.register:
			h.clients[client] = ""
			slog.Info("relay client connected", "user", client.UserID)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				slog.Info("relay client disconnected", "user", client.UserID)
			}
		case reply := <-h.stats:
			st := HubStats{Clients: len(h.clients), Rooms: make(map[string]int, len(h.rooms))}
			for id, members := range h.rooms {
				st.Rooms[id] = len(members)
			}
			reply <- st
		case in := <-h.inbound:
			h.handle(in.client, in.message)
		}
	}
}

func (h *Hub) handle(client *HubClient, msg WebSocketMessage) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	switch msg.Type {
	case "ping":
		// answered here so only the hub goroutine ever writes to client.Send
		h.reply(client, "pong", nil)
	case EventJoinRoom:
		var room RoomPayload
		if err := json.Unmarshal(msg.Data, &room); err != nil || room.RetroSessionID == "" {
			h.reply(client, EventJoinRoomError, ErrorPayload{Message: "retroSessionId is required"})
			return
		}
		h.leave(client)
		h.join(client, room.RetroSessionID)
		h.reply(client, EventJoinRoomSuccess, room)
	case EventLeaveRoom:
		h.leave(client)
	case EventSetStep:
		room := h.clients[client]
		if room == "" {
			return
		}
		msg.Type = EventSetStepSuccess
		h.broadcast(room, msg, nil)
	default:
		room := h.clients[client]
		if room == "" {
			slog.Debug("relay dropping event from client outside any room", "user", client.UserID, "type", msg.Type)
			return
		}
		h.broadcast(room, msg, client)
	}
}

// broadcast sends msg to every member of room except skip.
func (h *Hub) broadcast(room string, msg WebSocketMessage, skip *HubClient) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("relay marshal failed", "type", msg.Type, "err", err)
		return
	}
	slog.Debug("relay broadcasting", "room", room, "type", msg.Type, "from", msg.User)

	for client := range h.rooms[room] {
		if client == skip {
			continue
		}
		h.deliver(client, payload)
	}
}

func (h *Hub) reply(client *HubClient, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	payload, err := json.Marshal(WebSocketMessage{Type: event, Data: raw})
	if err != nil {
		return
	}
	h.deliver(client, payload)
}

func (h *Hub) deliver(client *HubClient, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		// Client's send buffer is full, assume disconnected
		slog.Warn("relay send buffer full, removing client", "user", client.UserID)
		h.remove(client)
	}
}

func (h *Hub) join(client *HubClient, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*HubClient]bool)
		h.rooms[room] = members
	}
	members[client] = true
	h.clients[client] = room
}

func (h *Hub) leave(client *HubClient) {
	room := h.clients[client]
	if room == "" {
		return
	}
	delete(h.rooms[room], client)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	h.clients[client] = ""
}

func (h *Hub) remove(client *HubClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	h.leave(client)
	delete(h.clients, client)
	close(client.Send)
}
