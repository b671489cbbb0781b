package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Lifecycle pseudo-events delivered to handlers alongside application events.
const (
	EventConnect        = "connect"
	EventDisconnect     = "disconnect"
	EventConnectError   = "connect_error"
	EventReconnect      = "reconnect"
	EventReconnectError = "reconnect_error"

	// EventReconnectFailed fires once when a reconnect cycle spends its budget.
	EventReconnectFailed = "reconnect_failed"
)

const (
	defaultReconnectAttempts = 3
	defaultReconnectDelay    = 2 * time.Second
	sendBufferSize           = 256
)

// WebSocketMessage is the envelope exchanged with the relay. Delivery is
// at-most-once: nothing is acknowledged, queued while offline or replayed after
// a reconnect, and participants may observe events in different orders.
type WebSocketMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	User string          `json:"user,omitempty"`
}

// Decode unmarshals the payload into v.
func (m WebSocketMessage) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}

// Handler receives one event.
type Handler func(WebSocketMessage)

// ConnectOptions carries the handshake credentials.
type ConnectOptions struct {
	AccessToken string
}

// SocketURL derives the websocket endpoint from the REST base, e.g.
// https://host/api -> wss://host/api/ws.
func SocketURL(apiBase string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Transport hands out one Socket per URL.
type Transport struct {
	dialer      *websocket.Dialer
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	sockets map[string]*Socket
}

// TransportOption customizes a Transport.
type TransportOption func(*Transport)

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) TransportOption {
	return func(t *Transport) {
		if d != nil {
			t.dialer = d
		}
	}
}

// WithReconnect sets the retry budget and the fixed delay between attempts.
func WithReconnect(attempts int, delay time.Duration) TransportOption {
	return func(t *Transport) {
		if attempts > 0 {
			t.maxAttempts = attempts
		}
		if delay >= 0 {
			t.retryDelay = delay
		}
	}
}

// WithSocketLogger routes socket lifecycle logs to l.
func WithSocketLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		dialer:      websocket.DefaultDialer,
		maxAttempts: defaultReconnectAttempts,
		retryDelay:  defaultReconnectDelay,
		logger:      slog.Default(),
		sockets:     make(map[string]*Socket),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect returns the socket for rawURL, dialing only when it is not already
// connected. A failed dial still returns the handle so callers can keep their
// handlers registered on it.
func (t *Transport) Connect(ctx context.Context, rawURL string, opts ConnectOptions) (*Socket, error) {
	t.mu.Lock()
	s, ok := t.sockets[rawURL]
	if !ok {
		s = &Socket{
			url:       rawURL,
			transport: t,
			logger:    t.logger.With("url", rawURL),
			handlers:  make(map[string][]handlerEntry),
		}
		t.sockets[rawURL] = s
	}
	t.mu.Unlock()

	if s.IsConnected() {
		return s, nil
	}
	s.mu.Lock()
	s.token = opts.AccessToken
	s.closed = false
	s.mu.Unlock()

	return s, s.connect(ctx, false)
}

func (t *Transport) forget(s *Socket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sockets[s.url] == s {
		delete(t.sockets, s.url)
	}
}

type handlerEntry struct {
	id int
	fn Handler
}

// Socket is a single websocket connection with event-name dispatch.
type Socket struct {
	url       string
	transport *Transport
	logger    *slog.Logger

	// serializes dial cycles so concurrent callers never open two connections
	dialMu sync.Mutex

	mu       sync.RWMutex
	conn     *websocket.Conn
	send     chan []byte
	token    string
	closed   bool
	failures int
	handlers map[string][]handlerEntry
	nextID   int
}

// URL returns the endpoint this socket dials.
func (s *Socket) URL() string { return s.url }

// IsConnected reports whether a live connection is attached.
func (s *Socket) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// Failures returns the number of consecutive failed dial attempts.
func (s *Socket) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// On registers fn for event and returns a func that removes exactly this handler.
func (s *Socket) On(event string, fn Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.handlers[event] = append(s.handlers[event], handlerEntry{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		entries := s.handlers[event]
		for i, e := range entries {
			if e.id == id {
				s.handlers[event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Off removes every handler registered for event.
func (s *Socket) Off(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// Emit sends an event. When the socket is down the event is dropped and
// ErrNotConnected returned; nothing is queued for later.
func (s *Socket) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	message, err := json.Marshal(WebSocketMessage{Type: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		s.logger.Debug("emit dropped, socket not connected", "event", event)
		return ErrNotConnected
	}
	select {
	case s.send <- message:
		return nil
	default:
		s.logger.Warn("emit dropped, send buffer full", "event", event)
		return ErrSendBufferFull
	}
}

// Disconnect closes the connection for good and releases the URL slot.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	s.closed = true
	wasConnected := s.conn != nil
	if s.send != nil {
		// WritePump sends the close frame and closes the conn
		close(s.send)
		s.send = nil
	}
	s.conn = nil
	s.mu.Unlock()

	s.transport.forget(s)
	if wasConnected {
		s.logger.Info("socket disconnected")
		s.dispatch(WebSocketMessage{Type: EventDisconnect})
	}
}

// connect dials until success or the retry budget is spent.
func (s *Socket) connect(ctx context.Context, reconnect bool) error {
	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	if s.IsConnected() {
		return nil
	}

	errorEvent := EventConnectError
	if reconnect {
		errorEvent = EventReconnectError
	}

	s.mu.Lock()
	s.failures = 0
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	s.mu.Unlock()

	budget := s.transport.maxAttempts
	for attempt := 1; ; attempt++ {
		if s.isClosed() {
			return ErrNotConnected
		}

		conn, resp, err := s.transport.dialer.DialContext(ctx, s.url, header)
		if err == nil {
			if !s.attach(conn) {
				conn.Close()
				return ErrNotConnected
			}
			if reconnect {
				s.logger.Info("socket reconnected", "attempt", attempt)
				s.dispatch(WebSocketMessage{Type: EventReconnect})
			} else {
				s.logger.Info("socket connected")
			}
			s.dispatch(WebSocketMessage{Type: EventConnect})
			return nil
		}
		if resp != nil {
			resp.Body.Close()
			err = fmt.Errorf("%w (handshake status %d)", err, resp.StatusCode)
		}

		s.mu.Lock()
		s.failures++
		failures := s.failures
		s.mu.Unlock()

		s.logger.Warn("socket connect error", "attempt", attempt, "err", err)
		s.dispatch(WebSocketMessage{Type: errorEvent})

		if failures >= budget {
			s.logger.Error("socket: max reconnection attempts reached", "attempts", failures)
			if reconnect {
				s.dispatch(WebSocketMessage{Type: EventReconnectFailed})
			}
			return fmt.Errorf("connect %s after %d attempts: %w", s.url, failures, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.transport.retryDelay):
		}
	}
}

func (s *Socket) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// attach installs conn unless Disconnect won the race.
func (s *Socket) attach(conn *websocket.Conn) bool {
	send := make(chan []byte, sendBufferSize)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	s.send = send
	s.failures = 0
	s.mu.Unlock()

	go s.writePump(conn, send)
	go s.readPump(conn)
	return true
}

// readPump dispatches inbound events until the connection drops.
func (s *Socket) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.dropped(conn, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		// the relay batches queued messages into one frame, newline separated
		for _, part := range bytes.Split(message, []byte{'\n'}) {
			if len(bytes.TrimSpace(part)) == 0 {
				continue
			}
			var msg WebSocketMessage
			if err := json.Unmarshal(part, &msg); err != nil {
				s.logger.Warn("discarding malformed socket message", "err", err)
				continue
			}
			if msg.Type == "pong" {
				continue
			}
			s.dispatch(msg)
		}
	}
}

// writePump drains send onto conn and keeps the connection alive with pings.
func (s *Socket) writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("socket write failed", "err", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dropped handles an unexpected loss of conn and starts the reconnect cycle.
func (s *Socket) dropped(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		// Disconnect already detached it
		s.mu.Unlock()
		return
	}
	s.conn = nil
	if s.send != nil {
		close(s.send)
		s.send = nil
	}
	closed := s.closed
	s.mu.Unlock()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		s.logger.Warn("socket connection lost", "err", err)
	} else {
		s.logger.Info("socket connection closed", "err", err)
	}
	s.dispatch(WebSocketMessage{Type: EventDisconnect})

	if closed {
		return
	}
	go func() {
		if err := s.connect(context.Background(), true); err != nil {
			s.logger.Debug("reconnect gave up", "err", err)
		}
	}()
}

func (s *Socket) dispatch(msg WebSocketMessage) {
	s.mu.RLock()
	entries := append([]handlerEntry(nil), s.handlers[msg.Type]...)
	s.mu.RUnlock()

	for _, e := range entries {
		e.fn(msg)
	}
}
