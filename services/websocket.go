package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a control message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message or ping from the peer
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 1024 * 1024 // 1MB

	defaultPushPath = "/ws"
)

// PushMessage is the frame format of the push channel.
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Socket is one open push-channel connection.
type Socket struct {
	conn *websocket.Conn

	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]func(json.RawMessage)

	done      chan struct{}
	closeOnce sync.Once
}

func newSocket(conn *websocket.Conn) *Socket {
	return &Socket{
		conn:     conn,
		handlers: make(map[string]map[int]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
}

// On registers fn for event and returns the func that removes it.
func (s *Socket) On(event string, fn func(json.RawMessage)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	if s.handlers[event] == nil {
		s.handlers[event] = make(map[int]func(json.RawMessage))
	}
	s.handlers[event][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[event], id)
	}
}

// Done is closed once the connection has stopped reading.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Socket) dispatch(raw []byte) {
	var msg PushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("unreadable push message", "err", err)
		return
	}

	s.mu.RLock()
	fns := make([]func(json.RawMessage), 0, len(s.handlers[msg.Type]))
	for _, fn := range s.handlers[msg.Type] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	if len(fns) == 0 {
		slog.Debug("unhandled push message", "type", msg.Type)
		return
	}
	for _, fn := range fns {
		fn(msg.Data)
	}
}

// readPump delivers messages from the connection to the registered handlers
// until the connection fails or is closed.
func (s *Socket) readPump() {
	defer func() {
		s.conn.Close()
		close(s.done)
		slog.Info("push channel disconnected")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPingHandler(func(data string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("push channel error", "err", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		// The server may batch several queued frames into one message.
		for _, frame := range bytes.Split(message, []byte("\n")) {
			if len(bytes.TrimSpace(frame)) == 0 {
				continue
			}
			s.dispatch(frame)
		}
	}
}

func (s *Socket) close() {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		s.conn.Close()
	})
}

// SocketManager owns the process-wide push connection. At most one socket is
// open at a time.
type SocketManager struct {
	mu     sync.Mutex
	url    *url.URL
	dialer *websocket.Dialer
	socket *Socket
}

// NewSocketManager takes the push-channel base URL; http(s) schemes are
// mapped to ws(s) and an empty path defaults to /ws.
func NewSocketManager(baseURL string) (*SocketManager, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported socket url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPushPath
	}
	return &SocketManager{
		url:    u,
		dialer: &websocket.Dialer{HandshakeTimeout: writeWait},
	}, nil
}

// Init opens the push connection authenticated by token. While a live
// connection exists it is returned unchanged and no new dial happens.
func (m *SocketManager) Init(ctx context.Context, token string) (*Socket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.socket != nil && m.socket.alive() {
		return m.socket, nil
	}

	u := *m.url
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			slog.Error("push channel connection error", "status", resp.StatusCode, "err", err)
			return nil, fmt.Errorf("failed to dial push channel: status %d: %w", resp.StatusCode, err)
		}
		slog.Error("push channel connection error", "err", err)
		return nil, fmt.Errorf("failed to dial push channel: %w", err)
	}

	s := newSocket(conn)
	m.socket = s
	go s.readPump()

	slog.Info("push channel connected", "url", m.url.String())
	return s, nil
}

// Socket returns the live socket or nil.
func (m *SocketManager) Socket() *Socket {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.socket == nil || !m.socket.alive() {
		return nil
	}
	return m.socket
}

// Disconnect closes the current socket. It is a no-op when none is open.
func (m *SocketManager) Disconnect() {
	m.mu.Lock()
	s := m.socket
	m.socket = nil
	m.mu.Unlock()

	if s != nil {
		s.close()
	}
}
