package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/net/context"
)

// ConnManager owns the websocket connections of the realtime transport. Each
// accepted connection becomes a session: it is registered as a sink in the
// room registry and its inbound events flow into the shared receive stream.
// Room membership itself is driven by the client's join_room/leave_room
// events, not by the manager.
type ConnManager struct {
	conns   map[string]*Conn
	byUser  map[ID]map[string]struct{}
	mu      sync.RWMutex
	connWg  *sync.WaitGroup
	context context.Context
	logger  *slog.Logger

	registry *RoomRegistry

	onSessionOpened func(ID, string)
	onSessionClosed func(ID, string)

	receivedEvent chan *Event

	upgrader        websocket.Upgrader
	ReadStreamSize  int
	WriteStreamSize int
}

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *ConnManager) {
		m.logger = l
	}
}

func NewConnManager(context context.Context, wg *sync.WaitGroup, logger *slog.Logger, registry *RoomRegistry, opts ...ManagerOption) *ConnManager {
	m := &ConnManager{
		connWg:          wg,
		conns:           make(map[string]*Conn),
		byUser:          make(map[ID]map[string]struct{}),
		logger:          logger,
		context:         context,
		registry:        registry,
		upgrader:        defaultUpgrader,
		ReadStreamSize:  100,
		WriteStreamSize: 100,
		onSessionOpened: func(ID, string) {},
		onSessionClosed: func(ID, string) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.receivedEvent = make(chan *Event, m.ReadStreamSize)

	// A session that cannot keep up with its room traffic is dropped rather
	// than allowed to block the registry.
	registry.onSaturated = m.Disconnect

	return m
}

func (m *ConnManager) Receive() <-chan *Event {
	return m.receivedEvent
}

func (m *ConnManager) OnSessionOpened(f func(ID, string)) {
	m.onSessionOpened = f
}

func (m *ConnManager) OnSessionClosed(f func(ID, string)) {
	m.onSessionClosed = f
}

func (m *ConnManager) IsUserConnected(user ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[user]) > 0
}

// Connect upgrades the request and starts a new session for the user.
// It returns the session id.
func (m *ConnManager) Connect(user ID, w http.ResponseWriter, r *http.Request) (string, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return "", fmt.Errorf("Upgrade: %w", err)
	}

	sessionID := uuid.New().String()
	wsConn := &Conn{
		userID:      user,
		sessionID:   sessionID,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		readStream:  m.receivedEvent,
		ticker:      time.NewTicker(pingPeriod),
		logger:      m.logger.With(slog.String("session", fmt.Sprintf("%s:%s", user, sessionID))),
		notifyDisconnect: func() {
			m.Disconnect(sessionID)
		},
	}

	m.mu.Lock()
	m.conns[sessionID] = wsConn
	if _, ok := m.byUser[user]; !ok {
		m.byUser[user] = make(map[string]struct{})
	}
	m.byUser[user][sessionID] = struct{}{}
	m.mu.Unlock()

	m.registry.Register(sessionID, wsConn)

	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.readLoop()
	}()
	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.writeLoop()
	}()

	m.onSessionOpened(user, sessionID)

	return sessionID, nil
}

// Disconnect tears down a session: it is removed from every room before the
// connection is closed so no broadcast can reach a closing write stream.
func (m *ConnManager) Disconnect(sessionID string) {
	m.mu.Lock()
	conn, ok := m.conns[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, sessionID)
	if sessions, ok := m.byUser[conn.userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.byUser, conn.userID)
		}
	}
	m.mu.Unlock()

	m.registry.Deregister(sessionID)
	conn.close()
	m.onSessionClosed(conn.userID, sessionID)
}

// DisconnectUser closes every session of the user.
func (m *ConnManager) DisconnectUser(user ID) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.byUser[user]))
	for id := range m.byUser[user] {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.Disconnect(id)
	}
}

// SendToRoom implements EventTransport by delegating to the room registry.
func (m *ConnManager) SendToRoom(e *Event, room string) {
	m.registry.Broadcast(room, e)
}

// SendToUsers delivers an event to every connection of the given users,
// bypassing room membership.
func (m *ConnManager) SendToUsers(e *Event, users ...ID) {
	var saturated []string
	m.mu.RLock()
	for _, u := range users {
		for sessionID := range m.byUser[u] {
			conn, ok := m.conns[sessionID]
			if !ok {
				continue
			}
			if !conn.Send(e) {
				saturated = append(saturated, sessionID)
			}
		}
	}
	m.mu.RUnlock()
	for _, sessionID := range saturated {
		m.Disconnect(sessionID)
	}
}
