package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firmdesk/firmchat/core"
)

const (
	// Time allowed to write an event to the server.
	writeWait = 10 * time.Second

	// Outbound events queued ahead of the write loop. Emit never blocks;
	// events past this are dropped.
	outboundBuffer = 64
)

// Conn is one established realtime connection.
type Conn interface {
	ReadEvent() (*core.Event, error)
	WriteEvent(e *core.Event) error
	Close() error
}

// Dialer establishes fresh connections. Reconnection is a fresh session with
// a fresh join sequence, never a resumption.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer dials the portal's websocket endpoint.
type WSDialer struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		return nil, fmt.Errorf("DialContext: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadEvent() (*core.Event, error) {
	_, r, err := c.conn.NextReader()
	if err != nil {
		return nil, fmt.Errorf("NextReader: %w", err)
	}
	var e core.Event
	if err := core.DecodeEvent(r, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *wsConn) WriteEvent(e *core.Event) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return fmt.Errorf("NextWriter: %w", err)
	}
	if err := core.EncodeEvent(w, e); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (c *wsConn) Close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.conn.Close()
}

// Handler consumes one inbound event.
type Handler func(*core.Event)

// Session is one live transport connection of the chat widget. Exactly one
// handler is active per event name; emits are fire-and-forget.
type Session struct {
	conn Conn
	out  chan *core.Event

	mu       sync.RWMutex
	handlers map[string]Handler

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	onClosed func(error)
	logger   *slog.Logger
}

type SessionOption func(*Session)

func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithOnClosed registers a callback for when the connection drops or is
// closed. The session is already torn down when it runs; reconnecting means
// opening a new session.
func WithOnClosed(f func(error)) SessionOption {
	return func(s *Session) {
		s.onClosed = f
	}
}

// WithHandler registers an event handler before the read loop starts. A
// handler registered with On after OpenSession returns can miss events the
// server pushed right after processing the join sequence; options cannot.
func WithHandler(eventType string, h Handler) SessionOption {
	return func(s *Session) {
		s.handlers[eventType] = h
	}
}

// OpenSession dials a fresh connection and replays the join sequence: the
// user's own personal room always, plus any rooms the caller needs
// re-joined, such as the group that was already selected when the
// connection (re)establishes.
func OpenSession(ctx context.Context, d Dialer, self core.ID, rooms []string, opts ...SessionOption) (*Session, error) {
	conn, err := d.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("Dial: %w", err)
	}

	s := &Session{
		conn:     conn,
		out:      make(chan *core.Event, outboundBuffer),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
		onClosed: func(error) {},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Emit(core.JoinRoomEvent, core.PersonalRoom(self))
	for _, room := range rooms {
		s.Emit(core.JoinRoomEvent, room)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop()
	}()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writeLoop()
	}()

	return s, nil
}

// On registers the handler for an event type. A previous handler for the
// same type is replaced, so re-subscribing can never produce duplicate
// delivery.
func (s *Session) On(eventType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[eventType] = h
}

// Off removes the handler for an event type.
func (s *Session) Off(eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, eventType)
}

// Emit queues an event for delivery and returns immediately. No
// acknowledgement is awaited; when the queue is saturated the event is
// dropped and logged.
func (s *Session) Emit(eventType string, payload interface{}) {
	e, err := core.NewEvent(eventType, payload)
	if err != nil {
		s.logger.Error("emit: " + err.Error())
		return
	}
	select {
	case <-s.done:
	case s.out <- e:
	default:
		s.logger.Error("emit: outbound queue full, dropping " + eventType)
	}
}

// Close deregisters all handlers, then disconnects.
func (s *Session) Close() {
	s.mu.Lock()
	s.handlers = make(map[string]Handler)
	s.mu.Unlock()
	s.shutdown()
	s.wg.Wait()
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *Session) readLoop() {
	for {
		e, err := s.conn.ReadEvent()
		if err != nil {
			select {
			case <-s.done:
				// deliberate close, not a failure
				s.onClosed(nil)
			default:
				s.logger.Error("read: " + err.Error())
				s.shutdown()
				s.onClosed(err)
			}
			return
		}
		s.mu.RLock()
		h := s.handlers[e.Type]
		s.mu.RUnlock()
		if h != nil {
			h(e)
		}
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case e := <-s.out:
			if err := s.conn.WriteEvent(e); err != nil {
				s.logger.Error("write: " + err.Error())
			}
		case <-s.done:
			return
		}
	}
}
