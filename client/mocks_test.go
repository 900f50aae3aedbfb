package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/firmdesk/firmchat/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockAPI is an in-memory ChatAPI with injectable failures.
type mockAPI struct {
	mu sync.Mutex

	personalHistory map[core.ID][]core.Message
	groupHistory    map[core.ID][]core.Message
	announcements   []core.Announcement
	unseen          core.UnseenCounts
	roster          []core.User

	historyErr error
	unseenErr  error
	markErr    error

	unseenCalls    int
	markedPersonal []core.ID
	markedGroup    []core.ID
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		personalHistory: make(map[core.ID][]core.Message),
		groupHistory:    make(map[core.ID][]core.Message),
		unseen: core.UnseenCounts{
			PersonalChats: make(map[core.ID]int),
			GroupChats:    make(map[core.ID]int),
		},
	}
}

func (a *mockAPI) PersonalHistory(ctx context.Context, peer core.ID) ([]core.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return a.personalHistory[peer], nil
}

func (a *mockAPI) GroupHistory(ctx context.Context, group core.ID) ([]core.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return a.groupHistory[group], nil
}

func (a *mockAPI) Announcements(ctx context.Context) ([]core.Announcement, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return a.announcements, nil
}

func (a *mockAPI) SendPersonal(ctx context.Context, peer core.ID, body string) (*core.Message, error) {
	return &core.Message{ID: "sent", Body: body, ReceiverID: peer}, nil
}

func (a *mockAPI) SendGroup(ctx context.Context, group core.ID, body string) (*core.Message, error) {
	return &core.Message{ID: "sent", Body: body, GroupID: group}, nil
}

func (a *mockAPI) UnseenCounts(ctx context.Context) (*core.UnseenCounts, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unseenCalls++
	if a.unseenErr != nil {
		return nil, a.unseenErr
	}
	out := core.UnseenCounts{
		PersonalChats: make(map[core.ID]int, len(a.unseen.PersonalChats)),
		GroupChats:    make(map[core.ID]int, len(a.unseen.GroupChats)),
	}
	for k, v := range a.unseen.PersonalChats {
		out.PersonalChats[k] = v
	}
	for k, v := range a.unseen.GroupChats {
		out.GroupChats[k] = v
	}
	return &out, nil
}

func (a *mockAPI) MarkPersonalSeen(ctx context.Context, peer core.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.markErr != nil {
		return a.markErr
	}
	a.markedPersonal = append(a.markedPersonal, peer)
	delete(a.unseen.PersonalChats, peer)
	return nil
}

func (a *mockAPI) MarkGroupSeen(ctx context.Context, group core.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.markErr != nil {
		return a.markErr
	}
	a.markedGroup = append(a.markedGroup, group)
	delete(a.unseen.GroupChats, group)
	return nil
}

func (a *mockAPI) Roster(ctx context.Context) ([]core.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.roster, nil
}

func (a *mockAPI) Groups(ctx context.Context) ([]core.Group, error) {
	return nil, nil
}

func (a *mockAPI) GroupMembers(ctx context.Context, group core.ID) ([]core.User, error) {
	return nil, nil
}

func (a *mockAPI) CreateGroup(ctx context.Context, name string, members []core.ID) (core.ID, error) {
	return "new-group", nil
}

func (a *mockAPI) CreateAnnouncement(ctx context.Context, title, body string) (*core.Announcement, error) {
	return &core.Announcement{ID: "new-announcement", Title: title, Body: body}, nil
}

// stubState is a StateView with fixed values.
type stubState struct {
	self     core.User
	selected Conversation
	roster   map[core.ID]core.User
}

func (s *stubState) SelfID() core.ID        { return s.self.ID }
func (s *stubState) SelfUser() core.User    { return s.self }
func (s *stubState) Selected() Conversation { return s.selected }
func (s *stubState) LookupUser(id core.ID) (core.User, bool) {
	u, ok := s.roster[id]
	return u, ok
}

// recordedEmit is one captured transport emit.
type recordedEmit struct {
	eventType string
	payload   interface{}
}

type recordingEmitter struct {
	mu    sync.Mutex
	emits []recordedEmit
}

func (e *recordingEmitter) Emit(eventType string, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emits = append(e.emits, recordedEmit{eventType: eventType, payload: payload})
}

func (e *recordingEmitter) recorded() []recordedEmit {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]recordedEmit, len(e.emits))
	copy(out, e.emits)
	return out
}

var errClosed = errors.New("connection closed")

// fakeConn is an in-memory Conn: inbound events are pushed through a channel,
// written events are recorded.
type fakeConn struct {
	inbound chan *core.Event

	mu      sync.Mutex
	written []*core.Event

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan *core.Event, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadEvent() (*core.Event, error) {
	select {
	case e := <-c.inbound:
		return e, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) WriteEvent(e *core.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, e)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) writtenEvents() []*core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*core.Event, len(c.written))
	copy(out, c.written)
	return out
}

// push delivers an inbound event as if the server sent it.
func (c *fakeConn) push(t *core.Event) {
	c.inbound <- t
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

// pushyDialer queues an inbound event on the conn before handing it over,
// the way a server fanning out right after processing the join would.
type pushyDialer struct {
	fakeDialer
	event *core.Event
}

func (d *pushyDialer) Dial(ctx context.Context) (Conn, error) {
	conn, err := d.fakeDialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	conn.(*fakeConn).push(d.event)
	return conn, nil
}

func (d *fakeDialer) latest() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
