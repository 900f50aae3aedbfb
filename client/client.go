package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firmdesk/firmchat/core"
)

// ErrNoConversation is returned when sending without an open personal or
// group conversation.
var ErrNoConversation = errors.New("no conversation selected")

const refreshTimeout = 10 * time.Second

// Client is the chat core of one signed-in portal user. It is a scoped
// resource: Open acquires the transport session and state stores for the
// user context, Close releases them. A user context that comes back signs
// in through a fresh Open.
type Client struct {
	self   core.User
	api    ChatAPI
	dialer Dialer
	logger *slog.Logger

	viewport   *Viewport
	roster     *Roster
	unseen     *UnseenStore
	controller *Controller
	reconciler *Reconciler

	mu      sync.Mutex
	session *Session
}

type ClientOption func(*Client)

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithViewport overrides the default viewport, e.g. to attach an autoscroll
// hook.
func WithViewport(v *Viewport) ClientOption {
	return func(c *Client) {
		c.viewport = v
	}
}

// Open builds the chat core for a user context: loads the roster and the
// authoritative unseen counts, connects the transport, and registers the
// message handler. A roster load failure degrades to placeholder identities
// rather than failing the open.
func Open(ctx context.Context, self core.User, api ChatAPI, dialer Dialer, opts ...ClientOption) (*Client, error) {
	c := &Client{
		self:   self,
		api:    api,
		dialer: dialer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.viewport == nil {
		c.viewport = NewViewport()
	}

	c.roster = NewRoster()
	c.unseen = NewUnseenStore(api, c.logger)
	c.reconciler = NewReconciler(c, c.viewport, c.refreshUnseen, c.logger)
	c.controller = NewController(c, c.viewport, c, c.unseen, api, c.logger)

	if users, err := api.Roster(ctx); err != nil {
		c.logger.Error(fmt.Sprintf("roster load: %v", err))
	} else {
		c.roster.Replace(users)
	}

	if err := c.unseen.Refresh(ctx); err != nil {
		c.logger.Error(fmt.Sprintf("initial unseen load: %v", err))
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	// Reconnect-while-viewing-a-group: the join sequence must cover the
	// group that is already selected at connect time.
	var rooms []string
	if selected := c.controller.Selected(); selected.Kind == KindGroup {
		rooms = append(rooms, core.GroupRoom(selected.GroupID))
	}

	// Handlers go in as options so they are live before the read loop
	// starts; a message fanned out right after the join would otherwise
	// be dropped.
	session, err := OpenSession(ctx, c.dialer, c.self.ID, rooms,
		WithSessionLogger(c.logger),
		WithHandler(core.ReceiveMessageEvent, c.reconciler.HandleEvent),
		WithHandler(core.ReceiveAnnouncementEvent, c.reconciler.HandleAnnouncementEvent),
	)
	if err != nil {
		return fmt.Errorf("OpenSession: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return nil
}

// Reconnect tears down the current session, if any, and opens a fresh one
// with a fresh join sequence. The unseen mirror is re-synced because pushes
// may have been missed while disconnected.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	old := c.session
	c.session = nil
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	if err := c.connect(ctx); err != nil {
		return err
	}
	if err := c.unseen.Refresh(ctx); err != nil {
		c.logger.Error(fmt.Sprintf("unseen refresh after reconnect: %v", err))
	}
	return nil
}

// Close releases the user context: handlers are deregistered, then the
// transport disconnects.
func (c *Client) Close() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session != nil {
		session.Close()
	}
}

// Emit implements Emitter against the live session. Emits while disconnected
// are dropped; the reconnect join sequence restores room membership.
func (c *Client) Emit(eventType string, payload interface{}) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		c.logger.Debug("emit without session: " + eventType)
		return
	}
	session.Emit(eventType, payload)
}

// Select opens a conversation.
func (c *Client) Select(ctx context.Context, conv Conversation) {
	c.controller.Select(ctx, conv)
}

// Reload retries a failed history load for the open conversation.
func (c *Client) Reload(ctx context.Context) {
	c.controller.Reload(ctx)
}

// Send sends to the open conversation. A failure is returned for inline
// display; retry is the user resending.
func (c *Client) Send(ctx context.Context, body string) error {
	switch selected := c.controller.Selected(); selected.Kind {
	case KindPersonal:
		_, err := c.api.SendPersonal(ctx, selected.PeerID, body)
		return err
	case KindGroup:
		_, err := c.api.SendGroup(ctx, selected.GroupID, body)
		return err
	default:
		return ErrNoConversation
	}
}

// CreateGroup creates a group and opens it.
func (c *Client) CreateGroup(ctx context.Context, name string, members []core.ID) (core.ID, error) {
	id, err := c.api.CreateGroup(ctx, name, members)
	if err != nil {
		return "", err
	}
	c.controller.Select(ctx, GroupConversation(id))
	return id, nil
}

// CreateAnnouncement posts an announcement and opens the announcements feed.
func (c *Client) CreateAnnouncement(ctx context.Context, title, body string) error {
	if _, err := c.api.CreateAnnouncement(ctx, title, body); err != nil {
		return err
	}
	c.controller.Select(ctx, AnnouncementsConversation())
	return nil
}

// refreshUnseen is the reconciler's trigger for an authoritative re-fetch.
func (c *Client) refreshUnseen() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := c.unseen.Refresh(ctx); err != nil {
		c.logger.Error(fmt.Sprintf("unseen refresh: %v", err))
	}
}

// StateView implementation: the reconciler and controller always observe the
// state current at the moment they run.

func (c *Client) SelfID() core.ID {
	return c.self.ID
}

func (c *Client) SelfUser() core.User {
	return c.self
}

func (c *Client) Selected() Conversation {
	return c.controller.Selected()
}

func (c *Client) LookupUser(id core.ID) (core.User, bool) {
	return c.roster.Lookup(id)
}

// Viewport exposes the rendered message list.
func (c *Client) Viewport() *Viewport {
	return c.viewport
}

// Unseen exposes the unseen-count mirror.
func (c *Client) Unseen() *UnseenStore {
	return c.unseen
}

// Roster exposes the user snapshot.
func (c *Client) Roster() *Roster {
	return c.roster
}
