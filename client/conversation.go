package client

import (
	"context"
	"log/slog"
	"sync"

	"github.com/firmdesk/firmchat/core"
)

// Kind enumerates what the user currently has open in the chat widget.
type Kind int

const (
	// KindNone is the initial state: the widget is open, nothing selected.
	KindNone Kind = iota
	KindPersonal
	KindGroup
	KindAnnouncements
	// KindComposing is the pseudo-state entered by the create-group and
	// create-announcement sub-forms. It suppresses the message view.
	KindComposing
)

// Conversation is the tagged reference to the open conversation. Exactly one
// is selected at a time.
type Conversation struct {
	Kind    Kind
	PeerID  core.ID
	GroupID core.ID
}

func NoConversation() Conversation {
	return Conversation{Kind: KindNone}
}

func PersonalConversation(peer core.ID) Conversation {
	return Conversation{Kind: KindPersonal, PeerID: peer}
}

func GroupConversation(group core.ID) Conversation {
	return Conversation{Kind: KindGroup, GroupID: group}
}

func AnnouncementsConversation() Conversation {
	return Conversation{Kind: KindAnnouncements}
}

func ComposingConversation() Conversation {
	return Conversation{Kind: KindComposing}
}

// Emitter sends a fire-and-forget transport event.
type Emitter interface {
	Emit(eventType string, payload interface{})
}

// Controller drives the conversation view state machine. Entering a new
// state clears the rendered list, reconciles group-room membership, marks
// the conversation seen, and loads its history, in that order. The group
// leave on the way out is unconditional: it does not wait for, or depend on,
// the corresponding join having been acknowledged.
type Controller struct {
	mu       sync.Mutex
	selected Conversation
	// epoch stamps each selection so that a history response arriving after
	// the user has switched away is discarded instead of overwriting the
	// newer conversation's list.
	epoch uint64

	viewport *Viewport
	emitter  Emitter
	unseen   *UnseenStore
	api      ChatAPI
	state    StateView
	logger   *slog.Logger
}

func NewController(state StateView, viewport *Viewport, emitter Emitter, unseen *UnseenStore, api ChatAPI, logger *slog.Logger) *Controller {
	return &Controller{
		selected: NoConversation(),
		viewport: viewport,
		emitter:  emitter,
		unseen:   unseen,
		api:      api,
		state:    state,
		logger:   logger,
	}
}

// Selected returns the conversation currently open.
func (c *Controller) Selected() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Select transitions to the given conversation and runs the entry side
// effects. Seen-marking never happens for None, Announcements, or Composing.
func (c *Controller) Select(ctx context.Context, next Conversation) {
	c.mu.Lock()
	prev := c.selected
	c.selected = next
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	// stale history must not linger while the new conversation loads
	c.viewport.Clear()

	sameGroup := prev.Kind == KindGroup && next.Kind == KindGroup && prev.GroupID == next.GroupID
	if prev.Kind == KindGroup && !sameGroup {
		c.emitter.Emit(core.LeaveRoomEvent, core.GroupRoom(prev.GroupID))
	}
	if next.Kind == KindGroup && !sameGroup {
		c.emitter.Emit(core.JoinRoomEvent, core.GroupRoom(next.GroupID))
	}

	switch next.Kind {
	case KindPersonal:
		c.unseen.MarkPersonalSeen(ctx, next.PeerID)
	case KindGroup:
		c.unseen.MarkGroupSeen(ctx, next.GroupID)
	}

	c.load(ctx, next, epoch)
}

// Reload retries the history load of the current conversation. It backs the
// inline retry action of the failed-to-load state.
func (c *Controller) Reload(ctx context.Context) {
	c.mu.Lock()
	selected, epoch := c.selected, c.epoch
	c.mu.Unlock()
	c.load(ctx, selected, epoch)
}

func (c *Controller) load(ctx context.Context, conv Conversation, epoch uint64) {
	var rendered []RenderedMessage
	var err error

	switch conv.Kind {
	case KindPersonal:
		var history []core.Message
		history, err = c.api.PersonalHistory(ctx, conv.PeerID)
		if err == nil {
			rendered = renderMessages(c.state, history)
		}
	case KindGroup:
		var history []core.Message
		history, err = c.api.GroupHistory(ctx, conv.GroupID)
		if err == nil {
			rendered = renderMessages(c.state, history)
		}
	case KindAnnouncements:
		var anns []core.Announcement
		anns, err = c.api.Announcements(ctx)
		if err == nil {
			rendered = renderAnnouncements(c.state, anns)
		}
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		// response for a conversation that is no longer selected
		c.logger.Debug("discarding stale history response")
		return
	}
	if err != nil {
		c.logger.Error("history load: " + err.Error())
		c.viewport.SetError("failed to load messages")
		return
	}
	c.viewport.Replace(rendered)
}

func renderMessages(state StateView, history []core.Message) []RenderedMessage {
	rendered := make([]RenderedMessage, 0, len(history))
	for _, m := range history {
		rendered = append(rendered, renderMessage(state, m))
	}
	return rendered
}

func renderAnnouncements(state StateView, anns []core.Announcement) []RenderedMessage {
	rendered := make([]RenderedMessage, 0, len(anns))
	for _, a := range anns {
		rm := renderMessage(state, core.Message{
			ID:        a.ID,
			SenderID:  a.AuthorID,
			Body:      a.Body,
			CreatedAt: a.CreatedAt,
		})
		rm.Title = a.Title
		rendered = append(rendered, rm)
	}
	return rendered
}
