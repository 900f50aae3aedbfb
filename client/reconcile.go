package client

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/firmdesk/firmchat/core"
)

// PlaceholderName is rendered for senders missing from the roster snapshot.
const PlaceholderName = "Unknown user"

// StateView gives the reconciler live access to the widget state. The
// transport handler is registered once and lives across many conversation
// switches, so every decision must read the state current at delivery time,
// never values captured at registration time.
type StateView interface {
	SelfID() core.ID
	SelfUser() core.User
	Selected() Conversation
	LookupUser(id core.ID) (core.User, bool)
}

// Reconciler merges transport-delivered messages into the widget state. For
// each inbound message it decides whether it is a duplicate, whether it
// belongs to the conversation currently open, and which state mutation to
// perform.
type Reconciler struct {
	state    StateView
	viewport *Viewport
	// refreshUnseen triggers an authoritative re-fetch of the unseen counts.
	// A message for a conversation that is not open moves that conversation's
	// counter; re-deriving from the source of truth avoids racing the
	// optimistic zeroing in the unseen store.
	refreshUnseen func()
	logger        *slog.Logger
}

func NewReconciler(state StateView, viewport *Viewport, refreshUnseen func(), logger *slog.Logger) *Reconciler {
	return &Reconciler{
		state:         state,
		viewport:      viewport,
		refreshUnseen: refreshUnseen,
		logger:        logger,
	}
}

// HandleEvent is the receive_message transport handler.
func (r *Reconciler) HandleEvent(e *core.Event) {
	var m core.Message
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		r.logger.Error("unmarshal message payload: " + err.Error())
		return
	}
	r.Handle(m)
}

// Handle classifies one inbound message.
func (r *Reconciler) Handle(m core.Message) {
	// Duplicate delivery, including the self-echo of a message whose send
	// response already rendered it.
	if r.viewport.Contains(m.ID) {
		return
	}

	if !r.belongsToOpen(m) {
		r.refreshUnseen()
		return
	}

	r.viewport.Append(renderMessage(r.state, m))
}

// HandleAnnouncementEvent is the receive_announcement transport handler.
func (r *Reconciler) HandleAnnouncementEvent(e *core.Event) {
	var a core.Announcement
	if err := json.Unmarshal(e.Payload, &a); err != nil {
		r.logger.Error("unmarshal announcement payload: " + err.Error())
		return
	}
	r.HandleAnnouncement(a)
}

// HandleAnnouncement renders a pushed announcement when the announcements
// feed is open. Announcements carry no unseen counter, so with any other
// conversation open the push is dropped; the feed reloads from history on
// the next selection.
func (r *Reconciler) HandleAnnouncement(a core.Announcement) {
	if r.viewport.Contains(a.ID) {
		return
	}
	if r.state.Selected().Kind != KindAnnouncements {
		return
	}
	rendered := renderMessage(r.state, core.Message{
		ID:        a.ID,
		SenderID:  a.AuthorID,
		Body:      a.Body,
		CreatedAt: a.CreatedAt,
	})
	rendered.Title = a.Title
	r.viewport.Append(rendered)
}

// belongsToOpen reports whether the message addresses the conversation the
// user currently has open. The group check is evaluated first and is
// exclusive of the personal check: a message cannot belong to both.
func (r *Reconciler) belongsToOpen(m core.Message) bool {
	selected := r.state.Selected()
	switch ch := m.Channel().(type) {
	case core.GroupChannel:
		return selected.Kind == KindGroup && ch.Group == selected.GroupID
	case core.DirectChannel:
		if selected.Kind != KindPersonal {
			return false
		}
		// Two-sided: the sender's own outgoing message is echoed back through
		// the same channel, so both directions of the open conversation match.
		self := r.state.SelfID()
		return (m.SenderID == self && ch.Peer == selected.PeerID) ||
			(m.SenderID == selected.PeerID && ch.Peer == self)
	}
	return false
}

// renderMessage resolves the sender's display identity: the user's own
// cached profile for self, the roster for everyone else, a placeholder when
// the roster has no entry.
func renderMessage(state StateView, m core.Message) RenderedMessage {
	rendered := RenderedMessage{
		Message: m,
		Self:    m.SenderID == state.SelfID(),
	}
	if rendered.Self {
		self := state.SelfUser()
		rendered.SenderName = self.Name
		rendered.SenderAvatar = self.Avatar
		return rendered
	}
	if u, ok := state.LookupUser(m.SenderID); ok {
		rendered.SenderName = u.Name
		rendered.SenderAvatar = u.Avatar
	} else {
		rendered.SenderName = PlaceholderName
	}
	return rendered
}

// Roster is the read-only user snapshot used to resolve sender identity.
type Roster struct {
	mu    sync.RWMutex
	users map[core.ID]core.User
}

func NewRoster() *Roster {
	return &Roster{users: make(map[core.ID]core.User)}
}

// Replace swaps the snapshot wholesale.
func (r *Roster) Replace(users []core.User) {
	next := make(map[core.ID]core.User, len(users))
	for _, u := range users {
		next[u.ID] = u
	}
	r.mu.Lock()
	r.users = next
	r.mu.Unlock()
}

func (r *Roster) Lookup(id core.ID) (core.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

func (r *Roster) Users() []core.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]core.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	return users
}
