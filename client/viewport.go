package client

import (
	"sync"

	"github.com/firmdesk/firmchat/core"
)

// RenderedMessage is a message with its sender identity resolved for display.
type RenderedMessage struct {
	core.Message
	// Title is set for announcements only.
	Title        string
	SenderName   string
	SenderAvatar string
	Self         bool
}

// Viewport is the rendered message list of the open conversation. It is
// shared between the conversation controller (history loads) and the
// reconciler (live appends); both read and mutate it through its own lock.
type Viewport struct {
	mu       sync.Mutex
	messages []RenderedMessage
	byID     map[core.ID]struct{}
	err      string
	// onLatest is the autoscroll-to-latest hook, called after a live append
	// or a history load.
	onLatest func()
}

type ViewportOption func(*Viewport)

// WithAutoScroll registers the scroll-to-latest side effect.
func WithAutoScroll(f func()) ViewportOption {
	return func(v *Viewport) {
		v.onLatest = f
	}
}

func NewViewport(opts ...ViewportOption) *Viewport {
	v := &Viewport{
		byID:     make(map[core.ID]struct{}),
		onLatest: func() {},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Contains reports whether a message with the given id is already rendered.
func (v *Viewport) Contains(id core.ID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.byID[id]
	return ok
}

// Append adds the message to the end of the list. It reports false, and
// renders nothing, when a message with the same id is already present.
func (v *Viewport) Append(m RenderedMessage) bool {
	v.mu.Lock()
	if _, ok := v.byID[m.ID]; ok {
		v.mu.Unlock()
		return false
	}
	v.messages = append(v.messages, m)
	v.byID[m.ID] = struct{}{}
	v.mu.Unlock()
	v.onLatest()
	return true
}

// Replace swaps the whole list, e.g. when a history load completes.
func (v *Viewport) Replace(messages []RenderedMessage) {
	v.mu.Lock()
	v.messages = messages
	v.byID = make(map[core.ID]struct{}, len(messages))
	for _, m := range messages {
		v.byID[m.ID] = struct{}{}
	}
	v.err = ""
	v.mu.Unlock()
	v.onLatest()
}

// Clear empties the list, e.g. on entering a new conversation.
func (v *Viewport) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = nil
	v.byID = make(map[core.ID]struct{})
	v.err = ""
}

// SetError puts the viewport into the inline failed-to-load state.
func (v *Viewport) SetError(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = msg
}

// Err returns the inline error, empty when there is none.
func (v *Viewport) Err() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Messages returns a copy of the rendered list.
func (v *Viewport) Messages() []RenderedMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]RenderedMessage, len(v.messages))
	copy(out, v.messages)
	return out
}

func (v *Viewport) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.messages)
}
