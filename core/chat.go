package core

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidUser is returned when a user is not found or is invalid.
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidGroup is returned when a group is not found or is invalid.
	ErrInvalidGroup = errors.New("invalid group")
	// ErrInvalidMessage is returned when a message is invalid.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNotAMember is returned when a user acts on a group they do not belong to.
	ErrNotAMember = errors.New("not a group member")
	// ErrInsufficientMembers is returned when too few members are provided to create a group.
	ErrInsufficientMembers = errors.New("insufficient members")
)

var validate = validator.New()

// Message is a persisted chat message. Exactly one of GroupID and ReceiverID
// is set. Messages are immutable once created.
type Message struct {
	ID         ID        `json:"message_id"`
	SenderID   ID        `json:"sender_id"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	GroupID    ID        `json:"group_id,omitempty"`
	ReceiverID ID        `json:"receiver_id,omitempty"`
}

// Channel is the addressing of a message: either a direct channel to a peer
// or a group channel.
type Channel interface {
	channel()
}

type DirectChannel struct {
	Peer ID
}

type GroupChannel struct {
	Group ID
}

func (DirectChannel) channel() {}
func (GroupChannel) channel()  {}

// Channel returns the tagged channel the message is addressed to.
// The group branch wins so a message can never be read as both.
func (m Message) Channel() Channel {
	if m.GroupID != "" {
		return GroupChannel{Group: m.GroupID}
	}
	return DirectChannel{Peer: m.ReceiverID}
}

// UnseenCounts is the per-user view of how many messages each peer and group
// has sent that the user has not acknowledged as seen. Counts are never negative.
type UnseenCounts struct {
	PersonalChats map[ID]int `json:"personal_chats"`
	GroupChats    map[ID]int `json:"group_chats"`
}

// User is a read-only roster snapshot used to render sender identity.
type User struct {
	ID     ID     `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Avatar string `json:"avatar"`
}

type Group struct {
	ID   ID     `json:"group_id"`
	Name string `json:"name"`
}

type Announcement struct {
	ID        ID        `json:"announcement_id"`
	AuthorID  ID        `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageCreateInput represents the input for creating a message.
type MessageCreateInput struct {
	SenderID   ID     `json:"sender_id" validate:"required"`
	Body       string `json:"message" validate:"required"`
	GroupID    ID     `json:"group_id"`
	ReceiverID ID     `json:"receiver_id"`
}

// Validate validates the message input. A message must be addressed to
// exactly one of a group or a receiver.
func (m *MessageCreateInput) Validate() error {
	if err := validate.Struct(m); err != nil {
		return ErrInvalidMessage
	}
	if (m.GroupID == "") == (m.ReceiverID == "") {
		return ErrInvalidMessage
	}
	return nil
}

type AnnouncementCreateInput struct {
	AuthorID ID     `json:"author_id" validate:"required"`
	Title    string `json:"title" validate:"required"`
	Body     string `json:"body" validate:"required"`
}

func (a *AnnouncementCreateInput) Validate() error {
	return validate.Struct(a)
}

type ChatStore interface {

	// SaveMessage persists a message and returns it with its assigned id and
	// creation time. If the input addresses a group the sender must be a
	// member, otherwise ErrNotAMember is returned. If it addresses a receiver
	// that does not exist, ErrInvalidUser is returned.
	SaveMessage(ctx context.Context, input MessageCreateInput) (*Message, error)

	// PersonalHistory returns the messages exchanged between self and peer in
	// both directions, ordered ascending by creation time.
	// If the limit is a zero value, the limit is set to 100.
	PersonalHistory(ctx context.Context, self, peer ID, offset, limit int) ([]Message, error)

	// GroupHistory returns the messages sent to the group, ordered ascending
	// by creation time.
	GroupHistory(ctx context.Context, group ID, offset, limit int) ([]Message, error)

	// Announcements returns the announcement feed, newest first.
	Announcements(ctx context.Context, offset, limit int) ([]Announcement, error)

	CreateAnnouncement(ctx context.Context, input AnnouncementCreateInput) (*Announcement, error)

	// UnseenCounts derives the user's unseen counts from the seen watermarks.
	// A user's own messages never count against them. The maps are never nil.
	UnseenCounts(ctx context.Context, user ID) (*UnseenCounts, error)

	// MarkPersonalSeen advances the seen watermark for the personal
	// conversation with peer. It is idempotent.
	MarkPersonalSeen(ctx context.Context, user, peer ID) error

	// MarkGroupSeen advances the seen watermark for the group. It is idempotent.
	MarkGroupSeen(ctx context.Context, user, group ID) error
}
