package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLimit = 100

type SQLiteChatStore struct {
	db        *sql.DB
	userStore UserStore
}

func NewSQLiteChatStore(db *sql.DB, userStore UserStore) *SQLiteChatStore {
	return &SQLiteChatStore{
		db:        db,
		userStore: userStore,
	}
}

func (s *SQLiteChatStore) SaveMessage(ctx context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	if input.GroupID != "" {
		member, err := s.userStore.IsGroupMember(ctx, input.GroupID, input.SenderID)
		if err != nil {
			return nil, fmt.Errorf("IsGroupMember: %w", err)
		}
		if !member {
			return nil, ErrNotAMember
		}
	} else {
		receiver, err := s.userStore.GetUserByID(ctx, input.ReceiverID)
		if err != nil {
			return nil, fmt.Errorf("GetUserByID: %w", err)
		}
		if receiver == nil {
			return nil, ErrInvalidUser
		}
	}

	msg := &Message{
		ID:         ID(uuid.New().String()),
		SenderID:   input.SenderID,
		Body:       input.Body,
		CreatedAt:  time.Now().UTC(),
		GroupID:    input.GroupID,
		ReceiverID: input.ReceiverID,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, body, group_id, receiver_id, created_at)
		VALUES (@id, @sender_id, @body, @group_id, @receiver_id, @created_at)`,
		sql.Named("id", string(msg.ID)), sql.Named("sender_id", string(msg.SenderID)),
		sql.Named("body", msg.Body), sql.Named("group_id", nullableID(msg.GroupID)),
		sql.Named("receiver_id", nullableID(msg.ReceiverID)),
		sql.Named("created_at", msg.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert messages): %w", err)
	}

	return msg, nil
}

func (s *SQLiteChatStore) PersonalHistory(ctx context.Context, self, peer ID, offset, limit int) ([]Message, error) {
	if limit == 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, body, group_id, receiver_id, created_at FROM messages
		WHERE group_id IS NULL AND (
			(sender_id = @self AND receiver_id = @peer) OR
			(sender_id = @peer AND receiver_id = @self))
		ORDER BY created_at, id LIMIT @limit OFFSET @offset`,
		sql.Named("self", string(self)), sql.Named("peer", string(peer)),
		sql.Named("limit", limit), sql.Named("offset", offset))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteChatStore) GroupHistory(ctx context.Context, group ID, offset, limit int) ([]Message, error) {
	if limit == 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, body, group_id, receiver_id, created_at FROM messages
		WHERE group_id = @group
		ORDER BY created_at, id LIMIT @limit OFFSET @offset`,
		sql.Named("group", string(group)),
		sql.Named("limit", limit), sql.Named("offset", offset))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteChatStore) Announcements(ctx context.Context, offset, limit int) ([]Announcement, error) {
	if limit == 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, title, body, created_at FROM announcements
		ORDER BY created_at DESC, id LIMIT @limit OFFSET @offset`,
		sql.Named("limit", limit), sql.Named("offset", offset))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var anns []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.Title, &a.Body, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		anns = append(anns, a)
	}
	return anns, rows.Err()
}

func (s *SQLiteChatStore) CreateAnnouncement(ctx context.Context, input AnnouncementCreateInput) (*Announcement, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	author, err := s.userStore.GetUserByID(ctx, input.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("GetUserByID: %w", err)
	}
	if author == nil {
		return nil, ErrInvalidUser
	}

	ann := &Announcement{
		ID:        ID(uuid.New().String()),
		AuthorID:  input.AuthorID,
		Title:     input.Title,
		Body:      input.Body,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO announcements (id, author_id, title, body, created_at)
		VALUES (@id, @author_id, @title, @body, @created_at)`,
		sql.Named("id", string(ann.ID)), sql.Named("author_id", string(ann.AuthorID)),
		sql.Named("title", ann.Title), sql.Named("body", ann.Body),
		sql.Named("created_at", ann.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert announcements): %w", err)
	}

	return ann, nil
}

func (s *SQLiteChatStore) UnseenCounts(ctx context.Context, user ID) (*UnseenCounts, error) {
	counts := &UnseenCounts{
		PersonalChats: make(map[ID]int),
		GroupChats:    make(map[ID]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.sender_id, count(*) FROM messages AS m
		LEFT JOIN seen_marks AS s
			ON s.user_id = @user AND s.channel_type = 'personal' AND s.channel_id = m.sender_id
		WHERE m.receiver_id = @user AND (s.seen_at IS NULL OR m.created_at > s.seen_at)
		GROUP BY m.sender_id`,
		sql.Named("user", string(user)))
	if err != nil {
		return nil, fmt.Errorf("QueryContext(personal): %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var peer ID
		var n int
		if err := rows.Scan(&peer, &n); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		counts.PersonalChats[peer] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groupRows, err := s.db.QueryContext(ctx,
		`SELECT m.group_id, count(*) FROM messages AS m
		INNER JOIN group_members AS gm ON gm.group_id = m.group_id AND gm.user_id = @user
		LEFT JOIN seen_marks AS s
			ON s.user_id = @user AND s.channel_type = 'group' AND s.channel_id = m.group_id
		WHERE m.sender_id != @user AND (s.seen_at IS NULL OR m.created_at > s.seen_at)
		GROUP BY m.group_id`,
		sql.Named("user", string(user)))
	if err != nil {
		return nil, fmt.Errorf("QueryContext(group): %w", err)
	}
	defer groupRows.Close()
	for groupRows.Next() {
		var group ID
		var n int
		if err := groupRows.Scan(&group, &n); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		counts.GroupChats[group] = n
	}
	return counts, groupRows.Err()
}

func (s *SQLiteChatStore) MarkPersonalSeen(ctx context.Context, user, peer ID) error {
	return s.markSeen(ctx, user, "personal", peer)
}

func (s *SQLiteChatStore) MarkGroupSeen(ctx context.Context, user, group ID) error {
	return s.markSeen(ctx, user, "group", group)
}

func (s *SQLiteChatStore) markSeen(ctx context.Context, user ID, channelType string, channel ID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen_marks (user_id, channel_type, channel_id, seen_at)
		VALUES (@user, @type, @channel, @seen_at)
		ON CONFLICT (user_id, channel_type, channel_id) DO UPDATE SET seen_at = excluded.seen_at`,
		sql.Named("user", string(user)), sql.Named("type", channelType),
		sql.Named("channel", string(channel)), sql.Named("seen_at", time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("ExecContext(upsert seen_marks): %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var m Message
		var group, receiver sql.NullString
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Body, &group, &receiver, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		m.GroupID = ID(group.String)
		m.ReceiverID = ID(receiver.String)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func nullableID(id ID) interface{} {
	if id == "" {
		return nil
	}
	return string(id)
}
