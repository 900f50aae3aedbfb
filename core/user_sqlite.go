package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

func (s *SQLiteUserStore) CreateUser(ctx context.Context, input UserCreateInput) (*User, error) {
	if err := input.Validate(); err != nil {
		return nil, ErrInvalidUser
	}

	id := input.ID
	if id == "" {
		id = ID(uuid.New().String())
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, role, avatar, created_at)
		VALUES (@id, @name, @role, @avatar, @created_at)`,
		sql.Named("id", string(id)), sql.Named("name", input.Name),
		sql.Named("role", input.Role), sql.Named("avatar", input.Avatar),
		sql.Named("created_at", time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert users): %w", err)
	}

	return &User{ID: id, Name: input.Name, Role: input.Role, Avatar: input.Avatar}, nil
}

func (s *SQLiteUserStore) GetUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, role, avatar FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Avatar); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteUserStore) GetUserByID(ctx context.Context, id ID) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, role, avatar FROM users WHERE id = @id`,
		sql.Named("id", string(id)))

	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Role, &u.Avatar); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}
	return &u, nil
}

func (s *SQLiteUserStore) CreateGroup(ctx context.Context, name string, creator ID, members ...ID) (ID, error) {
	unique := map[ID]struct{}{creator: {}}
	for _, m := range members {
		unique[m] = struct{}{}
	}
	if len(unique) < 2 {
		return "", ErrInsufficientMembers
	}

	all := make([]ID, 0, len(unique))
	for m := range unique {
		all = append(all, m)
	}

	// all members must exist
	placeholders := make([]string, 0, len(all))
	args := make([]interface{}, 0, len(all))
	for _, m := range all {
		placeholders = append(placeholders, "?")
		args = append(args, string(m))
	}
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT count(*) FROM users WHERE id IN (%s)`, strings.Join(placeholders, ",")),
		args...)
	var count int
	if err := row.Scan(&count); err != nil {
		return "", fmt.Errorf("row.Scan: %w", err)
	}
	if count != len(all) {
		return "", ErrInvalidUser
	}

	id := ID(uuid.New().String())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_at) VALUES (@id, @name, @created_at)`,
		sql.Named("id", string(id)), sql.Named("name", name),
		sql.Named("created_at", time.Now().UTC()))
	if err != nil {
		return "", fmt.Errorf("ExecContext(insert groups): %w", err)
	}

	for _, m := range all {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES (@group_id, @user_id)`,
			sql.Named("group_id", string(id)), sql.Named("user_id", string(m)))
		if err != nil {
			return "", fmt.Errorf("ExecContext(insert group_members): %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("Commit: %w", err)
	}

	return id, nil
}

func (s *SQLiteUserStore) GetUserGroups(ctx context.Context, user ID) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name FROM groups AS g
		INNER JOIN group_members AS gm ON gm.group_id = g.id
		WHERE gm.user_id = @user ORDER BY g.name, g.id`,
		sql.Named("user", string(user)))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *SQLiteUserStore) GetGroupMembers(ctx context.Context, group ID) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.role, u.avatar FROM users AS u
		INNER JOIN group_members AS gm ON gm.user_id = u.id
		WHERE gm.group_id = @group ORDER BY u.name, u.id`,
		sql.Named("group", string(group)))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Avatar); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteUserStore) IsGroupMember(ctx context.Context, group, user ID) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM group_members WHERE group_id = @group AND user_id = @user`,
		sql.Named("group", string(group)), sql.Named("user", string(user)))
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("row.Scan: %w", err)
	}
	return count > 0, nil
}
