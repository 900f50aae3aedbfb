package core

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

type StoreFixture struct {
	ctx       context.Context
	db        *sql.DB
	userStore UserStore
	chatStore ChatStore
	t         *testing.T
	tearDown  func()
}

// NewStoreFixture opens a fresh in-memory database, named after the test so
// parallel tests never share state, and runs the migrations against it.
func NewStoreFixture(t *testing.T) *StoreFixture {

	ctx, cancel := context.WithCancel(context.Background())

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatal(err)
	}

	migrationfs := os.DirFS("../migrations")
	goose.SetBaseFS(migrationfs)

	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatal(err)
	}

	if err := goose.Up(db, "."); err != nil {
		t.Fatal(err)
	}

	userStore := NewSQLiteUserStore(db)

	return &StoreFixture{
		ctx:       ctx,
		db:        db,
		userStore: userStore,
		chatStore: NewSQLiteChatStore(db, userStore),
		t:         t,
		tearDown: func() {
			cancel()
			db.Close()
		},
	}
}
